// internal/handler/session.go
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/legendisdaname/whatsapp-platform-backend/internal/middleware"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/model"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/service"
)

type SessionHandler struct {
	Manager *service.Manager
	Store   *model.SessionStore
}

func NewSessionHandler(manager *service.Manager, store *model.SessionStore) *SessionHandler {
	return &SessionHandler{Manager: manager, Store: store}
}

type createSessionRequest struct {
	Name string `json:"name"`
}

func (h *SessionHandler) Create(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return ErrorResponse(c, http.StatusBadRequest, "name is required")
	}

	var createdBy int64
	if claims := middleware.ClaimsFrom(c); claims != nil {
		createdBy = claims.UserID
	}

	id, err := h.Manager.CreateSession(req.Name, createdBy)
	if err != nil {
		return err
	}
	if err := model.LogAction(createdBy, model.AuditSessionCreated, id, echo.Map{"name": req.Name}); err != nil {
		c.Logger().Warnf("audit log failed: %v", err)
	}
	return SuccessResponse(c, http.StatusCreated, "session created", echo.Map{
		"id":     id,
		"name":   req.Name,
		"status": model.StatusConnecting,
	})
}

func (h *SessionHandler) List(c echo.Context) error {
	claims := middleware.ClaimsFrom(c)

	var (
		sessions []*model.Session
		err      error
	)
	if claims != nil && claims.Role != model.RoleAdmin {
		sessions, err = h.Store.ListByOwner(claims.UserID)
	} else {
		sessions, err = h.Store.ListAll()
	}
	if err != nil {
		return err
	}

	resp := make([]model.SessionResp, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, s.ToResponse())
	}
	return SuccessResponse(c, http.StatusOK, "sessions", resp)
}

func (h *SessionHandler) Get(c echo.Context) error {
	record, err := h.getRecord(c)
	if err != nil {
		return err
	}
	return SuccessResponse(c, http.StatusOK, "session", record.ToResponse())
}

// GetQR returns the current pairing challenge, if one is being shown.
func (h *SessionHandler) GetQR(c echo.Context) error {
	record, err := h.getRecord(c)
	if err != nil {
		return err
	}
	if record.Status != model.StatusQRPending || !record.QRCode.Valid {
		return ErrorResponse(c, http.StatusConflict, "no QR code pending for this session")
	}
	return SuccessResponse(c, http.StatusOK, "qr code", echo.Map{
		"qr_image": record.QRCode.String,
	})
}

// GetStatus reports the stored status plus the live client state when a
// handle exists.
func (h *SessionHandler) GetStatus(c echo.Context) error {
	record, err := h.getRecord(c)
	if err != nil {
		return err
	}

	liveState := "none"
	if cl := h.Manager.ClientFor(record.ID); cl != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		if state, err := cl.GetState(ctx); err == nil {
			liveState = state.String()
		}
	}

	resp := echo.Map{
		"id":         record.ID,
		"status":     record.Status,
		"live_state": liveState,
	}
	if record.PhoneNumber.Valid {
		resp["phone_number"] = record.PhoneNumber.String
	}
	if record.LastSeen.Valid {
		resp["last_seen"] = record.LastSeen.Time
	}
	return SuccessResponse(c, http.StatusOK, "session status", resp)
}

// Connect (re)starts the session's connection. Also the recovery path for
// conflict states, which never reconnect on their own.
func (h *SessionHandler) Connect(c echo.Context) error {
	id := c.Param("id")
	if err := h.Manager.ForceReconnect(id); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			return ErrorResponse(c, http.StatusNotFound, "session not found")
		}
		return err
	}
	return SuccessResponse(c, http.StatusAccepted, "connection started", echo.Map{"id": id})
}

func (h *SessionHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	if err := h.Manager.DeleteSession(id); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			return ErrorResponse(c, http.StatusNotFound, "session not found")
		}
		return err
	}

	var actor int64
	if claims := middleware.ClaimsFrom(c); claims != nil {
		actor = claims.UserID
	}
	if err := model.LogAction(actor, model.AuditSessionDeleted, id, nil); err != nil {
		c.Logger().Warnf("audit log failed: %v", err)
	}
	return SuccessResponse(c, http.StatusOK, "session deleted", echo.Map{"id": id})
}

type webhookConfigRequest struct {
	URL    string `json:"url"`
	Secret string `json:"secret"`
}

func (h *SessionHandler) UpdateWebhook(c echo.Context) error {
	record, err := h.getRecord(c)
	if err != nil {
		return err
	}

	var req webhookConfigRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request body")
	}
	if err := h.Store.UpdateWebhook(record.ID, req.URL, req.Secret); err != nil {
		return err
	}
	return SuccessResponse(c, http.StatusOK, "webhook updated", echo.Map{"id": record.ID})
}

type autoReplyConfigRequest struct {
	Enabled   bool   `json:"enabled"`
	AIContext string `json:"ai_context"`
}

func (h *SessionHandler) UpdateAutoReply(c echo.Context) error {
	record, err := h.getRecord(c)
	if err != nil {
		return err
	}

	var req autoReplyConfigRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request body")
	}
	if err := h.Store.UpdateAutoReply(record.ID, req.Enabled, req.AIContext); err != nil {
		return err
	}
	return SuccessResponse(c, http.StatusOK, "auto-reply updated", echo.Map{"id": record.ID})
}

func (h *SessionHandler) getRecord(c echo.Context) (*model.Session, error) {
	record, err := h.Store.GetByID(c.Param("id"))
	if err != nil {
		if errors.Is(err, model.ErrSessionRecordNotFound) {
			return nil, ErrorResponse(c, http.StatusNotFound, "session not found")
		}
		return nil, err
	}
	return record, nil
}
