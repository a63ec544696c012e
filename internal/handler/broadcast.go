// internal/handler/broadcast.go
package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"

	"github.com/legendisdaname/whatsapp-platform-backend/internal/helper"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/middleware"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/model"
)

type createBroadcastRequest struct {
	Name         string   `json:"name"`
	SessionID    string   `json:"session_id"`
	Recipients   []string `json:"recipients"`
	GroupAddress string   `json:"group_address"`
	Body         string   `json:"body"`
	Schedule     string   `json:"schedule"`
}

func CreateBroadcast(c echo.Context) error {
	var req createBroadcastRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" || req.SessionID == "" || req.Body == "" || req.Schedule == "" {
		return ErrorResponse(c, http.StatusBadRequest, "name, session_id, body and schedule are required")
	}
	if len(req.Recipients) == 0 && req.GroupAddress == "" {
		return ErrorResponse(c, http.StatusBadRequest, "recipients or group_address is required")
	}

	schedule, err := cron.ParseStandard(req.Schedule)
	if err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid cron schedule: "+err.Error())
	}

	for _, r := range req.Recipients {
		if _, err := helper.NormalizePhone(r); err != nil {
			return ErrorResponse(c, http.StatusBadRequest, "invalid recipient: "+r)
		}
	}

	b := &model.Broadcast{
		ID:        uuid.NewString(),
		Name:      req.Name,
		SessionID: req.SessionID,
		Body:      req.Body,
		Schedule:  req.Schedule,
		Status:    model.BroadcastActive,
		NextRunAt: sql.NullTime{Time: schedule.Next(time.Now()), Valid: true},
	}
	if len(req.Recipients) > 0 {
		b.Recipients = sql.NullString{String: strings.Join(req.Recipients, ","), Valid: true}
	}
	if req.GroupAddress != "" {
		b.GroupAddress = sql.NullString{String: req.GroupAddress, Valid: true}
	}
	if claims := middleware.ClaimsFrom(c); claims != nil {
		b.CreatedBy = sql.NullInt64{Int64: claims.UserID, Valid: true}
	}

	if err := model.InsertBroadcast(b); err != nil {
		return err
	}
	if err := model.LogAction(b.CreatedBy.Int64, model.AuditBroadcastCreated, b.ID, echo.Map{"name": b.Name}); err != nil {
		c.Logger().Warnf("audit log failed: %v", err)
	}
	return SuccessResponse(c, http.StatusCreated, "broadcast created", b.ToResponse())
}

func ListBroadcasts(c echo.Context) error {
	broadcasts, err := model.ListBroadcasts()
	if err != nil {
		return err
	}
	resp := make([]model.BroadcastResp, 0, len(broadcasts))
	for _, b := range broadcasts {
		resp = append(resp, b.ToResponse())
	}
	return SuccessResponse(c, http.StatusOK, "broadcasts", resp)
}

func GetBroadcast(c echo.Context) error {
	b, err := model.GetBroadcastByID(c.Param("id"))
	if err != nil {
		if errors.Is(err, model.ErrBroadcastNotFound) {
			return ErrorResponse(c, http.StatusNotFound, "broadcast not found")
		}
		return err
	}
	return SuccessResponse(c, http.StatusOK, "broadcast", b.ToResponse())
}

// ToggleBroadcast flips a broadcast between ACTIVE and PAUSED.
func ToggleBroadcast(c echo.Context) error {
	b, err := model.GetBroadcastByID(c.Param("id"))
	if err != nil {
		if errors.Is(err, model.ErrBroadcastNotFound) {
			return ErrorResponse(c, http.StatusNotFound, "broadcast not found")
		}
		return err
	}

	next := model.BroadcastActive
	if b.Status == model.BroadcastActive {
		next = model.BroadcastPaused
	}
	if err := model.UpdateBroadcastStatus(b.ID, next); err != nil {
		return err
	}
	return SuccessResponse(c, http.StatusOK, "broadcast "+strings.ToLower(next), echo.Map{
		"id":     b.ID,
		"status": next,
	})
}

func DeleteBroadcast(c echo.Context) error {
	id := c.Param("id")
	if _, err := model.GetBroadcastByID(id); err != nil {
		if errors.Is(err, model.ErrBroadcastNotFound) {
			return ErrorResponse(c, http.StatusNotFound, "broadcast not found")
		}
		return err
	}
	if err := model.DeleteBroadcast(id); err != nil {
		return err
	}

	var actor int64
	if claims := middleware.ClaimsFrom(c); claims != nil {
		actor = claims.UserID
	}
	if err := model.LogAction(actor, model.AuditBroadcastDeleted, id, nil); err != nil {
		c.Logger().Warnf("audit log failed: %v", err)
	}
	return SuccessResponse(c, http.StatusOK, "broadcast deleted", echo.Map{"id": id})
}

func ListBroadcastResults(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	results, err := model.ListBroadcastResults(c.Param("id"), limit)
	if err != nil {
		return err
	}

	type resultResp struct {
		ID           int64     `json:"id"`
		Recipient    string    `json:"recipient"`
		Status       string    `json:"status"`
		WaMessageID  string    `json:"wa_message_id,omitempty"`
		ErrorMessage string    `json:"error_message,omitempty"`
		ExecutedAt   time.Time `json:"executed_at"`
	}
	resp := make([]resultResp, 0, len(results))
	for _, r := range results {
		resp = append(resp, resultResp{
			ID:           r.ID,
			Recipient:    r.Recipient,
			Status:       r.Status,
			WaMessageID:  r.WaMessageID.String,
			ErrorMessage: r.ErrorMessage.String,
			ExecutedAt:   r.ExecutedAt,
		})
	}
	return SuccessResponse(c, http.StatusOK, "broadcast results", resp)
}
