// internal/handler/contact.go
package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/legendisdaname/whatsapp-platform-backend/internal/service"
)

type ContactHandler struct {
	Manager *service.Manager
}

func NewContactHandler(manager *service.Manager) *ContactHandler {
	return &ContactHandler{Manager: manager}
}

// ListGroups returns the groups the session's account is a member of.
func (h *ContactHandler) ListGroups(c echo.Context) error {
	groups, err := h.Manager.JoinedGroups(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotConnected) {
			return ErrorResponse(c, http.StatusConflict, "session is not connected")
		}
		return err
	}
	return SuccessResponse(c, http.StatusOK, "groups", groups)
}

// ListGroupMembers returns member addresses of one group.
func (h *ContactHandler) ListGroupMembers(c echo.Context) error {
	address := c.QueryParam("address")
	if address == "" {
		return ErrorResponse(c, http.StatusBadRequest, "address query param is required")
	}

	members, err := h.Manager.GroupMembers(c.Request().Context(), c.Param("id"), address)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotConnected) {
			return ErrorResponse(c, http.StatusConflict, "session is not connected")
		}
		return err
	}
	return SuccessResponse(c, http.StatusOK, "group members", echo.Map{
		"address": address,
		"members": members,
	})
}
