// internal/handler/admin.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/legendisdaname/whatsapp-platform-backend/internal/model"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/service"
)

type AdminHandler struct {
	Manager *service.Manager
	Health  *service.HealthMonitor
}

func NewAdminHandler(manager *service.Manager, health *service.HealthMonitor) *AdminHandler {
	return &AdminHandler{Manager: manager, Health: health}
}

func (h *AdminHandler) AuditLogs(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	logs, err := model.ListAuditLogs(limit)
	if err != nil {
		return err
	}
	return SuccessResponse(c, http.StatusOK, "audit logs", logs)
}

// HealthSweep forces an immediate health pass instead of waiting for the
// ticker. Handy after a network blip takes several sessions down at once.
func (h *AdminHandler) HealthSweep(c echo.Context) error {
	h.Health.Sweep(c.Request().Context())
	return SuccessResponse(c, http.StatusOK, "health sweep completed", echo.Map{
		"active_handles": h.Manager.HandleCount(),
	})
}

func (h *AdminHandler) Stats(c echo.Context) error {
	return SuccessResponse(c, http.StatusOK, "stats", echo.Map{
		"active_handles": h.Manager.HandleCount(),
	})
}
