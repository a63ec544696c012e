// internal/handler/websocket.go
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/legendisdaname/whatsapp-platform-backend/internal/service"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers cannot set an Authorization header on WebSocket dials, so
	// origin is not a trust boundary here; the token check below is.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WebsocketHandler struct {
	Hub *ws.Hub
}

func NewWebsocketHandler(hub *ws.Hub) *WebsocketHandler {
	return &WebsocketHandler{Hub: hub}
}

// Serve upgrades the connection and subscribes it to realtime events. An
// optional session_id query param narrows the subscription to one session.
func (h *WebsocketHandler) Serve(c echo.Context) error {
	return h.serve(c, c.QueryParam("session_id"))
}

// ServeSession is the per-session variant mounted under the session routes.
func (h *WebsocketHandler) ServeSession(c echo.Context) error {
	return h.serve(c, c.Param("id"))
}

func (h *WebsocketHandler) serve(c echo.Context, sessionID string) error {
	token := c.QueryParam("token")
	if token == "" {
		return ErrorResponse(c, http.StatusUnauthorized, "token query param is required")
	}
	if _, err := service.ValidateToken(token); err != nil {
		return ErrorResponse(c, http.StatusUnauthorized, "invalid or expired token")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := ws.NewClient(h.Hub, conn, sessionID)
	h.Hub.Register(client)

	go client.WritePump()
	client.ReadPump()
	return nil
}
