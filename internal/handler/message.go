// internal/handler/message.go
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"

	"github.com/legendisdaname/whatsapp-platform-backend/internal/client"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/helper"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/model"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/service"
)

type MessageHandler struct {
	Manager *service.Manager
	Store   *model.MessageStore
}

func NewMessageHandler(manager *service.Manager, store *model.MessageStore) *MessageHandler {
	return &MessageHandler{Manager: manager, Store: store}
}

type sendMessageRequest struct {
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
}

func (h *MessageHandler) Send(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Recipient == "" || req.Body == "" {
		return ErrorResponse(c, http.StatusBadRequest, "recipient and body are required")
	}

	result, err := h.Manager.SendMessage(c.Request().Context(), c.Param("id"), req.Recipient, req.Body)
	if err != nil {
		switch {
		case errors.Is(err, helper.ErrInvalidAddress):
			return ErrorResponse(c, http.StatusBadRequest, "invalid recipient address")
		case errors.Is(err, service.ErrSessionNotConnected):
			return ErrorResponse(c, http.StatusConflict, "session is not connected")
		case errors.Is(err, client.ErrRecipientUnreachable):
			return ErrorResponse(c, http.StatusUnprocessableEntity, "recipient is not registered on WhatsApp")
		default:
			return ErrorResponse(c, http.StatusBadGateway, "failed to send message")
		}
	}

	return SuccessResponse(c, http.StatusOK, "message sent", result)
}

func (h *MessageHandler) List(c echo.Context) error {
	id := c.Param("id")
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	messages, err := h.Store.ListBySession(id, limit, offset)
	if err != nil {
		return err
	}
	total, err := h.Store.CountBySession(id)
	if err != nil {
		return err
	}

	resp := make([]model.MessageResp, 0, len(messages))
	for _, m := range messages {
		resp = append(resp, m.ToResponse())
	}
	return SuccessResponse(c, http.StatusOK, "messages", echo.Map{
		"total":    total,
		"messages": resp,
	})
}

// Export streams the session's message log as an xlsx workbook.
func (h *MessageHandler) Export(c echo.Context) error {
	id := c.Param("id")

	messages, err := h.Store.ListBySession(id, 500, 0)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Messages"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"ID", "Direction", "Status", "Recipient", "Sender", "Body", "Message ID", "Error", "Created At"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
	}

	for row, m := range messages {
		values := []interface{}{
			m.ID, m.Direction, m.Status,
			m.Recipient.String, m.Sender.String, m.Body,
			m.WaMessageID.String, m.ErrorMessage.String,
			m.CreatedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	filename := fmt.Sprintf("messages-%s-%s.xlsx", id, time.Now().Format("20060102-150405"))
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	c.Response().Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Response().WriteHeader(http.StatusOK)

	return f.Write(c.Response().Writer)
}
