package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/psds-microservice/ticket-desk/internal/errs"
	"github.com/psds-microservice/ticket-desk/internal/service"
)

type TicketHandler struct {
	svc service.TicketServicer
	log *slog.Logger
}

func NewTicketHandler(svc service.TicketServicer, log *slog.Logger) *TicketHandler {
	return &TicketHandler{svc: svc, log: log.With("component", "ticket_handler")}
}

func (h *TicketHandler) List(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.writeError(c, "list tickets", err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *TicketHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	t, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "get ticket", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) Create(c *gin.Context) {
	var req service.CreateTicketInput
	// пустое тело проверяется как пустой тикет, чтобы ответ перечислил обязательные поля
	if !h.bindJSON(c, &req) {
		return
	}
	t, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "create ticket", err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *TicketHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, "delete ticket", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TicketHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req service.UpdateStatusInput
	// пустое тело == нет изменений
	if !h.bindJSON(c, &req) {
		return
	}
	t, err := h.svc.UpdateStatus(c.Request.Context(), id, req)
	if err != nil {
		h.writeError(c, "update ticket status", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// bindJSON decodes the body into req. An empty body leaves req zeroed; a value of the
// wrong JSON type is reported as a field error.
func (h *TicketHandler) bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		ve := errs.NewValidationError()
		ve.Add(typeErr.Field, fmt.Sprintf("%s must be a %s", typeErr.Field, jsonKind(typeErr)))
		h.writeError(c, "bind body", ve)
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
	return false
}

func jsonKind(e *json.UnmarshalTypeError) string {
	if e.Type == nil {
		return "valid value"
	}
	if e.Type.Kind() == reflect.Ptr {
		return e.Type.Elem().Kind().String()
	}
	return e.Type.Kind().String()
}

// parseID: нечисловой id == 400; число вне диапазона BIGINT не может существовать в хранилище == 404.
func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 63)
	if errors.Is(err, strconv.ErrRange) {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		return 0, false
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// writeError maps service errors to exactly one status; 5xx bodies never carry the cause.
func (h *TicketHandler) writeError(c *gin.Context, op string, err error) {
	if ve, ok := errs.IsValidation(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": ve.Fields})
		return
	}
	switch {
	case errors.Is(err, errs.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
	case errors.Is(err, errs.ErrDuplicateTelephone):
		c.JSON(http.StatusConflict, gin.H{"error": "a ticket with this telephone already exists"})
	default:
		h.log.Error(op+" failed", "error", err, "path", c.FullPath(), "id", c.Param("id"))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
