package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psds-microservice/ticket-desk/internal/errs"
	"github.com/psds-microservice/ticket-desk/internal/logger"
	"github.com/psds-microservice/ticket-desk/internal/model"
	"github.com/psds-microservice/ticket-desk/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =====================================================================
// Mock service
// =====================================================================

type mockTicketService struct {
	tickets []model.Ticket
	ticket  *model.Ticket
	err     error

	gotCreate *service.CreateTicketInput
	gotUpdate *service.UpdateStatusInput
}

func (m *mockTicketService) List(context.Context) ([]model.Ticket, error) {
	return m.tickets, m.err
}

func (m *mockTicketService) Get(context.Context, uint64) (*model.Ticket, error) {
	return m.ticket, m.err
}

func (m *mockTicketService) Create(_ context.Context, in service.CreateTicketInput) (*model.Ticket, error) {
	m.gotCreate = &in
	return m.ticket, m.err
}

func (m *mockTicketService) Delete(context.Context, uint64) error {
	return m.err
}

func (m *mockTicketService) UpdateStatus(_ context.Context, _ uint64, in service.UpdateStatusInput) (*model.Ticket, error) {
	m.gotUpdate = &in
	return m.ticket, m.err
}

// =====================================================================
// Test helpers
// =====================================================================

func newTestEngine(svc service.TicketServicer) *gin.Engine {
	h := NewTicketHandler(svc, logger.Discard())
	r := gin.New()
	r.GET("/tickets", h.List)
	r.POST("/tickets", h.Create)
	r.GET("/tickets/:id", h.Get)
	r.DELETE("/tickets/:id", h.Delete)
	r.PATCH("/tickets/:id", h.UpdateStatus)
	return r
}

func doRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case string:
		req = httptest.NewRequest(method, path, bytes.NewBufferString(b))
		req.Header.Set("Content-Type", "application/json")
	default:
		raw, _ := json.Marshal(b)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

var sampleTicket = &model.Ticket{
	ID:        4,
	Fullname:  "Daniela Garcia Marquez",
	Telephone: "+52 3450098878",
	Brand:     "Tesla",
	Status:    model.TicketStatusIncomplete,
	Comment:   "cannot download payrolls",
}

// =====================================================================
// Tests
// =====================================================================

func TestTicketHandler_List(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		r := newTestEngine(&mockTicketService{tickets: []model.Ticket{*sampleTicket}})
		w := doRequest(r, http.MethodGet, "/tickets", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		var items []model.Ticket
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
		assert.Equal(t, []model.Ticket{*sampleTicket}, items)
	})

	t.Run("storage error is generic 500", func(t *testing.T) {
		r := newTestEngine(&mockTicketService{err: errors.New("pq: connection refused to 10.0.0.5")})
		w := doRequest(r, http.MethodGet, "/tickets", nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal error", decodeBody(t, w)["error"])
		assert.NotContains(t, w.Body.String(), "10.0.0.5")
	})
}

func TestTicketHandler_Create(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := &mockTicketService{ticket: sampleTicket}
		r := newTestEngine(svc)
		w := doRequest(r, http.MethodPost, "/tickets", map[string]string{
			"fullname":  sampleTicket.Fullname,
			"telephone": sampleTicket.Telephone,
			"brand":     sampleTicket.Brand,
			"comment":   sampleTicket.Comment,
			"status":    "completed",
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.EqualValues(t, 4, decodeBody(t, w)["id"])
		require.NotNil(t, svc.gotCreate)
		assert.Equal(t, "+52 3450098878", svc.gotCreate.Telephone)
	})

	t.Run("malformed json", func(t *testing.T) {
		r := newTestEngine(&mockTicketService{})
		w := doRequest(r, http.MethodPost, "/tickets", "{not json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid body", decodeBody(t, w)["error"])
	})

	t.Run("wrong json type is a field error", func(t *testing.T) {
		svc := &mockTicketService{}
		w := doRequest(newTestEngine(svc), http.MethodPost, "/tickets", `{"fullname":1,"telephone":"12345","brand":"BMW","comment":"x"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "validation failed", body["error"])
		fields, ok := body["fields"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "fullname must be a string", fields["fullname"])
		assert.Nil(t, svc.gotCreate)
	})

	t.Run("empty body reaches validation", func(t *testing.T) {
		ve := errs.NewValidationError()
		ve.Add("fullname", "fullname is required")
		svc := &mockTicketService{err: ve}
		w := doRequest(newTestEngine(svc), http.MethodPost, "/tickets", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, svc.gotCreate)
		assert.Equal(t, service.CreateTicketInput{}, *svc.gotCreate)
		assert.Contains(t, decodeBody(t, w), "fields")
	})

	t.Run("validation error lists fields", func(t *testing.T) {
		ve := errs.NewValidationError()
		ve.Add("fullname", "fullname is required")
		r := newTestEngine(&mockTicketService{err: ve})
		w := doRequest(r, http.MethodPost, "/tickets", map[string]string{"telephone": "12345"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeBody(t, w)
		fields, ok := body["fields"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "fullname is required", fields["fullname"])
	})

	t.Run("duplicate telephone", func(t *testing.T) {
		r := newTestEngine(&mockTicketService{err: errs.ErrDuplicateTelephone})
		w := doRequest(r, http.MethodPost, "/tickets", map[string]string{"telephone": "12345"})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.NotEqual(t, "internal error", decodeBody(t, w)["error"])
	})
}

func TestTicketHandler_Get(t *testing.T) {
	r := newTestEngine(&mockTicketService{ticket: sampleTicket})
	w := doRequest(r, http.MethodGet, "/tickets/4", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/tickets/four", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r = newTestEngine(&mockTicketService{err: errs.ErrTicketNotFound})
	w = doRequest(r, http.MethodGet, "/tickets/4", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTicketHandler_Delete(t *testing.T) {
	t.Run("no content", func(t *testing.T) {
		r := newTestEngine(&mockTicketService{})
		w := doRequest(r, http.MethodDelete, "/tickets/4", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("bad id", func(t *testing.T) {
		r := newTestEngine(&mockTicketService{})
		w := doRequest(r, http.MethodDelete, "/tickets/-1", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		r := newTestEngine(&mockTicketService{err: errs.ErrTicketNotFound})
		w := doRequest(r, http.MethodDelete, "/tickets/4", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "ticket not found", decodeBody(t, w)["error"])
	})

	t.Run("id beyond storable range", func(t *testing.T) {
		svc := &mockTicketService{err: errors.New("sql: uint64 values with high bit set are not supported")}
		r := newTestEngine(svc)
		for _, path := range []string{"/tickets/9223372036854775808", "/tickets/18446744073709551615", "/tickets/99999999999999999999"} {
			w := doRequest(r, http.MethodDelete, path, nil)
			assert.Equal(t, http.StatusNotFound, w.Code, path)
			assert.Equal(t, "ticket not found", decodeBody(t, w)["error"])
		}
		w := doRequest(r, http.MethodDelete, "/tickets/9223372036854775807", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code, "max int64 still reaches the service")
	})
}

func TestTicketHandler_UpdateStatus(t *testing.T) {
	t.Run("empty body means no change", func(t *testing.T) {
		svc := &mockTicketService{ticket: sampleTicket}
		w := doRequest(newTestEngine(svc), http.MethodPatch, "/tickets/4", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, svc.gotUpdate)
		assert.Nil(t, svc.gotUpdate.Status)
	})

	t.Run("status forwarded", func(t *testing.T) {
		svc := &mockTicketService{ticket: sampleTicket}
		w := doRequest(newTestEngine(svc), http.MethodPatch, "/tickets/4", map[string]string{"status": "completed"})
		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, svc.gotUpdate.Status)
		assert.Equal(t, "completed", *svc.gotUpdate.Status)
	})

	t.Run("not found", func(t *testing.T) {
		svc := &mockTicketService{err: errs.ErrTicketNotFound}
		w := doRequest(newTestEngine(svc), http.MethodPatch, "/tickets/4", map[string]string{})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("wrong status type", func(t *testing.T) {
		svc := &mockTicketService{ticket: sampleTicket}
		w := doRequest(newTestEngine(svc), http.MethodPatch, "/tickets/4", `{"status":true}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		fields, ok := decodeBody(t, w)["fields"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "status must be a string", fields["status"])
		assert.Nil(t, svc.gotUpdate)
	})
}

func TestReady(t *testing.T) {
	r := gin.New()
	r.GET("/ok", Ready(func(context.Context) error { return nil }))
	r.GET("/down", Ready(func(context.Context) error { return errors.New("db down") }))
	r.GET("/health", Health)

	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/ok", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, doRequest(r, http.MethodGet, "/down", nil).Code)
	assert.Equal(t, "ticket-desk", decodeBody(t, doRequest(r, http.MethodGet, "/health", nil))["service"])
}
