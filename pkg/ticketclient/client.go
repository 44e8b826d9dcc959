// Package ticketclient is the Go SDK for the ticket-desk HTTP API.
//
// Client is a thin typed wrapper over the REST endpoints. Store layers a shared
// cache on top of it so that every view of the ticket list observes the same
// data and refreshes after each successful mutation.
package ticketclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/psds-microservice/ticket-desk/internal/model"
)

type (
	Ticket = model.Ticket
	Status = model.TicketStatus
)

const (
	StatusIncomplete = model.TicketStatusIncomplete
	StatusCompleted  = model.TicketStatusCompleted
)

// CreateTicketRequest: тело POST /tickets. Статус задаёт сервер.
type CreateTicketRequest struct {
	Fullname  string `json:"fullname"`
	Telephone string `json:"telephone"`
	Brand     string `json:"brand"`
	Comment   string `json:"comment"`
}

// APIError is a non-2xx answer of the API.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if len(e.Fields) == 0 {
		return fmt.Sprintf("ticket api: %d %s", e.StatusCode, msg)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return fmt.Sprintf("ticket api: %d %s: %s", e.StatusCode, msg, strings.Join(parts, "; "))
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func IsNotFound(err error) bool   { return statusOf(err) == http.StatusNotFound }
func IsConflict(err error) bool   { return statusOf(err) == http.StatusConflict }
func IsValidation(err error) bool { return statusOf(err) == http.StatusBadRequest }

type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    uint64
	backoff    time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetries sets how many times a failed read is retried. Writes are never retried.
func WithRetries(n uint64, base time.Duration) Option {
	return func(c *Client) {
		c.retries = n
		c.backoff = base
	}
}

// NewClient возвращает клиент для API по адресу baseURL (например http://localhost:8097).
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retries: 2,
		backoff: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) List(ctx context.Context) ([]Ticket, error) {
	items := []Ticket{}
	if err := c.read(ctx, "/tickets", &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) Get(ctx context.Context, id uint64) (*Ticket, error) {
	var t Ticket
	if err := c.read(ctx, ticketPath(id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) Create(ctx context.Context, req CreateTicketRequest) (*Ticket, error) {
	var t Ticket
	if err := c.do(ctx, http.MethodPost, "/tickets", req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) Delete(ctx context.Context, id uint64) error {
	return c.do(ctx, http.MethodDelete, ticketPath(id), nil, nil)
}

func (c *Client) UpdateStatus(ctx context.Context, id uint64, status Status) (*Ticket, error) {
	var t Ticket
	body := map[string]string{"status": string(status)}
	if err := c.do(ctx, http.MethodPatch, ticketPath(id), body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func ticketPath(id uint64) string {
	return "/tickets/" + strconv.FormatUint(id, 10)
}

// read выполняет GET с повторами при сетевых ошибках и 5xx.
func (c *Client) read(ctx context.Context, path string, out any) error {
	if c.retries == 0 {
		return c.do(ctx, http.MethodGet, path, nil, out)
	}
	b := retry.WithMaxRetries(c.retries, retry.NewExponential(c.backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := c.do(ctx, http.MethodGet, path, nil, out)
		if err == nil {
			return nil
		}
		if code := statusOf(err); code != 0 && code < http.StatusInternalServerError {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		return retry.RetryableError(err)
	})
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("ticket api: marshal: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("ticket api: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ticket api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ticket api: decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &payload); err == nil {
		apiErr.Message = payload.Error
		apiErr.Fields = payload.Fields
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
