package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/psds-microservice/ticket-desk/internal/kafka"
	"github.com/psds-microservice/ticket-desk/internal/model"
	"github.com/psds-microservice/ticket-desk/internal/repository"
	"github.com/psds-microservice/ticket-desk/internal/validation"
)

const eventTimeout = 5 * time.Second

// TicketServicer: интерфейс для HTTP-хендлеров (Dependency Inversion).
type TicketServicer interface {
	List(ctx context.Context) ([]model.Ticket, error)
	Get(ctx context.Context, id uint64) (*model.Ticket, error)
	Create(ctx context.Context, in CreateTicketInput) (*model.Ticket, error)
	Delete(ctx context.Context, id uint64) error
	UpdateStatus(ctx context.Context, id uint64, in UpdateStatusInput) (*model.Ticket, error)
}

// CreateTicketInput: тело POST /tickets. Status принимается, но всегда игнорируется.
type CreateTicketInput struct {
	Fullname  string `json:"fullname" validate:"required"`
	Telephone string `json:"telephone" validate:"required,min=5"`
	Brand     string `json:"brand" validate:"required"`
	Comment   string `json:"comment" validate:"required"`
	Status    string `json:"status,omitempty" validate:"-"`
}

func (in *CreateTicketInput) normalize() {
	in.Fullname = strings.TrimSpace(in.Fullname)
	in.Telephone = strings.TrimSpace(in.Telephone)
	in.Brand = strings.TrimSpace(in.Brand)
	in.Comment = strings.TrimSpace(in.Comment)
}

// UpdateStatusInput: тело PATCH /tickets/{id}; отсутствующий status не меняет тикет.
type UpdateStatusInput struct {
	Status *string `json:"status,omitempty" validate:"omitempty,oneof=incomplete completed"`
}

type TicketService struct {
	store    repository.TicketStore
	producer kafka.TicketEventProducer
	log      *slog.Logger
}

// NewTicketService: producer может быть nil, тогда события не публикуются.
func NewTicketService(store repository.TicketStore, producer kafka.TicketEventProducer, log *slog.Logger) *TicketService {
	return &TicketService{store: store, producer: producer, log: log.With("component", "ticket_service")}
}

func (s *TicketService) List(ctx context.Context) ([]model.Ticket, error) {
	return s.store.ListAll(ctx)
}

func (s *TicketService) Get(ctx context.Context, id uint64) (*model.Ticket, error) {
	return s.store.GetByID(ctx, id)
}

// Create validates the payload and stores a new ticket with status forced to incomplete.
func (s *TicketService) Create(ctx context.Context, in CreateTicketInput) (*model.Ticket, error) {
	in.normalize()
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	t, err := s.store.Create(ctx, model.TicketFields{
		Fullname:  in.Fullname,
		Telephone: in.Telephone,
		Brand:     in.Brand,
		Status:    model.TicketStatusIncomplete,
		Comment:   in.Comment,
	})
	if err != nil {
		return nil, err
	}
	s.publish(kafka.EventTicketCreated, kafka.TicketPayload(t))
	return t, nil
}

func (s *TicketService) Delete(ctx context.Context, id uint64) error {
	if err := s.store.DeleteByID(ctx, id); err != nil {
		return err
	}
	s.publish(kafka.EventTicketDeleted, map[string]interface{}{"ticket_id": id})
	return nil
}

// UpdateStatus accepts either status value in both directions.
func (s *TicketService) UpdateStatus(ctx context.Context, id uint64, in UpdateStatusInput) (*model.Ticket, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	if in.Status == nil {
		return s.store.GetByID(ctx, id)
	}
	t, err := s.store.UpdateStatus(ctx, id, model.TicketStatus(*in.Status))
	if err != nil {
		return nil, err
	}
	s.publish(kafka.EventTicketStatusUpdated, kafka.TicketPayload(t))
	return t, nil
}

// publish: fire-and-forget, событие уходит даже если запрос уже завершён, но с таймаутом.
func (s *TicketService) publish(event string, payload map[string]interface{}) {
	if s.producer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		s.producer.ProduceTicketEvent(ctx, event, payload)
	}()
}
