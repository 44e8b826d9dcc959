package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/psds-microservice/ticket-desk/internal/errs"
	"github.com/psds-microservice/ticket-desk/internal/model"
)

// TicketStore: контракт хранилища тикетов для сервисного слоя (подменяется в тестах).
type TicketStore interface {
	ListAll(ctx context.Context) ([]model.Ticket, error)
	GetByID(ctx context.Context, id uint64) (*model.Ticket, error)
	Create(ctx context.Context, f model.TicketFields) (*model.Ticket, error)
	DeleteByID(ctx context.Context, id uint64) error
	UpdateStatus(ctx context.Context, id uint64, status model.TicketStatus) (*model.Ticket, error)
}

// TicketRepository: единственный код, который ходит в таблицу tickets.
type TicketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// ListAll returns every ticket in primary-key order; an empty table yields an empty slice.
func (r *TicketRepository) ListAll(ctx context.Context) ([]model.Ticket, error) {
	items := make([]model.Ticket, 0)
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return items, nil
}

func (r *TicketRepository) GetByID(ctx context.Context, id uint64) (*model.Ticket, error) {
	var t model.Ticket
	if err := r.db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket %d: %w", id, err)
	}
	return &t, nil
}

// Create inserts a row and returns it with the generated id.
// A duplicate telephone yields errs.ErrDuplicateTelephone; nothing is overwritten.
func (r *TicketRepository) Create(ctx context.Context, f model.TicketFields) (*model.Ticket, error) {
	t := &model.Ticket{
		Fullname:  f.Fullname,
		Telephone: f.Telephone,
		Brand:     f.Brand,
		Status:    f.Status,
		Comment:   f.Comment,
	}
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.ErrDuplicateTelephone
		}
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	return t, nil
}

func (r *TicketRepository) DeleteByID(ctx context.Context, id uint64) error {
	res := r.db.WithContext(ctx).Delete(&model.Ticket{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete ticket %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.ErrTicketNotFound
	}
	return nil
}

// UpdateStatus changes only the status column and returns the fresh row.
func (r *TicketRepository) UpdateStatus(ctx context.Context, id uint64, status model.TicketStatus) (*model.Ticket, error) {
	res := r.db.WithContext(ctx).Model(&model.Ticket{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return nil, fmt.Errorf("update ticket %d status: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errs.ErrTicketNotFound
	}
	return r.GetByID(ctx, id)
}
