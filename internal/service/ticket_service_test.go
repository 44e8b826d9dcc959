package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psds-microservice/ticket-desk/internal/config"
	"github.com/psds-microservice/ticket-desk/internal/database"
	"github.com/psds-microservice/ticket-desk/internal/errs"
	"github.com/psds-microservice/ticket-desk/internal/kafka"
	"github.com/psds-microservice/ticket-desk/internal/logger"
	"github.com/psds-microservice/ticket-desk/internal/model"
	"github.com/psds-microservice/ticket-desk/internal/repository"
)

type recordedEvent struct {
	name    string
	payload map[string]interface{}
}

type fakeProducer struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeProducer) ProduceTicketEvent(_ context.Context, event string, payload map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{name: event, payload: payload})
}

func (f *fakeProducer) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.name)
	}
	return out
}

func newTestService(t *testing.T) (*TicketService, *fakeProducer) {
	db, err := database.Open(config.DriverSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, database.MigrateUp(context.Background(), db, config.DriverSQLite, logger.Discard()))
	t.Cleanup(func() { _ = database.Close(db) })

	producer := &fakeProducer{}
	return NewTicketService(repository.NewTicketRepository(db), producer, logger.Discard()), producer
}

func validInput(phone string) CreateTicketInput {
	return CreateTicketInput{
		Fullname:  "Ada Lovelace",
		Telephone: phone,
		Brand:     "Tesla",
		Comment:   "noise from dashboard",
	}
}

func TestTicketService_Create_ForcesIncomplete(t *testing.T) {
	svc, producer := newTestService(t)
	ctx := context.Background()

	in := validInput("+1 5551234")
	in.Status = "completed"

	created, err := svc.Create(ctx, in)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, model.TicketStatusIncomplete, created.Status)

	found, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, found)

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{kafka.EventTicketCreated}, producer.names())
	}, time.Second, 10*time.Millisecond)
}

func TestTicketService_Create_TrimsAndValidates(t *testing.T) {
	svc, _ := newTestService(t)

	in := validInput("   123 ")
	in.Fullname = "   "
	_, err := svc.Create(context.Background(), in)

	ve, ok := errs.IsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "fullname")
	assert.Contains(t, ve.Fields, "telephone")
	assert.NotContains(t, ve.Fields, "brand")
}

func TestTicketService_Create_DuplicateTelephone(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, validInput("+39 3450098878"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, validInput("+39 3450098878"))
	assert.ErrorIs(t, err, errs.ErrDuplicateTelephone)
}

func TestTicketService_UpdateStatus(t *testing.T) {
	svc, producer := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validInput("+44 1234567"))
	require.NoError(t, err)

	t.Run("absent status leaves ticket unchanged", func(t *testing.T) {
		got, err := svc.UpdateStatus(ctx, created.ID, UpdateStatusInput{})
		require.NoError(t, err)
		assert.Equal(t, created, got)
	})

	t.Run("complete then reopen", func(t *testing.T) {
		completed := string(model.TicketStatusCompleted)
		got, err := svc.UpdateStatus(ctx, created.ID, UpdateStatusInput{Status: &completed})
		require.NoError(t, err)
		assert.Equal(t, model.TicketStatusCompleted, got.Status)

		incomplete := string(model.TicketStatusIncomplete)
		got, err = svc.UpdateStatus(ctx, created.ID, UpdateStatusInput{Status: &incomplete})
		require.NoError(t, err)
		assert.Equal(t, model.TicketStatusIncomplete, got.Status)
	})

	t.Run("unknown status is a validation error", func(t *testing.T) {
		bogus := "archived"
		_, err := svc.UpdateStatus(ctx, created.ID, UpdateStatusInput{Status: &bogus})
		_, ok := errs.IsValidation(err)
		assert.True(t, ok)
	})

	t.Run("missing ticket", func(t *testing.T) {
		_, err := svc.UpdateStatus(ctx, 777, UpdateStatusInput{})
		assert.ErrorIs(t, err, errs.ErrTicketNotFound)
	})

	assert.Eventually(t, func() bool {
		return len(producer.names()) == 3
	}, time.Second, 10*time.Millisecond)
}

func TestTicketService_Delete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validInput("+33 7654321"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.ErrorIs(t, svc.Delete(ctx, created.ID), errs.ErrTicketNotFound)

	items, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

type failingStore struct {
	repository.TicketStore
}

func (failingStore) ListAll(context.Context) ([]model.Ticket, error) {
	return nil, errors.New("disk I/O error")
}

func TestTicketService_List_PropagatesStorageError(t *testing.T) {
	svc := NewTicketService(failingStore{}, nil, logger.Discard())
	_, err := svc.List(context.Background())
	assert.EqualError(t, err, "disk I/O error")
}
