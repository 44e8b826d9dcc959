package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/psds-microservice/ticket-desk/internal/logger"
	"github.com/psds-microservice/ticket-desk/internal/model"
)

func TestNewProducer_DisabledWithoutBrokers(t *testing.T) {
	p := NewProducer(nil, "tickets.events", logger.Discard())
	assert.False(t, p.Enabled())

	// no writer: must not panic or block
	p.ProduceTicketEvent(context.Background(), EventTicketCreated, map[string]interface{}{"ticket_id": uint64(1)})
	assert.NoError(t, p.Close())

	assert.False(t, NewProducer([]string{"localhost:9092"}, "", logger.Discard()).Enabled())
}

func TestNewProducer_Enabled(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "tickets.events", logger.Discard())
	assert.True(t, p.Enabled())
	assert.NoError(t, p.Close())
}

func TestTicketPayload(t *testing.T) {
	assert.Nil(t, TicketPayload(nil))

	payload := TicketPayload(&model.Ticket{
		ID:        3,
		Fullname:  "Michail Kusnetsov",
		Telephone: "+7 3450098878",
		Brand:     "BMW",
		Status:    model.TicketStatusCompleted,
		Comment:   "dns flush",
	})
	assert.Equal(t, uint64(3), payload["ticket_id"])
	assert.Equal(t, "completed", payload["status"])
	assert.Equal(t, "BMW", payload["brand"])
}
