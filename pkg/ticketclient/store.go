package ticketclient

import (
	"context"

	"github.com/psds-microservice/ticket-desk/pkg/querycache"
)

// TicketsKey is the cache key of the full ticket collection.
const TicketsKey = "tickets"

type TicketsState = querycache.State[[]Ticket]

// Store is the data API consumed by views. All views share one cached ticket
// collection; every successful write invalidates it so subscribers refresh.
type Store struct {
	client *Client
	cache  *querycache.Cache[[]Ticket]
}

func NewStore(client *Client, opts querycache.Options) *Store {
	cache := querycache.New[[]Ticket](opts)
	cache.Register(TicketsKey, client.List)
	return &Store{client: client, cache: cache}
}

// Tickets returns the cached collection, loading it if it is missing or stale.
func (s *Store) Tickets(ctx context.Context) ([]Ticket, error) {
	return s.cache.Fetch(ctx, TicketsKey)
}

// Refresh reloads the collection even when the cached copy is fresh.
func (s *Store) Refresh(ctx context.Context) ([]Ticket, error) {
	return s.cache.Refetch(ctx, TicketsKey)
}

// Ticket returns one ticket for a detail view. It is taken from the shared
// collection when present there, otherwise fetched by id.
func (s *Store) Ticket(ctx context.Context, id uint64) (*Ticket, error) {
	items, err := s.Tickets(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ID == id {
			t := items[i]
			return &t, nil
		}
	}
	return s.client.Get(ctx, id)
}

// State returns the current snapshot without fetching.
func (s *Store) State() TicketsState {
	st, _ := s.cache.Peek(TicketsKey)
	return st
}

// Subscribe registers fn for every change of the collection and starts a load
// unless the cached copy is fresh. Call the returned func to unsubscribe.
func (s *Store) Subscribe(fn func(TicketsState)) (TicketsState, func(), error) {
	st, cancel, err := s.cache.Subscribe(TicketsKey, fn)
	if err != nil {
		return st, cancel, err
	}
	if err := s.cache.Prefetch(TicketsKey); err != nil {
		cancel()
		return st, func() {}, err
	}
	return st, cancel, nil
}

func (s *Store) Create(ctx context.Context, req CreateTicketRequest) (*Ticket, error) {
	var created *Ticket
	err := s.cache.Mutate(ctx, TicketsKey, func(ctx context.Context) error {
		t, err := s.client.Create(ctx, req)
		created = t
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) Delete(ctx context.Context, id uint64) error {
	return s.cache.Mutate(ctx, TicketsKey, func(ctx context.Context) error {
		return s.client.Delete(ctx, id)
	})
}

// Complete marks a ticket as completed.
func (s *Store) Complete(ctx context.Context, id uint64) (*Ticket, error) {
	return s.SetStatus(ctx, id, StatusCompleted)
}

func (s *Store) SetStatus(ctx context.Context, id uint64, status Status) (*Ticket, error) {
	var updated *Ticket
	err := s.cache.Mutate(ctx, TicketsKey, func(ctx context.Context) error {
		t, err := s.client.UpdateStatus(ctx, id, status)
		updated = t
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Invalidate marks the collection stale, e.g. after a change made by another client.
func (s *Store) Invalidate() error {
	return s.cache.Invalidate(TicketsKey)
}

// Close stops background refreshes.
func (s *Store) Close() {
	s.cache.Close()
}
