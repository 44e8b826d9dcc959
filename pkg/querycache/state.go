package querycache

import "time"

type Status int

const (
	StatusEmpty Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// State is a snapshot of one cached key. Data holds the last successful value and
// stays populated through later loading and error states; HasData tells whether
// any fetch has succeeded yet. Data is shared between subscribers and must be
// treated as read-only.
type State[T any] struct {
	Status    Status
	Data      T
	HasData   bool
	Err       error
	Stale     bool
	UpdatedAt time.Time
}

// Fresh reports whether the snapshot can be served without a refetch.
func (s State[T]) Fresh() bool {
	return s.Status == StatusSuccess && !s.Stale
}
