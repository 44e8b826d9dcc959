package model

type TicketStatus string

const (
	TicketStatusIncomplete TicketStatus = "incomplete"
	TicketStatusCompleted  TicketStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	return s == TicketStatusIncomplete || s == TicketStatusCompleted
}

type Ticket struct {
	ID        uint64       `gorm:"primaryKey" json:"id"`
	Fullname  string       `gorm:"not null" json:"fullname"`
	Telephone string       `gorm:"uniqueIndex;not null" json:"telephone"`
	Brand     string       `gorm:"not null" json:"brand"`
	Status    TicketStatus `gorm:"type:varchar(32);not null" json:"status"`
	Comment   string       `gorm:"type:text;not null" json:"comment"`
}

// TicketFields is the set of columns supplied on insert; the id comes from the store.
type TicketFields struct {
	Fullname  string
	Telephone string
	Brand     string
	Status    TicketStatus
	Comment   string
}
