package ticketclient

// Stats are the counters shown above the ticket list.
type Stats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Incomplete int `json:"incomplete"`
}

func Summarize(tickets []Ticket) Stats {
	st := Stats{Total: len(tickets)}
	for _, t := range tickets {
		switch t.Status {
		case StatusCompleted:
			st.Completed++
		case StatusIncomplete:
			st.Incomplete++
		}
	}
	return st
}
