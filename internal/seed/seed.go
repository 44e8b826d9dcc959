// Package seed loads the demo tickets shown on a fresh installation.
package seed

import (
	"context"
	"errors"
	"log/slog"

	"github.com/psds-microservice/ticket-desk/internal/errs"
	"github.com/psds-microservice/ticket-desk/internal/model"
	"github.com/psds-microservice/ticket-desk/internal/repository"
)

var DemoTickets = []model.TicketFields{
	{
		Fullname:  "Mario Rossi",
		Telephone: "+39 3450098878",
		Brand:     "Mercedes",
		Status:    model.TicketStatusCompleted,
		Comment:   "The user reported that he cannot log in into his profile because he lost his password. I helped him to create a new one",
	},
	{
		Fullname:  "Franz Beckenbauer",
		Telephone: "+49 3450098878",
		Brand:     "Volkswagen",
		Status:    model.TicketStatusCompleted,
		Comment:   "The user reported that he cannot find his profile. I created a new one with Active Directory",
	},
	{
		Fullname:  "Michail Kusnetsov",
		Telephone: "+7 3450098878",
		Brand:     "BMW",
		Status:    model.TicketStatusCompleted,
		Comment:   "The user reported that he cannot connect to the internet. I did a reset of the DNS with the ipconfig /dnsflush command and then tested the connectivity with the ping command",
	},
	{
		Fullname:  "Daniela Garcia Marquez",
		Telephone: "+52 3450098878",
		Brand:     "Tesla",
		Status:    model.TicketStatusIncomplete,
		Comment:   "The user reported that she cannot log to the manufacturer's CMS to download her payrolls. The problem is not resolved yet",
	},
}

// Run inserts tickets, skipping ones whose telephone is already stored. Returns how many were created.
func Run(ctx context.Context, store repository.TicketStore, tickets []model.TicketFields, log *slog.Logger) (int, error) {
	created := 0
	for _, f := range tickets {
		t, err := store.Create(ctx, f)
		if errors.Is(err, errs.ErrDuplicateTelephone) {
			log.Debug("seed: ticket already present", "telephone", f.Telephone)
			continue
		}
		if err != nil {
			return created, err
		}
		log.Info("seed: ticket created", "id", t.ID, "fullname", t.Fullname)
		created++
	}
	return created, nil
}
