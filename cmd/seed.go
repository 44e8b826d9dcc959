package cmd

import (
	"github.com/spf13/cobra"

	"github.com/psds-microservice/ticket-desk/internal/database"
	"github.com/psds-microservice/ticket-desk/internal/repository"
	"github.com/psds-microservice/ticket-desk/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the demo tickets (existing telephones are skipped)",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := database.Connect(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer database.Close(db)

	n, err := seed.Run(cmd.Context(), repository.NewTicketRepository(db), seed.DemoTickets, log)
	if err != nil {
		return err
	}
	log.Info("seed: done", "created", n, "total", len(seed.DemoTickets))
	return nil
}
