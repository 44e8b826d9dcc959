package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/psds-microservice/ticket-desk/internal/database"
	"github.com/psds-microservice/ticket-desk/internal/kafka"
	"github.com/psds-microservice/ticket-desk/internal/repository"
)

var republishEventsCmd = &cobra.Command{
	Use:   "republish-events",
	Short: "Re-send every ticket to Kafka as a ticket.snapshot event (requires KAFKA_BROKERS)",
	RunE:  runRepublishEvents,
}

func init() {
	rootCmd.AddCommand(republishEventsCmd)
}

func runRepublishEvents(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket, log.With("component", "kafka"))
	defer producer.Close()
	if !producer.Enabled() {
		log.Warn("republish-events: KAFKA_BROKERS or KAFKA_TOPIC_TICKET not set, nothing to do")
		return nil
	}

	db, err := database.Connect(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer database.Close(db)

	tickets, err := repository.NewTicketRepository(db).ListAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}
	log.Info("republish-events: found tickets", "count", len(tickets))

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()
	for i := range tickets {
		producer.ProduceTicketEvent(ctx, kafka.EventTicketSnapshot, kafka.TicketPayload(&tickets[i]))
		if (i+1)%50 == 0 || i == len(tickets)-1 {
			log.Info("republish-events: progress", "sent", i+1, "total", len(tickets))
		}
	}
	log.Info("republish-events: done", "topic", cfg.KafkaTopicTicket)
	return nil
}
