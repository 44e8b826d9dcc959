package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/psds-microservice/ticket-desk/internal/config"
	"github.com/psds-microservice/ticket-desk/pkg/querycache"
	"github.com/psds-microservice/ticket-desk/pkg/ticketclient"
)

var ticketsOpts struct {
	apiURL   string
	asJSON   bool
	interval time.Duration
	create   ticketclient.CreateTicketRequest
}

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "Work with tickets through the HTTP API",
}

var ticketsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tickets",
	Args:  cobra.NoArgs,
	RunE: withStore(func(cmd *cobra.Command, s *ticketclient.Store, _ []string) error {
		items, err := s.Tickets(cmd.Context())
		if err != nil {
			return err
		}
		return printTickets(cmd.OutOrStdout(), items)
	}),
}

var ticketsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one ticket",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, s *ticketclient.Store, args []string) error {
		id, err := parseTicketID(args[0])
		if err != nil {
			return err
		}
		t, err := s.Ticket(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printTicket(cmd.OutOrStdout(), t)
	}),
}

var ticketsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a new ticket",
	Args:  cobra.NoArgs,
	RunE: withStore(func(cmd *cobra.Command, s *ticketclient.Store, _ []string) error {
		t, err := s.Create(cmd.Context(), ticketsOpts.create)
		if err != nil {
			return err
		}
		return printTicket(cmd.OutOrStdout(), t)
	}),
}

var ticketsCompleteCmd = &cobra.Command{
	Use:   "complete ID",
	Short: "Mark a ticket as completed",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, s *ticketclient.Store, args []string) error {
		id, err := parseTicketID(args[0])
		if err != nil {
			return err
		}
		t, err := s.Complete(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printTicket(cmd.OutOrStdout(), t)
	}),
}

var ticketsReopenCmd = &cobra.Command{
	Use:   "reopen ID",
	Short: "Mark a ticket as incomplete again",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, s *ticketclient.Store, args []string) error {
		id, err := parseTicketID(args[0])
		if err != nil {
			return err
		}
		t, err := s.SetStatus(cmd.Context(), id, ticketclient.StatusIncomplete)
		if err != nil {
			return err
		}
		return printTicket(cmd.OutOrStdout(), t)
	}),
}

var ticketsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, s *ticketclient.Store, args []string) error {
		id, err := parseTicketID(args[0])
		if err != nil {
			return err
		}
		if err := s.Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ticket %d deleted\n", id)
		return nil
	}),
}

var ticketsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show total, completed and incomplete counters",
	Args:  cobra.NoArgs,
	RunE: withStore(func(cmd *cobra.Command, s *ticketclient.Store, _ []string) error {
		items, err := s.Tickets(cmd.Context())
		if err != nil {
			return err
		}
		return printStats(cmd.OutOrStdout(), ticketclient.Summarize(items))
	}),
}

var ticketsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the API and print the counters whenever they change",
	Args:  cobra.NoArgs,
	RunE: withStore(func(cmd *cobra.Command, s *ticketclient.Store, _ []string) error {
		if ticketsOpts.interval <= 0 {
			return fmt.Errorf("--interval must be positive")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, cancel, err := s.Subscribe(statsWatcher(cmd.OutOrStdout()))
		if err != nil {
			return err
		}
		defer cancel()

		ticker := time.NewTicker(ticketsOpts.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := s.Invalidate(); err != nil {
					return err
				}
			}
		}
	}),
}

func init() {
	rootCmd.AddCommand(ticketsCmd)
	ticketsCmd.PersistentFlags().StringVar(&ticketsOpts.apiURL, "api-url", "", "API base URL (default TICKETS_API_URL)")
	ticketsCmd.PersistentFlags().BoolVar(&ticketsOpts.asJSON, "json", false, "print JSON instead of a table")

	f := ticketsCreateCmd.Flags()
	f.StringVar(&ticketsOpts.create.Fullname, "fullname", "", "customer full name")
	f.StringVar(&ticketsOpts.create.Telephone, "telephone", "", "customer telephone (unique)")
	f.StringVar(&ticketsOpts.create.Brand, "brand", "", "brand")
	f.StringVar(&ticketsOpts.create.Comment, "comment", "", "problem description")

	ticketsWatchCmd.Flags().DurationVar(&ticketsOpts.interval, "interval", 5*time.Second, "refresh interval")

	ticketsCmd.AddCommand(ticketsListCmd, ticketsShowCmd, ticketsCreateCmd, ticketsCompleteCmd,
		ticketsReopenCmd, ticketsDeleteCmd, ticketsStatsCmd, ticketsWatchCmd)
}

// withStore строит Store для API из флага или TICKETS_API_URL и закрывает его после команды.
func withStore(run func(cmd *cobra.Command, s *ticketclient.Store, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		apiURL := ticketsOpts.apiURL
		if apiURL == "" {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			apiURL = cfg.TicketsAPIURL
		}
		s := ticketclient.NewStore(ticketclient.NewClient(apiURL), querycache.Options{FetchTimeout: 15 * time.Second})
		defer s.Close()
		return run(cmd, s, args)
	}
}

// statsWatcher печатает счётчики при первой загрузке и затем только при их изменении.
// Вызовы приходят последовательно из одного диспетчера, поэтому last без блокировки.
func statsWatcher(out io.Writer) func(ticketclient.TicketsState) {
	var last *ticketclient.Stats
	return func(st ticketclient.TicketsState) {
		switch st.Status {
		case querycache.StatusSuccess:
			stats := ticketclient.Summarize(st.Data)
			if last != nil && *last == stats {
				return
			}
			last = &stats
			_ = printStats(out, stats)
		case querycache.StatusError:
			fmt.Fprintf(out, "refresh failed: %v\n", st.Err)
		}
	}
}

func parseTicketID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ticket id %q", s)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTickets(w io.Writer, items []ticketclient.Ticket) error {
	if ticketsOpts.asJSON {
		return printJSON(w, items)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFULLNAME\tTELEPHONE\tBRAND\tSTATUS")
	for _, t := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", t.ID, t.Fullname, t.Telephone, t.Brand, t.Status)
	}
	return tw.Flush()
}

func printTicket(w io.Writer, t *ticketclient.Ticket) error {
	if ticketsOpts.asJSON {
		return printJSON(w, t)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id:\t%d\n", t.ID)
	fmt.Fprintf(tw, "fullname:\t%s\n", t.Fullname)
	fmt.Fprintf(tw, "telephone:\t%s\n", t.Telephone)
	fmt.Fprintf(tw, "brand:\t%s\n", t.Brand)
	fmt.Fprintf(tw, "status:\t%s\n", t.Status)
	fmt.Fprintf(tw, "comment:\t%s\n", t.Comment)
	return tw.Flush()
}

func printStats(w io.Writer, st ticketclient.Stats) error {
	if ticketsOpts.asJSON {
		return printJSON(w, st)
	}
	_, err := fmt.Fprintf(w, "total: %d  completed: %d  incomplete: %d\n", st.Total, st.Completed, st.Incomplete)
	return err
}
