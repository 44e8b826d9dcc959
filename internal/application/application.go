package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/psds-microservice/ticket-desk/internal/config"
	"github.com/psds-microservice/ticket-desk/internal/database"
	"github.com/psds-microservice/ticket-desk/internal/handler"
	"github.com/psds-microservice/ticket-desk/internal/kafka"
	"github.com/psds-microservice/ticket-desk/internal/repository"
	"github.com/psds-microservice/ticket-desk/internal/router"
	"github.com/psds-microservice/ticket-desk/internal/service"
)

const shutdownTimeout = 10 * time.Second

// API приложение: HTTP сервер тикетов (режим api).
type API struct {
	cfg      *config.Config
	log      *slog.Logger
	db       *gorm.DB
	producer *kafka.Producer
	httpSrv  *http.Server
}

// NewAPI создаёт приложение: БД, миграции, сервисы, роутер.
func NewAPI(ctx context.Context, cfg *config.Config, log *slog.Logger) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := database.Connect(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket, log.With("component", "kafka"))
	ticketSvc := service.NewTicketService(repository.NewTicketRepository(db), producer, log)

	h := router.New(handler.NewTicketHandler(ticketSvc, log), router.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Production:     cfg.IsProduction(),
		Ready:          func(ctx context.Context) error { return database.Ping(ctx, db) },
		Logger:         log.With("component", "http"),
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{
		cfg:      cfg,
		log:      log,
		db:       db,
		producer: producer,
		httpSrv:  httpSrv,
	}, nil
}

// Handler отдаёт корневой http.Handler (для тестов и встраивания).
func (a *API) Handler() http.Handler {
	return a.httpSrv.Handler
}

// Run запускает HTTP сервер, блокируется до отмены ctx.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	a.log.Info("HTTP server listening", "addr", a.httpSrv.Addr, "driver", a.cfg.DB.Driver, "kafka", a.producer.Enabled())
	a.log.Info("endpoints",
		"tickets", base+"/tickets",
		"swagger", base+"/swagger",
		"health", base+"/health",
		"ready", base+"/ready")

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			runErr = fmt.Errorf("http: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("http shutdown: %w", err)
	}
	a.close()
	a.log.Info("HTTP server stopped")
	return runErr
}

func (a *API) close() {
	if err := a.producer.Close(); err != nil {
		a.log.Warn("kafka: close writer", "error", err)
	}
	if err := database.Close(a.db); err != nil {
		a.log.Warn("database: close", "error", err)
	}
}
