package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	appoutbox "staybook/internal/app/outbox"
	"staybook/internal/app/reservation"
	"staybook/internal/domain/booking"
	"staybook/internal/domain/calendar"
	domainpolicy "staybook/internal/domain/policy"
	"staybook/internal/domain/shared/money"
	"staybook/internal/domain/units"
	"staybook/internal/infra/broker/kafka"
	"staybook/internal/infra/config"
	mongodb "staybook/internal/infra/db/mongo"
	ginserver "staybook/internal/infra/http/gin"
	"staybook/internal/infra/obs"
	infraoutbox "staybook/internal/infra/outbox"
	"staybook/internal/infra/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("application wiring failed", "error", err)
		os.Exit(1)
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: app.ready,
	}, app.handlers)

	fixturesPath := getenv("UNIT_FIXTURES", "")
	if fixturesPath == "" {
		fixturesPath = filepath.Join("data", "units.json")
	}
	if err := app.loadUnitFixtures(ctx, fixturesPath, logger); err != nil {
		logger.Warn("unit fixtures load failed", "error", err, "path", fixturesPath)
	}

	if len(cfg.KafkaBrokers) > 0 {
		startEventing(ctx, cfg, logger, app)
	} else {
		logger.Warn("kafka brokers not configured, eventing disabled")
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", cfg.StorageMode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
	app.close(logger)
}

type application struct {
	handlers ginserver.Handlers
	service  *reservation.Service
	catalog  *memory.UnitCatalog
	outbox   infraoutbox.Store
	ready    func() error
	closers  []func() error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{}
	catalog := memory.NewUnitCatalog()
	app.catalog = catalog

	var (
		calendarStore calendar.Store
		bookingRepo   booking.Repository
		policyRepo    domainpolicy.Repository
		eventOutbox   appoutbox.Outbox
	)

	switch cfg.StorageMode {
	case "mongo":
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		if err := client.Ping(ctx); err != nil {
			return nil, fmt.Errorf("mongo ping: %w", err)
		}
		calendars := mongodb.NewCalendarRepository(client.DB)
		bookings := mongodb.NewBookingRepository(client.DB)
		policies := mongodb.NewPolicyRepository(client.DB)
		outboxStore := mongodb.NewOutboxStore(client.DB)
		for name, ensure := range map[string]func(context.Context) error{
			"unit_calendar":     calendars.EnsureIndexes,
			"bookings":          bookings.EnsureIndexes,
			"property_policies": policies.EnsureIndexes,
			"app_outbox":        outboxStore.EnsureIndexes,
		} {
			if err := ensure(ctx); err != nil {
				return nil, fmt.Errorf("ensure indexes for %s: %w", name, err)
			}
		}
		calendarStore = calendars
		bookingRepo = bookings
		policyRepo = policies
		eventOutbox = outboxStore
		app.outbox = outboxStore
		app.ready = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}
	default:
		memOutbox := memory.NewOutbox()
		calendarStore = memory.NewCalendarStore()
		bookingRepo = memory.NewBookingRepository()
		policyRepo = memory.NewPolicyRepository()
		eventOutbox = memOutbox
		app.outbox = memOutbox
		app.ready = func() error { return nil }
	}

	app.service = &reservation.Service{
		Catalog:  catalog,
		Calendar: calendarStore,
		Bookings: bookingRepo,
		Policies: policyRepo,
		Outbox:   eventOutbox,
		Encoder:  appoutbox.JSONEventEncoder{},
		Logger:   logger,
	}

	now := func() time.Time { return time.Now().UTC() }
	app.handlers = ginserver.Handlers{
		Booking: ginserver.BookingHandler{
			Service: app.service,
			Keys:    memory.NewIdempotencyStore(),
			Now:     now,
		},
		Availability: ginserver.AvailabilityHandler{
			Service:       app.service,
			Now:           now,
			HorizonMonths: cfg.SearchHorizonMonth,
		},
		Policy: ginserver.PolicyHandler{Policies: policyRepo, Now: now},
	}
	return app, nil
}

func startEventing(ctx context.Context, cfg config.Config, logger *slog.Logger, app *application) {
	producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
	if err != nil {
		logger.Error("kafka producer init failed", "error", err)
		return
	}
	app.closers = append(app.closers, producer.Close)

	worker := &infraoutbox.Worker{
		Store:       app.outbox,
		Producer:    producer,
		Interval:    cfg.OutboxPollInterval,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Backoff:     cfg.RetryBackoff,
	}
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("outbox worker stopped", "error", err)
		}
	}()

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.CalendarSyncGroup, nil, &kafka.CalendarSyncHandler{
		Writer: app.service,
		Logger: logger,
	})
	if err != nil {
		logger.Error("kafka consumer init failed", "error", err)
		return
	}
	app.closers = append(app.closers, consumer.Close)
	go func() {
		topic := cfg.KafkaTopicPrefix + cfg.CalendarSyncTopic
		if err := consumer.Run(ctx, []string{topic}); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("calendar sync consumer stopped", "error", err)
		}
	}()
}

func (a *application) close(logger *slog.Logger) {
	for _, fn := range a.closers {
		if err := fn(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
}

func (a *application) loadUnitFixtures(ctx context.Context, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("unit fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	if len(data) == 0 {
		logger.Warn("unit fixtures file empty", "path", path)
		return nil
	}

	var fixtures []unitFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}
	for _, fx := range fixtures {
		rate, err := money.New(fx.BaseRateCents, fx.Currency)
		if err != nil {
			logger.Error("fixture invalid", "unit_id", fx.ID, "error", err)
			continue
		}
		method := units.PricePerNight
		if strings.EqualFold(fx.PricingMethod, string(units.PricePerHour)) {
			method = units.PricePerHour
		}
		a.catalog.Put(&units.Unit{
			ID:            units.UnitID(fx.ID),
			PropertyID:    units.PropertyID(fx.PropertyID),
			BaseRate:      rate,
			PricingMethod: method,
			Cancellable:   fx.Cancellable,
		})
		logger.Info("unit fixture imported", "unit_id", fx.ID)
	}
	return nil
}

type unitFixture struct {
	ID            string `json:"id"`
	PropertyID    string `json:"property_id"`
	BaseRateCents int64  `json:"base_rate_cents"`
	Currency      string `json:"currency"`
	PricingMethod string `json:"pricing_method"`
	Cancellable   bool   `json:"cancellable"`
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
