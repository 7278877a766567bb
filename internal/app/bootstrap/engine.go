package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/booking-platform/internal/api/router"
	"github.com/wolfman30/booking-platform/internal/availability"
	"github.com/wolfman30/booking-platform/internal/blocks"
	"github.com/wolfman30/booking-platform/internal/bookings"
	appconfig "github.com/wolfman30/booking-platform/internal/config"
	"github.com/wolfman30/booking-platform/internal/events"
	"github.com/wolfman30/booking-platform/internal/lifecycle"
	"github.com/wolfman30/booking-platform/internal/notify"
	"github.com/wolfman30/booking-platform/internal/observability/metrics"
	"github.com/wolfman30/booking-platform/internal/schedule"
	"github.com/wolfman30/booking-platform/pkg/logging"
)

// EngineDeps are the external resources an Engine runs on.
type EngineDeps struct {
	Config *appconfig.Config
	Stores *Stores
	// Redis backs reminder de-duplication across replicas. Nil falls back
	// to in-process de-duplication.
	Redis      *redis.Client
	Email      notify.EmailSender
	Registerer prometheus.Registerer
	Logger     *logging.Logger
}

// Engine is the fully wired booking engine: the service, its HTTP
// handlers, event delivery and the lifecycle jobs.
type Engine struct {
	Stores     *Stores
	Calculator *availability.Calculator
	Service    *bookings.Service
	Notifier   *notify.BookingNotifier
	Jobs       *lifecycle.Jobs
	Scheduler  *lifecycle.Scheduler
	Metrics    *metrics.BookingMetrics

	BookingsHandler *bookings.Handler
	ScheduleHandler *schedule.Handler
	BlocksHandler   *blocks.Handler

	cfg        *appconfig.Config
	loc        *time.Location
	dispatcher *events.Dispatcher
	deliverer  *events.Deliverer
	logger     *logging.Logger
}

// BuildEngine wires the engine. Memory stores deliver events through an
// in-process dispatcher; Postgres stores write them to the outbox.
func BuildEngine(deps EngineDeps) (*Engine, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Stores == nil {
		return nil, fmt.Errorf("bootstrap: stores are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	reg := deps.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := metrics.NewBookingMetrics(reg)
	st := deps.Stores

	e := &Engine{Stores: st, Metrics: m, cfg: cfg, loc: loc, logger: logger}
	e.Calculator = availability.NewCalculator(st.Schedules, st.Blocks, st.Ledger, availability.Options{
		Step:     cfg.SlotStep,
		Location: loc,
	})
	e.Notifier = notify.NewBookingNotifier(deps.Email, st.Clients, st.Catalog, notify.NotifierConfig{
		PublicBaseURL: cfg.PublicBaseURL,
		Location:      loc,
	}, m, logger)

	var publisher events.Publisher
	if st.Memory() {
		e.dispatcher = events.NewDispatcher(e.Notifier, cfg.EventQueueSize, logger).WithWorkers(cfg.EventWorkers)
		publisher = e.dispatcher
	} else {
		outbox := events.NewOutboxStore(st.Pool)
		e.deliverer = events.NewDeliverer(outbox, e.Notifier, logger).
			WithInterval(cfg.OutboxPollInterval).
			WithProcessedStore(events.NewProcessedStore(st.Pool))
		publisher = outbox
	}

	e.Service = bookings.NewService(bookings.Deps{
		Ledger:       st.Ledger,
		Availability: e.Calculator,
		Catalog:      st.Catalog,
		Clients:      st.Clients,
		Publisher:    publisher,
		Metrics:      m,
	}, bookings.Config{CancellationLeadTime: cfg.CancellationLeadTime}, logger)

	var deduper lifecycle.Deduper = lifecycle.NewMemoryDeduper()
	if deps.Redis != nil {
		deduper = lifecycle.NewRedisDeduper(deps.Redis)
	}
	e.Jobs = lifecycle.NewJobs(lifecycle.Deps{
		Expirer:   e.Service,
		Upcoming:  st.Ledger,
		Deduper:   deduper,
		Publisher: publisher,
		Metrics:   m,
	}, lifecycle.Config{
		PendingExpiry:   cfg.PendingExpiry,
		ReminderOffsets: cfg.ReminderOffsets,
	}, logger)
	e.Scheduler, err = lifecycle.NewScheduler(e.Jobs, cfg.LifecycleSchedule, loc, logger)
	if err != nil {
		return nil, err
	}

	e.BookingsHandler = bookings.NewHandler(e.Service, loc, logger)
	e.ScheduleHandler = schedule.NewHandler(st.Schedules, st.Catalog, logger)
	e.BlocksHandler = blocks.NewHandler(st.Blocks, st.Catalog, logger)
	return e, nil
}

// Router builds the HTTP handler. metricsHandler serves /metrics and may be nil.
func (e *Engine) Router(metricsHandler http.Handler) http.Handler {
	return router.New(&router.Config{
		Logger:             e.logger,
		Bookings:           e.BookingsHandler,
		Schedules:          e.ScheduleHandler,
		Blocks:             e.BlocksHandler,
		AdminAuthSecret:    e.cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: e.cfg.CORSAllowedOrigins,
		RateLimitRPS:       e.cfg.RateLimitRPS,
		RateLimitBurst:     e.cfg.RateLimitBurst,
		HealthCheck:        e.Stores.HealthCheck,
	})
}

// StartBackground launches event delivery and, when withScheduler is set,
// the lifecycle cron. Workers exit when ctx is cancelled.
func (e *Engine) StartBackground(ctx context.Context, withScheduler bool) {
	if e.dispatcher != nil {
		e.dispatcher.Start(ctx)
	}
	if e.deliverer != nil {
		go e.deliverer.Start(ctx)
	}
	if withScheduler {
		e.Scheduler.Start()
	}
}

// DrainEvents delivers pending outbox entries once. It is a no-op for the
// in-process dispatcher.
func (e *Engine) DrainEvents(ctx context.Context) {
	if e.deliverer != nil {
		e.deliverer.Drain(ctx)
	}
}

// Shutdown stops the scheduler and flushes queued events.
func (e *Engine) Shutdown(ctx context.Context) {
	e.Scheduler.Stop(ctx)
	if e.dispatcher != nil {
		e.dispatcher.Close()
	}
}

// Location is the zone calendar dates are read in.
func (e *Engine) Location() *time.Location {
	return e.loc
}
