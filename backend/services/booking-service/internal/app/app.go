package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libdb "evbooking/backend/libs/db"
	libredis "evbooking/backend/libs/redis"
	"evbooking/backend/services/booking-service/internal/config"
	httpserver "evbooking/backend/services/booking-service/internal/http"
	"evbooking/backend/services/booking-service/internal/http/handlers"
	"evbooking/backend/services/booking-service/internal/http/middleware"
	"evbooking/backend/services/booking-service/internal/memstore"
	"evbooking/backend/services/booking-service/internal/metrics"
	"evbooking/backend/services/booking-service/internal/models"
	redisstore "evbooking/backend/services/booking-service/internal/redis"
	"evbooking/backend/services/booking-service/internal/repository"
	"evbooking/backend/services/booking-service/internal/service"
	"evbooking/backend/services/booking-service/internal/sweeper"
	"evbooking/backend/services/booking-service/internal/ws"
)

// App wires booking-service dependencies.
type App struct {
	cfg         *config.Config
	server      *httpserver.Server
	sweeper     *sweeper.Sweeper
	hub         *ws.Hub
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// backend groups the storage-dependent collaborators of the engine.
type backend struct {
	store      service.ReservationStore
	authorizer service.StationAuthorizer
	sessions   service.SessionRecorder
	lookup     handlers.SessionLookup
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	b, err := a.buildBackend()
	if err != nil {
		a.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewPrometheus(registry, "booking")

	a.hub = ws.NewHub(b.authorizer, middleware.UserIDFromRequest, 0, logger.Named("ws"))

	engine, err := service.NewBookingEngine(service.EngineDeps{
		Store:        b.store,
		Authorizer:   b.authorizer,
		Sessions:     b.sessions,
		Publisher:    a.hub,
		Metrics:      collector,
		Logger:       logger.Named("engine"),
		StoreTimeout: cfg.StoreTimeout(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.sweeper = sweeper.New(engine, cfg.Sweeper.Interval, logger.Named("sweeper"))

	bookings := handlers.NewBookingsHandler(engine, b.lookup, logger)
	routes := httpserver.Routes{
		CreateBooking:  bookings.Create,
		MyBookings:     bookings.ListMine,
		GetBooking:     bookings.Get,
		BookingSession: bookings.Session,
		AcceptBooking:  bookings.Accept,
		RejectBooking:  bookings.Reject,
		CancelBooking:  bookings.Cancel,
		StationPending: bookings.StationPending,
		RunSweeps:      handlers.NewRunSweepsHandler(a.sweeper, logger),
		BookingFeed:    a.hub.HandleWS,
		Health:         handlers.NewHealthHandler(),
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	}

	router := httpserver.NewRouter(routes, httpserver.RouterOptions{
		JWTSecret: cfg.JWT.Secret,
		Logger:    logger.Named("http"),
		Observer:  collector,
	})
	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, logger)
	a.server.OnShutdown(a.hub.Close)

	return a, nil
}

func (a *App) buildBackend() (*backend, error) {
	switch a.cfg.Storage.Driver {
	case config.DriverMemory:
		return a.memoryBackend(), nil
	case config.DriverPostgres:
		return a.postgresBackend()
	default:
		return nil, fmt.Errorf("app: unknown storage driver %q", a.cfg.Storage.Driver)
	}
}

func (a *App) memoryBackend() *backend {
	store := memstore.New(nil)
	for _, station := range a.cfg.Memory.Stations {
		if station.Manager != "" {
			store.AssignManager(station.ID, station.Manager)
		}
		for _, slot := range station.Slots {
			store.PutSlot(models.Slot{
				ID:            slot.ID,
				StationID:     station.ID,
				ConnectorType: slot.ConnectorType,
				MaxPowerKW:    slot.MaxPowerKW,
				IsAvailable:   !slot.Disabled,
			})
		}
	}
	sessions := memstore.NewSessionLog()
	a.logger.Warn("using in-memory storage; bookings are lost on restart",
		zap.Int("stations", len(a.cfg.Memory.Stations)),
	)
	return &backend{store: store, authorizer: store, sessions: sessions, lookup: sessions}
}

func (a *App) postgresBackend() (*backend, error) {
	sqlDB, err := libdb.NewPostgresDB(a.cfg.Database.DSN, libdb.PoolOptions{MaxOpenConns: a.cfg.Database.MaxOpenConns})
	if err != nil {
		return nil, fmt.Errorf("app: connect postgres: %w", err)
	}
	a.db = sqlDB

	tariffs := repository.NewTariffRepository(sqlDB, a.cfg.Tariff.PricePerKWh)
	sessions := repository.NewSessionRepository(sqlDB, tariffs)
	b := &backend{
		store:      repository.NewReservationRepository(sqlDB),
		authorizer: repository.NewStationRepository(sqlDB),
		sessions:   sessions,
		lookup:     sessions,
	}

	if !a.cfg.RedisEnabled() {
		a.logger.Info("redis not configured; session and manager caches disabled")
		return b, nil
	}

	redisClient, err := libredis.NewRedisClient(libredis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("app: connect redis: %w", err)
	}
	a.redisClient = redisClient

	active := redisstore.NewActiveSessionStore(redisClient, b.sessions, a.cfg.ActiveSessionTTL(), a.logger.Named("session-cache"))
	b.sessions = active
	b.lookup = active
	b.authorizer = redisstore.NewManagerCache(redisClient, b.authorizer, a.cfg.ManagerCacheTTL(), a.logger.Named("manager-cache"))
	return b, nil
}

// Run starts the sweeper and HTTP server and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sweeperDone := make(chan struct{})
	if a.cfg.Sweeper.Enabled {
		go func() {
			defer close(sweeperDone)
			a.sweeper.Start(ctx)
		}()
	} else {
		close(sweeperDone)
		a.logger.Info("sweeper disabled")
	}

	err := a.server.Run(ctx)
	cancel()
	<-sweeperDone
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close releases resources.
func (a *App) Close() {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
