// Package app wires the stores, services and HTTP surface of the dispatch
// service from config.Settings.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/joy095/dispatch/badwords"
	"github.com/joy095/dispatch/config"
	"github.com/joy095/dispatch/config/db"
	redisconfig "github.com/joy095/dispatch/config/redis"
	"github.com/joy095/dispatch/controllers/booking_controller"
	"github.com/joy095/dispatch/controllers/professional_controller"
	"github.com/joy095/dispatch/controllers/services_controller"
	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/metrics"
	middleware "github.com/joy095/dispatch/middlewares"
	"github.com/joy095/dispatch/middlewares/cors"
	"github.com/joy095/dispatch/middlewares/logging"
	"github.com/joy095/dispatch/repository"
	"github.com/joy095/dispatch/repository/memory"
	"github.com/joy095/dispatch/repository/postgres"
	"github.com/joy095/dispatch/routes"
	"github.com/joy095/dispatch/services/booking_store"
	"github.com/joy095/dispatch/services/dispatch_coordinator"
	"github.com/joy095/dispatch/services/geocoding_service"
	"github.com/joy095/dispatch/services/matching_engine"
	"github.com/joy095/dispatch/services/notification_service"
	"github.com/joy095/dispatch/services/professional_registry"
	"github.com/joy095/dispatch/services/realtime_service"
	"github.com/joy095/dispatch/services/tracking_service"
	"github.com/joy095/dispatch/utils/mail"
)

// janitorInterval is how often expired room memberships and cached
// locations are swept.
const janitorInterval = time.Minute

type App struct {
	Settings *config.Settings

	Repo     repository.Store
	Redis    *redis.Client
	Registry *prometheus.Registry
	Metrics  metrics.Recorder

	Professionals *professional_registry.Registry
	Bookings      *booking_store.Store
	Engine        *matching_engine.Engine
	Coordinator   *dispatch_coordinator.Coordinator
	Tracking      *tracking_service.Service
	Worker        *notification_service.Worker
	Rooms         *realtime_service.Rooms
	Cache         tracking_service.LocationCache
	Bus           realtime_service.Bus

	closers []func()
}

// New connects every backend named in s. On error everything opened so far
// is closed again.
func New(ctx context.Context, s *config.Settings) (_ *App, err error) {
	a := &App{Settings: s}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rec, err := metrics.NewPromRecorder(a.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	a.Metrics = rec

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if s.RedisURL != "" {
		client, err := redisconfig.NewClient(ctx, s.RedisURL)
		if err != nil {
			return nil, err
		}
		a.Redis = client
		a.closers = append(a.closers, func() { redisconfig.Close(client) })
		middleware.UseRedis(client)
	}
	if err := a.openBus(); err != nil {
		return nil, err
	}
	gateway, err := a.openGateway()
	if err != nil {
		return nil, err
	}

	filter := badwords.NewFilter()
	if s.BadWordsFile != "" {
		if err := filter.LoadFile(s.BadWordsFile); err != nil {
			return nil, fmt.Errorf("failed to load bad words: %w", err)
		}
		logger.InfoLogger.Infof("Bad words loaded (%d entries)", filter.Len())
	}

	var geocoder geocoding_service.Provider
	if s.GeocoderKey != "" {
		geocoder = geocoding_service.NewClient(s.GeocoderURL, s.GeocoderKey)
	}

	if a.Redis != nil {
		a.Cache = tracking_service.NewRedisCache(a.Redis, tracking_service.LocationTTL)
	} else {
		a.Cache = tracking_service.NewMemoryCache(tracking_service.LocationTTL)
	}

	a.Professionals = professional_registry.New(a.Repo, rec).WithMaxClockSkew(s.LocationMaxClockSkew)
	a.Bookings = booking_store.New(a.Repo)
	a.Engine = matching_engine.New(a.Professionals, a.Repo, s.Matching, rec)
	a.Coordinator = dispatch_coordinator.New(dispatch_coordinator.Deps{
		Repo:     a.Repo,
		Bookings: a.Bookings,
		Registry: a.Professionals,
		Engine:   a.Engine,
		Geocoder: geocoder,
		Bus:      a.Bus,
		Filter:   filter,
		Metrics:  rec,
		Settings: s.Dispatch,
	})
	a.Rooms = realtime_service.NewRooms(realtime_service.DefaultRoomTTL)
	a.Tracking = tracking_service.New(a.Repo, a.Professionals, a.Bookings, a.Cache, a.Bus, a.Rooms)
	a.Worker = notification_service.NewWorker(a.Repo, gateway, s.Outbox, rec)
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Settings.StoreBackend {
	case "memory":
		a.Repo = memory.New()
		logger.WarnLogger.Warn("Using the in-memory store; data is lost on restart")
	case "postgres":
		pool, err := db.Connect(ctx, a.Settings.DatabaseURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { db.Close(pool) })
		a.Repo = postgres.New(pool)
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", a.Settings.StoreBackend)
	}
	return nil
}

func (a *App) openBus() error {
	switch a.Settings.RealtimeBackend {
	case "redis":
		if a.Redis == nil {
			return errors.New("redis realtime backend needs REDIS_URL")
		}
		a.Bus = realtime_service.NewRedisBus(a.Redis)
	case "mqtt":
		bus, err := realtime_service.NewMQTTBus(a.Settings.MQTTBroker, a.Settings.MQTTClientID)
		if err != nil {
			return err
		}
		a.Bus = bus
	default:
		a.Bus = realtime_service.NopBus{}
	}
	bus := a.Bus
	a.closers = append(a.closers, func() {
		if err := bus.Close(); err != nil {
			logger.ErrorLogger.Errorf("Error closing realtime bus: %v", err)
		}
	})
	return nil
}

func (a *App) openGateway() (notification_service.Gateway, error) {
	s := a.Settings
	switch s.NotifyBackend {
	case "amqp":
		gw, err := notification_service.NewAMQPGateway(s.AMQPURL, s.AMQPExchange)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := gw.Close(); err != nil {
				logger.ErrorLogger.Errorf("Error closing AMQP gateway: %v", err)
			}
		})
		return gw, nil
	case "email":
		mailer, err := mail.NewMailer(mail.SMTPConfig{
			Host:     s.SMTPHost,
			Port:     s.SMTPPort,
			Username: s.SMTPUsername,
			Password: s.SMTPPassword,
			From:     s.FromEmail,
		})
		if err != nil {
			return nil, err
		}
		email := notification_service.NewEmailGateway(mailer, notification_service.NewProfessionalDirectory(a.Repo))
		return notification_service.Fanout{notification_service.LogGateway{}, email}, nil
	default:
		return notification_service.LogGateway{}, nil
	}
}

// Router builds the gin engine with every route registered.
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.RequestLogger())
	r.Use(cors.CorsMiddleware(a.Settings.CORSOrigins))

	secret := []byte(a.Settings.JWTSecret)

	serviceController, err := services_controller.NewServiceController(a.Repo)
	if err != nil {
		// Repo is always set once New has returned.
		panic(err)
	}
	routes.RegisterServicesRoutes(r, serviceController, secret)
	routes.RegisterBookingRoutes(r, booking_controller.NewBookingController(a.Coordinator, a.Tracking), secret)
	routes.RegisterProfessionalRoutes(r, professional_controller.NewProfessionalController(a.Professionals, a.Engine, a.Tracking), secret)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok from dispatch service"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))
	return r
}

// RunBackground starts the outbox worker and the janitors. It returns once
// ctx is cancelled and they have all stopped.
func (a *App) RunBackground(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.Worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorLogger.Errorf("Outbox worker stopped: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		a.Rooms.Run(ctx, janitorInterval)
	}()
	if mc, ok := a.Cache.(*tracking_service.MemoryCache); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mc.Run(ctx, janitorInterval)
		}()
	}
	wg.Wait()
}

// Serve runs the HTTP server and background work until ctx is cancelled,
// then shuts down gracefully.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    ":" + a.Settings.Port,
		Handler: a.Router(),
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	bgDone := make(chan struct{})
	go func() {
		defer close(bgDone)
		a.RunBackground(bgCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.InfoLogger.Infof("Dispatch service listening on :%s", a.Settings.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	logger.InfoLogger.Info("Shutting down dispatch service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorLogger.Errorf("Server forced to shutdown: %v", err)
	}

	// In-flight dispatches still enqueue into the outbox, so the worker
	// stops after them.
	a.Coordinator.Close()
	stopBackground()
	<-bgDone
	return serveErr
}

// Close releases every backend in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
