// Package server assembles the auth service from config.Settings and
// runs it until the context is cancelled.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"

	auth "github.com/goliatone/go-courier-auth"
	"github.com/goliatone/go-courier-auth/activitymap"
	"github.com/goliatone/go-courier-auth/config"
	"github.com/goliatone/go-courier-auth/internal/logger"
	"github.com/goliatone/go-courier-auth/middleware/ratelimit"
	"github.com/goliatone/go-courier-auth/notify"
	"github.com/goliatone/go-courier-auth/repository"
)

const shutdownTimeout = 15 * time.Second

// Server owns every resource opened at startup
type Server struct {
	cfg        *config.Settings
	logger     *logger.Logger
	db         *bun.DB
	app        *fiber.App
	srv        router.Server[*fiber.App]
	dispatcher *notify.Dispatcher
	closers    []func() error
}

// New opens the store, applies migrations and builds the HTTP app
func New(ctx context.Context, cfg *config.Settings, log *logger.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: log}

	db, err := repository.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	s.db = db
	s.closers = append(s.closers, db.Close)

	if err := repository.Migrate(ctx, db); err != nil {
		s.close()
		return nil, err
	}

	hasher := auth.NewBcryptHasher(0)
	if err := s.seed(ctx, hasher); err != nil {
		s.close()
		return nil, err
	}

	repos := auth.NewRepositoryManager(db)
	if err := repos.Validate(); err != nil {
		s.close()
		return nil, err
	}
	tokens := auth.NewTokenServiceFromConfig(cfg, log.Named("tokens"))

	notifier, activity := s.sideEffects()

	deps := auth.NewDeps(repos, cfg, tokens,
		auth.WithDepsLogger(log.Named("auth")),
		auth.WithDepsHasher(hasher),
		auth.WithDepsNotifier(notifier),
		auth.WithDepsActivitySink(activity),
	)

	controller := auth.NewAuthController(auth.NewFlows(deps), deps.Links,
		auth.WithControllerLogger(log.Named("http")),
		auth.WithRateLimiter(s.limiter()),
	)

	app := fiber.New(fiber.Config{
		AppName:               cfg.GetApplicationName(),
		DisableStartupMessage: true,
		ErrorHandler:          auth.FiberErrorHandler(log),
	})
	app.Use(log.RequestLogger())

	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return router.DefaultFiberOptions(app)
	})
	srv.Router().Use(auth.NewAuthGate(tokens, repos.Accounts(), log.Named("gate"),
		auth.WithTokenLookup(cfg.TokenLookup),
		auth.WithGateTimeout(cfg.GateTimeout),
	))
	auth.RegisterRoutes(srv.Router(), controller)

	s.app = app
	s.srv = srv

	return s, nil
}

// App exposes the fiber app, mostly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is done, then drains pending notifications
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("listening on %s (%s)", s.cfg.HTTPAddr, s.cfg.GetEnvironment())
		return s.srv.Serve(s.cfg.HTTPAddr)
	})

	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := s.app.ShutdownWithContext(sctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if s.dispatcher != nil {
			if err := s.dispatcher.Close(sctx); err != nil {
				errs = append(errs, fmt.Errorf("notification drain: %w", err))
			}
		}
		s.close()
		return errors.Join(errs...)
	})

	return g.Wait()
}

func (s *Server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("close: %v", err)
		}
	}
	s.closers = nil
}

func (s *Server) seed(ctx context.Context, hasher auth.PasswordAuthenticator) error {
	opts := repository.SeedOptions{
		DepotCode: s.cfg.GetDefaultDepotCode(),
		DepotName: s.cfg.Seed.DepotName,
		DepotCity: s.cfg.Seed.DepotCity,
		Hasher:    hasher,
	}
	if !s.cfg.IsProduction() {
		opts.AdminEmail = s.cfg.Seed.AdminEmail
		opts.AdminUsername = s.cfg.Seed.AdminUsername
		opts.AdminPhone = s.cfg.Seed.AdminPhone
		opts.AdminPassword = s.cfg.Seed.AdminPassword
	}
	return repository.Seed(ctx, s.db, opts)
}

// sideEffects builds the outbound email and activity pipeline. Kafka
// when brokers are configured, logs otherwise.
func (s *Server) sideEffects() (auth.Notifier, auth.ActivitySink) {
	var transport auth.Notifier = notify.NewLogNotifier(s.logger.Named("mail"))
	activityLog := s.logger.Named("activity")
	var activity auth.ActivitySink = auth.ActivitySinkFunc(func(_ context.Context, e auth.ActivityEvent) error {
		activityLog.Info("%s actor=%s account=%s", e.EventType, e.Actor.ID, e.AccountID)
		return nil
	})

	if s.cfg.Kafka.Enabled() {
		emails := notify.NewKafkaPublisher(notify.NewKafkaWriter(s.cfg.Kafka.Brokers, s.cfg.Kafka.EmailTopic))
		sink := notify.NewKafkaActivitySink(
			notify.NewKafkaWriter(s.cfg.Kafka.Brokers, s.cfg.Kafka.ActivityTopic),
			activitymap.WithCourierObjects(),
		)
		s.closers = append(s.closers, emails.Close, sink.Close)
		transport = emails
		activity = sink
	}

	breaker := notify.NewBreakerNotifier(transport, notify.BreakerSettings{
		Name:        "email",
		MaxFailures: s.cfg.Notify.BreakerMaxFailures,
		Timeout:     s.cfg.Notify.BreakerTimeout,
	}, s.logger.Named("breaker"))

	s.dispatcher = notify.NewDispatcher(breaker,
		notify.WithWorkers(s.cfg.Notify.Workers),
		notify.WithQueueSize(s.cfg.Notify.QueueSize),
		notify.WithDispatcherLogger(s.logger.Named("dispatch")),
	)

	return s.dispatcher, activity
}

func (s *Server) limiter() router.MiddlewareFunc {
	var store ratelimit.Store
	if s.cfg.Limits.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     s.cfg.Limits.RedisAddr,
			Password: s.cfg.Limits.RedisPassword,
		})
		s.closers = append(s.closers, client.Close)
		store = ratelimit.NewRedisStore(client, "courier-auth:rl", s.cfg.Limits.PerMinute, time.Minute)
	} else {
		store = ratelimit.NewMemoryStore(s.cfg.Limits.PerMinute)
	}

	return ratelimit.New(ratelimit.Config{
		Store:  store,
		Logger: s.logger.Named("ratelimit"),
	})
}
