// Command pushd runs the notification delivery engine: queue workers for the
// notifications, email and analytics queues, the scheduled push sweep, and the
// websocket endpoint that streams in-app notifications to connected clients.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/pushkit/migrations"
	"github.com/dmitrymomot/pushkit/pkg/analytics"
	"github.com/dmitrymomot/pushkit/pkg/broadcast"
	"github.com/dmitrymomot/pushkit/pkg/config"
	"github.com/dmitrymomot/pushkit/pkg/email"
	"github.com/dmitrymomot/pushkit/pkg/httpserver"
	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/mongo"
	"github.com/dmitrymomot/pushkit/pkg/notifications"
	"github.com/dmitrymomot/pushkit/pkg/pg"
	"github.com/dmitrymomot/pushkit/pkg/provider"
	"github.com/dmitrymomot/pushkit/pkg/queue"
	"github.com/dmitrymomot/pushkit/pkg/ratelimiter"
	"github.com/dmitrymomot/pushkit/pkg/realtime"
	"github.com/dmitrymomot/pushkit/pkg/redis"
	"github.com/dmitrymomot/pushkit/pkg/vault"
	"github.com/dmitrymomot/pushkit/svc/push"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "pushd:", err)
		os.Exit(1)
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.Service),
		logger.WithContextExtractors(httpserver.RequestIDExtractor()),
	)
	logger.SetAsDefault(log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("pushd stopped", logger.Error(err))
		os.Exit(1)
	}
	log.Info("pushd stopped")
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, migrations.FS, cfg.Postgres, log); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	mdb, err := mongo.NewWithDatabase(ctx, cfg.Mongo)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer func() { _ = mdb.Client().Disconnect(context.WithoutCancel(ctx)) }()

	v, err := vault.FromString(cfg.Push.EncryptionKey, log)
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}

	broker, err := queue.NewRedisStorage(rdb,
		queue.WithKeyPrefix(cfg.Queue.RedisPrefix),
		queue.WithDLQLimit(cfg.Queue.DLQLimit),
	)
	if err != nil {
		return fmt.Errorf("init queue broker: %w", err)
	}
	enqueuer, err := queue.NewEnqueuer(broker,
		queue.WithDefaultQueue(notifications.QueueName),
		queue.WithDefaultMaxAttempts(cfg.Push.DefaultAttempts),
	)
	if err != nil {
		return fmt.Errorf("init enqueuer: %w", err)
	}

	events := analytics.NewMongoStore(mdb)
	if err := events.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure analytics indexes: %w", err)
	}

	limits := ratelimiter.NewRedisStore(rdb)
	pushOpts := []push.Option{
		push.WithLogger(log),
		push.WithRateLimitStore(limits),
		push.WithTracker(analytics.NewTracker(enqueuer, analytics.WithLogger(log))),
		push.FromConfig(cfg.Push),
	}
	providers := push.NewProviderCache(v, func(kind provider.Kind) (provider.Provider, error) {
		return provider.New(kind,
			provider.WithLogger(log),
			provider.WithTimeout(cfg.Push.ProviderTimeout),
		)
	}, pushOpts...)
	dispatcher := push.NewDispatcher(push.NewPostgresStore(pool), push.NewPostgresAudience(pool), providers, pushOpts...)

	rooms := broadcast.NewRooms[realtime.Event](cfg.Realtime.BufferSize)
	inbox := notifications.NewManager(
		notifications.NewPostgresStorage(pool),
		realtime.NewDeliverer(rooms),
		notifications.WithManagerLogger(log),
	)

	sender, err := newEmailSender(cfg.Email, log)
	if err != nil {
		return err
	}

	workers := map[string][]queue.Handler{
		notifications.QueueName: {
			notifications.NewSendHandler(inbox),
			push.NewDispatchHandler(dispatcher),
			push.NewSweepHandler(dispatcher),
		},
		email.QueueName:     {email.NewSendHandler(sender)},
		analytics.QueueName: {analytics.NewInsertHandler(events)},
	}

	scheduler, err := queue.NewScheduler(broker, queue.WithSchedulerLogger(log))
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	if err := scheduler.AddTask(push.SweepTaskName,
		queue.Every(cfg.Push.ScheduleSweepInterval),
		queue.WithTaskQueue(notifications.QueueName),
	); err != nil {
		return fmt.Errorf("schedule push sweep: %w", err)
	}

	connects, err := ratelimiter.NewBucket(limits, ratelimiter.PerMinute(cfg.WSConnectPerMinute))
	if err != nil {
		return fmt.Errorf("init connect limiter: %w", err)
	}
	health := httpserver.NewHealth(map[string]httpserver.Check{
		"postgres": pg.Healthcheck(pool),
		"redis":    redis.Healthcheck(rdb),
		"mongo":    mongo.Healthcheck(mdb.Client()),
	}, cfg.HTTP.ProbeTimeout, log)
	ws := realtime.NewServer(rooms, cfg.Realtime, realtime.WithLogger(log))
	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	for name, handlers := range workers {
		w, err := queue.NewWorker(broker,
			queue.WithQueues(name),
			queue.WithPullInterval(cfg.Queue.PollInterval),
			queue.WithLockTimeout(cfg.Queue.LockTimeout),
			queue.WithMaxConcurrentTasks(cfg.Queue.MaxConcurrentTasks),
			queue.WithWorkerLogger(log.With(logger.Queue(name))),
		)
		if err != nil {
			return fmt.Errorf("init %s worker: %w", name, err)
		}
		if err := w.RegisterHandlers(handlers...); err != nil {
			return fmt.Errorf("register %s handlers: %w", name, err)
		}
		g.Go(w.Run(ctx))
	}
	g.Go(scheduler.Run(ctx))
	g.Go(func() error { return srv.Run(ctx, newRouter(log, ws, connects, health)) })
	g.Go(func() error {
		// Hijacked websocket connections outlive http.Server.Shutdown; closing
		// the rooms ends their write loops.
		<-ctx.Done()
		return rooms.Close()
	})

	log.InfoContext(ctx, "pushd started", slog.String("addr", cfg.HTTP.Addr))
	return g.Wait()
}

func newEmailSender(cfg email.Config, log *slog.Logger) (email.EmailSender, error) {
	if !cfg.Enabled() {
		log.Warn("postmark is not configured, emails are written to disk", slog.String("dir", cfg.DevOutputDir))
		return email.NewDevSender(cfg.DevOutputDir), nil
	}
	sender, err := email.NewPostmarkClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("init postmark: %w", err)
	}
	return sender, nil
}
