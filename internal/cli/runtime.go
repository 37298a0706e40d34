package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"risehigh-xp-service/internal/app"
	"risehigh-xp-service/internal/config"
	"risehigh-xp-service/internal/infra/email"
	"risehigh-xp-service/internal/infra/memory"
	"risehigh-xp-service/internal/infra/postgres"
	redisinfra "risehigh-xp-service/internal/infra/redis"
	"risehigh-xp-service/internal/infra/sqlite"
	"risehigh-xp-service/internal/logger"
	"risehigh-xp-service/internal/metrics"
)

const serviceName = "risehigh-xp-service"

// store is everything the pipeline reads and writes.
type store interface {
	app.ChallengeRepository
	app.SubmissionRepository
	app.ProgressionRepository
	app.NotificationRepository
	app.SkillSource
}

// runtime is the wired service plus the resources to release on exit.
type runtime struct {
	cfg      config.Config
	log      *logrus.Entry
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	feed     *app.Feed
	service  *app.ClosingService
	closers  []func() error
}

func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func loadRuntime(ctx context.Context, path string) (*runtime, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newRuntime(ctx, cfg)
}

func newRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	rt := &runtime{
		cfg:      cfg,
		log:      logger.New(serviceName, cfg.Log.Level),
		registry: prometheus.NewRegistry(),
		feed:     app.NewFeed(),
	}
	rt.metrics = metrics.New(rt.registry)

	st, err := rt.openStore(ctx)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, redisClient.Close)
	}

	skillTTL := config.TTLDuration(cfg.Cache.SkillTTL, 10*time.Minute)
	lockTTL := config.TTLDuration(cfg.Lock.TTL, 2*time.Minute)

	var (
		skills app.SkillSource
		lock   app.RunLock
	)
	if redisClient != nil {
		skills = redisinfra.NewChallengeSkillCache(redisClient, st, skillTTL)
		lock = redisinfra.NewRunLock(redisClient, lockTTL)
	} else {
		skills = memory.NewChallengeSkillCache(st, skillTTL)
		lock = memory.NewRunLock()
	}

	var dispatcher app.EmailDispatcher
	emailTimeout := config.TTLDuration(cfg.Email.Timeout, 10*time.Second)
	if cfg.Email.URL != "" {
		dispatcher = email.NewHTTPDispatcher(cfg.Email.URL, cfg.Email.APIKey, emailTimeout)
	} else {
		rt.log.Warn("email.url not configured; challenge emails disabled")
	}

	rt.service = app.NewClosingService(app.Dependencies{
		Challenges:    st,
		Skills:        skills,
		Submissions:   st,
		Progressions:  st,
		Notifications: st,
		Email:         dispatcher,
		Lock:          lock,
		Feed:          rt.feed,
		Metrics:       rt.metrics,
		Logger:        rt.log,
	}, app.WithLinkBase(cfg.Notifications.LinkBase), app.WithEmailTimeout(emailTimeout))
	return rt, nil
}

// openStore picks Postgres, then SQLite, then the in-memory store.
func (rt *runtime) openStore(ctx context.Context) (store, error) {
	switch {
	case rt.cfg.Postgres.URL != "":
		if err := runMigrationsWithConfig(ctx, rt.cfg, rt.log); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, rt.cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		rt.log.Info("using postgres store")
		return postgres.NewStore(pool), nil
	case rt.cfg.SQLite.Path != "":
		st, err := sqlite.Open(rt.cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, st.Close)
		rt.log.WithField("path", rt.cfg.SQLite.Path).Info("using sqlite store")
		return st, nil
	default:
		rt.log.Warn("no database configured; using in-memory store")
		return memory.NewStore(), nil
	}
}
