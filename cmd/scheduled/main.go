package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cyp0633/libschedule/config"
	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/server"
	"github.com/cyp0633/libschedule/service"
	"github.com/cyp0633/libschedule/storage"
	"github.com/cyp0633/libschedule/storage/memory"
	"github.com/cyp0633/libschedule/storage/postgres"
	"github.com/cyp0633/libschedule/storage/rediscache"
)

type flagConfig struct {
	configPath string
	listen     string
	migrate    bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", flags.configPath).Msg("failed to load config")
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if level, err := zerolog.ParseLevel(conf.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	opts, err := conf.Options()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid schedule options")
	}

	log.Info().
		Str("listen", conf.Listen).
		Str("timezone", conf.Timezone).
		Str("first_day_of_week", conf.FirstDayOfWeek).
		Bool("postgres", conf.DatabaseURL != "").
		Bool("redis", conf.RedisAddr != "").
		Msg("effective config")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, conf, flags.migrate)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer closeRepo()

	svc := service.New(repo,
		service.WithOptions(opts),
		service.WithEngine(recurrence.NewEngine()),
		service.WithLogger(log.With().Str("component", "service").Logger()),
	)

	scheduler := cron.New()
	if conf.WarmCron != "" {
		if _, err := scheduler.AddFunc(conf.WarmCron, func() { warm(ctx, svc) }); err != nil {
			log.Fatal().Err(err).Str("spec", conf.WarmCron).Msg("invalid warm_cron")
		}
		scheduler.Start()
	}

	srv := &http.Server{
		Addr: conf.Listen,
		Handler: server.New(svc,
			server.WithLogger(log.With().Str("component", "http").Logger()),
			server.WithBaseURL(conf.BaseURL),
			server.WithCORSOrigins(conf.CORSOrigins...),
		).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("listen", conf.Listen).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	<-scheduler.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("scheduled exiting")
}

// openRepository picks postgres when a DSN is configured and memory
// otherwise, then layers the redis cache on top when an address is set.
func openRepository(ctx context.Context, conf *config.Config, migrate bool) (storage.Repository, func(), error) {
	var (
		repo    storage.Repository
		closers []func()
	)

	if conf.DatabaseURL != "" {
		store, err := postgres.Connect(ctx, conf.DatabaseURL,
			postgres.WithLogger(log.With().Str("component", "postgres").Logger()))
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { store.Close() })
		if migrate {
			if err := store.Migrate(ctx); err != nil {
				store.Close()
				return nil, nil, err
			}
		}
		repo = store
	} else {
		log.Warn().Msg("no database_url configured, keeping schedules in memory")
		repo = memory.New(memory.WithLogger(log.With().Str("component", "memory").Logger()))
	}

	if conf.RedisAddr != "" {
		rdb, err := rediscache.Connect(ctx, conf.RedisAddr, conf.RedisUsername, conf.RedisPassword)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, err
		}
		closers = append(closers, func() { rdb.Close() })
		repo = rediscache.New(repo, rdb,
			rediscache.WithTTL(conf.CacheTTL),
			rediscache.WithLogger(log.With().Str("component", "rediscache").Logger()))
	}

	return repo, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}

func warm(ctx context.Context, svc *service.Service) {
	started := time.Now()
	n, err := svc.Warm(ctx)
	if err != nil {
		log.Error().Err(err).Msg("warming upcoming occurrences failed")
		return
	}
	log.Debug().Int("calendars", n).Dur("elapsed", time.Since(started)).Msg("upcoming occurrences warmed")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/scheduled/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.migrate, "migrate", true, "Apply database migrations on startup")

	flag.Parse()

	return cfg
}
