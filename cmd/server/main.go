package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/mustafaciftc/sesli-sohbet/internal/adapters/http"
	"github.com/mustafaciftc/sesli-sohbet/internal/admission"
	"github.com/mustafaciftc/sesli-sohbet/internal/app"
	"github.com/mustafaciftc/sesli-sohbet/internal/app/orch"
	"github.com/mustafaciftc/sesli-sohbet/internal/auth"
	"github.com/mustafaciftc/sesli-sohbet/internal/config"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/history"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	deps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	o := orch.New(app.NewRegistry(), deps.admission,
		orch.WithHistory(deps.history),
		orch.WithPolicy(app.SimplePolicy{}),
		orch.WithMaxMessageLen(cfg.MaxMessageLen),
	)

	r := router.SetupRouter(ctx, cfg, o, deps.verifier)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Voice server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type deps struct {
	admission admission.Store
	verifier  auth.Verifier
	history   history.Store
	closers   []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func buildDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	d := &deps{}

	var rdb *redis.Client
	if cfg.Admission.Driver == "redis" || cfg.Auth.Driver == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		d.closers = append(d.closers, func() { _ = rdb.Close() })
	}

	switch cfg.Admission.Driver {
	case "redis":
		rs := admission.NewRedisStore(rdb, cfg.Admission.DefaultCapacity)
		for room, n := range cfg.Admission.Rooms {
			if err := rs.SetCapacity(ctx, domain.RoomID(room), n); err != nil {
				d.close()
				return nil, fmt.Errorf("seed room %s: %w", room, err)
			}
		}
		d.admission = rs
	case "postgres":
		pg, err := admission.NewPostgresStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			d.close()
			return nil, err
		}
		d.closers = append(d.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			d.close()
			return nil, fmt.Errorf("migrate admission schema: %w", err)
		}
		for room, n := range cfg.Admission.Rooms {
			if err := pg.EnsureRoom(ctx, domain.RoomID(room), n); err != nil {
				d.close()
				return nil, fmt.Errorf("seed room %s: %w", room, err)
			}
		}
		d.admission = pg
	default:
		ms := admission.NewMemoryStore(cfg.Admission.DefaultCapacity)
		for room, n := range cfg.Admission.Rooms {
			ms.SetCapacity(domain.RoomID(room), n)
		}
		d.admission = ms
	}

	switch cfg.Auth.Driver {
	case "redis":
		d.verifier = auth.NewRedisVerifier(rdb)
	default:
		d.verifier = auth.NewHMACVerifier(cfg.Auth.Secret)
	}

	switch cfg.History.Driver {
	case "postgres":
		pg, err := history.NewPostgresStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			d.close()
			return nil, err
		}
		d.closers = append(d.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			d.close()
			return nil, fmt.Errorf("migrate history schema: %w", err)
		}
		d.history = pg
	default:
		d.history = history.NewMemoryStore(cfg.History.Limit)
	}

	log.Info().Str("admission", cfg.Admission.Driver).Str("auth", cfg.Auth.Driver).
		Str("history", cfg.History.Driver).Msg("dependencies ready")
	return d, nil
}
