package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"storylock/internal/alias"
	"storylock/internal/config"
	"storylock/internal/ledger"
	"storylock/internal/media"
	"storylock/internal/metrics"
	"storylock/internal/store"
)

// Runtime is a Service together with the connections it owns.
type Runtime struct {
	Service *Service
	Metrics *metrics.Metrics
	pingers []func(context.Context) error
	closers []func() error
}

// Open wires a Service from cfg. Stories always live in Postgres except for
// the memory backend; LedgerBackend picks where unlock records live.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rt := &Runtime{}

	var stories storyStore
	var unlocks unlockLedger
	switch cfg.LedgerBackend {
	case config.LedgerMemory:
		memory := store.NewMemoryStore()
		stories, unlocks = memory, memory
		log.Info("using in-memory story store and ledger")
	default:
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, db.Close)
		pg := store.NewPostgresStore(db)
		rt.pingers = append(rt.pingers, pg.Ping)
		stories, unlocks = pg, pg

		if cfg.LedgerBackend == config.LedgerRedis {
			log.Info("using redis for the unlock ledger")
			redisLedger, err := ledger.NewRedisStore(cfg.RedisURL)
			if err != nil {
				_ = rt.Close()
				return nil, err
			}
			rt.closers = append(rt.closers, redisLedger.Close)
			rt.pingers = append(rt.pingers, redisLedger.Ping)
			unlocks = redisLedger
		} else {
			log.Info("using postgres for the unlock ledger")
		}
	}

	linker, err := newLinker(cfg)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	aliases, err := alias.NewResolver(stories, cfg.AliasCacheCounters)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, func() error {
		aliases.Close()
		return nil
	})

	rt.Metrics = metrics.New()
	rt.Service = New(stories, unlocks, Options{Media: linker, Aliases: aliases, Logger: log, Metrics: rt.Metrics})
	return rt, nil
}

func newLinker(cfg config.Config) (media.Linker, error) {
	if !cfg.UsesMinio() {
		return media.StaticLinker{BaseURL: cfg.MediaBaseURL}, nil
	}
	linker, err := media.NewMinioLinker(media.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		Region:    cfg.MinioRegion,
		UseSSL:    cfg.MinioUseSSL,
		TTL:       cfg.MediaURLTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("media linker: %w", err)
	}
	return linker, nil
}

// Ping checks every backing connection.
func (r *Runtime) Ping(ctx context.Context) error {
	for _, ping := range r.pingers {
		if err := ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases connections in reverse order of acquisition.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
