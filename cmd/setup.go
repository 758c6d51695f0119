package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/bundlekit/bundlekit/internal/builder"
	"github.com/bundlekit/bundlekit/internal/compiler/closure"
	"github.com/bundlekit/bundlekit/internal/config"
	"github.com/bundlekit/bundlekit/internal/database"
	"github.com/bundlekit/bundlekit/internal/logging"
	"github.com/bundlekit/bundlekit/internal/s3"
)

// newBuilder wires the compiler, the optional compilation cache and the
// optional publisher for cfg. The returned function releases them.
func newBuilder(ctx context.Context, cfg *config.Root, log *logging.Logger) (*builder.Builder, func(), error) {
	c, err := closure.New(cfg.Compiler, log.With("component", "compiler"))
	if err != nil {
		return nil, nil, &ConfigError{Err: err}
	}

	b := builder.New().
		WithCompiler(c).
		WithConfig(cfg).
		WithLogger(log)

	cleanup := func() {}

	if cfg.Cache != nil {
		db := (&database.Database{}).WithConfig(cfg.Cache).WithLogger(log)
		if err := db.InitDB(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to open compilation cache: %w", err)
		}
		if maxAge := time.Duration(cfg.Cache.MaxAge); maxAge > 0 {
			n, err := db.PruneCompilations(ctx, time.Now().Add(-maxAge))
			if err != nil {
				log.Warnf("failed to prune compilation cache: %v", err)
			} else if n > 0 {
				log.Debugf("Pruned %d cached compilation(s)", n)
			}
		}
		b.WithCache(db)
		cleanup = db.CloseDB
	}

	if cfg.Publish != nil {
		storage, err := s3.New(ctx, cfg.Publish)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to set up publishing: %w", err)
		}
		b.WithPublisher(storage)
	}

	return b, cleanup, nil
}
