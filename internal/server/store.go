package server

import (
	"context"
	"fmt"

	"github.com/koustreak/filegate/internal/filestore"
	"github.com/koustreak/filegate/internal/filestore/memstore"
	"github.com/koustreak/filegate/internal/filestore/minio"
	"github.com/koustreak/filegate/internal/filestore/s3"
)

// OpenStore connects the backend named by cfg.Provider and wraps it with
// the configured timeouts. obs may be nil.
func OpenStore(ctx context.Context, cfg *filestore.Config, obs filestore.Observer) (filestore.Store, error) {
	var (
		store filestore.Store
		err   error
	)

	switch cfg.Provider {
	case filestore.ProviderMinIO:
		store, err = minio.New(ctx, cfg)
	case filestore.ProviderS3:
		store, err = s3.New(ctx, cfg)
	case filestore.ProviderMemory:
		mem := memstore.New(memstore.WithBatchSize(cfg.BatchSize))
		mem.CreateBucket(cfg.Bucket)
		store = mem
	default:
		return nil, fmt.Errorf("unknown store provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Provider, err)
	}

	return filestore.Guard(store, filestore.GuardOptions{
		OpTimeout:   cfg.OpTimeout,
		ReadTimeout: cfg.ReadTimeout,
		Observer:    obs,
	}), nil
}
