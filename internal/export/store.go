package export

import (
	"context"

	"github.com/koustreak/pgstudio/internal/errs"
	"github.com/koustreak/pgstudio/internal/filestore"
	"github.com/koustreak/pgstudio/internal/filestore/minio"
)

// DownloadRoute is where the server streams exports kept by the memory
// provider.
const DownloadRoute = "/api/exports/"

// memoryLimit caps the memory provider at 64 MiB of exports.
const memoryLimit = 64 << 20

// OpenStore connects the store selected by cfg. It returns nil, nil when
// exports are disabled.
func OpenStore(ctx context.Context, cfg *filestore.Config) (filestore.Store, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case filestore.ProviderMemory:
		return filestore.NewMemoryStore(DownloadRoute, memoryLimit), nil
	case filestore.ProviderMinIO:
		d, err := minio.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported export provider %q", cfg.Provider)
	}
}
