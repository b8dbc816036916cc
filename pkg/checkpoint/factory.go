package checkpoint

import (
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/whois-cat/ETL/config"
)

// NewStore builds the backend selected by CHECKPOINT_BACKEND.
// client may be nil unless the redis backend is selected.
func NewStore(cfg *config.Config, client HashClient, logger ectologger.Logger) (Store, error) {
	switch strings.ToLower(cfg.CheckpointBackend) {
	case config.CheckpointBackendFile:
		return NewFileStore(cfg.CheckpointFilePath, logger), nil
	case config.CheckpointBackendRedis:
		if client == nil {
			return nil, fmt.Errorf("redis checkpoint backend selected but no redis client is configured")
		}
		return NewRedisStore(client, cfg.CheckpointRedisKey, logger), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.CheckpointBackend)
	}
}
