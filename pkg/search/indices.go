package search

import (
	"context"
	"embed"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/whois-cat/ETL/pkg/models"
)

//go:embed mappings/*.json
var mappings embed.FS

// Mapping returns the index settings and mappings for kind.
func Mapping(kind models.Kind) (string, error) {
	data, err := mappings.ReadFile(fmt.Sprintf("mappings/%s.json", kind))
	if err != nil {
		return "", fmt.Errorf("no mapping for kind %s: %w", kind, err)
	}
	return string(data), nil
}

// EnsureIndices creates every missing index with its mapping. Existing indices are left alone.
// indices maps index name to the kind stored in it.
func EnsureIndices(ctx context.Context, indexer Indexer, indices map[string]models.Kind, logger ectologger.Logger) error {
	for index, kind := range indices {
		exists, err := indexer.IndexExists(ctx, index)
		if err != nil {
			return fmt.Errorf("failed to check index %s: %w", index, err)
		}
		if exists {
			logger.WithContext(ctx).WithField("index", index).Debug("Index already exists")
			continue
		}

		body, err := Mapping(kind)
		if err != nil {
			return err
		}
		if err := indexer.CreateIndex(ctx, index, body); err != nil {
			return fmt.Errorf("failed to create index %s: %w", index, err)
		}
		logger.WithContext(ctx).WithField("index", index).Info("Created index")
	}
	return nil
}
