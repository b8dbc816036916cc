// Package checkpoint persists the per-kind watermark the pipeline resumes from.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/whois-cat/ETL/pkg/models"
)

// ErrUnavailable wraps every read or write failure of a backend.
var ErrUnavailable = errors.New("checkpoint store unavailable")

// Epoch is the watermark of a kind that has never been loaded.
var Epoch = time.Unix(0, 0).UTC()

// Store maps a kind to the (modified, id) position of its last loaded row.
// Both halves of a position are written together.
type Store interface {
	// Get returns nil when no checkpoint has been written for kind.
	Get(ctx context.Context, kind models.Kind) (*models.Position, error)
	Set(ctx context.Context, kind models.Kind, pos models.Position) error
	// List returns the stored checkpoint of every kind that has one.
	List(ctx context.Context) (map[models.Kind]models.Position, error)
	Delete(ctx context.Context, kind models.Kind) error
}

// Key is the persisted name of a kind's checkpoint timestamp.
func Key(kind models.Kind) string {
	return fmt.Sprintf("last_%s_updated_at", kind)
}

// IDKey is the persisted name of the id of the last loaded row of kind.
func IDKey(kind models.Kind) string {
	return fmt.Sprintf("last_%s_id", kind)
}

// Watermark reads the checkpoint for kind, falling back to Epoch.
func Watermark(ctx context.Context, store Store, kind models.Kind) (models.Position, error) {
	pos, err := store.Get(ctx, kind)
	if err != nil {
		return models.Position{}, err
	}
	if pos == nil {
		return models.Position{Modified: Epoch}, nil
	}
	return *pos, nil
}

func formatTime(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

func parseTime(key, value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: corrupt value %q for %s: %w", ErrUnavailable, value, key, err)
	}
	return ts, nil
}

// decode rebuilds the position of kind from its persisted fields; nil when none is stored.
func decode(kind models.Kind, fields map[string]string) (*models.Position, error) {
	value, ok := fields[Key(kind)]
	if !ok {
		return nil, nil
	}
	ts, err := parseTime(Key(kind), value)
	if err != nil {
		return nil, err
	}
	return &models.Position{Modified: ts, ID: fields[IDKey(kind)]}, nil
}

// encode is the inverse of decode. The id field is always present so a write replaces it.
func encode(kind models.Kind, pos models.Position) map[string]string {
	return map[string]string{
		Key(kind):   formatTime(pos.Modified),
		IDKey(kind): pos.ID,
	}
}

func decodeAll(fields map[string]string) (map[models.Kind]models.Position, error) {
	out := make(map[models.Kind]models.Position, len(models.Kinds))
	for _, kind := range models.Kinds {
		pos, err := decode(kind, fields)
		if err != nil {
			return nil, err
		}
		if pos != nil {
			out[kind] = *pos
		}
	}
	return out, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
