package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whois-cat/ETL/config"
	"github.com/whois-cat/ETL/pkg/models"
)

const filmID = "3d825f60-9fff-4dfe-b294-1a45fa1e115d"

func at(ts time.Time) models.Position {
	return models.Position{Modified: ts, ID: filmID}
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestKey(t *testing.T) {
	assert.Equal(t, "last_movies_updated_at", Key(models.KindMovies))
	assert.Equal(t, "last_genres_updated_at", Key(models.KindGenres))
	assert.Equal(t, "last_persons_updated_at", Key(models.KindPersons))
	assert.Equal(t, "last_movies_id", IDKey(models.KindMovies))
}

func TestFileStore_AbsentDefaultsToEpoch(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"), testLogger())

	got, err := store.Get(context.Background(), models.KindMovies)
	require.NoError(t, err)
	assert.Nil(t, got)

	wm, err := Watermark(context.Background(), store, models.KindMovies)
	require.NoError(t, err)
	assert.True(t, wm.Modified.Equal(Epoch))
	assert.Empty(t, wm.ID)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ts := time.Date(2021, 6, 16, 20, 14, 9, 221838000, time.UTC)

	require.NoError(t, NewFileStore(path, testLogger()).Set(context.Background(), models.KindGenres, at(ts)))

	reopened := NewFileStore(path, testLogger())
	got, err := reopened.Get(context.Background(), models.KindGenres)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Modified.Equal(ts))
	assert.Equal(t, filmID, got.ID)

	other, err := reopened.Get(context.Background(), models.KindMovies)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestFileStore_PersistsIsoTimestampsByKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStore(path, testLogger())
	ts := time.Date(2022, 1, 2, 3, 4, 5, 0, time.FixedZone("MSK", 3*3600))

	require.NoError(t, store.Set(context.Background(), models.KindPersons, at(ts)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"last_persons_updated_at": "2022-01-02T00:04:05Z",
		"last_persons_id": "3d825f60-9fff-4dfe-b294-1a45fa1e115d"
	}`, string(data))
}

func TestFileStore_TimestampOnlyCheckpointReadsWithoutID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"last_movies_updated_at":"2021-06-16T20:14:09Z"}`), 0o600))
	store := NewFileStore(path, testLogger())

	got, err := store.Get(context.Background(), models.KindMovies)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.Position{Modified: time.Date(2021, 6, 16, 20, 14, 9, 0, time.UTC)}, *got)

	// moving back to a bare timestamp clears the stored id
	require.NoError(t, store.Set(context.Background(), models.KindMovies, at(got.Modified)))
	require.NoError(t, store.Set(context.Background(), models.KindMovies, models.Position{Modified: got.Modified}))
	got, err = store.Get(context.Background(), models.KindMovies)
	require.NoError(t, err)
	assert.Empty(t, got.ID)
}

func TestFileStore_ListAndDelete(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"), testLogger())
	ctx := context.Background()
	ts := time.Date(2023, 3, 3, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Set(ctx, models.KindMovies, at(ts)))
	require.NoError(t, store.Set(ctx, models.KindGenres, at(ts.Add(time.Hour))))

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.True(t, all[models.KindGenres].Modified.Equal(ts.Add(time.Hour)))
	assert.Equal(t, filmID, all[models.KindGenres].ID)

	require.NoError(t, store.Delete(ctx, models.KindMovies))
	require.NoError(t, store.Delete(ctx, models.KindMovies))

	got, err := store.Get(ctx, models.KindMovies)
	require.NoError(t, err)
	assert.Nil(t, got)

	data, err := os.ReadFile(store.path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "last_movies_id")
}

func TestFileStore_CorruptFileIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path, testLogger()).Get(context.Background(), models.KindMovies)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFileStore_CorruptTimestampIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"last_movies_updated_at":"yesterday"}`), 0o600))

	_, err := NewFileStore(path, testLogger()).Get(context.Background(), models.KindMovies)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFileStore_UnwritableDirectoryIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "state.json")

	err := NewFileStore(path, testLogger()).Set(context.Background(), models.KindMovies, at(time.Now()))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFileStore_SetLeavesOnlyStateFile(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "state.json"), testLogger())
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, models.KindMovies, at(time.Now())))
	require.NoError(t, store.Set(ctx, models.KindGenres, at(time.Now())))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestSyncDir(t *testing.T) {
	assert.NoError(t, syncDir(t.TempDir()))
	assert.ErrorIs(t, syncDir(filepath.Join(t.TempDir(), "gone")), ErrUnavailable)
}

type fakeHash struct {
	values map[string]string
	err    error
	hsets  int
}

func (f *fakeHash) HMGet(_ context.Context, _ string, fields ...string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]string{}
	for _, field := range fields {
		if v, ok := f.values[field]; ok {
			out[field] = v
		}
	}
	return out, nil
}

func (f *fakeHash) HSet(_ context.Context, _ string, values map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.hsets++
	for field, value := range values {
		f.values[field] = value
	}
	return nil
}

func (f *fakeHash) HGetAll(_ context.Context, _ string) (map[string]string, error) {
	return f.values, f.err
}

func (f *fakeHash) HDel(_ context.Context, _ string, fields ...string) error {
	for _, field := range fields {
		delete(f.values, field)
	}
	return f.err
}

func TestRedisStore_RoundTrip(t *testing.T) {
	hash := &fakeHash{values: map[string]string{}}
	store := NewRedisStore(hash, "etl:checkpoints", testLogger())
	ctx := context.Background()
	ts := time.Date(2021, 6, 16, 20, 14, 9, 0, time.UTC)

	got, err := store.Get(ctx, models.KindMovies)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Set(ctx, models.KindMovies, at(ts)))
	assert.Equal(t, 1, hash.hsets, "timestamp and id go out in one write")
	assert.Equal(t, "2021-06-16T20:14:09Z", hash.values["last_movies_updated_at"])
	assert.Equal(t, filmID, hash.values["last_movies_id"])

	got, err = store.Get(ctx, models.KindMovies)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, at(ts), *got)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.Kind]models.Position{models.KindMovies: at(ts)}, all)

	require.NoError(t, store.Delete(ctx, models.KindMovies))
	assert.Empty(t, hash.values)
}

func TestRedisStore_BackendErrorIsUnavailable(t *testing.T) {
	store := NewRedisStore(&fakeHash{values: map[string]string{}, err: errors.New("connection refused")}, "k", testLogger())

	_, err := store.Get(context.Background(), models.KindGenres)
	assert.ErrorIs(t, err, ErrUnavailable)

	err = store.Set(context.Background(), models.KindGenres, at(time.Now()))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewStore(t *testing.T) {
	cfg := &config.Config{CheckpointBackend: "file", CheckpointFilePath: filepath.Join(t.TempDir(), "s.json")}
	store, err := NewStore(cfg, nil, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	cfg.CheckpointBackend = "redis"
	_, err = NewStore(cfg, nil, testLogger())
	assert.Error(t, err)

	store, err = NewStore(cfg, &fakeHash{values: map[string]string{}}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)
}
