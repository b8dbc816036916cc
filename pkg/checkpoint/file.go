package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/whois-cat/ETL/pkg/models"
)

// FileStore keeps every checkpoint in one JSON object on disk.
// Each write replaces the file atomically (temp file, fsync, rename, fsync of the directory).
type FileStore struct {
	path   string
	logger ectologger.Logger
	mu     sync.Mutex
}

func NewFileStore(path string, logger ectologger.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

func (s *FileStore) Get(ctx context.Context, kind models.Kind) (*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return nil, err
	}
	return decode(kind, state)
}

func (s *FileStore) Set(ctx context.Context, kind models.Kind, pos models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return err
	}
	for key, value := range encode(kind, pos) {
		state[key] = value
	}

	if err := s.write(state); err != nil {
		return err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"kind":      kind,
		"watermark": formatTime(pos.Modified),
		"id":        pos.ID,
	}).Debug("Checkpoint saved")
	return nil
}

func (s *FileStore) List(ctx context.Context) (map[models.Kind]models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return nil, err
	}
	return decodeAll(state)
}

func (s *FileStore) Delete(ctx context.Context, kind models.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := state[Key(kind)]; !ok {
		return nil
	}
	delete(state, Key(kind))
	delete(state, IDKey(kind))
	return s.write(state)
}

func (s *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, unavailable("read "+s.path, err)
	}
	if len(data) == 0 {
		return map[string]string{}, nil
	}

	state := map[string]string{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, unavailable("decode "+s.path, err)
	}
	return state, nil
}

func (s *FileStore) write(state map[string]string) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return unavailable("encode state", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return unavailable("create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return unavailable("write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return unavailable("sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return unavailable("close temp file", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return unavailable("replace "+s.path, err)
	}
	return syncDir(dir)
}

// syncDir flushes the directory entry so the rename survives a power loss.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return unavailable("open "+dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return unavailable("sync "+dir, err)
	}
	return nil
}
