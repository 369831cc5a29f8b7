package localstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// FileBackend persists every key into a single JSON document on disk.
// Each write goes to a temporary file that is fsynced and renamed over the
// document. The backend is safe for one process only.
type FileBackend struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
	log    zerolog.Logger
}

// OpenFileBackend opens or creates the document at path. A document that
// cannot be decoded is moved aside to path+".corrupt" and the backend
// starts empty.
func OpenFileBackend(path string, log zerolog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("OpenFileBackend: creating directory: %w", err)
	}
	b := &FileBackend{path: path, values: make(map[string]string), log: log}
	if err := b.load(); err != nil {
		return nil, fmt.Errorf("OpenFileBackend: loading %q: %w", path, err)
	}
	return b, nil
}

func (b *FileBackend) load() error {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		quarantine := b.path + ".corrupt"
		b.log.Warn().Err(err).Str("path", b.path).Str("moved_to", quarantine).
			Msg("Local store file is corrupt, starting empty")
		if err := os.Rename(b.path, quarantine); err != nil {
			return fmt.Errorf("moving corrupt file aside: %w", err)
		}
		return nil
	}
	if values != nil {
		b.values = values
	}
	return nil
}

func (b *FileBackend) flushLocked(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.path)
}

// setLocked writes values with key replaced and only keeps the change in
// memory once it reached disk.
func (b *FileBackend) setLocked(key string, value []byte) error {
	next := make(map[string]string, len(b.values)+1)
	for k, v := range b.values {
		next[k] = v
	}
	next[key] = string(value)
	if err := b.flushLocked(next); err != nil {
		return err
	}
	b.values = next
	return nil
}

// Get implements Backend.
func (b *FileBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.values[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

// Set implements Backend.
func (b *FileBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.setLocked(key, value); err != nil {
		return fmt.Errorf("FileBackend.Set: %w", err)
	}
	return nil
}

// Update implements Updater.
func (b *FileBackend) Update(ctx context.Context, key string, fn func(current []byte, ok bool) ([]byte, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var current []byte
	v, ok := b.values[key]
	if ok {
		current = []byte(v)
	}
	next, err := fn(current, ok)
	if err != nil {
		return err
	}
	if err := b.setLocked(key, next); err != nil {
		return fmt.Errorf("FileBackend.Update: %w", err)
	}
	return nil
}

// Close implements Backend.
func (b *FileBackend) Close() error { return nil }

var (
	_ Backend = (*FileBackend)(nil)
	_ Updater = (*FileBackend)(nil)
)
