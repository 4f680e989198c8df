package guest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// fileBackend persists payloads as JSON files in a single directory, one
// file per storage key, written atomically via rename.
type fileBackend struct {
	dir string
}

func NewFileStore(dir string, opts ...Option) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed creating guest store dir=%s with error=%w", dir, err)
	}
	return newStore(fileBackend{dir: dir}, opts...), nil
}

func (b fileBackend) name() string { return "file" }

func (b fileBackend) path(key string) string {
	return filepath.Join(b.dir, key+".json")
}

func (b fileBackend) read(_ context.Context, key string) ([]byte, bool, error) {
	payload, err := os.ReadFile(b.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (b fileBackend) write(_ context.Context, key string, payload []byte) error {
	tmp, err := os.CreateTemp(b.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.path(key))
}

func (b fileBackend) remove(_ context.Context, key string) error {
	err := os.Remove(b.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
