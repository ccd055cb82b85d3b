package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileBackend stores values in a YAML document readable only by the owner.
// With a sealer set, values are encrypted at rest.
type FileBackend struct {
	mu     sync.Mutex
	path   string
	sealer *sealer
}

func NewFileBackend(path, passphrase string) (*FileBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("session file: empty path")
	}
	f := &FileBackend{path: path}
	if passphrase != "" {
		s, err := newSealer(passphrase)
		if err != nil {
			return nil, err
		}
		f.sealer = s
	}
	return f, nil
}

// Path returns the backing file location.
func (f *FileBackend) Path() string { return f.path }

func (f *FileBackend) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	if !ok {
		return "", false, nil
	}
	if f.sealer != nil {
		plain, err := f.sealer.open(v)
		if err != nil {
			return "", false, fmt.Errorf("session file: decrypt %s: %w", key, err)
		}
		v = plain
	}
	return v, true, nil
}

func (f *FileBackend) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		return err
	}
	if f.sealer != nil {
		sealed, err := f.sealer.seal(value)
		if err != nil {
			return fmt.Errorf("session file: encrypt %s: %w", key, err)
		}
		value = sealed
	}
	values[key] = value
	return f.save(values)
}

func (f *FileBackend) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return f.save(values)
}

func (f *FileBackend) load() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return nil, fmt.Errorf("session file: read: %w", err)
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("session file: parse %s: %w", f.path, err)
	}
	if values == nil {
		values = make(map[string]string)
	}
	return values, nil
}

// save writes through a temp file so a crash never leaves a torn document.
func (f *FileBackend) save(values map[string]string) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("session file: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("session file: temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("session file: write: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("session file: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, f.path)
}
