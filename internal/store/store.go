// Package store implements the persistence layer described for the
// runtime manager: two keyed JSON files, vnics.json and
// serial_configs.json, each mapping a runtime name to its list of
// intents. All access serializes through a single mutex per file to
// prevent torn reads; writes are whole-file replacements and callers must
// read-modify-write under the same lock by using File.Update.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
)

// File is a single JSON-backed keyed document store.
type File struct {
	path string
	mu   sync.Mutex
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) readLocked() (map[string]json.RawMessage, error) {
	data := map[string]json.RawMessage{}
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}
		return nil, err
	}
	if len(b) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(b, &data); err != nil {
		minilog.Warn("store: %s is not valid json, treating as empty: %v", f.path, err)
		return map[string]json.RawMessage{}, nil
	}
	return data, nil
}

func (f *File) writeLocked(data map[string]json.RawMessage) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// Save replaces the list stored under key with v.
func (f *File) Save(key string, v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.readLocked()
	if err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data[key] = b
	return f.writeLocked(data)
}

// Load unmarshals the list stored under key into out. If key is absent,
// out is left untouched and Load returns (false, nil).
func (f *File) Load(key string, out interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.readLocked()
	if err != nil {
		return false, err
	}
	raw, ok := data[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// LoadAll unmarshals every key's value, calling decode for each raw entry.
func (f *File) LoadAll(decode func(key string, raw json.RawMessage) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.readLocked()
	if err != nil {
		return err
	}
	for k, raw := range data {
		if err := decode(k, raw); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes key entirely. It is not an error for key to be absent.
func (f *File) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.readLocked()
	if err != nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)
	return f.writeLocked(data)
}

// Update performs an atomic read-modify-write of key under the file's
// lock, used by VNICStore.UpdateVNICs and SerialStore.UpdateStatus to
// change a persisted list without racing a concurrent Save/Load/Delete.
// fn receives the existing raw value (nil if key is absent) and returns
// the new raw value to store, or write=false to leave the file unchanged.
func (f *File) Update(key string, fn func(existing json.RawMessage) (next interface{}, write bool, err error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.readLocked()
	if err != nil {
		return err
	}
	next, write, err := fn(data[key])
	if err != nil {
		return err
	}
	if !write {
		return nil
	}
	b, err := json.Marshal(next)
	if err != nil {
		return err
	}
	data[key] = b
	return f.writeLocked(data)
}
