// Package actions manages the role-play action catalog: a YAML file mapping
// an action keyword to a response template with {user1} and {user2} slots.
package actions

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

var (
	ErrExists   = errors.New("action already exists")
	ErrNotFound = errors.New("action not found")
	ErrInvalid  = errors.New("action keyword and template must not be empty")
)

// Catalog is a file-backed action store. Snapshot re-reads the file on every
// call so edits made by hand or by another process apply to the next message.
type Catalog struct {
	path atomic.Pointer[string]
	mu   sync.Mutex // serializes read-modify-write cycles and path moves
}

// NewCatalog returns a catalog backed by path. The file need not exist yet.
func NewCatalog(path string) *Catalog {
	c := &Catalog{}
	c.path.Store(&path)
	return c
}

// Path returns the backing file path.
func (c *Catalog) Path() string { return *c.path.Load() }

// SetPath points the catalog at another file. Writes in progress finish
// against the old file first.
func (c *Catalog) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old := c.Path(); old != path {
		c.path.Store(&path)
		slog.Info("action catalog moved", "from", old, "to", path)
	}
}

// NormalizeKey trims and lower-cases an action keyword.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Snapshot reads the catalog. A missing file is an empty catalog.
func (c *Catalog) Snapshot() (map[string]string, error) {
	return read(c.Path())
}

func read(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read actions: %w", err)
	}

	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse actions %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[NormalizeKey(k)] = v
	}
	return out, nil
}

// Lookup returns the template for key from a fresh snapshot.
func (c *Catalog) Lookup(key string) (string, bool, error) {
	snap, err := c.Snapshot()
	if err != nil {
		return "", false, err
	}
	tmpl, ok := snap[NormalizeKey(key)]
	return tmpl, ok, nil
}

// Add inserts a new action. Existing keys are not overwritten.
func (c *Catalog) Add(key, template string) error {
	key = NormalizeKey(key)
	template = strings.TrimSpace(template)
	if key == "" || template == "" {
		return ErrInvalid
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.Path()
	snap, err := read(path)
	if err != nil {
		return err
	}
	if _, ok := snap[key]; ok {
		return fmt.Errorf("%w: %q", ErrExists, key)
	}
	snap[key] = template
	return write(path, snap)
}

// Delete removes an action.
func (c *Catalog) Delete(key string) error {
	key = NormalizeKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.Path()
	snap, err := read(path)
	if err != nil {
		return err
	}
	if _, ok := snap[key]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	delete(snap, key)
	return write(path, snap)
}

// Keys returns the sorted keys of snap.
func Keys(snap map[string]string) []string {
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// write replaces the file atomically via a temp file in the same directory.
func write(path string, snap map[string]string) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode actions: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create actions dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".actions-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp actions file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write actions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close actions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace actions: %w", err)
	}
	return nil
}
