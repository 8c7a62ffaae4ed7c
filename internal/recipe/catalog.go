// Package recipe implements the recipe catalog (C11): `from_uuid(u) ->
// Recipe{uuid, restricted, chart_ref, asdict}`, loaded from a local
// directory of YAML descriptors with fsnotify-driven hot reload, optionally
// supplemented by a remote HTML catalog mirror (see mirror.go).
package recipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/cmusatyalab/sinfonia/internal/apierr"
	"github.com/cmusatyalab/sinfonia/internal/logging"
	"github.com/cmusatyalab/sinfonia/internal/model"
)

// Catalog is the consumed interface C9/C10 handlers call into: FromUUID
// resolves a recipe by uuid, returning apierr.NotFound when unknown.
type Catalog interface {
	FromUUID(uuid string) (*model.Recipe, error)
}

// descriptorFile is the on-disk YAML shape of one `RECIPES/<uuid>.yaml` entry.
type descriptorFile struct {
	UUID        string `yaml:"uuid"`
	Restricted  bool   `yaml:"restricted"`
	ChartRef    string `yaml:"chart_ref"`
	Description string `yaml:"description"`
}

// DirCatalog loads recipe descriptors from a directory of YAML files and
// watches it for changes via fsnotify, so an operator can add, edit, or
// remove recipes without restarting Tier-1.
type DirCatalog struct {
	dir string
	log logging.Logger

	mu      sync.RWMutex
	recipes map[string]*model.Recipe
	watcher *fsnotify.Watcher
}

// NewDirCatalog loads every `*.yaml`/`*.yml` file in dir and returns a
// catalog backed by them. dir must exist; an empty directory is valid (an
// empty catalog, every lookup 404s).
func NewDirCatalog(dir string, log logging.Logger) (*DirCatalog, error) {
	c := &DirCatalog{dir: dir, log: log, recipes: make(map[string]*model.Recipe)}
	if err := c.reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// FromUUID resolves a recipe by uuid.
func (c *DirCatalog) FromUUID(uuid string) (*model.Recipe, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.recipes[uuid]
	if !ok {
		return nil, apierr.NotFound(fmt.Sprintf("recipe %s not found", uuid), nil)
	}
	return r, nil
}

// Merge installs descriptors from a supplemental source (e.g. the remote
// mirror) without discarding entries loaded from disk with the same uuid
// taking precedence — the local directory is always authoritative.
func (c *DirCatalog) Merge(extra map[string]*model.Recipe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for uuid, r := range extra {
		if _, exists := c.recipes[uuid]; exists {
			continue
		}
		c.recipes[uuid] = r
	}
}

func (c *DirCatalog) reload() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return apierr.Internal("read recipe catalog directory", err)
	}
	loaded := make(map[string]*model.Recipe, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(c.dir, e.Name()))
		if err != nil {
			if c.log != nil {
				c.log.WarnCtx(context.Background(), "skipping unreadable recipe file", "file", e.Name(), "error", err.Error())
			}
			continue
		}
		var df descriptorFile
		if err := yaml.Unmarshal(raw, &df); err != nil {
			if c.log != nil {
				c.log.WarnCtx(context.Background(), "skipping malformed recipe file", "file", e.Name(), "error", err.Error())
			}
			continue
		}
		if df.UUID == "" {
			continue
		}
		loaded[df.UUID] = &model.Recipe{
			UUID:        df.UUID,
			Restricted:  df.Restricted,
			ChartRef:    df.ChartRef,
			Description: df.Description,
		}
	}

	c.mu.Lock()
	c.recipes = loaded
	c.mu.Unlock()
	return nil
}

// Watch starts an fsnotify watch on the catalog directory and reloads on
// every write/create/remove/rename event, blocking until ctx is canceled.
func (c *DirCatalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return apierr.Internal("create recipe catalog watcher", err)
	}
	c.watcher = watcher
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return apierr.Internal("watch recipe catalog directory", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := c.reload(); err != nil && c.log != nil {
				c.log.WarnCtx(ctx, "recipe catalog reload failed", "error", err.Error())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if c.log != nil {
				c.log.WarnCtx(ctx, "recipe catalog watcher error", "error", err.Error())
			}
		}
	}
}
