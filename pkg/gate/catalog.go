package gate

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/assessor/pkg/observability"
	"github.com/platinummonkey/assessor/pkg/rbac"
)

// Catalog holds the current feature list, optionally loaded from a YAML
// file that can be reloaded while the process runs.
type Catalog struct {
	path    string
	logger  *observability.Logger
	metrics *observability.Metrics

	mu       sync.RWMutex
	features []Feature
}

// NewCatalog loads path, or the built-in catalog when path is empty
func NewCatalog(path string, logger *observability.Logger, metrics *observability.Metrics) (*Catalog, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	c := &Catalog{
		path:     path,
		logger:   logger.WithComponent("gate"),
		metrics:  metrics,
		features: DefaultFeatures(),
	}
	if path == "" {
		return c, nil
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Features returns a copy of the current catalog
func (c *Catalog) Features() []Feature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Feature(nil), c.features...)
}

// Evaluate projects the current catalog onto active
func (c *Catalog) Evaluate(active rbac.Role, held []rbac.Role) View {
	return Evaluate(c.Features(), active, held)
}

// Reload re-reads the catalog file. An invalid file leaves the previous
// catalog in place.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}
	features, err := LoadFeatures(c.path)
	if err != nil {
		c.countReload("failure")
		return err
	}
	c.mu.Lock()
	c.features = features
	c.mu.Unlock()
	c.countReload("success")
	return nil
}

// Watch reloads the catalog whenever its file changes, until ctx is done.
// The parent directory is watched so that editors replacing the file by
// rename are noticed.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", c.path, err)
	}
	target := filepath.Clean(c.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := c.Reload(); err != nil {
				c.logger.WithError(err).Warn("feature catalog reload failed, keeping previous catalog")
				continue
			}
			c.logger.WithField("path", c.path).Info("feature catalog reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.WithError(err).Warn("feature catalog watcher error")
		}
	}
}

func (c *Catalog) countReload(outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.FeatureCatalogReloads.WithLabelValues(outcome).Inc()
}
