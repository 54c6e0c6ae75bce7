package track

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/mpapenbr/openf1-insights/log"
)

//go:embed circuits.yaml
var defaultMapping []byte

type mappingFile struct {
	Circuits map[string]string `yaml:"circuits"`
}

// Resolver maps circuit names to geojson file names.
// Names are matched case insensitive.
type Resolver struct {
	mu    sync.RWMutex
	files map[string]string
	path  string
	l     *log.Logger
}

// ParseMapping decodes a mapping document
func ParseMapping(data []byte) (map[string]string, error) {
	var m mappingFile
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing circuit mapping: %w", err)
	}
	ret := make(map[string]string, len(m.Circuits))
	for name, file := range m.Circuits {
		name = normalize(name)
		file = strings.TrimSpace(file)
		if name == "" || file == "" {
			continue
		}
		ret[name] = file
	}
	return ret, nil
}

func NewResolver(mapping map[string]string) *Resolver {
	r := &Resolver{
		files: make(map[string]string, len(mapping)),
		l:     log.Default().Named("track"),
	}
	for k, v := range mapping {
		r.files[normalize(k)] = v
	}
	return r
}

// DefaultResolver uses the mapping bundled with the binary
func DefaultResolver() *Resolver {
	m, err := ParseMapping(defaultMapping)
	if err != nil {
		panic(err)
	}
	return NewResolver(m)
}

// LoadResolver reads the mapping from path. Use Watch to pick up changes.
func LoadResolver(path string) (*Resolver, error) {
	r := NewResolver(nil)
	r.path = path
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the mapping file. On error the current mapping is kept.
func (r *Resolver) Reload() error {
	if r.path == "" {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("reading circuit mapping: %w", err)
	}
	m, err := ParseMapping(data)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.files = m
	r.mu.Unlock()
	r.l.Info("circuit mapping loaded",
		log.String("file", r.path),
		log.Int("entries", len(m)))
	return nil
}

// Resolve returns the file of the first candidate with a mapping
func (r *Resolver) Resolve(candidates ...string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range candidates {
		if f, ok := r.files[normalize(c)]; ok {
			return f, true
		}
	}
	return "", false
}

func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.files)
}

// Watch reloads the mapping whenever the file changes. It blocks until ctx is
// done. The directory is watched since editors usually replace files on save.
//
//nolint:gocognit // event loop
func (r *Resolver) Watch(ctx context.Context, onReload func()) error {
	if r.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("watching %s: %w", r.path, err)
	}
	target := filepath.Clean(r.path)
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
			r.l.Debug("change detected",
				log.String("file", event.Name), log.Any("event", event))
			if err := r.Reload(); err != nil {
				r.l.Warn("could not reload circuit mapping", log.ErrorField(err))
				continue
			}
			if onReload != nil {
				onReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.l.Error("watcher error", log.ErrorField(err))
		}
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
