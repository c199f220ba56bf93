package pipeline

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"sync"
)

// ErrPipelineNotFound is returned by Catalog.Get for unknown names.
var ErrPipelineNotFound = errors.New("pipeline not found")

//go:embed catalog/*.yaml
var builtin embed.FS

// Catalog is a named set of definitions. It is safe for concurrent use.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewCatalog creates a catalog holding defs.
func NewCatalog(defs ...*Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if err := c.Add(d); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LoadCatalog parses every *.yaml file in dir of fsys.
func LoadCatalog(fsys fs.FS, dir string) (*Catalog, error) {
	files, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}

	c, _ := NewCatalog()
	for _, f := range files {
		data, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f, err)
		}
		def, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		if err := c.Add(def); err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
	}
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the built-in catalog: search, blog, research, story and
// coordinator. The same instance is shared; use Clone before adding to it.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = LoadCatalog(builtin, "catalog")
	})
	return defaultCatalog, defaultErr
}

// Add registers def, rejecting duplicate names.
func (c *Catalog) Add(def *Definition) error {
	if def == nil {
		return errors.New("nil definition")
	}
	if err := def.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.defs[def.Name]; dup {
		return fmt.Errorf("duplicate pipeline %q", def.Name)
	}
	c.defs[def.Name] = def
	return nil
}

// Get returns the definition registered under name.
func (c *Catalog) Get(name string) (*Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPipelineNotFound, name)
	}
	return def, nil
}

// Names returns the registered names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.defs))
	for n := range c.defs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Clone returns an independent catalog with the same definitions.
func (c *Catalog) Clone() *Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := &Catalog{defs: make(map[string]*Definition, len(c.defs))}
	for k, v := range c.defs {
		out.defs[k] = v
	}
	return out
}
