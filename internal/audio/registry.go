package audio

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Factory builds an unopened Decoder for the file at path.
type Factory func(path string) Decoder

// Registry maps file extensions to decoder factories.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func (r *Registry) Register(ext string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[normalizeExt(ext)] = f
}

func (r *Registry) Get(ext string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[normalizeExt(ext)]
	return f, ok
}

// Extensions returns the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.factories))
	for ext := range r.factories {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// NewDecoder picks a factory by the extension of path.
func (r *Registry) NewDecoder(path string) (Decoder, error) {
	f, ok := r.Get(filepath.Ext(path))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
	return f(path), nil
}
