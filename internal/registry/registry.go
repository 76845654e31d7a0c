// Package registry maps method names to handlers. Handlers are registered
// directly at startup or produced on first use by a loader; loaded handlers
// are kept in a bounded cache.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize bounds the number of loaded handlers kept in memory
const DefaultCacheSize = 256

// ErrNotFound is returned for methods with neither a handler nor a loader
var ErrNotFound = errors.New("method not found")

// LoadError is returned when a loader fails
type LoadError struct {
	Method string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load module: %v", e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Loader produces the handler for a method
type Loader func(ctx context.Context, method string) (Handler, error)

// Resolver finds the handler serving a method
type Resolver interface {
	Resolve(ctx context.Context, method string) (Handler, error)
}

// Registry is the Resolver used by the dispatcher
type Registry struct {
	handlers map[string]Handler
	loaders  map[string]Loader
	loaded   *lru.Cache[string, Handler]
	group    singleflight.Group
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// New creates a new Registry
func New(cacheSize int, logger zerolog.Logger) *Registry {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	// only fails for a non-positive size
	cache, _ := lru.New[string, Handler](cacheSize)

	return &Registry{
		handlers: make(map[string]Handler),
		loaders:  make(map[string]Loader),
		loaded:   cache,
		logger:   logger.With().Str("component", "registry").Logger(),
	}
}

// Register binds a handler to a method, replacing any previous binding
func (r *Registry) Register(method string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = h
	delete(r.loaders, method)
	r.loaded.Remove(method)
}

// RegisterLoader binds a loader to a method. The loader runs on the first
// request for the method and again after its handler is evicted.
func (r *Registry) RegisterLoader(method string, loader Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, method)
	r.loaders[method] = loader
	r.loaded.Remove(method)
}

// Resolve implements Resolver
func (r *Registry) Resolve(ctx context.Context, method string) (Handler, error) {
	r.mu.RLock()
	h, ok := r.handlers[method]
	loader, hasLoader := r.loaders[method]
	r.mu.RUnlock()

	if ok {
		return h, nil
	}
	if !hasLoader {
		return Handler{}, fmt.Errorf("%w: %s", ErrNotFound, method)
	}
	if h, ok := r.loaded.Get(method); ok {
		return h, nil
	}

	v, err, _ := r.group.Do(method, func() (any, error) {
		if h, ok := r.loaded.Get(method); ok {
			return h, nil
		}
		h, err := loader(ctx, method)
		if err != nil {
			return nil, err
		}
		r.loaded.Add(method, h)
		return h, nil
	})
	if err != nil {
		r.logger.Error().Err(err).Str("method", method).Msg("failed to load handler")
		return Handler{}, &LoadError{Method: method, Err: err}
	}

	r.logger.Debug().Str("method", method).Msg("handler loaded")
	return v.(Handler), nil
}

// Methods returns all registered method names, sorted
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := make([]string, 0, len(r.handlers)+len(r.loaders))
	for m := range r.handlers {
		methods = append(methods, m)
	}
	for m := range r.loaders {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// Has returns true if the method has a handler or a loader
func (r *Registry) Has(method string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[method]
	if !ok {
		_, ok = r.loaders[method]
	}
	return ok
}
