package search

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/storage"
)

// DefaultSourceHandler is the name of the built-in engine.
const DefaultSourceHandler = "default"

// ErrUnknownSourceHandler is returned when no factory is registered under a name.
var ErrUnknownSourceHandler = errors.New("unknown source handler")

// Deps are the collaborators injected into a new source handler.
type Deps struct {
	Store         storage.Store
	Keyword       keyword.Index
	Logger        *zap.Logger
	MinWordLength int
	// BulkFlushBytes is the serialized batch size that triggers a flush in rebuild mode.
	BulkFlushBytes int
	// GroupPageSize is the page size used when collapsing results by discussion.
	GroupPageSize int
}

// Factory builds a new, independent source handler instance.
type Factory func(deps Deps) (SourceHandler, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// RegisterSourceHandler makes a factory available by name, replacing any previous registration.
func RegisterSourceHandler(name string, f Factory) {
	if f == nil {
		panic("search: RegisterSourceHandler factory is nil")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// NewSourceHandler builds a handler with the named factory. Empty name selects the default.
// Each call returns a fresh instance with its own rebuild batch and searcher.
func NewSourceHandler(name string, deps Deps) (SourceHandler, error) {
	if name == "" {
		name = DefaultSourceHandler
	}
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSourceHandler, name)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return f(deps)
}

// SourceHandlers lists registered handler names.
func SourceHandlers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
