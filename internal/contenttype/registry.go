// Package contenttype provides the per-content-type search handlers (post, profile post).
package contenttype

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hyperjump/kensaku/internal/search"
)

// ErrUnknownTypeHandler is returned for unregistered content type names.
var ErrUnknownTypeHandler = errors.New("unknown content type handler")

var handlers = map[string]search.TypeHandler{
	TypePost:        Post{},
	TypeProfilePost: ProfilePost{},
}

// Get returns the handler registered under name.
func Get(name string) (search.TypeHandler, error) {
	th, ok := handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTypeHandler, name)
	}
	return th, nil
}

// Names lists the registered handler names.
func Names() []string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
