package pcsc

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/ebfe/scard"
)

// ErrNoReader is returned by Resolve when no reader is attached.
var ErrNoReader = errors.New("no smart card reader found")

// Registry keeps the list of readers known to a Context.
// It is safe for concurrent use.
type Registry struct {
	ctx Context

	mu    sync.RWMutex
	names []string
}

// NewRegistry returns an empty registry; call Refresh to populate it.
func NewRegistry(ctx Context) *Registry {
	return &Registry{ctx: ctx}
}

// Refresh reloads the reader list. No attached reader is not an error.
func (r *Registry) Refresh() ([]string, error) {
	names, err := r.ctx.ListReaders()
	if errors.Is(err, scard.ErrNoReadersAvailable) {
		names, err = nil, nil
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.names = slices.Clone(names)
	r.mu.Unlock()

	return slices.Clone(names), nil
}

// Names returns the readers found by the last Refresh.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.names)
}

// Contains reports whether name was found by the last Refresh.
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.names, name)
}

// Resolve finds a reader by exact name or by its index in Names.
// An empty selector picks the first reader.
func (r *Registry) Resolve(selector string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.names) == 0 {
		return "", ErrNoReader
	}
	if selector == "" {
		return r.names[0], nil
	}
	if slices.Contains(r.names, selector) {
		return selector, nil
	}
	if i, err := strconv.Atoi(selector); err == nil {
		if i < 0 || i >= len(r.names) {
			return "", fmt.Errorf("reader index %d out of range (%d readers)", i, len(r.names))
		}
		return r.names[i], nil
	}
	return "", fmt.Errorf("reader not found: %s", selector)
}
