// Package strategy holds the trading policies that plug into the engine,
// plus the registry the driver and control server resolve them from.
package strategy

import (
	"fmt"
	"sort"
	"sync"

	"quantico/internal/engine"
)

// Options carries the per-strategy configuration a factory may need.
type Options struct {
	// AgeFilePath is where age-tracking strategies persist days-held state.
	AgeFilePath string
}

// Factory builds a fresh strategy instance. Strategies are stateful, so
// every run gets its own instance.
type Factory func(opts Options) (engine.Strategy, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register adds a named factory. Duplicate names panic at init time.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("strategy %q registered twice", name))
	}
	factories[name] = f
}

// New resolves a registered strategy by name.
func New(name string, opts Options) (engine.Strategy, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (known: %v)", name, Names())
	}
	return f(opts)
}

// Names lists the registered strategy names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
