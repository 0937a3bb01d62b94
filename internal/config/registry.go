package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/cryguard/pkg/provider/llm"
	"github.com/MrWong99/cryguard/pkg/provider/scorer"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	scorer map[string]func(ProviderEntry) (scorer.Provider, error)
	llm    map[string]func(ProviderEntry) (llm.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		scorer: make(map[string]func(ProviderEntry) (scorer.Provider, error)),
		llm:    make(map[string]func(ProviderEntry) (llm.Provider, error)),
	}
}

// RegisterScorer registers a scorer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterScorer(name string, factory func(ProviderEntry) (scorer.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scorer[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// CreateScorer instantiates a scorer using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateScorer(entry ProviderEntry) (scorer.Provider, error) {
	r.mu.RLock()
	factory, ok := r.scorer[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: scorer/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the sorted registered names for kind ("scorer" or "llm").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "scorer":
		for n := range r.scorer {
			names = append(names, n)
		}
	case "llm":
		for n := range r.llm {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}
