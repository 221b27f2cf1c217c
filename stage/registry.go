package stage

import (
	"fmt"
	"slices"
	"sync"

	"github.com/casemr/gadgetron/errors"
)

// Factory creates a fresh, unconfigured stage instance. Factories must not
// perform I/O; all validation belongs in Configure.
type Factory func() Stage

// Registration holds the factory and metadata for a stage type.
type Registration struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Factory     Factory `json:"-"`
}

// Registry manages stage factories. It is the plugin catalog consulted at
// pipeline assembly: lookup(name) -> constructor and nothing more.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Registration
}

// NewRegistry creates a new empty stage registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Registration)}
}

// Register adds a stage factory under its type name.
// Returns an error if a factory with the same name is already registered.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" {
		return errors.WrapConfig(errors.ErrInvalidConfig, "Registry", "Register", "stage name validation")
	}
	if reg.Factory == nil {
		return errors.WrapConfig(errors.ErrInvalidConfig, "Registry", "Register", "factory validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[reg.Name]; exists {
		return errors.WrapConfig(
			fmt.Errorf("%w: %q", errors.ErrDuplicateStage, reg.Name),
			"Registry", "Register", "duplicate factory check")
	}
	r.factories[reg.Name] = reg
	return nil
}

// Lookup returns the factory registered under the given stage type name.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, exists := r.factories[name]
	if !exists {
		return nil, errors.WrapConfig(
			fmt.Errorf("%w: %q", errors.ErrUnknownStage, name),
			"Registry", "Lookup", "factory lookup")
	}
	return reg.Factory, nil
}

// List returns the registered stage type names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
