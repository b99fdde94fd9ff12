package ldap

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Module is optional behavior attached to every Connection built from a
// Registry it is enabled in.
type Module interface {
	// Name identifies the module; a Registry holds at most one per name.
	Name() string
	// Enable is called when the module is added to a Registry.
	Enable(ctx context.Context) error
	// Disable is called when the module is removed from a Registry.
	Disable(ctx context.Context)
	// Subscriptions declares the handler for each event the module observes.
	Subscriptions() map[EventKind]Handler
}

// BaseModule provides no-op lifecycle hooks for embedding.
type BaseModule struct{}

func (BaseModule) Enable(context.Context) error { return nil }
func (BaseModule) Disable(context.Context)      {}

// Registry is an ordered set of enabled modules. Connections snapshot it
// at construction; later changes do not affect existing connections.
type Registry struct {
	mu      sync.RWMutex
	modules []Module
}

// NewRegistry returns a registry with modules enabled in order.
func NewRegistry(ctx context.Context, modules ...Module) (*Registry, error) {
	r := &Registry{}
	for _, m := range modules {
		if err := r.Enable(ctx, m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Enable validates m and appends it. Enabling a module whose name is
// already registered is a no-op.
func (r *Registry) Enable(ctx context.Context, m Module) error {
	if err := validateModule(m); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(m.Name()) >= 0 {
		return nil
	}

	if err := m.Enable(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidModule, m.Name(), err)
	}

	r.modules = append(r.modules, m)
	tflog.SubsystemDebug(ctx, "ldap", "Module enabled", map[string]any{
		"module":   m.Name(),
		"position": len(r.modules),
	})
	return nil
}

// Disable removes the module with m's name. Removing an unknown module is
// a no-op.
func (r *Registry) Disable(ctx context.Context, m Module) {
	if m == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(m.Name())
	if i < 0 {
		return
	}

	removed := r.modules[i]
	r.modules = slices.Delete(r.modules, i, i+1)
	removed.Disable(ctx)

	tflog.SubsystemDebug(ctx, "ldap", "Module disabled", map[string]any{
		"module": m.Name(),
	})
}

// Modules returns the enabled modules in registration order.
func (r *Registry) Modules() []Module {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.modules)
}

// Enabled reports whether a module with name is registered.
func (r *Registry) Enabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexOf(name) >= 0
}

func (r *Registry) indexOf(name string) int {
	return slices.IndexFunc(r.modules, func(m Module) bool {
		return m.Name() == name
	})
}

func validateModule(m Module) error {
	if m == nil {
		return fmt.Errorf("%w: module is nil", ErrInvalidModule)
	}
	if v := reflect.ValueOf(m); v.Kind() == reflect.Pointer && v.IsNil() {
		return fmt.Errorf("%w: module is a nil %T", ErrInvalidModule, m)
	}
	if m.Name() == "" {
		return fmt.Errorf("%w: module has no name", ErrInvalidModule)
	}
	for kind, handler := range m.Subscriptions() {
		if !kind.Valid() {
			return fmt.Errorf("%w: %s subscribes to unknown event kind %d", ErrInvalidModule, m.Name(), int(kind))
		}
		if handler == nil {
			return fmt.Errorf("%w: %s has a nil handler for %s", ErrInvalidModule, m.Name(), kind)
		}
	}
	return nil
}
