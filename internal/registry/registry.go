// Package registry provides the central glue for built-in actions.
//
// The Registry maps the action names used in pipeline files (a step's
// `uses` attribute) to the compiled Go functions and input types that
// implement them. Action packages under modules/ register themselves here
// during application startup.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/vk/conveyor/internal/artifact"
	"github.com/vk/conveyor/internal/config"
	"github.com/vk/conveyor/internal/gitrepo"
	"github.com/vk/conveyor/internal/publish"
	"github.com/vk/conveyor/internal/release"
)

// Services bundles the shared backends an action can reach: the repository
// tag store, the artifact store, and the registry/release HTTP clients.
// Fields an installation does not configure stay nil and actions needing
// them fail with a clear error.
type Services struct {
	Tags      gitrepo.TagStore
	Artifacts *artifact.Store
	Packages  *publish.Client
	Releases  *release.Client
}

// Invocation is the per-step view handed to an action handler.
type Invocation struct {
	*Services
	// RunID identifies the pipeline run; artifact names are scoped by it.
	RunID string
	// Job is the name of the owning job.
	Job string
	// Workspace is the job's isolated working directory. Relative paths in
	// action inputs resolve against it.
	Workspace string
	// Event is the repository event that triggered the run.
	Event config.Event
}

// RegisteredAction holds the compiled Go parts of one action.
type RegisteredAction struct {
	// NewInput returns a pointer to a fresh input struct for decoding the
	// step's `with` block, or nil for actions without inputs.
	NewInput func() any
	// Fn is the handler with signature
	// func(ctx context.Context, inv *Invocation, input *T) (cty.Value, error).
	Fn any
}

// Module is the interface every action package implements to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds all registered actions for one application instance.
type Registry struct {
	actions map[string]*RegisteredAction
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{actions: make(map[string]*RegisteredAction)}
}

// Register adds an action under the given name. Double registration is a
// programmer error.
func (r *Registry) Register(name string, action *RegisteredAction) {
	if _, exists := r.actions[name]; exists {
		panic(fmt.Sprintf("action %q already registered", name))
	}
	slog.Debug("Registering action.", "name", name)
	r.actions[name] = action
}

// Lookup returns the named action.
func (r *Registry) Lookup(name string) (*RegisteredAction, bool) {
	a, ok := r.actions[name]
	return a, ok
}

// Names returns the registered action names, for diagnostics.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.actions))
	for n := range r.actions {
		names = append(names, n)
	}
	return names
}
