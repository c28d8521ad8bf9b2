package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	careErrors "github.com/carelane/carelane/internal/errors"
)

// Args is a validated argument set, keyed by field name.
type Args map[string]interface{}

// String returns the string value of a field, or "" when absent.
func (a Args) String(field string) string {
	if v, ok := a[field].(string); ok {
		return v
	}
	return ""
}

// Handler executes a validated invocation against the persistence collaborator
// and returns the user-facing result text.
type Handler func(ctx context.Context, args Args) (string, error)

// Spec describes one callable operation: its schema, whether it mutates state
// (and therefore needs human approval), and the handler that runs it.
type Spec struct {
	Name             string
	Description      string
	InputSchema      map[string]interface{}
	RequiresApproval bool
	Handler          Handler
}

// Descriptor is the reasoner-facing view of a tool.
type Descriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Registry is the closed catalog of callable operations. It is populated once
// at startup and read-only afterwards, so concurrent reads need no locking.
type Registry struct {
	specs map[string]Spec
}

func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{specs: make(map[string]Spec)}
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(spec Spec) error {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return fmt.Errorf("empty tool name: %w", careErrors.ErrSchemaValidation)
	}
	if _, exists := r.specs[name]; exists {
		return fmt.Errorf("tool %s: %w", name, careErrors.ErrDuplicateTool)
	}

	spec.Name = name
	r.specs[name] = spec
	return nil
}

func (r *Registry) Resolve(name string) (Spec, error) {
	spec, ok := r.specs[strings.TrimSpace(name)]
	if !ok {
		return Spec{}, fmt.Errorf("tool %q: %w", name, careErrors.ErrUnknownTool)
	}
	return spec, nil
}

// Validate resolves the tool and checks raw arguments against its schema.
// It returns the typed argument set on success.
func (r *Registry) Validate(name string, raw json.RawMessage) (Args, error) {
	spec, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	var args Args
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("arguments are not a JSON object: %w", careErrors.ErrSchemaValidation)
		}
	}
	if args == nil {
		args = Args{}
	}

	if err := validateObject(spec.InputSchema, args); err != nil {
		return nil, err
	}
	return args, nil
}

// Descriptors returns all tool definitions sorted by name, for the reasoner.
func (r *Registry) Descriptors() []Descriptor {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)

	descriptors := make([]Descriptor, 0, len(names))
	for _, name := range names {
		spec := r.specs[name]
		descriptors = append(descriptors, Descriptor{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.InputSchema,
		})
	}
	return descriptors
}
