package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/worldforge/core/errs"
	"github.com/worldforge/core/router"
)

// Kind aliases router.Kind so callers can reason about a tool's owning
// agent kind without importing router directly (spec §4.3's kind-scoped
// tool sets: User, World, Experience).
type Kind = router.Kind

// Executor implements one tool's business logic. args is the raw JSON
// arguments payload; it has already passed schema validation by the time
// Execute is called.
type Executor func(ctx context.Context, tc Context, args json.RawMessage) (any, error)

// Spec describes one registered tool: its owning kind, description, and
// compiled argument schema (spec §4.3: "Tools must validate their
// arguments against a declared schema and fail with ValidationError on
// mismatch").
type Spec struct {
	Name        string
	Kind        Kind
	Description string
	// SchemaDoc is the decoded JSON Schema document (pre-compilation), used
	// by the orchestrator to build agentruntime.ClientTool.InputSchema.
	SchemaDoc any
	schema    *jsonschema.Schema
	Execute   Executor
	// Timeout bounds a single invocation of Execute (SPEC_FULL.md's
	// per-tool timeout enforcement). Zero means no deadline is imposed
	// beyond whatever the caller's ctx already carries.
	Timeout time.Duration
}

// Registry is the closed set of tools the orchestrator dispatches into.
type Registry struct {
	specs map[string]Spec
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

// Register compiles schemaJSON (a JSON Schema document) and adds the tool
// under name with no per-call timeout. Returns an error if name is already
// registered or the schema fails to compile.
func (r *Registry) Register(name string, kind Kind, description, schemaJSON string, exec Executor) error {
	return r.RegisterWithTimeout(name, kind, description, schemaJSON, 0, exec)
}

// RegisterWithTimeout is Register plus a per-invocation timeout: Dispatch
// wraps each call to exec in context.WithTimeout(ctx, timeout) when timeout
// is positive (SPEC_FULL.md's per-tool timeout enforcement).
func (r *Registry) RegisterWithTimeout(name string, kind Kind, description, schemaJSON string, timeout time.Duration, exec Executor) error {
	if _, exists := r.specs[name]; exists {
		return fmt.Errorf("tools: %q already registered", name)
	}
	var schemaDoc any
	if err := json.Unmarshal([]byte(schemaJSON), &schemaDoc); err != nil {
		return fmt.Errorf("tools: unmarshal schema for %q: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	resourceName := name + ".json"
	if err := compiler.AddResource(resourceName, schemaDoc); err != nil {
		return fmt.Errorf("tools: add schema resource for %q: %w", name, err)
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("tools: compile schema for %q: %w", name, err)
	}
	r.specs[name] = Spec{Name: name, Kind: kind, Description: description, SchemaDoc: schemaDoc, schema: compiled, Execute: exec, Timeout: timeout}
	return nil
}

// SpecFor returns the registered Spec for name, used by the orchestrator to
// build the agentruntime.ClientTool descriptor list for a turn.
func (r *Registry) SpecFor(name string) (Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// ForKind returns the names of every tool registered under kind, in the
// kind-scoped sets described by spec §4.3. The orchestrator uses this to
// ensure it never exposes a tool outside its agent's kind.
func (r *Registry) ForKind(kind Kind) []string {
	var names []string
	for name, spec := range r.specs {
		if spec.Kind == kind {
			names = append(names, name)
		}
	}
	return names
}

// Describe returns the name/description pairs for every tool under kind,
// used to populate the experience_capabilities memory block (spec §4.5).
func (r *Registry) Describe(kind Kind) []ToolDescription {
	var out []ToolDescription
	for name, spec := range r.specs {
		if spec.Kind == kind {
			out = append(out, ToolDescription{Name: name, Description: spec.Description})
		}
	}
	return out
}

// ToolDescription is a name/description pair exposed to memory.Reconciler
// for the experience_capabilities block.
type ToolDescription struct {
	Name        string
	Description string
}

// Dispatch validates args against the named tool's compiled schema, then
// invokes its Executor. Returns ValidationError if the tool is unknown or
// args fail validation.
func (r *Registry) Dispatch(ctx context.Context, tc Context, name string, args json.RawMessage) (any, error) {
	spec, ok := r.specs[name]
	if !ok {
		return nil, errs.Newf(errs.ValidationError, "unknown tool %q", name)
	}

	var decoded any
	if len(args) == 0 {
		args = []byte("{}")
	}
	if err := json.Unmarshal(args, &decoded); err != nil {
		return nil, errs.Wrap(errs.ValidationError, fmt.Sprintf("tool %q: malformed arguments JSON", name), err)
	}
	if err := spec.schema.Validate(decoded); err != nil {
		return nil, errs.Wrap(errs.ValidationError, fmt.Sprintf("tool %q: arguments failed schema validation", name), err)
	}

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	return spec.Execute(ctx, tc, args)
}
