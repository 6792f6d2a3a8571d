package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Registry is the capability catalog and executor. Tools keep the order
// in which they were registered.
type Registry struct {
	tools []Tool

	resolved map[string]*jsonschema.Resolved
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		resolved: make(map[string]*jsonschema.Resolved),
	}

	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name)

	if name == "" {
		return errors.New("tool name is empty")
	}

	if t.Execute == nil {
		return fmt.Errorf("tool %s has no execute function", name)
	}

	if _, ok := r.Lookup(name); ok {
		return fmt.Errorf("tool %s already registered", name)
	}

	if t.Schema != nil {
		resolved, err := t.Schema.Resolve(nil)

		if err != nil {
			return fmt.Errorf("tool %s: invalid schema: %w", name, err)
		}

		r.resolved[name] = resolved
	}

	r.tools = append(r.tools, t)

	return nil
}

// List returns the catalog. The slice is a copy; descriptors are shared and
// must not be mutated.
func (r *Registry) List() []Tool {
	return append([]Tool(nil), r.tools...)
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	for _, t := range r.tools {
		if t.Name == name {
			return t, true
		}
	}

	return Tool{}, false
}

// Execute runs one invocation. It never returns an error: every failure is
// reported through the Outcome so it can be fed back to the model.
func (r *Registry) Execute(ctx context.Context, name string, rawArgs string) Outcome {
	t, ok := r.Lookup(name)

	if !ok {
		return failure(KindUnknownCapability, fmt.Errorf("unknown tool %s", name))
	}

	args := map[string]any{}

	if strings.TrimSpace(rawArgs) != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return failure(KindInvalidArgument, fmt.Errorf("failed to parse arguments: %w", err))
		}

		if args == nil {
			args = map[string]any{}
		}
	}

	if resolved, ok := r.resolved[name]; ok {
		if err := resolved.Validate(args); err != nil {
			return failure(KindInvalidArgument, err)
		}
	}

	if t.Validate != nil {
		normalized, err := t.Validate(args)

		if err != nil {
			return Outcome{Err: &Error{Kind: KindInvalidArgument, Err: unwrapKind(err)}}
		}

		args = normalized
	}

	result, err := t.Execute(ctx, args)

	if err != nil {
		return failure(KindUnknown, err)
	}

	return Outcome{Result: result}
}

func unwrapKind(err error) error {
	var e *Error

	if errors.As(err, &e) {
		return e.Err
	}

	return err
}
