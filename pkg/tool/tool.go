package tool

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// Tool is one capability the model may request: its descriptor plus the
// validate and execute steps. Validate is optional.
type Tool struct {
	Name        string
	Description string

	Schema *Schema

	Validate ValidateFunc
	Execute  ExecuteFunc
}

type Schema = jsonschema.Schema

// ValidateFunc checks and normalizes arguments before any side effect. The
// returned map is what Execute receives.
type ValidateFunc = func(args map[string]any) (map[string]any, error)

type ExecuteFunc = func(ctx context.Context, args map[string]any) (string, error)

// Parameters returns the schema as a plain JSON object, the shape vendor
// SDKs expect for function parameters.
func (t Tool) Parameters() map[string]any {
	if t.Schema == nil {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}

	data, err := json.Marshal(t.Schema)

	if err != nil {
		return nil
	}

	var result map[string]any

	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}

	return result
}
