package tools

import (
	"context"

	"github.com/chatforge/agentd/internal/llm"
)

// Registry renders a project's actions into model-callable descriptors.
type Registry struct {
	store Store
}

// NewRegistry wraps the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// ModelTools returns the project's actions as tool descriptors, in the
// store's insertion order. Each parameter map becomes a JSON-schema
// object with its required field names listed.
func (r *Registry) ModelTools(ctx context.Context, projectID string) ([]llm.Tool, error) {
	actions, err := r.store.ListActions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]llm.Tool, 0, len(actions))
	for _, action := range actions {
		properties := make(map[string]any, len(action.Parameters))
		required := make([]string, 0, len(action.Parameters))
		for name, def := range action.Parameters {
			properties[name] = map[string]any{
				"type":        def.Type,
				"description": def.Description,
			}
			if def.Required {
				required = append(required, name)
			}
		}
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        action.Name,
				Description: action.Description,
				Parameters: map[string]any{
					"type":       "object",
					"properties": properties,
					"required":   required,
				},
			},
		})
	}
	return out, nil
}
