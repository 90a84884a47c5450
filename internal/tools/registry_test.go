package tools

import (
	"context"
	"testing"
)

func seedAction(t *testing.T, store Store, projectID, name string) Action {
	t.Helper()
	action, err := store.CreateAction(context.Background(), Action{
		ProjectID:   projectID,
		Name:        name,
		Description: "desc for " + name,
		Type:        ActionAPI,
		API:         &APIConfig{URL: "https://api.example.com/" + name, Method: "GET"},
		Parameters: map[string]ParameterDef{
			"id":      {Type: "integer", Description: "record id", Required: true},
			"verbose": {Type: "boolean", Description: "include details", Required: false},
		},
	})
	if err != nil {
		t.Fatalf("CreateAction(%s): %v", name, err)
	}
	return action
}

func TestModelToolsRendersJSONSchema(t *testing.T) {
	store := NewMemoryStore()
	seedAction(t, store, "p1", "get_order")

	descriptors, err := NewRegistry(store).ModelTools(context.Background(), "p1")
	if err != nil {
		t.Fatalf("ModelTools: %v", err)
	}
	if len(descriptors) != 1 {
		t.Fatalf("expected 1 descriptor, got %d", len(descriptors))
	}
	fn := descriptors[0].Function
	if descriptors[0].Type != "function" || fn.Name != "get_order" {
		t.Fatalf("unexpected descriptor %+v", descriptors[0])
	}
	params := fn.Parameters
	if params["type"] != "object" {
		t.Fatalf("parameter object type = %v", params["type"])
	}
	props, ok := params["properties"].(map[string]any)
	if !ok || len(props) != 2 {
		t.Fatalf("unexpected properties %v", params["properties"])
	}
	idProp, _ := props["id"].(map[string]any)
	if idProp["type"] != "integer" || idProp["description"] != "record id" {
		t.Fatalf("unexpected id property %v", idProp)
	}
	required, _ := params["required"].([]string)
	if len(required) != 1 || required[0] != "id" {
		t.Fatalf("unexpected required list %v", required)
	}
}

func TestModelToolsKeepsInsertionOrderAndProjectScope(t *testing.T) {
	store := NewMemoryStore()
	seedAction(t, store, "p1", "first_tool")
	seedAction(t, store, "p2", "other_project_tool")
	seedAction(t, store, "p1", "second_tool")

	descriptors, err := NewRegistry(store).ModelTools(context.Background(), "p1")
	if err != nil {
		t.Fatalf("ModelTools: %v", err)
	}
	if len(descriptors) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(descriptors))
	}
	if descriptors[0].Function.Name != "first_tool" || descriptors[1].Function.Name != "second_tool" {
		t.Fatalf("descriptors out of insertion order: %s, %s",
			descriptors[0].Function.Name, descriptors[1].Function.Name)
	}
}

func TestCreateActionRejectsDuplicatesAndMisconfiguration(t *testing.T) {
	store := NewMemoryStore()
	seedAction(t, store, "p1", "get_order")
	if _, err := store.CreateAction(context.Background(), Action{
		ProjectID: "p1", Name: "get_order", Type: ActionAPI,
		API: &APIConfig{URL: "https://x"},
	}); err == nil {
		t.Fatalf("duplicate name must be rejected")
	}
	if _, err := store.CreateAction(context.Background(), Action{
		ProjectID: "p1", Name: "broken_db", Type: ActionDatabase,
	}); err == nil {
		t.Fatalf("database action without connection/sql must be rejected")
	}
}
