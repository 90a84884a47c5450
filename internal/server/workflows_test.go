package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/chatforge/agentd/internal/workflow"
)

const guidedWorkflow = `{
	"nodes": [
		{"id": "start", "type": "start"},
		{"id": "agent", "type": "ai-agent"},
		{"id": "bye", "type": "handoff", "data": {"message": "Connecting you now."}}
	],
	"edges": [
		{"source": "start", "target": "agent"},
		{"source": "agent", "target": "bye"}
	]
}`

func newWorkflowsHandler() (*WorkflowsHandler, *echo.Echo) {
	h := &WorkflowsHandler{
		States: workflow.NewMemoryStateStore(),
		Engine: workflow.NewEngine(nil, nil, nil, log.New(io.Discard, "", 0)),
	}
	e := echo.New()
	h.Register(e.Group("/api/workflows"))
	return h, e
}

func executeTurn(t *testing.T, e *echo.Echo, input string) executeResponse {
	t.Helper()
	rec := postJSON(e, "/api/workflows/p1/execute",
		`{"session_id":"s1","user_input":"`+input+`","workflow":`+guidedWorkflow+`}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp executeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestExecuteWorkflowAcrossTurns(t *testing.T) {
	_, e := newWorkflowsHandler()

	first := executeTurn(t, e, "hello")
	if first.Complete {
		t.Fatalf("first turn must pause at the agent reply")
	}
	if len(first.Messages) != 1 || first.Messages[0] != "AI Agent: hello" {
		t.Fatalf("unexpected messages %v", first.Messages)
	}
	if first.NextNodeID != "bye" {
		t.Fatalf("next_node_id = %q", first.NextNodeID)
	}
	if first.State == nil || first.State.CurrentNodeID != "bye" {
		t.Fatalf("unexpected state %+v", first.State)
	}

	second := executeTurn(t, e, "thanks")
	if !second.Complete {
		t.Fatalf("second turn must reach the handoff")
	}
	if len(second.Messages) != 1 || second.Messages[0] != "Connecting you now." {
		t.Fatalf("unexpected messages %v", second.Messages)
	}

	// Completion clears the state, so the next turn starts over.
	third := executeTurn(t, e, "hello again")
	if third.Complete || third.Messages[0] != "AI Agent: hello again" {
		t.Fatalf("workflow should restart after completion, got %+v", third)
	}
}

func TestExecuteWorkflowValidation(t *testing.T) {
	_, e := newWorkflowsHandler()

	if rec := postJSON(e, "/api/workflows/p1/execute", `{"user_input":"hi","workflow":`+guidedWorkflow+`}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing session_id: status = %d", rec.Code)
	}
	noStart := `{"session_id":"s1","user_input":"hi","workflow":{"nodes":[{"id":"a","type":"handoff"}]}}`
	if rec := postJSON(e, "/api/workflows/p1/execute", noStart); rec.Code != http.StatusBadRequest {
		t.Fatalf("definition without start: status = %d", rec.Code)
	}
}

func TestExecuteWorkflowWithCallerState(t *testing.T) {
	_, e := newWorkflowsHandler()

	// A hybrid client can carry its own position instead of the stored one.
	body := `{"session_id":"s1","user_input":"bye","workflow":` + guidedWorkflow +
		`,"state":{"currentNodeId":"bye","variables":{},"executionHistory":["start","agent","bye"]}}`
	rec := postJSON(e, "/api/workflows/p1/execute", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp executeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Complete || len(resp.Messages) != 1 || resp.Messages[0] != "Connecting you now." {
		t.Fatalf("caller state ignored: %+v", resp)
	}
}

func TestResetWorkflowEndpoint(t *testing.T) {
	h, e := newWorkflowsHandler()

	executeTurn(t, e, "hello")
	if rec := postJSON(e, "/api/workflows/p1/reset", `{"session_id":"s1"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	state, err := h.States.Load(context.Background(), "p1", "s1")
	if err != nil || state != nil {
		t.Fatalf("state must be gone after reset, got %v, %v", state, err)
	}
}
