package agent

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chatforge/agentd/internal/llm"
	"github.com/chatforge/agentd/internal/persona"
	"github.com/chatforge/agentd/internal/retrieval"
	"github.com/chatforge/agentd/internal/secrets"
	"github.com/chatforge/agentd/internal/session"
	"github.com/chatforge/agentd/internal/tools"
)

type modelCall struct {
	messages []llm.Message
	tools    []llm.Tool
}

// scriptedModel replays queued results and records every call.
type scriptedModel struct {
	results []llm.Result
	err     error

	calls      []modelCall
	streamText string
	streamErr  error
	streamed   bool
}

func (m *scriptedModel) Chat(ctx context.Context, messages []llm.Message, toolDefs []llm.Tool) (llm.Result, error) {
	snapshot := make([]llm.Message, len(messages))
	copy(snapshot, messages)
	m.calls = append(m.calls, modelCall{messages: snapshot, tools: toolDefs})
	if m.err != nil {
		return llm.Result{}, m.err
	}
	result := m.results[0]
	m.results = m.results[1:]
	return result, nil
}

func (m *scriptedModel) StreamChat(ctx context.Context, messages []llm.Message, onDelta func(string)) (string, error) {
	m.streamed = true
	if m.streamErr != nil {
		return "", m.streamErr
	}
	for _, part := range strings.Split(m.streamText, "|") {
		onDelta(part)
	}
	return strings.ReplaceAll(m.streamText, "|", ""), nil
}

type fixedRetriever struct{ chunks []retrieval.Chunk }

func (r fixedRetriever) Query(ctx context.Context, query, projectID string, limit int) []retrieval.Chunk {
	return r.chunks
}

func newTestOrchestrator(t *testing.T, model llm.Client, store tools.Store) (*Orchestrator, *session.MemoryStore) {
	t.Helper()
	box, err := secrets.NewBox("6368616e676520746869732070617373776f726420746f206120736563726574")
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}
	exec := tools.NewExecutor(box)
	t.Cleanup(exec.Close)
	sessions := session.NewMemoryStore()
	logger := log.New(io.Discard, "", 0)
	orch := New(model, sessions, nil, tools.NewRegistry(store), tools.NewInvoker(store, exec, logger), nil, logger)
	return orch, sessions
}

func TestRespondPlainTurnPersistsBothMessages(t *testing.T) {
	model := &scriptedModel{results: []llm.Result{{Text: "Hi there!"}}}
	orch, sessions := newTestOrchestrator(t, model, tools.NewMemoryStore())

	turn := orch.Respond(context.Background(), Request{ProjectID: "p1", SessionID: "s1", Message: "hello"})
	if turn.Reply != "Hi there!" {
		t.Fatalf("reply = %q", turn.Reply)
	}
	if len(model.calls) != 1 {
		t.Fatalf("expected 1 model call, got %d", len(model.calls))
	}

	history := sessions.History(context.Background(), "p1", "s1")
	if len(history) != 2 {
		t.Fatalf("expected 2 stored messages, got %d", len(history))
	}
	if history[0].Role != llm.RoleUser || history[0].Content != "hello" {
		t.Fatalf("unexpected first entry %+v", history[0])
	}
	if history[1].Role != llm.RoleAssistant || history[1].Content != "Hi there!" {
		t.Fatalf("unexpected second entry %+v", history[1])
	}
}

func TestRespondStatelessWithoutSessionID(t *testing.T) {
	model := &scriptedModel{results: []llm.Result{{Text: "ok"}}}
	orch, sessions := newTestOrchestrator(t, model, tools.NewMemoryStore())

	orch.Respond(context.Background(), Request{ProjectID: "p1", Message: "hello"})
	if history := sessions.History(context.Background(), "p1", ""); history != nil {
		t.Fatalf("stateless turn must not persist, got %v", history)
	}
}

func TestRespondToolRound(t *testing.T) {
	var hits []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.URL.Path)
		_, _ = w.Write([]byte(`{"result":"` + r.URL.Path + `"}`))
	}))
	defer srv.Close()

	store := tools.NewMemoryStore()
	for _, name := range []string{"first_tool", "second_tool"} {
		if _, err := store.CreateAction(context.Background(), tools.Action{
			ProjectID:   "p1",
			Name:        name,
			Description: "calls " + name,
			Type:        tools.ActionAPI,
			API:         &tools.APIConfig{URL: srv.URL + "/" + name, Method: http.MethodGet},
		}); err != nil {
			t.Fatalf("CreateAction(%s): %v", name, err)
		}
	}

	// The model asks for the tools in reverse registration order; the
	// round must preserve the model's order.
	model := &scriptedModel{results: []llm.Result{
		{ToolCalls: []llm.ToolCall{
			{ID: "call_a", Type: "function", Function: llm.FunctionCall{Name: "second_tool", Arguments: "{}"}},
			{ID: "call_b", Type: "function", Function: llm.FunctionCall{Name: "first_tool", Arguments: "{}"}},
		}},
		{Text: "done"},
	}}
	orch, _ := newTestOrchestrator(t, model, store)

	turn := orch.Respond(context.Background(), Request{ProjectID: "p1", SessionID: "s1", Message: "run the tools"})
	if turn.Reply != "done" {
		t.Fatalf("reply = %q", turn.Reply)
	}
	if len(model.calls) != 2 {
		t.Fatalf("expected exactly 2 model calls, got %d", len(model.calls))
	}
	if len(model.calls[0].tools) != 2 {
		t.Fatalf("first call should carry tool descriptors, got %d", len(model.calls[0].tools))
	}
	if model.calls[1].tools != nil {
		t.Fatalf("closing call must not carry tools")
	}
	if len(hits) != 2 || hits[0] != "/second_tool" || hits[1] != "/first_tool" {
		t.Fatalf("tool execution order wrong: %v", hits)
	}

	second := model.calls[1].messages
	tail := second[len(second)-2:]
	if tail[0].Role != llm.RoleTool || tail[0].ToolCallID != "call_a" {
		t.Fatalf("unexpected first tool message %+v", tail[0])
	}
	if tail[1].Role != llm.RoleTool || tail[1].ToolCallID != "call_b" {
		t.Fatalf("unexpected second tool message %+v", tail[1])
	}
	assistant := second[len(second)-3]
	if assistant.Role != llm.RoleAssistant || len(assistant.ToolCalls) != 2 {
		t.Fatalf("assistant tool request missing before tool results: %+v", assistant)
	}
}

func TestRespondModelFailureFallsBack(t *testing.T) {
	model := &scriptedModel{err: context.DeadlineExceeded}
	orch, sessions := newTestOrchestrator(t, model, tools.NewMemoryStore())

	turn := orch.Respond(context.Background(), Request{ProjectID: "p1", SessionID: "s1", Message: "hello"})
	if turn.Reply != fallbackReply {
		t.Fatalf("reply = %q", turn.Reply)
	}
	history := sessions.History(context.Background(), "p1", "s1")
	if len(history) != 2 || history[1].Content != fallbackReply {
		t.Fatalf("failed turn must still persist: %v", history)
	}
}

func TestAssembleAppliesHistoryWindow(t *testing.T) {
	model := &scriptedModel{results: []llm.Result{{Text: "ok"}}}
	orch, sessions := newTestOrchestrator(t, model, tools.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		role := llm.RoleUser
		if i%2 == 1 {
			role = llm.RoleAssistant
		}
		sessions.Append(ctx, "p1", "s1", role, "message "+string(rune('a'+i)))
	}

	orch.Respond(ctx, Request{ProjectID: "p1", SessionID: "s1", Message: "latest"})
	messages := model.calls[0].messages
	// system + 10 history + user
	if len(messages) != 12 {
		t.Fatalf("expected 12 messages, got %d", len(messages))
	}
	if messages[0].Role != llm.RoleSystem {
		t.Fatalf("first message must be the system prompt")
	}
	if messages[1].Content != "message f" {
		t.Fatalf("window should start at the 6th stored message, got %q", messages[1].Content)
	}
	if messages[11].Role != llm.RoleUser || messages[11].Content != "latest" {
		t.Fatalf("unexpected trailing message %+v", messages[11])
	}
}

func TestAssembleAddsRetrievedContext(t *testing.T) {
	model := &scriptedModel{results: []llm.Result{{Text: "ok"}}}
	orch, _ := newTestOrchestrator(t, model, tools.NewMemoryStore())
	orch.retriever = fixedRetriever{chunks: []retrieval.Chunk{
		{Content: "refund window is 30 days"},
		{Content: "refunds need the order id"},
	}}

	turn := orch.Respond(context.Background(), Request{ProjectID: "p1", Message: "refund policy?"})
	if len(turn.Context) != 2 {
		t.Fatalf("context not surfaced, got %v", turn.Context)
	}
	system := model.calls[0].messages[0].Content
	if !strings.Contains(system, "- refund window is 30 days\n- refunds need the order id") {
		t.Fatalf("system prompt missing context block:\n%s", system)
	}
	if !strings.HasPrefix(system, persona.BuildSystemPrompt(persona.Config{})) {
		t.Fatalf("context must follow the persona prompt")
	}
}

func TestRespondStreamForwardsDeltas(t *testing.T) {
	model := &scriptedModel{streamText: "Hel|lo|!"}
	orch, sessions := newTestOrchestrator(t, model, tools.NewMemoryStore())

	var deltas []string
	turn := orch.RespondStream(context.Background(), Request{ProjectID: "p1", SessionID: "s1", Message: "hi"}, func(d string) {
		deltas = append(deltas, d)
	})
	if turn.Reply != "Hello!" {
		t.Fatalf("reply = %q", turn.Reply)
	}
	if len(deltas) != 3 || deltas[0] != "Hel" || deltas[2] != "!" {
		t.Fatalf("unexpected deltas %v", deltas)
	}
	history := sessions.History(context.Background(), "p1", "s1")
	if len(history) != 2 || history[1].Content != "Hello!" {
		t.Fatalf("streamed turn must persist the full reply: %v", history)
	}
}

func TestRespondStreamBuffersWhenProjectHasTools(t *testing.T) {
	store := tools.NewMemoryStore()
	if _, err := store.CreateAction(context.Background(), tools.Action{
		ProjectID: "p1", Name: "noop_tool", Description: "noop", Type: tools.ActionAPI,
		API: &tools.APIConfig{URL: "https://unused.example.com"},
	}); err != nil {
		t.Fatalf("CreateAction: %v", err)
	}
	model := &scriptedModel{results: []llm.Result{{Text: "buffered reply"}}}
	orch, _ := newTestOrchestrator(t, model, store)

	var deltas []string
	turn := orch.RespondStream(context.Background(), Request{ProjectID: "p1", Message: "hi"}, func(d string) {
		deltas = append(deltas, d)
	})
	if turn.Reply != "buffered reply" {
		t.Fatalf("reply = %q", turn.Reply)
	}
	if len(deltas) != 1 || deltas[0] != "buffered reply" {
		t.Fatalf("expected a single buffered delta, got %v", deltas)
	}
	if model.streamed {
		t.Fatalf("tool-bearing projects must not use the streaming path")
	}
}
