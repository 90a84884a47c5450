package workflow

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/chatforge/agentd/internal/llm"
	"github.com/chatforge/agentd/internal/persona"
	"github.com/chatforge/agentd/internal/retrieval"
	"github.com/chatforge/agentd/internal/telemetry"
)

// defaultHandoffMessage is shown when a handoff node has no message.
const defaultHandoffMessage = "Transferring to human agent..."

// Result is the outcome of executing one node: the user-visible messages
// it produced, the id of the node the state now points at (empty when the
// workflow ended), and whether the workflow reached its end.
type Result struct {
	Messages   []string `json:"messages"`
	NextNodeID string   `json:"next_node_id,omitempty"`
	Complete   bool     `json:"is_complete"`
}

// Engine steps a compiled graph. The model and retriever are optional;
// without a model, agent nodes echo the input.
type Engine struct {
	model     llm.Client
	retriever retrieval.Retriever
	client    *http.Client
	metrics   *telemetry.Metrics
	logger    *log.Logger
}

// NewEngine builds an engine. All dependencies may be nil except logger,
// which defaults when nil.
func NewEngine(model llm.Client, retriever retrieval.Retriever, metrics *telemetry.Metrics, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[WORKFLOW] ", log.LstdFlags)
	}
	return &Engine{
		model:     model,
		retriever: retriever,
		client:    &http.Client{Timeout: 10 * time.Second},
		metrics:   metrics,
		logger:    logger,
	}
}

type stepResult struct {
	messages []string
	terminal bool // workflow ends here regardless of edges
}

// Run executes exactly one node per call. A nil state starts the graph:
// the start node is recorded and immediately advanced past, so the first
// call executes the node the start edge points at. After the node runs,
// the state is advanced to the node's first outgoing edge target and
// control returns to the caller; node types the engine does not execute
// (message, condition, user input) pass through silently so the caller
// can resolve them between calls. The engine keeps no state of its own
// beyond the State it is given and returns.
func (e *Engine) Run(ctx context.Context, projectID string, g *Graph, state *State, userInput string) (*State, Result) {
	if state == nil {
		start := g.Start()
		state = &State{
			CurrentNodeID:    start.ID,
			Variables:        g.SeedVariables(),
			ExecutionHistory: []string{start.ID},
		}
		next := g.NextID(start.ID)
		if next == "" {
			return state, Result{Complete: true}
		}
		state.CurrentNodeID = next
		state.ExecutionHistory = append(state.ExecutionHistory, next)
	}
	state.UserInput = userInput

	node, ok := g.Node(state.CurrentNodeID)
	if !ok {
		return state, Result{Messages: []string{"Error: Invalid workflow state"}, Complete: true}
	}

	step := e.executeNode(ctx, projectID, node, state, userInput)
	e.metrics.CountNode(node.Type)
	if step.terminal {
		return state, Result{Messages: step.messages, Complete: true}
	}

	next := g.NextID(node.ID)
	if next == "" {
		return state, Result{Messages: step.messages, Complete: true}
	}
	state.CurrentNodeID = next
	state.ExecutionHistory = append(state.ExecutionHistory, next)
	return state, Result{Messages: step.messages, NextNodeID: next}
}

func (e *Engine) executeNode(ctx context.Context, projectID string, node Node, state *State, userInput string) stepResult {
	switch node.Type {
	case NodeAIAgent:
		return e.executeAgent(ctx, projectID, node, userInput)
	case NodeAPICall:
		return e.executeAPICall(ctx, node, state)
	case NodeHandoff:
		message := dataString(node, "message", defaultHandoffMessage)
		return stepResult{messages: []string{message}, terminal: true}
	default:
		// start and caller-resolved node types pass through silently
		return stepResult{}
	}
}

func (e *Engine) executeAgent(ctx context.Context, projectID string, node Node, userInput string) stepResult {
	prompt := dataString(node, "prompt", "")
	if prompt == "" {
		prompt = userInput
	}

	if e.model == nil {
		return stepResult{messages: []string{"AI Agent: " + prompt}}
	}

	system := persona.BuildSystemPrompt(persona.Config{})
	if dataBool(node, "useKnowledgeBase", true) && e.retriever != nil {
		chunks := e.retriever.Query(ctx, userInput, projectID, 0)
		if len(chunks) > 0 {
			var b strings.Builder
			b.WriteString("\n\nUse the following context to answer when relevant:\n")
			for _, chunk := range chunks {
				b.WriteString("- ")
				b.WriteString(chunk.Content)
				b.WriteString("\n")
			}
			system += strings.TrimRight(b.String(), "\n")
		}
	}

	start := time.Now()
	result, err := e.model.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: prompt},
	}, nil)
	e.metrics.ObserveModelCall(start, err)
	if err != nil {
		e.logger.Printf("agent node %s failed: %v", node.ID, err)
		return stepResult{messages: []string{fmt.Sprintf("Error: %v", err)}, terminal: true}
	}
	return stepResult{messages: []string{result.Text}}
}

func (e *Engine) executeAPICall(ctx context.Context, node Node, state *State) stepResult {
	rawURL := dataString(node, "url", "")
	if rawURL == "" {
		return stepResult{messages: []string{"Error: No URL specified for API call"}, terminal: true}
	}
	method := dataString(node, "method", http.MethodGet)
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return stepResult{messages: []string{fmt.Sprintf("API Error: unsupported method: %s", method)}, terminal: true}
	}
	responseVar := dataString(node, "responseVariable", "api_response")

	var body io.Reader
	if payload := dataString(node, "body", ""); payload != "" {
		body = strings.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return stepResult{messages: []string{fmt.Sprintf("API Error: %v", err)}, terminal: true}
	}
	if headers, ok := node.Data["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return stepResult{messages: []string{fmt.Sprintf("API Error: %v", err)}, terminal: true}
	}
	defer resp.Body.Close()
	text, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return stepResult{messages: []string{fmt.Sprintf("API Error: %v", err)}, terminal: true}
	}

	if state.Variables == nil {
		state.Variables = make(map[string]any)
	}
	state.Variables[responseVar] = string(text)
	// API calls are silent; the response only feeds later nodes.
	return stepResult{}
}

func dataString(node Node, key, fallback string) string {
	if v, ok := node.Data[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func dataBool(node Node, key string, fallback bool) bool {
	if v, ok := node.Data[key].(bool); ok {
		return v
	}
	return fallback
}
