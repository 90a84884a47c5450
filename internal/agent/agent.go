// Package agent turns one user message into one assistant reply. It owns
// the conversation assembly (persona prompt, retrieved context, history
// window) and the single tool round against the model.
package agent

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/chatforge/agentd/internal/llm"
	"github.com/chatforge/agentd/internal/persona"
	"github.com/chatforge/agentd/internal/retrieval"
	"github.com/chatforge/agentd/internal/session"
	"github.com/chatforge/agentd/internal/telemetry"
	"github.com/chatforge/agentd/internal/tools"
)

// historyWindow is how many stored messages travel to the model. The
// store keeps up to session.MaxHistory at rest; the model sees the tail.
const historyWindow = 10

// fallbackReply is the user-facing text for any model failure.
const fallbackReply = "I apologize, but I'm having trouble processing your request right now."

// Request is one chat turn. An empty SessionID makes the turn stateless:
// no history is read and nothing is persisted.
type Request struct {
	ProjectID string
	SessionID string
	Message   string
	Persona   persona.Config
}

// Turn is the outcome of one chat turn: the assistant reply and the
// knowledge-base context that informed it.
type Turn struct {
	Reply   string
	Context []retrieval.Chunk
}

// Orchestrator wires the model, session store, retriever and tool layer
// into the chat turn state machine.
type Orchestrator struct {
	model     llm.Client
	sessions  session.Store
	retriever retrieval.Retriever
	registry  *tools.Registry
	invoker   *tools.Invoker
	metrics   *telemetry.Metrics
	logger    *log.Logger
}

// New builds an orchestrator. retriever and metrics may be nil.
func New(model llm.Client, sessions session.Store, retriever retrieval.Retriever, registry *tools.Registry, invoker *tools.Invoker, metrics *telemetry.Metrics, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[AGENT] ", log.LstdFlags)
	}
	return &Orchestrator{
		model:     model,
		sessions:  sessions,
		retriever: retriever,
		registry:  registry,
		invoker:   invoker,
		metrics:   metrics,
		logger:    logger,
	}
}

// Respond runs one chat turn. It never returns an error: every failure
// surfaces as reply text, and the turn is persisted either way so the
// conversation stays consistent.
func (o *Orchestrator) Respond(ctx context.Context, req Request) Turn {
	messages, chunks := o.assemble(ctx, req)
	toolDefs := o.projectTools(ctx, req.ProjectID)

	reply, err := o.converse(ctx, req.ProjectID, messages, toolDefs)
	if err != nil {
		o.logger.Printf("chat turn failed for %s/%s: %v", req.ProjectID, req.SessionID, err)
		reply = fallbackReply
	}
	o.metrics.CountChatTurn(err)

	o.persist(ctx, req, reply)
	return Turn{Reply: reply, Context: chunks}
}

// RespondStream runs one chat turn, forwarding text deltas as they
// arrive. When the project has tools configured the turn cannot stream
// (tool rounds need the complete first response), so the reply is
// computed buffered and delivered as a single delta.
func (o *Orchestrator) RespondStream(ctx context.Context, req Request, onDelta func(string)) Turn {
	toolDefs := o.projectTools(ctx, req.ProjectID)
	if len(toolDefs) > 0 {
		turn := o.Respond(ctx, req)
		onDelta(turn.Reply)
		return turn
	}

	messages, chunks := o.assemble(ctx, req)
	start := time.Now()
	reply, err := o.model.StreamChat(ctx, messages, onDelta)
	o.metrics.ObserveModelCall(start, err)
	if err != nil {
		o.logger.Printf("stream turn failed for %s/%s: %v", req.ProjectID, req.SessionID, err)
		reply = fallbackReply
		onDelta(reply)
	}
	o.metrics.CountChatTurn(err)

	o.persist(ctx, req, reply)
	return Turn{Reply: reply, Context: chunks}
}

// converse is the model exchange: one completion call, at most one tool
// round, then one closing call without tools.
func (o *Orchestrator) converse(ctx context.Context, projectID string, messages []llm.Message, toolDefs []llm.Tool) (string, error) {
	start := time.Now()
	result, err := o.model.Chat(ctx, messages, toolDefs)
	o.metrics.ObserveModelCall(start, err)
	if err != nil {
		return "", err
	}
	if !result.HasToolCalls() {
		return result.Text, nil
	}

	// Tool results only make sense after the assistant message that
	// requested them. Calls run sequentially in the model's order.
	messages = append(messages, result.AssistantMessage())
	for _, call := range result.ToolCalls {
		text := o.invoker.Execute(ctx, projectID, call)
		messages = append(messages, llm.Message{
			Role:       llm.RoleTool,
			Content:    text,
			Name:       call.Function.Name,
			ToolCallID: call.ID,
		})
	}

	start = time.Now()
	final, err := o.model.Chat(ctx, messages, nil)
	o.metrics.ObserveModelCall(start, err)
	if err != nil {
		return "", err
	}
	return final.Text, nil
}

// assemble builds the model message sequence: persona system prompt with
// retrieved context, the trailing history window, then the user message.
// Also returns the chunks used, for the response's context_used field.
func (o *Orchestrator) assemble(ctx context.Context, req Request) ([]llm.Message, []retrieval.Chunk) {
	prompt := persona.BuildSystemPrompt(req.Persona)
	var chunks []retrieval.Chunk
	if o.retriever != nil {
		chunks = o.retriever.Query(ctx, req.Message, req.ProjectID, 0)
	}
	if block := contextBlock(chunks); block != "" {
		prompt += block
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: prompt}}
	if req.SessionID != "" {
		history := o.sessions.History(ctx, req.ProjectID, req.SessionID)
		if len(history) > historyWindow {
			history = history[len(history)-historyWindow:]
		}
		for _, m := range history {
			messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
		}
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message}), chunks
}

// contextBlock renders retrieved chunks into the system prompt suffix.
func contextBlock(chunks []retrieval.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nUse the following context to answer when relevant:\n")
	for _, chunk := range chunks {
		b.WriteString("- ")
		b.WriteString(chunk.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (o *Orchestrator) projectTools(ctx context.Context, projectID string) []llm.Tool {
	if o.registry == nil {
		return nil
	}
	defs, err := o.registry.ModelTools(ctx, projectID)
	if err != nil {
		// A broken action store should not take chat down entirely.
		o.logger.Printf("tool lookup failed for project %s: %v", projectID, err)
		return nil
	}
	return defs
}

func (o *Orchestrator) persist(ctx context.Context, req Request, reply string) {
	if req.SessionID == "" {
		return
	}
	o.sessions.Append(ctx, req.ProjectID, req.SessionID, llm.RoleUser, req.Message)
	o.sessions.Append(ctx, req.ProjectID, req.SessionID, llm.RoleAssistant, reply)
}
