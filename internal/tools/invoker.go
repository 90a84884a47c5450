package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/chatforge/agentd/internal/llm"
	"github.com/chatforge/agentd/internal/telemetry"
)

// apiTimeout bounds every tool HTTP call.
const apiTimeout = 10 * time.Second

// Invoker executes a single model-requested tool call. Every outcome,
// success or failure, is serialized to text: the result becomes a tool
// message in the conversation and the model decides what to do with it.
// Execute never returns an error to its caller.
type Invoker struct {
	store   Store
	exec    *Executor
	client  *http.Client
	logger  *log.Logger
	metrics *telemetry.Metrics
}

// NewInvoker builds an invoker over the given store and DB executor.
func NewInvoker(store Store, exec *Executor, logger *log.Logger) *Invoker {
	if logger == nil {
		logger = log.New(log.Writer(), "[TOOLS] ", log.LstdFlags)
	}
	return &Invoker{
		store:  store,
		exec:   exec,
		client: &http.Client{Timeout: apiTimeout},
		logger: logger,
	}
}

// WithMetrics attaches the telemetry collectors. Safe to skip in tests.
func (inv *Invoker) WithMetrics(m *telemetry.Metrics) *Invoker {
	inv.metrics = m
	return inv
}

// Execute resolves the named action within the project and runs it.
func (inv *Invoker) Execute(ctx context.Context, projectID string, call llm.ToolCall) string {
	name := call.Function.Name

	actions, err := inv.store.ListActions(ctx, projectID)
	if err != nil {
		inv.logger.Printf("action lookup failed for %s/%s: %v", projectID, name, err)
		return fmt.Sprintf("Error: tool %s not found for project %s.", name, projectID)
	}
	var action *Action
	for i := range actions {
		if actions[i].Name == name {
			action = &actions[i]
			break
		}
	}
	if action == nil {
		return fmt.Sprintf("Error: tool %s not found for project %s.", name, projectID)
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(orEmptyObject(call.Function.Arguments)), &args); err != nil {
		return fmt.Sprintf("Error: invalid JSON arguments for tool %s", name)
	}

	inv.logger.Printf("executing action %s (%s) for project %s", name, action.Type, projectID)
	inv.metrics.CountTool(string(action.Type))

	switch action.Type {
	case ActionDatabase:
		return inv.executeDatabase(ctx, projectID, action, args)
	case ActionAPI:
		return inv.executeAPI(ctx, action, args)
	default:
		return "Error: unknown action type or configuration."
	}
}

func (inv *Invoker) executeDatabase(ctx context.Context, projectID string, action *Action, args map[string]any) string {
	conn, err := inv.store.GetConnection(ctx, projectID, action.ConnectionID)
	if err != nil {
		return fmt.Sprintf("Error executing tool: connection %s not found", action.ConnectionID)
	}
	result, err := inv.exec.Run(ctx, conn, action.SQLQuery, args)
	if err != nil {
		return fmt.Sprintf("Error executing tool: %v", err)
	}
	return toJSONText(result)
}

func (inv *Invoker) executeAPI(ctx context.Context, action *Action, args map[string]any) string {
	cfg := action.API
	reqURL := substituteURL(cfg.URL, args)

	var body io.Reader
	if len(cfg.Body) > 0 {
		payload := substituteBody(cfg.Body, args)
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Sprintf("Error executing tool: encode body: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Sprintf("Error executing tool: %v", err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := inv.client.Do(req)
	if err != nil {
		return fmt.Sprintf("Error executing tool: %v", err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Sprintf("Error executing tool: read response: %v", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Sprintf("API Error %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}
	return string(text)
}

// substituteURL replaces every :name placeholder present in args with the
// stringified argument value. Longer names are substituted first so that
// :id never clobbers the front of :idx.
func substituteURL(rawURL string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	for _, key := range keys {
		rawURL = strings.ReplaceAll(rawURL, ":"+key, stringify(args[key]))
	}
	return rawURL
}

// substituteBody copies the template, replacing top-level string values
// of the exact form ":name" with the corresponding argument.
func substituteBody(template map[string]any, args map[string]any) map[string]any {
	out := make(map[string]any, len(template))
	for k, v := range template {
		if s, ok := v.(string); ok && strings.HasPrefix(s, ":") {
			if arg, present := args[s[1:]]; present {
				out[k] = arg
				continue
			}
		}
		out[k] = v
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; render integers without a dot.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toJSONText(v any) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("Error executing tool: encode result: %v", err)
	}
	return string(encoded)
}

func orEmptyObject(s string) string {
	if strings.TrimSpace(s) == "" {
		return "{}"
	}
	return s
}
