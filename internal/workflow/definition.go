// Package workflow executes node graphs for guided conversations. A
// definition arrives as JSON (nodes, edges, seed variables), is compiled
// into an id-indexed graph once, and then stepped against per-session
// state.
package workflow

import (
	"errors"
	"fmt"
)

// Node types executed by the engine. Unknown types pass through to the
// next node so frontend-only nodes do not break backend execution.
const (
	NodeStart   = "start"
	NodeAIAgent = "ai-agent"
	NodeAPICall = "api-call"
	NodeHandoff = "handoff"
)

// Node is one graph vertex. Data carries the type-specific settings as
// the editor produced them.
type Node struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Edge is a directed transition between two nodes.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Definition is the wire form of a workflow.
type Definition struct {
	Nodes     []Node         `json:"nodes"`
	Edges     []Edge         `json:"edges"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Graph is a compiled definition: nodes indexed by id, one successor per
// node (the first outgoing edge wins, matching editor semantics).
type Graph struct {
	nodes     map[string]Node
	next      map[string]string
	start     Node
	variables map[string]any
}

// ErrNoStart is returned when a definition has no start node.
var ErrNoStart = errors.New("workflow: no start node found")

// Compile validates the definition and indexes it for execution.
func Compile(def Definition) (*Graph, error) {
	g := &Graph{
		nodes:     make(map[string]Node, len(def.Nodes)),
		next:      make(map[string]string, len(def.Edges)),
		variables: def.Variables,
	}
	var haveStart bool
	for _, node := range def.Nodes {
		if node.ID == "" {
			return nil, errors.New("workflow: node without id")
		}
		if _, dup := g.nodes[node.ID]; dup {
			return nil, fmt.Errorf("workflow: duplicate node id %q", node.ID)
		}
		g.nodes[node.ID] = node
		if node.Type == NodeStart {
			if haveStart {
				return nil, errors.New("workflow: multiple start nodes")
			}
			haveStart = true
			g.start = node
		}
	}
	if !haveStart {
		return nil, ErrNoStart
	}
	for _, edge := range def.Edges {
		if _, ok := g.nodes[edge.Source]; !ok {
			return nil, fmt.Errorf("workflow: edge from unknown node %q", edge.Source)
		}
		if _, ok := g.nodes[edge.Target]; !ok {
			return nil, fmt.Errorf("workflow: edge to unknown node %q", edge.Target)
		}
		if _, taken := g.next[edge.Source]; !taken {
			g.next[edge.Source] = edge.Target
		}
	}
	return g, nil
}

// Start returns the entry node.
func (g *Graph) Start() Node { return g.start }

// Node looks up a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// NextID returns the successor of the given node, or "" at a terminal.
func (g *Graph) NextID(id string) string { return g.next[id] }

// SeedVariables returns a copy of the definition's initial variables.
func (g *Graph) SeedVariables() map[string]any {
	out := make(map[string]any, len(g.variables))
	for k, v := range g.variables {
		out[k] = v
	}
	return out
}
