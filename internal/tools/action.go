// Package tools owns project-scoped agent actions: their definitions,
// their rendering as model-callable tools, and their execution.
package tools

import (
	"fmt"
	"strings"
	"time"
)

// ActionType selects how an action executes.
type ActionType string

const (
	ActionDatabase ActionType = "database"
	ActionAPI      ActionType = "api"
)

// ParameterDef describes one action parameter for the model.
type ParameterDef struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// APIConfig configures an HTTP action. URL and top-level string body
// values may contain :name placeholders substituted from tool arguments.
type APIConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    map[string]any    `json:"body,omitempty"`
}

// Action is a named, project-scoped capability exposed to the model.
// Exactly one of (ConnectionID, SQLQuery) or API is set, per Type.
type Action struct {
	ID           string                  `json:"id"`
	ProjectID    string                  `json:"project_id"`
	ConnectionID string                  `json:"connection_id,omitempty"`
	Name         string                  `json:"name"`
	Description  string                  `json:"description"`
	Type         ActionType              `json:"action_type"`
	SQLQuery     string                  `json:"sql_query,omitempty"`
	API          *APIConfig              `json:"api_config,omitempty"`
	Parameters   map[string]ParameterDef `json:"parameters"`
	CreatedAt    time.Time               `json:"created_at"`
}

// Validate checks the invariants once, at the admin boundary.
func (a Action) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("action name is required")
	}
	switch a.Type {
	case ActionDatabase:
		if a.ConnectionID == "" || strings.TrimSpace(a.SQLQuery) == "" {
			return fmt.Errorf("database action %q requires connection_id and sql_query", a.Name)
		}
	case ActionAPI:
		if a.API == nil || strings.TrimSpace(a.API.URL) == "" {
			return fmt.Errorf("api action %q requires api_config with a url", a.Name)
		}
	default:
		return fmt.Errorf("action %q has unknown type %q", a.Name, a.Type)
	}
	return nil
}

// Connection is a saved database connection config. The password is held
// encrypted and decrypted only at execution time.
type Connection struct {
	ID                string    `json:"id"`
	ProjectID         string    `json:"project_id"`
	Driver            string    `json:"type"` // postgres or sqlite
	Name              string    `json:"name"`
	Host              string    `json:"host"`
	Port              int       `json:"port"`
	Username          string    `json:"username"`
	EncryptedPassword string    `json:"-"`
	Database          string    `json:"database"`
	SSLMode           string    `json:"ssl_mode,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// CacheKey identifies the pooled handle for this connection. Deliberately
// excludes credentials: edits to a saved password do not invalidate a
// cached handle until restart (known limitation).
func (c Connection) CacheKey() string {
	return fmt.Sprintf("%s:%d/%s", c.Host, c.Port, c.Database)
}
