package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresStore persists actions and connections in Postgres. Insertion
// order is preserved through created_at ordering.
type PostgresStore struct {
	DB *sql.DB
}

// NewPostgresStore opens the admin database.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{DB: db}, nil
}

func (s *PostgresStore) CreateAction(ctx context.Context, action Action) (Action, error) {
	if err := action.Validate(); err != nil {
		return Action{}, err
	}
	action.ID = uuid.NewString()
	action.CreatedAt = time.Now().UTC()

	params, err := json.Marshal(action.Parameters)
	if err != nil {
		return Action{}, fmt.Errorf("encode parameters: %w", err)
	}
	var apiCfg []byte
	if action.API != nil {
		if apiCfg, err = json.Marshal(action.API); err != nil {
			return Action{}, fmt.Errorf("encode api config: %w", err)
		}
	}

	_, err = s.DB.ExecContext(ctx, `
        INSERT INTO agent_actions (id, project_id, connection_id, name, description, action_type, sql_query, api_config, parameters, created_at)
        VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), $8, $9, $10)`,
		action.ID, action.ProjectID, action.ConnectionID, action.Name, action.Description,
		string(action.Type), action.SQLQuery, nullableJSON(apiCfg), params, action.CreatedAt)
	if err != nil {
		return Action{}, fmt.Errorf("insert action: %w", err)
	}
	return action, nil
}

func (s *PostgresStore) ListActions(ctx context.Context, projectID string) ([]Action, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT id, project_id, COALESCE(connection_id, ''), name, description, action_type,
               COALESCE(sql_query, ''), api_config, parameters, created_at
        FROM agent_actions WHERE project_id = $1 ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var out []Action
	for rows.Next() {
		var a Action
		var actionType string
		var apiCfg, params []byte
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.ConnectionID, &a.Name, &a.Description,
			&actionType, &a.SQLQuery, &apiCfg, &params, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.Type = ActionType(actionType)
		if len(apiCfg) > 0 {
			var cfg APIConfig
			if err := json.Unmarshal(apiCfg, &cfg); err != nil {
				return nil, fmt.Errorf("decode api config for %s: %w", a.Name, err)
			}
			a.API = &cfg
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &a.Parameters); err != nil {
				return nil, fmt.Errorf("decode parameters for %s: %w", a.Name, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateConnection(ctx context.Context, conn Connection) (Connection, error) {
	conn.ID = uuid.NewString()
	conn.CreatedAt = time.Now().UTC()
	_, err := s.DB.ExecContext(ctx, `
        INSERT INTO db_connections (id, project_id, driver, name, host, port, username, encrypted_password, database_name, ssl_mode, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		conn.ID, conn.ProjectID, conn.Driver, conn.Name, conn.Host, conn.Port,
		conn.Username, conn.EncryptedPassword, conn.Database, conn.SSLMode, conn.CreatedAt)
	if err != nil {
		return Connection{}, fmt.Errorf("insert connection: %w", err)
	}
	return conn, nil
}

func (s *PostgresStore) ListConnections(ctx context.Context, projectID string) ([]Connection, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT id, project_id, driver, name, host, port, username, encrypted_password, database_name, COALESCE(ssl_mode, ''), created_at
        FROM db_connections WHERE project_id = $1 ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var out []Connection
	for rows.Next() {
		var c Connection
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Driver, &c.Name, &c.Host, &c.Port,
			&c.Username, &c.EncryptedPassword, &c.Database, &c.SSLMode, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetConnection(ctx context.Context, projectID, connectionID string) (Connection, error) {
	var c Connection
	err := s.DB.QueryRowContext(ctx, `
        SELECT id, project_id, driver, name, host, port, username, encrypted_password, database_name, COALESCE(ssl_mode, ''), created_at
        FROM db_connections WHERE project_id = $1 AND id = $2`, projectID, connectionID).
		Scan(&c.ID, &c.ProjectID, &c.Driver, &c.Name, &c.Host, &c.Port,
			&c.Username, &c.EncryptedPassword, &c.Database, &c.SSLMode, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Connection{}, ErrNotFound
	}
	if err != nil {
		return Connection{}, fmt.Errorf("get connection: %w", err)
	}
	return c, nil
}

// nullableJSON maps empty JSON to NULL for optional jsonb columns.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
