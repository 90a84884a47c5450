// Package server exposes the agent over HTTP and WebSocket using echo.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/chatforge/agentd/config"
	"github.com/chatforge/agentd/internal/agent"
	"github.com/chatforge/agentd/internal/llm"
	"github.com/chatforge/agentd/internal/retrieval"
	"github.com/chatforge/agentd/internal/secrets"
	"github.com/chatforge/agentd/internal/session"
	"github.com/chatforge/agentd/internal/telemetry"
	"github.com/chatforge/agentd/internal/tools"
	"github.com/chatforge/agentd/internal/workflow"
)

// Run wires the full service and blocks serving HTTP.
func Run(cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	// The chat widget embeds on arbitrary customer sites.
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	metrics := telemetry.New()
	if cfg.Telemetry.Enabled {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr(),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
	}
	sessions := session.NewRedisStore(rdb, log.New(log.Writer(), "[SESSION] ", log.LstdFlags))
	states := workflow.NewRedisStateStore(rdb, log.New(log.Writer(), "[WORKFLOW] ", log.LstdFlags))

	// Credential encryption has no generated fallback: a random key would
	// orphan every stored password on restart.
	box, err := secrets.NewBox(cfg.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("security.encryption_key: %w", err)
	}

	var toolStore tools.Store
	if cfg.Storage.Postgres.URL != "" || cfg.Storage.Postgres.Host != "" {
		pg, err := tools.NewPostgresStore(ctx, cfg.Storage.Postgres.DSN())
		if err != nil {
			return fmt.Errorf("postgres connection failed: %w", err)
		}
		toolStore = pg
	} else {
		baseLogger.Printf("postgres not configured; actions and connections are in-memory only")
		toolStore = tools.NewMemoryStore()
	}

	model, err := llm.NewOpenAIClient(cfg.LLM)
	if err != nil {
		return err
	}
	retriever := retrieval.NewClient(cfg.Retrieval, log.New(log.Writer(), "[RETRIEVAL] ", log.LstdFlags))

	exec := tools.NewExecutor(box)
	defer exec.Close()
	invoker := tools.NewInvoker(toolStore, exec, log.New(log.Writer(), "[TOOLS] ", log.LstdFlags)).WithMetrics(metrics)
	orch := agent.New(model, sessions, retriever, tools.NewRegistry(toolStore), invoker, metrics,
		log.New(log.Writer(), "[AGENT] ", log.LstdFlags))
	engine := workflow.NewEngine(model, retriever, metrics, log.New(log.Writer(), "[WORKFLOW] ", log.LstdFlags))

	api := e.Group("/api")
	ch := &ChatHandler{Agent: orch, Sessions: sessions}
	ch.Register(api)
	th := &ToolsHandler{Store: toolStore, Exec: exec, Box: box}
	th.Register(api.Group("/projects"))
	wh := &WorkflowsHandler{States: states, Engine: engine}
	wh.Register(api.Group("/workflows"))

	sock := NewChatSocket(orch, log.New(log.Writer(), "[WS] ", log.LstdFlags))
	e.GET("/ws/chat/:project_id", sock.Serve)

	if addr == "" {
		addr = cfg.General.Listen
		if addr == "" {
			addr = ":8001"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
