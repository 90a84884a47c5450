package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/chatforge/agentd/internal/agent"
	"github.com/chatforge/agentd/internal/persona"
	"github.com/chatforge/agentd/internal/retrieval"
	"github.com/chatforge/agentd/internal/session"
)

// Responder is the chat surface the handlers need from the orchestrator.
type Responder interface {
	Respond(ctx context.Context, req agent.Request) agent.Turn
	RespondStream(ctx context.Context, req agent.Request, onDelta func(string)) agent.Turn
}

// ChatHandler serves the buffered chat endpoint and session management.
type ChatHandler struct {
	Agent    Responder
	Sessions session.Store
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("/chat", h.chat)
	g.DELETE("/sessions/:project_id/:session_id", h.clearSession)
}

type chatRequest struct {
	ProjectID string         `json:"project_id"`
	SessionID string         `json:"session_id"`
	Query     string         `json:"query"`
	Persona   persona.Config `json:"persona"`
}

type chatResponse struct {
	Response    string            `json:"response"`
	ContextUsed []retrieval.Chunk `json:"context_used"`
	SessionID   string            `json:"session_id"`
}

func (h *ChatHandler) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.ProjectID) == "" || strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project_id and query are required")
	}
	// A fresh session id keeps the turn stateful and lets the caller
	// continue the conversation.
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	turn := h.Agent.Respond(c.Request().Context(), agent.Request{
		ProjectID: req.ProjectID,
		SessionID: req.SessionID,
		Message:   req.Query,
		Persona:   req.Persona,
	})
	return c.JSON(http.StatusOK, chatResponse{
		Response:    turn.Reply,
		ContextUsed: turn.Context,
		SessionID:   req.SessionID,
	})
}

func (h *ChatHandler) clearSession(c echo.Context) error {
	projectID := c.Param("project_id")
	sessionID := c.Param("session_id")
	if err := h.Sessions.Clear(c.Request().Context(), projectID, sessionID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
