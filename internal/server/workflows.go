package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chatforge/agentd/internal/workflow"
)

// WorkflowsHandler executes workflow definitions against per-session
// state. The definition travels with every execute call; only the state
// is persisted server-side.
type WorkflowsHandler struct {
	States workflow.StateStore
	Engine *workflow.Engine
}

func (h *WorkflowsHandler) Register(g *echo.Group) {
	g.POST("/:project_id/execute", h.execute)
	g.POST("/:project_id/reset", h.reset)
}

type executeRequest struct {
	SessionID string              `json:"session_id"`
	Input     string              `json:"user_input"`
	Workflow  workflow.Definition `json:"workflow"`
	// State lets hybrid clients carry their own execution position; when
	// absent the server-side stored state is used.
	State *workflow.State `json:"state,omitempty"`
}

type executeResponse struct {
	Messages   []string        `json:"messages"`
	NextNodeID string          `json:"next_node_id,omitempty"`
	Complete   bool            `json:"is_complete"`
	State      *workflow.State `json:"state"`
}

func (h *WorkflowsHandler) execute(c echo.Context) error {
	var req executeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	graph, err := workflow.Compile(req.Workflow)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	projectID := c.Param("project_id")
	state := req.State
	if state == nil {
		if state, err = h.States.Load(ctx, projectID, req.SessionID); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	state, result := h.Engine.Run(ctx, projectID, graph, state, req.Input)

	// A finished workflow starts over on the next execute.
	if result.Complete {
		err = h.States.Reset(ctx, projectID, req.SessionID)
	} else {
		err = h.States.Save(ctx, projectID, req.SessionID, state)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, executeResponse{
		Messages:   result.Messages,
		NextNodeID: result.NextNodeID,
		Complete:   result.Complete,
		State:      state,
	})
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

func (h *WorkflowsHandler) reset(c echo.Context) error {
	var req resetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	if err := h.States.Reset(c.Request().Context(), c.Param("project_id"), req.SessionID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
