package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatforge/agentd/internal/secrets"
	"github.com/chatforge/agentd/internal/tools"
)

// ToolsHandler exposes the admin surface for actions and connections.
type ToolsHandler struct {
	Store tools.Store
	Exec  *tools.Executor
	Box   *secrets.Box
}

func (h *ToolsHandler) Register(g *echo.Group) {
	g.GET("/:project_id/actions", h.listActions)
	g.POST("/:project_id/actions", h.createAction)
	g.GET("/:project_id/connections", h.listConnections)
	g.POST("/:project_id/connections", h.createConnection)
	g.POST("/:project_id/connections/:connection_id/test", h.testConnection)
}

func (h *ToolsHandler) listActions(c echo.Context) error {
	actions, err := h.Store.ListActions(c.Request().Context(), c.Param("project_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, actions)
}

func (h *ToolsHandler) createAction(c echo.Context) error {
	var action tools.Action
	if err := c.Bind(&action); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	action.ProjectID = c.Param("project_id")
	saved, err := h.Store.CreateAction(c.Request().Context(), action)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, saved)
}

// connectionRequest carries the plaintext password exactly once, at
// creation. It is encrypted before it reaches the store and never leaves
// the service again.
type connectionRequest struct {
	Name     string `json:"name"`
	Driver   string `json:"type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

func (h *ToolsHandler) listConnections(c echo.Context) error {
	conns, err := h.Store.ListConnections(c.Request().Context(), c.Param("project_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, conns)
}

func (h *ToolsHandler) createConnection(c echo.Context) error {
	var req connectionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" || req.Database == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and database are required")
	}

	encrypted, err := h.Box.Encrypt(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	saved, err := h.Store.CreateConnection(c.Request().Context(), tools.Connection{
		ProjectID:         c.Param("project_id"),
		Driver:            req.Driver,
		Name:              req.Name,
		Host:              req.Host,
		Port:              req.Port,
		Username:          req.Username,
		EncryptedPassword: encrypted,
		Database:          req.Database,
		SSLMode:           req.SSLMode,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, saved)
}

func (h *ToolsHandler) testConnection(c echo.Context) error {
	ctx := c.Request().Context()
	conn, err := h.Store.GetConnection(ctx, c.Param("project_id"), c.Param("connection_id"))
	if err != nil {
		if errors.Is(err, tools.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "connection not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Exec.Ping(ctx, conn); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
