package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chatforge/agentd/internal/agent"
	"github.com/chatforge/agentd/internal/persona"
	"github.com/chatforge/agentd/internal/retrieval"
)

// ChatSocket streams chat turns over a WebSocket. One connection carries
// one conversation; turns run strictly in order on the read loop.
type ChatSocket struct {
	Agent    Responder
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// NewChatSocket builds the socket handler. Origins are not restricted:
// the widget embeds on arbitrary customer sites.
func NewChatSocket(agent Responder, logger *log.Logger) *ChatSocket {
	if logger == nil {
		logger = log.New(log.Writer(), "[WS] ", log.LstdFlags)
	}
	return &ChatSocket{
		Agent:  agent,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type wsRequest struct {
	Query     string         `json:"query"`
	SessionID string         `json:"session_id"`
	Persona   persona.Config `json:"persona"`
}

type wsFrame struct {
	Type         string            `json:"type"`
	Content      string            `json:"content,omitempty"`
	FullResponse string            `json:"full_response,omitempty"`
	ContextUsed  []retrieval.Chunk `json:"context_used,omitempty"`
	Message      string            `json:"message,omitempty"`
}

// Serve upgrades the connection and loops over incoming turns until the
// client disconnects.
func (s *ChatSocket) Serve(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	projectID := c.Param("project_id")
	ctx := c.Request().Context()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("read failed for project %s: %v", projectID, err)
			}
			return nil
		}

		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.write(conn, wsFrame{Type: "error", Message: "invalid message"})
			continue
		}
		if req.Query == "" {
			continue
		}

		turn := s.Agent.RespondStream(ctx, agent.Request{
			ProjectID: projectID,
			SessionID: req.SessionID,
			Message:   req.Query,
			Persona:   req.Persona,
		}, func(delta string) {
			s.write(conn, wsFrame{Type: "chunk", Content: delta})
		})
		s.write(conn, wsFrame{Type: "complete", FullResponse: turn.Reply, ContextUsed: turn.Context})
	}
}

func (s *ChatSocket) write(conn *websocket.Conn, frame wsFrame) {
	if err := conn.WriteJSON(frame); err != nil {
		s.logger.Printf("write failed: %v", err)
	}
}
