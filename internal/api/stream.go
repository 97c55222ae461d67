package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"map-annotator/internal/router"
	"map-annotator/internal/supervisor"
)

const streamWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamMessage is every frame the server writes on /v1/stream.
type StreamMessage struct {
	Type     string               `json:"type"`
	Names    []string             `json:"names,omitempty"`
	Feedback *supervisor.Feedback `json:"feedback,omitempty"`
	Outcome  *supervisor.Outcome  `json:"outcome,omitempty"`
	Command  *router.Command      `json:"command,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// handleStream pushes name lists, goal feedback and outcomes to the client
// and accepts {command, name} frames as command ingress.
func (s *Server) handleStream(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()
	s.logger.Info("stream client connected", "remote", c.Request.RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	names, unsubNames := s.Names.Subscribe()
	defer unsubNames()
	feedback, unsubFeedback := s.Goals.Subscribe()
	defer unsubFeedback()
	outcomes, unsubOutcomes := s.Goals.SubscribeOutcomes()
	defer unsubOutcomes()

	replies := make(chan StreamMessage, 8)
	go s.readCommands(ctx, cancel, ws, replies)

	for {
		var msg StreamMessage
		select {
		case <-ctx.Done():
			s.logger.Info("stream client disconnected", "remote", c.Request.RemoteAddr)
			return
		case <-s.done:
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(streamWriteWait))
			return
		case n, ok := <-names:
			if !ok {
				return
			}
			msg = StreamMessage{Type: "names", Names: n}
		case fb, ok := <-feedback:
			if !ok {
				return
			}
			msg = StreamMessage{Type: "feedback", Feedback: &fb}
		case out, ok := <-outcomes:
			if !ok {
				return
			}
			msg = StreamMessage{Type: "outcome", Outcome: &out}
		case msg = <-replies:
		}

		_ = ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := ws.WriteJSON(msg); err != nil {
			s.logger.Warn("failed to write stream message", "error", err)
			return
		}
	}
}

func (s *Server) readCommands(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, replies chan<- StreamMessage) {
	defer cancel()
	for {
		var req CommandRequest
		if err := ws.ReadJSON(&req); err != nil {
			return
		}

		reply := s.streamCommand(ctx, req)
		select {
		case replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) streamCommand(ctx context.Context, req CommandRequest) StreamMessage {
	kind, err := router.ParseKind(req.Command)
	if err != nil {
		s.logger.Warn("ignoring unknown stream command", "command", req.Command, "name", req.Name)
		return StreamMessage{Type: "error", Error: err.Error()}
	}
	if req.Name == "" {
		return StreamMessage{Type: "error", Error: router.ErrEmptyName.Error()}
	}

	cmd := router.Command{Kind: kind, Name: req.Name}
	select {
	case s.Commands <- cmd:
		return StreamMessage{Type: "ack", Command: &cmd}
	case <-ctx.Done():
		return StreamMessage{Type: "error", Error: ctx.Err().Error()}
	case <-s.done:
		return StreamMessage{Type: "error", Error: "shutting down"}
	}
}
