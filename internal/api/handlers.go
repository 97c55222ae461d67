package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"map-annotator/internal/markers"
	"map-annotator/internal/pose"
	"map-annotator/internal/registry"
	"map-annotator/internal/router"
	"map-annotator/internal/supervisor"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type CommandRequest struct {
	Command string `json:"command" binding:"required"`
	Name    string `json:"name" binding:"required"`
}

type GoalRequest struct {
	Name string `json:"name" binding:"required"`
}

type CurrentGoalResponse struct {
	Active bool                 `json:"active"`
	State  supervisor.State     `json:"state"`
	Goal   *supervisor.Feedback `json:"goal,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListPoses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"frame": pose.Frame, "poses": s.Poses.NamedPoses()})
}

func (s *Server) handleGetPose(c *gin.Context) {
	name := c.Param("name")
	p, err := s.Poses.Lookup(name)
	if errors.Is(err, registry.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no pose named " + name})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, pose.NamedPose{Name: name, Pose: p})
}

// handleMovePose drags the named marker; the router picks up the resulting
// pose update.
func (s *Server) handleMovePose(c *gin.Context) {
	var p pose.Pose
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	name := c.Param("name")
	err := s.Markers.Move(c.Request.Context(), name, p)
	switch {
	case errors.Is(err, markers.ErrUnknownMarker):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no marker named " + name})
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusAccepted, pose.NamedPose{Name: name, Pose: p})
	}
}

func (s *Server) handleCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	kind, err := router.ParseKind(req.Command)
	if err != nil {
		s.logger.Warn("ignoring unknown command", "command", req.Command, "name", req.Name)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	cmd := router.Command{Kind: kind, Name: req.Name}
	select {
	case s.Commands <- cmd:
		c.JSON(http.StatusAccepted, cmd)
	case <-c.Request.Context().Done():
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: c.Request.Context().Err().Error()})
	case <-s.done:
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "shutting down"})
	}
}

// handleSubmitGoal blocks until the goal reaches an outcome. A client that
// disconnects cancels its goal.
func (s *Server) handleSubmitGoal(c *gin.Context) {
	var req GoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	out, err := s.Goals.Submit(c.Request.Context(), supervisor.GoalRequest{Name: req.Name})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCurrentGoal(c *gin.Context) {
	snap, err := s.Goals.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, CurrentGoalResponse{Active: snap.Active(), State: snap.State, Goal: snap.Goal})
}

func (s *Server) handleCancelGoal(c *gin.Context) {
	if err := s.Goals.Cancel(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}
