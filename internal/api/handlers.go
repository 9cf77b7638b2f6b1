// internal/api/handlers.go
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medtrainlab/casesim/internal/models"
	"github.com/medtrainlab/casesim/internal/pipeline"
	"github.com/medtrainlab/casesim/internal/session"
)

// IndexRebuilder re-indexes a case's semantic documents.
type IndexRebuilder interface {
	Rebuild(ctx context.Context, scenario *models.ScenarioDefinition) error
}

// Handler wires the HTTP surface to the session manager.
type Handler struct {
	Sessions  *session.Manager
	Rebuilder IndexRebuilder
	WebSocket *WebSocketHandler
	Response  *ResponseHelper
}

// NewHandler creates the API handler. rebuilder may be nil when the
// deployment serves a pre-built index.
func NewHandler(sessions *session.Manager, rebuilder IndexRebuilder) *Handler {
	h := &Handler{
		Sessions:  sessions,
		Rebuilder: rebuilder,
		Response:  NewResponseHelper(),
	}
	h.WebSocket = NewWebSocketHandler(sessions)
	return h
}

// CreateSessionRequest starts a new scenario run.
type CreateSessionRequest struct {
	CaseID     string `json:"case_id" binding:"required"`
	StartEvent string `json:"start_event"`
}

// CreateSession handles POST /api/sessions.
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "case_id is required")
		return
	}

	sess, err := h.Sessions.Create(c.Request.Context(), req.CaseID, req.StartEvent)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}

	state := sess.State()
	h.Response.Created(c, gin.H{
		"session_id":    sess.ID,
		"case_id":       sess.CaseID,
		"current_event": state.CurrentEvent,
		"max_turns":     state.MaxTurns,
	})
}

// TurnRequest is one learner turn.
type TurnRequest struct {
	UserAction string `json:"user_action"`
	Reset      bool   `json:"reset"`
	StartEvent string `json:"start_event"`
}

// RunTurn handles POST /api/sessions/:id/turns.
func (h *Handler) RunTurn(c *gin.Context) {
	sess, err := h.Sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}

	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid turn payload")
		return
	}

	result, err := sess.RunTurn(c.Request.Context(), pipeline.TurnInput{
		UserAction: req.UserAction,
		Reset:      req.Reset,
		StartEvent: req.StartEvent,
	})
	if err != nil {
		h.Response.FromError(c, err)
		return
	}

	h.Response.Success(c, result)
	h.WebSocket.BroadcastTurn(sess.ID, result)
}

// GetState handles GET /api/sessions/:id.
func (h *Handler) GetState(c *gin.Context) {
	sess, err := h.Sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, sess.State())
}

// GetHistory handles GET /api/sessions/:id/history.
func (h *Handler) GetHistory(c *gin.Context) {
	sess, err := h.Sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}

	logs, err := h.Sessions.History(c.Request.Context(), sess.ID)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, logs)
}

// EndSession handles DELETE /api/sessions/:id.
func (h *Handler) EndSession(c *gin.Context) {
	sess, err := h.Sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}

	h.Sessions.End(sess.ID)
	h.WebSocket.CloseSession(sess.ID)
	h.Response.Success(c, gin.H{"session_id": sess.ID}, "session ended")
}

// RebuildIndexRequest names the case to re-index.
type RebuildIndexRequest struct {
	CaseID string `json:"case_id" binding:"required"`
}

// RebuildIndex handles POST /api/index/rebuild. It re-embeds every semantic
// document of a case, typically after the authoring side changed.
func (h *Handler) RebuildIndex(c *gin.Context) {
	if h.Rebuilder == nil {
		h.Response.Error(c, http.StatusNotImplemented, "NOT_SUPPORTED", "index rebuild is not enabled")
		return
	}

	var req RebuildIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "case_id is required")
		return
	}

	def, err := h.Sessions.Scenario(c.Request.Context(), req.CaseID)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}

	if err := h.Rebuilder.Rebuild(c.Request.Context(), def); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"case_id": req.CaseID}, "index rebuilt")
}

// Health handles GET /api/health.
func (h *Handler) Health(c *gin.Context) {
	h.Response.Success(c, gin.H{"status": "ok"})
}
