package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	syncengine "github.com/systemizing-solutions/shuttle-bridge/internal/sync"
	"github.com/systemizing-solutions/shuttle-bridge/internal/transport"
)

// EngineProvider builds a sync engine bound to the tenant resolved from the
// request context. Engines are per-request; the provider hides whether
// isolation is database-per-tenant or row-level.
type EngineProvider func(ctx context.Context) (*syncengine.Engine, error)

// SyncHandler exposes the replication protocol over HTTP.
type SyncHandler struct {
	Engines EngineProvider
	Logger  *zap.Logger
}

func (h *SyncHandler) Register(r *gin.Engine) {
	g := r.Group("/sync")
	g.GET("/changes", h.changes)
	g.POST("/apply", h.apply)
	g.POST("/ack", h.ack)
}

func (h *SyncHandler) changes(c *gin.Context) {
	engine, err := h.Engines(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, "store unavailable")
		return
	}
	sinceID := int64Query(c, "since_id", 0)
	limit := intQuery(c, "limit", syncengine.DefaultBatchSize)
	exclude := intQueryPtr(c, "exclude_node_id")

	entries, err := engine.ChangesSince(c.Request.Context(), sinceID, limit, exclude)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []transport.ChangeEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"changes": entries})
}

type applyRequest struct {
	Changes []transport.ChangeEntry `json:"changes"`
	// Origin is the pushing node's number; applied entries are tagged with
	// it so they are never served back to that node.
	Origin *int `json:"origin"`
}

func (h *SyncHandler) apply(c *gin.Context) {
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body")
		return
	}
	engine, err := h.Engines(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, "store unavailable")
		return
	}
	if err := engine.ApplyChanges(c.Request.Context(), req.Changes, req.Origin); err != nil {
		Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type ackRequest struct {
	LastSeen int64 `json:"last_seen"`
}

// ack is advisory; nothing is persisted for it server-side.
func (h *SyncHandler) ack(c *gin.Context) {
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body")
		return
	}
	if h.Logger != nil {
		h.Logger.Debug("peer acknowledged changes", zap.Int64("last_seen", req.LastSeen))
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
