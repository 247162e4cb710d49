package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/systemizing-solutions/shuttle-bridge/internal/registry"
)

// NodeHandler leases node numbers to clients. Leases are global, not
// per-tenant, because a node number identifies a physical writer.
type NodeHandler struct {
	Registry *registry.Service
}

func (h *NodeHandler) Register(r *gin.Engine) {
	r.POST("/node/register", h.register)
}

type registerRequest struct {
	DeviceKey string `json:"device_key"`
}

func (h *NodeHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body")
		return
	}
	if req.DeviceKey == "" || len(req.DeviceKey) > registry.MaxDeviceKeyLen {
		Error(c, http.StatusBadRequest, "invalid device_key")
		return
	}
	nodeID, err := h.Registry.Allocate(c.Request.Context(), req.DeviceKey)
	if err != nil {
		if errors.Is(err, registry.ErrCapacityExhausted) {
			Error(c, http.StatusConflict, err.Error())
			return
		}
		Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"node_id": nodeID})
}
