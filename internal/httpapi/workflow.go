package httpapi

import (
	"net/http"

	"protocolo-municipal/internal/workflow"

	"github.com/gin-gonic/gin"
)

// OpenWorkflow starts an approval workflow on a record.
func (h Handlers) OpenWorkflow(c *gin.Context) {
	recordID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in workflow.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid json")
		return
	}
	ctx := c.Request.Context()
	id, err := h.Workflow.Create(ctx, recordID, in)
	if err != nil {
		writeError(c, err)
		return
	}
	w, err := h.Workflow.Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h Handlers) GetWorkflow(c *gin.Context) {
	id, ok := paramID(c, "wid")
	if !ok {
		return
	}
	w, err := h.Workflow.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

type responseRequest struct {
	Observacoes string `json:"observacoes"`
	Motivo      string `json:"motivo"`
}

// Approve records the current user's approval.
func (h Handlers) Approve(c *gin.Context) {
	id, ok := paramID(c, "wid")
	if !ok {
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req responseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid json")
			return
		}
	}
	w, err := h.Workflow.Approve(c.Request.Context(), id, uid, req.Observacoes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// Reject records the current user's rejection. A motivo is mandatory.
func (h Handlers) Reject(c *gin.Context) {
	id, ok := paramID(c, "wid")
	if !ok {
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req responseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	w, err := h.Workflow.Reject(c.Request.Context(), id, uid, req.Motivo)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h Handlers) CancelWorkflow(c *gin.Context) {
	id, ok := paramID(c, "wid")
	if !ok {
		return
	}
	var req responseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid json")
			return
		}
	}
	w, err := h.Workflow.Cancel(c.Request.Context(), id, req.Motivo)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// PendingApprovals lists what awaits the current user.
func (h Handlers) PendingApprovals(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.Workflow.PendingApprovals(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
