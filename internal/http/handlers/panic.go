package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/migralert/migralert-backend/internal/http/response"
	"github.com/migralert/migralert-backend/internal/services"
)

type PanicHandler struct {
	panicService services.PanicService
}

func NewPanicHandler(panicService services.PanicService) *PanicHandler {
	return &PanicHandler{panicService: panicService}
}

// Press starts the hold. Progress and the dispatch outcome arrive on the
// user's event stream.
func (h *PanicHandler) Press(c *gin.Context) {
	var in services.PressInput
	if c.Request.ContentLength != 0 && !bindJSON(c, &in) {
		return
	}
	snap, err := h.panicService.Press(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"state": snap})
}

func (h *PanicHandler) Release(c *gin.Context) {
	snap, cancelled, err := h.panicService.Release(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"state": snap, "cancelled": cancelled})
}

func (h *PanicHandler) State(c *gin.Context) {
	snap, err := h.panicService.State(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"state": snap})
}
