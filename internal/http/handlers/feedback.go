package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/migralert/migralert-backend/internal/http/response"
	"github.com/migralert/migralert-backend/internal/services"
)

type FeedbackHandler struct {
	feedbackService services.FeedbackService
}

func NewFeedbackHandler(feedbackService services.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedbackService: feedbackService}
}

func (h *FeedbackHandler) Submit(c *gin.Context) {
	var in services.FeedbackInput
	if !bindJSON(c, &in) {
		return
	}
	ctx := c.Request.Context()
	fb, err := h.feedbackService.Submit(ctx, in, services.ActorFromContext(ctx))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"feedback": fb})
}
