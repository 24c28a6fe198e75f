package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/migralert/migralert-backend/internal/http/response"
	"github.com/migralert/migralert-backend/internal/services"
)

type AlertHandler struct {
	alertService services.AlertService
}

func NewAlertHandler(alertService services.AlertService) *AlertHandler {
	return &AlertHandler{alertService: alertService}
}

func (h *AlertHandler) Emergency(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var in services.EmergencyAlertInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.alertService.SendEmergencyAlert(c.Request.Context(), userID, in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}

// Test sends to the caller's own phone. The body is optional.
func (h *AlertHandler) Test(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	res, err := h.alertService.SendTestAlert(c.Request.Context(), userID, req.Message)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}
