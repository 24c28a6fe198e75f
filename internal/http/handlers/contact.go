package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/migralert/migralert-backend/internal/http/response"
	"github.com/migralert/migralert-backend/internal/services"
)

type ContactHandler struct {
	contactService services.ContactService
}

func NewContactHandler(contactService services.ContactService) *ContactHandler {
	return &ContactHandler{contactService: contactService}
}

func (h *ContactHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	contacts, err := h.contactService.List(c.Request.Context(), userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"contacts": contacts})
}

func (h *ContactHandler) Add(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var in services.ContactInput
	if !bindJSON(c, &in) {
		return
	}
	contact, err := h.contactService.Add(c.Request.Context(), userID, in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"contact": contact})
}

func (h *ContactHandler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	contactID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var patch services.ContactPatch
	if !bindJSON(c, &patch) {
		return
	}
	contact, err := h.contactService.Update(c.Request.Context(), userID, contactID, patch)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"contact": contact})
}

func (h *ContactHandler) Remove(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	contactID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.contactService.Remove(c.Request.Context(), userID, contactID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

func (h *ContactHandler) Reorder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		ContactIDs []uuid.UUID `json:"contact_ids"`
	}
	if !bindJSON(c, &req) {
		return
	}
	contacts, err := h.contactService.Reorder(c.Request.Context(), userID, req.ContactIDs)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"contacts": contacts})
}

func (h *ContactHandler) GetAlertConfig(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	cfg, err := h.contactService.GetAlertConfig(c.Request.Context(), userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"alert_config": cfg})
}

func (h *ContactHandler) SetAlertConfig(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		Message       string `json:"message"`
		ShareLocation bool   `json:"share_location"`
	}
	if !bindJSON(c, &req) {
		return
	}
	cfg, err := h.contactService.SetAlertConfig(c.Request.Context(), userID, req.Message, req.ShareLocation)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"alert_config": cfg})
}

func (h *ContactHandler) ListHistory(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	rows, err := h.contactService.ListHistory(c.Request.Context(), userID, limit)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"history": rows})
}

func (h *ContactHandler) ClearHistory(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	n, err := h.contactService.ClearHistory(c.Request.Context(), userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": n})
}
