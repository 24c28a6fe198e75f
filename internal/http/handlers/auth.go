package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/migralert/migralert-backend/internal/http/response"
	"github.com/migralert/migralert-backend/internal/services"
)

type AuthHandler struct {
	authService  services.AuthService
	panicService services.PanicService
	cache        *services.SessionCache
}

func NewAuthHandler(authService services.AuthService, panicService services.PanicService, cache *services.SessionCache) *AuthHandler {
	return &AuthHandler{authService: authService, panicService: panicService, cache: cache}
}

func (ah *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
	}
	if !bindJSON(c, &req) {
		return
	}
	user, err := ah.authService.RegisterUser(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"user": user})
}

func (ah *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !bindJSON(c, &req) {
		return
	}
	accessToken, refreshToken, err := ah.authService.LoginUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	ah.respondTokens(c, accessToken, refreshToken)
}

func (ah *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !bindJSON(c, &req) {
		return
	}
	accessToken, refreshToken, err := ah.authService.RefreshUser(c.Request.Context(), req.RefreshToken)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	ah.respondTokens(c, accessToken, refreshToken)
}

// Logout revokes the session and releases its panic trigger and cache.
func (ah *AuthHandler) Logout(c *gin.Context) {
	sessionID, err := ah.authService.LogoutUser(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if ah.panicService != nil {
		ah.panicService.CloseSession(sessionID)
	}
	ah.cache.Drop(sessionID)
	response.RespondOK(c, gin.H{"ok": true})
}

func (ah *AuthHandler) respondTokens(c *gin.Context, accessToken, refreshToken string) {
	response.RespondOK(c, gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(ah.authService.GetAccessTTL().Seconds()),
	})
}
