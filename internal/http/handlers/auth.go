package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/coursehub-backend/internal/http/response"
	"github.com/yungbote/coursehub-backend/internal/platform/ctxutil"
	"github.com/yungbote/coursehub-backend/internal/services"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// POST /api/register
func (ah *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterInput
	if !bindJSON(c, &req) {
		return
	}
	user, err := ah.authService.Register(requestDBC(c), req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"user": user})
}

// POST /api/login
func (ah *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !bindJSON(c, &req) {
		return
	}
	pair, err := ah.authService.Login(requestDBC(c), req.Email, req.Password)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	ah.respondTokens(c, pair)
}

// POST /api/refresh
// body: { "refresh_token": "..." }
func (ah *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !bindJSON(c, &req) {
		return
	}
	pair, err := ah.authService.Refresh(requestDBC(c), req.RefreshToken)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	ah.respondTokens(c, pair)
}

// POST /api/logout
func (ah *AuthHandler) Logout(c *gin.Context) {
	token := ""
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
		token = rd.TokenString
	}
	if err := ah.authService.Logout(requestDBC(c), token); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

func (ah *AuthHandler) respondTokens(c *gin.Context, pair *services.TokenPair) {
	response.RespondOK(c, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_in":    int(ah.authService.GetAccessTTL().Seconds()),
		"user":          pair.User,
	})
}
