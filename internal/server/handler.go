package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/kaanhena/knchat-server/internal/service"
)

// Handler 聚合认证相关的 HTTP handler，依赖注入 service 层。
type Handler struct {
	accounts *service.AccountService
}

func NewHandler(accounts *service.AccountService) *Handler {
	return &Handler{accounts: accounts}
}

// Register 处理注册请求：落库 + 外发验证码，成功只返回 ok，不带任何敏感数据。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid payload"})
		return
	}
	if err := h.accounts.Register(c.Request.Context(), req.Username, req.Email, req.Password); err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		case errors.Is(err, service.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"ok": false, "error": "email already registered"})
		case errors.Is(err, service.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"ok": false, "error": "username taken"})
		default:
			log.Error().Err(err).Str("email", req.Email).Msg("register")
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "registration failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Verify 处理验证码校验请求，成功返回 token 与身份。
func (h *Handler) Verify(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid payload"})
		return
	}
	result, err := h.accounts.Verify(req.Email, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "user not found"})
		case errors.Is(err, service.ErrInvalidCode):
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid verification code"})
		case errors.Is(err, service.ErrCodeExpired):
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "verification code expired"})
		default:
			log.Error().Err(err).Str("email", req.Email).Msg("verify")
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "verification failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "token": result.Token, "user": result.User})
}

// Login 处理登录请求，identifier 接受用户名或邮箱。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid payload"})
		return
	}
	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}
	if identifier == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid payload"})
		return
	}
	result, err := h.accounts.Login(identifier, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "user not found"})
		case errors.Is(err, service.ErrNotVerified):
			c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": "email not verified"})
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid credentials"})
		default:
			log.Error().Err(err).Str("identifier", identifier).Msg("login")
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "login failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "token": result.Token, "user": result.User})
}
