package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"devnewz/internal/middleware"
	"devnewz/internal/models"
	"devnewz/internal/repository"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const devTokenTTL = 24 * time.Hour

// AuthHandler only serves development logins. Real credentials are issued
// by the account service; this service just verifies its tokens.
type AuthHandler struct {
	users     repository.UserRepo
	jwtSecret []byte
}

func NewAuthHandler(users repository.UserRepo, jwtSecret []byte) *AuthHandler {
	return &AuthHandler{users: users, jwtSecret: jwtSecret}
}

type devLoginRequest struct {
	Username string `json:"username"`
}

// DevLogin 按用户名登录，不存在则创建
func (h *AuthHandler) DevLogin(c *gin.Context) {
	var req devLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	username := strings.TrimSpace(req.Username)
	if len(username) < 3 || len(username) > 50 {
		badRequest(c, "Username must be 3-50 characters")
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		user = &models.User{Username: username}
		err = h.users.Create(ctx, user)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.SessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		respondError(c, err)
		return
	}

	token, err := middleware.SignToken(h.jwtSecret, user.ID, user.Username, devTokenTTL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.SetCookie(middleware.AuthCookieName, token, int(devTokenTTL.Seconds()), "/", "", false, true)
	ok(c, http.StatusOK, "Logged in", gin.H{"user": user, "token": token})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()
	c.SetCookie(middleware.AuthCookieName, "", -1, "/", "", false, true)
	ok(c, http.StatusOK, "Logged out", nil)
}
