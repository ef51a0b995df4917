package handlers

import (
	"net/http"

	"devnewz/internal/middleware"
	"devnewz/internal/repository"
	"devnewz/internal/services"
	"devnewz/internal/utils"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	users repository.UserRepo
	karma *services.KarmaAccount
}

func NewUserHandler(users repository.UserRepo, karma *services.KarmaAccount) *UserHandler {
	return &UserHandler{users: users, karma: karma}
}

// HeaderData - 顶栏用户信息
func (h *UserHandler) HeaderData(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), middleware.ViewerID(c))
	if err != nil {
		respondError(c, mapRepoErr(err))
		return
	}
	ok(c, http.StatusOK, "User fetched successfully", gin.H{
		"username":        user.Username,
		"karma":           user.Karma,
		"daysSinceJoined": utils.GetDaysSinceJoined(user.CreatedAt),
		"canDownvote":     user.Karma >= h.karma.DownvoteThreshold(),
	})
}

// KarmaLog - 积分记录，?limit= 默认 50
func (h *UserHandler) KarmaLog(c *gin.Context) {
	logs, err := h.karma.History(c.Request.Context(), middleware.ViewerID(c), utils.StringToInt(c.Query("limit")))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Karma log fetched successfully", logs)
}
