package handlers

import (
	"net/http"

	"devnewz/internal/middleware"
	"devnewz/internal/models"
	"devnewz/internal/services"

	"github.com/gin-gonic/gin"
)

type VoteHandler struct {
	ledger *services.VoteLedger
}

func NewVoteHandler(ledger *services.VoteLedger) *VoteHandler {
	return &VoteHandler{ledger: ledger}
}

// voteRequest accepts both {targetId, targetKind} and the older
// {newsId | commentId} shape.
type voteRequest struct {
	TargetID   uint              `json:"targetId"`
	TargetKind models.TargetKind `json:"targetKind"`
	NewsID     uint              `json:"newsId"`
	CommentID  uint              `json:"commentId"`
	VoteType   models.VoteType   `json:"voteType"`
}

func (r voteRequest) target() services.Target {
	switch {
	case r.TargetKind != "":
		return services.Target{Kind: r.TargetKind, ID: r.TargetID}
	case r.CommentID != 0:
		return services.Target{Kind: models.TargetComment, ID: r.CommentID}
	default:
		return services.Target{Kind: models.TargetPost, ID: r.NewsID}
	}
}

// Vote 点赞/踩，重复同向投票即撤销
func (h *VoteHandler) Vote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	result, err := h.ledger.CastVote(c.Request.Context(), middleware.ViewerID(c), req.target(), req.VoteType)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Vote recorded", result)
}
