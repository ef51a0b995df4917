package handlers

import (
	"net/http"

	"devnewz/internal/middleware"
	"devnewz/internal/models"
	"devnewz/internal/services"
	"devnewz/internal/utils"

	"github.com/gin-gonic/gin"
)

const newestCommentsLimit = 50

type CommentHandler struct {
	tree *services.CommentTree
}

func NewCommentHandler(tree *services.CommentTree) *CommentHandler {
	return &CommentHandler{tree: tree}
}

type createCommentRequest struct {
	Content         string `json:"content"`
	ParentCommentID *uint  `json:"parentCommentId"`
}

type commentRequest struct {
	CommentID uint   `json:"commentId"`
	Content   string `json:"content"`
}

// ForPost - 文章评论树
func (h *CommentHandler) ForPost(c *gin.Context) {
	postID, valid := idParam(c, "id")
	if !valid {
		return
	}
	forest, err := h.tree.ForPost(c.Request.Context(), postID, middleware.ViewerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Comments fetched successfully", forest)
}

func (h *CommentHandler) Create(c *gin.Context) {
	postID, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	comment, err := h.tree.Create(c.Request.Context(), middleware.ViewerID(c), postID, req.Content, req.ParentCommentID)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, "Comment created successfully", comment)
}

// commentTarget reads the comment id from the path, or from the body the
// way older clients send it.
func commentTarget(c *gin.Context) (commentRequest, bool) {
	var req commentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return req, false
		}
	}
	if id := utils.StringToUint(c.Param("id")); id != 0 {
		req.CommentID = id
	}
	if req.CommentID == 0 {
		badRequest(c, "commentId is required")
		return req, false
	}
	return req, true
}

func (h *CommentHandler) Update(c *gin.Context) {
	req, valid := commentTarget(c)
	if !valid {
		return
	}
	comment, err := h.tree.Edit(c.Request.Context(), middleware.ViewerID(c), req.CommentID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Comment updated successfully", comment)
}

// Delete removes the comment and its replies.
func (h *CommentHandler) Delete(c *gin.Context) {
	req, valid := commentTarget(c)
	if !valid {
		return
	}
	deleted, err := h.tree.Delete(c.Request.Context(), middleware.ViewerID(c), req.CommentID)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Comment deleted successfully", gin.H{"deleted": deleted})
}

func (h *CommentHandler) Newest(c *gin.Context) {
	comments, err := h.tree.Newest(c.Request.Context(), newestCommentsLimit, middleware.ViewerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Comments fetched successfully", comments)
}

// Threads - 当前用户的评论及其回复
func (h *CommentHandler) Threads(c *gin.Context) {
	viewer := middleware.ViewerID(c)
	threads, err := h.tree.ListForUser(c.Request.Context(), viewer, viewer)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Threads fetched successfully", threads)
}

func (h *CommentHandler) Upvoted(c *gin.Context) {
	h.voted(c, models.VoteUp)
}

func (h *CommentHandler) Downvoted(c *gin.Context) {
	h.voted(c, models.VoteDown)
}

func (h *CommentHandler) voted(c *gin.Context, vt models.VoteType) {
	comments, err := h.tree.VotedByUser(c.Request.Context(), middleware.ViewerID(c), vt)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Comments fetched successfully", comments)
}
