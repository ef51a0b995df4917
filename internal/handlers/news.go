package handlers

import (
	"net/http"

	"devnewz/internal/middleware"
	"devnewz/internal/models"
	"devnewz/internal/services"
	"devnewz/internal/utils"

	"github.com/gin-gonic/gin"
)

type NewsHandler struct {
	posts   *services.PostService
	ranking *services.RankingEngine
}

func NewNewsHandler(posts *services.PostService, ranking *services.RankingEngine) *NewsHandler {
	return &NewsHandler{posts: posts, ranking: ranking}
}

// Feed - 首页，按页内 velocity 排序
func (h *NewsHandler) Feed(c *gin.Context) {
	page, err := h.ranking.Feed(c.Request.Context(), utils.PageParam(c.Query("page")), middleware.ViewerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, "News fetched successfully", page)
}

// Top - 全局 velocity 排序
func (h *NewsHandler) Top(c *gin.Context) {
	page, err := h.ranking.Top(c.Request.Context(), utils.PageParam(c.Query("page")), middleware.ViewerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, "Top news fetched successfully", page)
}

func (h *NewsHandler) Newest(c *gin.Context) {
	items, err := h.posts.Newest(c.Request.Context(), middleware.ViewerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Newest news fetched successfully", items)
}

// Past - ?date=dd/MM/yyyy
func (h *NewsHandler) Past(c *gin.Context) {
	page, err := h.posts.Past(c.Request.Context(),
		c.Query("date"),
		utils.PageParam(c.Query("page")),
		utils.StringToInt(c.Query("pageSize")),
		middleware.ViewerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, "Past news fetched successfully", page)
}

func (h *NewsHandler) Ask(c *gin.Context) {
	h.byType(c, models.PostTypeAsk)
}

func (h *NewsHandler) Show(c *gin.Context) {
	h.byType(c, models.PostTypeShow)
}

func (h *NewsHandler) byType(c *gin.Context, t models.PostType) {
	page, err := h.posts.ByType(c.Request.Context(), t, utils.PageParam(c.Query("page")), middleware.ViewerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, "News fetched successfully", page)
}

func (h *NewsHandler) Detail(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	detail, err := h.posts.Get(c.Request.Context(), id, middleware.ViewerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "News fetched successfully", detail)
}

func (h *NewsHandler) Create(c *gin.Context) {
	var in services.SubmitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	post, err := h.posts.Submit(c.Request.Context(), middleware.ViewerID(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, "News submitted successfully", post)
}

func (h *NewsHandler) Update(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var in services.SubmitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	post, err := h.posts.Edit(c.Request.Context(), middleware.ViewerID(c), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "News updated successfully", post)
}

func (h *NewsHandler) Delete(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.posts.Delete(c.Request.Context(), middleware.ViewerID(c), id); err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "News deleted successfully", nil)
}

// MySubmissions - 当前用户发布的文章
func (h *NewsHandler) MySubmissions(c *gin.Context) {
	viewer := middleware.ViewerID(c)
	items, err := h.posts.Submissions(c.Request.Context(), viewer, viewer)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "Submissions fetched successfully", items)
}

func (h *NewsHandler) Upvoted(c *gin.Context) {
	h.voted(c, models.VoteUp)
}

func (h *NewsHandler) Downvoted(c *gin.Context) {
	h.voted(c, models.VoteDown)
}

func (h *NewsHandler) voted(c *gin.Context, vt models.VoteType) {
	items, err := h.posts.VotedByUser(c.Request.Context(), middleware.ViewerID(c), vt)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, "News fetched successfully", items)
}
