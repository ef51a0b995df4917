package handlers

import (
	"errors"
	"net/http"

	"devnewz/internal/logger"
	"devnewz/internal/middleware"
	"devnewz/internal/repository"
	"devnewz/internal/services"
	"devnewz/internal/utils"

	"github.com/gin-gonic/gin"
)

// ok writes the success envelope shared by every endpoint.
func ok(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, gin.H{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// paged is ok plus the pagination block used by the feeds.
func paged(c *gin.Context, message string, page *services.FeedPage) {
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    message,
		"data":       page.Items,
		"pagination": page.Pagination,
	})
}

func fail(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{
		"success": false,
		"message": message,
		"data":    nil,
	})
}

// respondError maps service errors onto HTTP statuses. Anything unclassified
// is logged with the request id and reported without details.
func respondError(c *gin.Context, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		fail(c, http.StatusBadRequest, verr.Message)
	case errors.Is(err, services.ErrValidation):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, "Unauthenticated")
	case errors.Is(err, services.ErrUnauthorized):
		fail(c, http.StatusForbidden, "Unauthorized")
	case errors.Is(err, services.ErrInsufficientKarma):
		fail(c, http.StatusForbidden, "Insufficient karma to downvote")
	case errors.Is(err, services.ErrMaxDepthExceeded):
		fail(c, http.StatusBadRequest, "Max comment depth reached")
	case errors.Is(err, services.ErrParentNotFound):
		fail(c, http.StatusNotFound, "Parent comment not found")
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, "Not found")
	default:
		_ = c.Error(err)
		logger.Log.Error().Err(err).
			Str("request_id", c.GetString(middleware.RequestIDKey)).
			Str("path", c.FullPath()).
			Msg("request failed")
		fail(c, http.StatusInternalServerError, "Internal server error")
	}
}

func badRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, message)
}

// idParam parses a positive numeric path parameter.
func idParam(c *gin.Context, name string) (uint, bool) {
	id := utils.StringToUint(c.Param(name))
	if id == 0 {
		badRequest(c, "Invalid id")
		return 0, false
	}
	return id, true
}

// mapRepoErr is for the few handlers that read a repository directly.
func mapRepoErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return services.ErrNotFound
	}
	return err
}
