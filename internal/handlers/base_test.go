package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"devnewz/internal/repository"
	"devnewz/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRespondErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"validation", &services.ValidationError{Field: "title", Message: "Title too short (10+ chars)"}, http.StatusBadRequest, "Title too short (10+ chars)"},
		{"unauthenticated", services.ErrUnauthenticated, http.StatusUnauthorized, "Unauthenticated"},
		{"unauthorized", services.ErrUnauthorized, http.StatusForbidden, "Unauthorized"},
		{"karma gate", services.ErrInsufficientKarma, http.StatusForbidden, "Insufficient karma to downvote"},
		{"depth", services.ErrMaxDepthExceeded, http.StatusBadRequest, "Max comment depth reached"},
		{"parent", fmt.Errorf("create: %w", services.ErrParentNotFound), http.StatusNotFound, "Parent comment not found"},
		{"wrapped not found", fmt.Errorf("post 9: %w", services.ErrNotFound), http.StatusNotFound, "Not found"},
		{"repository miss", mapRepoErr(repository.ErrNotFound), http.StatusNotFound, "Not found"},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, tt.err)

			assert.Equal(t, tt.code, w.Code)
			assert.JSONEq(t, fmt.Sprintf(`{"success":false,"message":%q,"data":null}`, tt.message), w.Body.String())
		})
	}
}
