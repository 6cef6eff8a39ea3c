package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("should echo a provided correlation id", func(t *testing.T) {
		router := gin.New()
		router.Use(CorrelationID())
		router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderXCorrelationID, "abc-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "abc-123", w.Header().Get(HeaderXCorrelationID))
	})

	t.Run("should generate a uuid when absent", func(t *testing.T) {
		router := gin.New()
		router.Use(CorrelationID())
		router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		generated := w.Header().Get(HeaderXCorrelationID)
		require.NotEmpty(t, generated)
		_, err := uuid.Parse(generated)
		assert.NoError(t, err)
	})
}
