package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joy095/dispatch/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Silence()
}

func TestParseCustomRate(t *testing.T) {
	rate, err := ParseCustomRate("10-2m")
	require.NoError(t, err)
	assert.Equal(t, int64(10), rate.Limit)
	assert.Equal(t, 2*time.Minute, rate.Period)

	rate, err = ParseCustomRate("5-1h")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, rate.Period)

	for _, bad := range []string{"10", "x-1m", "10-1d", "10-m", "0-1m"} {
		_, err := ParseCustomRate(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewRateLimiterBlocksAfterLimit(t *testing.T) {
	r := gin.New()
	r.GET("/limited", NewRateLimiter("2-1m", "test-limited"), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/limited", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "other callers have their own budget")
}

func TestCombinedRateLimiterUsesTightestRate(t *testing.T) {
	r := gin.New()
	r.GET("/combined", CombinedRateLimiter("test-combined", "1-1m", "10-1h"), func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/combined", nil))
	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/combined", nil))
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
