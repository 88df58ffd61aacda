package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/utils"
)

var secret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
	logger.Silence()
}

func sign(t *testing.T, claims jwt.MapClaims, key []byte) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func router() *gin.Engine {
	r := gin.New()
	r.GET("/me", AuthMiddleware(secret), func(c *gin.Context) {
		id, err := utils.GetUserIDFromContext(c)
		if err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"id": id.String(), "role": utils.GetRoleFromContext(c)})
	})
	r.GET("/ops", AuthMiddleware(secret), RequireRole(utils.RoleOperator), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func get(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := router()
	id := "0190f5d2-3c4b-7a8e-9f00-123456789abc"
	exp := time.Now().Add(time.Hour).Unix()

	w := get(r, "/me", sign(t, jwt.MapClaims{"sub": id, "role": "professional", "exp": exp}, secret))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"`+id+`","role":"professional"}`, w.Body.String())

	w = get(r, "/me", sign(t, jwt.MapClaims{"user_id": id, "exp": exp}, secret))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"customer"`)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", sign(t, jwt.MapClaims{"sub": id, "exp": exp}, []byte("other"))).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", sign(t, jwt.MapClaims{"sub": id, "exp": time.Now().Add(-time.Minute).Unix()}, secret)).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", sign(t, jwt.MapClaims{"exp": exp}, secret)).Code)
}

func TestRequireRole(t *testing.T) {
	r := router()
	exp := time.Now().Add(time.Hour).Unix()
	id := "0190f5d2-3c4b-7a8e-9f00-123456789abc"

	assert.Equal(t, http.StatusForbidden, get(r, "/ops", sign(t, jwt.MapClaims{"sub": id, "role": "customer", "exp": exp}, secret)).Code)
	assert.Equal(t, http.StatusNoContent, get(r, "/ops", sign(t, jwt.MapClaims{"sub": id, "role": "operator", "exp": exp}, secret)).Code)
}
