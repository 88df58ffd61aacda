package services_controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/repository/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Silence()
}

func TestNewServiceControllerRequiresRepo(t *testing.T) {
	_, err := NewServiceController(nil)
	assert.Error(t, err)
}

func TestCreateAndGetService(t *testing.T) {
	sc, err := NewServiceController(memory.New())
	require.NoError(t, err)
	r := gin.New()
	r.POST("/services", sc.CreateService)
	r.GET("/services/:id", sc.GetServiceByID)

	payload, _ := json.Marshal(gin.H{"name": " Deep cleaning ", "category": "Cleaner", "basePrice": 1200})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/services", bytes.NewReader(payload)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Service struct {
			ID       uuid.UUID `json:"id"`
			Name     string    `json:"name"`
			Category string    `json:"category"`
			IsActive bool      `json:"isActive"`
		} `json:"service"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "Deep cleaning", created.Service.Name)
	assert.Equal(t, "cleaner", created.Service.Category)
	assert.True(t, created.Service.IsActive)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/services/"+created.Service.ID.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/services/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/services/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/services", bytes.NewReader([]byte(`{"name":"x"}`))))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
