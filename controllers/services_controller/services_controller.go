package services_controller

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/models/service_models"
	"github.com/joy095/dispatch/repository"
	"github.com/joy095/dispatch/services/store_errors"
	"github.com/joy095/dispatch/utils"
)

type ServiceController struct{ repo repository.Store }

// NewServiceController creates and returns a new instance of ServiceController
func NewServiceController(repo repository.Store) (*ServiceController, error) {
	if repo == nil {
		return nil, errors.New("repository cannot be nil")
	}

	return &ServiceController{
		repo: repo,
	}, nil
}

type CreateServiceRequest struct {
	ID                *uuid.UUID `json:"id"`
	Name              string     `json:"name" binding:"required"`
	Category          string     `json:"category" binding:"required"`
	ProfessionalTypes []string   `json:"professionalTypes"`
	BasePrice         float64    `json:"basePrice" binding:"gte=0"`
	IsActive          *bool      `json:"isActive"`
}

func (sc *ServiceController) CreateService(c *gin.Context) {
	logger.InfoLogger.Info("CreateService controller called")

	var req CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.ErrorLogger.Error("Invalid create service request: " + err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and category are required"})
		return
	}

	now := time.Now().UTC()
	svc := &service_models.Service{
		Name:              strings.TrimSpace(req.Name),
		Category:          strings.ToLower(strings.TrimSpace(req.Category)),
		ProfessionalTypes: req.ProfessionalTypes,
		BasePrice:         req.BasePrice,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.IsActive != nil {
		svc.IsActive = *req.IsActive
	}
	if req.ID != nil {
		svc.ID = *req.ID
	} else {
		id, err := uuid.NewV7()
		if err != nil {
			logger.ErrorLogger.Error("Failed to generate service ID: " + err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create service"})
			return
		}
		svc.ID = id
	}

	if err := sc.repo.InsertService(c.Request.Context(), svc); err != nil {
		utils.RespondError(c, store_errors.Map(err, "Service"))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"service": svc})
}

func (sc *ServiceController) GetServiceByID(c *gin.Context) {
	logger.InfoLogger.Info("GetServiceByID controller called")

	serviceIDStr := strings.TrimSpace(c.Param("id"))
	if serviceIDStr == "" {
		logger.ErrorLogger.Error("Service ID is required")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Service ID is required"})
		return
	}

	serviceID, err := uuid.Parse(serviceIDStr)
	if err != nil {
		logger.ErrorLogger.Error("Invalid service ID format: " + err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid service ID format"})
		return
	}

	service, err := sc.repo.GetService(c.Request.Context(), serviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.ErrorLogger.Error("Service not found: " + err.Error())
			c.JSON(http.StatusNotFound, gin.H{"error": "Service not found"})
		} else {
			logger.ErrorLogger.Error("Failed to fetch service: " + err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch service"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"service": service})
}
