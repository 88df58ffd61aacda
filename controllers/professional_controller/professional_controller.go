package professional_controller

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/models/professional_models"
	"github.com/joy095/dispatch/services/matching_engine"
	"github.com/joy095/dispatch/services/professional_registry"
	"github.com/joy095/dispatch/services/tracking_service"
	"github.com/joy095/dispatch/utils"
	"github.com/joy095/dispatch/utils/geo"
)

type ProfessionalController struct {
	Registry *professional_registry.Registry
	Engine   *matching_engine.Engine
	Tracking *tracking_service.Service
}

func NewProfessionalController(registry *professional_registry.Registry, engine *matching_engine.Engine, tracking *tracking_service.Service) *ProfessionalController {
	return &ProfessionalController{Registry: registry, Engine: engine, Tracking: tracking}
}

// UpdateLocationRequest is the body of PUT /professionals/location. Pointers
// distinguish a missing coordinate from zero.
type UpdateLocationRequest struct {
	Latitude    *float64   `json:"latitude" binding:"required"`
	Longitude   *float64   `json:"longitude" binding:"required"`
	Accuracy    float64    `json:"accuracy"`
	Heading     float64    `json:"heading"`
	Speed       float64    `json:"speed"`
	IsAvailable *bool      `json:"isAvailable" binding:"required"`
	Timestamp   *time.Time `json:"timestamp"`
	BookingID   *uuid.UUID `json:"bookingId"`
}

type RegisterRequest struct {
	ID              *uuid.UUID `json:"id"`
	Name            string     `json:"name" binding:"required"`
	Phone           string     `json:"phone"`
	Email           string     `json:"email" binding:"omitempty,email"`
	Specializations []string   `json:"specializations" binding:"required,min=1"`
	Verified        bool       `json:"verified"`
	Rating          float64    `json:"rating" binding:"gte=0,lte=5"`
}

type NearbyProfessional struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Specializations []string   `json:"specializations"`
	Location        *geo.Point `json:"location"`
	DistanceKm      float64    `json:"distanceKm"`
	Rating          float64    `json:"rating"`
}

// UpdateLocation handles PUT /professionals/location for the calling professional.
func (pc *ProfessionalController) UpdateLocation(c *gin.Context) {
	professionalID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnLogger.Warnf("Invalid location update: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude, longitude and isAvailable are required"})
		return
	}

	meta := professional_registry.LocationMeta{
		Accuracy:    req.Accuracy,
		Heading:     req.Heading,
		Speed:       req.Speed,
		IsAvailable: req.IsAvailable,
	}
	if req.Timestamp != nil {
		meta.Timestamp = req.Timestamp.UTC()
	}
	point := geo.Point{Lat: *req.Latitude, Lon: *req.Longitude}

	res, err := pc.Tracking.IngestLocation(c.Request.Context(), professionalID, point, meta, req.BookingID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	p := res.Professional
	body := gin.H{
		"professionalId":  p.ID,
		"currentLocation": p.CurrentLocation,
		"isAvailable":     p.IsAvailable,
		"isOnline":        p.IsOnline,
	}
	if res.BookingID != nil {
		body["bookingId"] = res.BookingID
	}
	if res.ETAMinutes != nil {
		body["estimatedArrival"] = res.ETAMinutes
	}
	c.JSON(http.StatusOK, body)
}

// GetNearby handles GET /professionals/nearby.
func (pc *ProfessionalController) GetNearby(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("latitude"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("longitude"), 64)
	if errLat != nil || errLon != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude are required numbers"})
		return
	}

	q := matching_engine.NearbyQuery{Origin: geo.Point{Lat: lat, Lon: lon}}
	if raw := c.Query("radius"); raw != "" {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "radius must be a number of meters"})
			return
		}
		q.RadiusMeters = radius
	}
	if raw := c.Query("specializations"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				q.Specializations = append(q.Specializations, s)
			}
		}
	}

	candidates, err := pc.Engine.Nearby(c.Request.Context(), q)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	out := make([]NearbyProfessional, 0, len(candidates))
	for _, cand := range candidates {
		p := cand.Professional
		item := NearbyProfessional{
			ID:              p.ID,
			Name:            p.Name,
			Specializations: p.Specializations,
			DistanceKm:      cand.DistanceKm,
			Rating:          p.Rating,
		}
		if pt, ok := p.Position(); ok {
			item.Location = &pt
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, out)
}

// Disconnect handles POST /professionals/disconnect.
func (pc *ProfessionalController) Disconnect(c *gin.Context) {
	professionalID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	if err := pc.Tracking.Disconnect(c.Request.Context(), professionalID); err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Disconnected"})
}

// Register handles POST /professionals (operators).
func (pc *ProfessionalController) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := &professional_models.Professional{
		Name:               req.Name,
		Phone:              req.Phone,
		Email:              req.Email,
		Specializations:    req.Specializations,
		VerificationStatus: professional_models.VerificationRegistrationPending,
		Rating:             req.Rating,
	}
	if req.ID != nil {
		p.ID = *req.ID
	}
	if req.Verified {
		p.VerificationStatus = professional_models.VerificationVerified
	}

	if err := pc.Registry.Register(c.Request.Context(), p); err != nil {
		utils.RespondError(c, err)
		return
	}
	logger.InfoLogger.Infof("Registered professional %s", p.ID)
	c.JSON(http.StatusCreated, p)
}

// GetProfessional handles GET /professionals/:id.
func (pc *ProfessionalController) GetProfessional(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid professional ID format"})
		return
	}
	p, err := pc.Registry.Get(c.Request.Context(), id)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
