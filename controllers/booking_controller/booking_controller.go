package booking_controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/models/booking_models"
	"github.com/joy095/dispatch/models/service_models"
	"github.com/joy095/dispatch/services/booking_store"
	"github.com/joy095/dispatch/services/dispatch_coordinator"
	"github.com/joy095/dispatch/services/tracking_service"
	"github.com/joy095/dispatch/utils"
	"github.com/joy095/dispatch/utils/geo"
)

// BookingController exposes the booking lifecycle over HTTP.
type BookingController struct {
	Coordinator *dispatch_coordinator.Coordinator
	Tracking    *tracking_service.Service
}

func NewBookingController(coordinator *dispatch_coordinator.Coordinator, tracking *tracking_service.Service) *BookingController {
	return &BookingController{Coordinator: coordinator, Tracking: tracking}
}

type LocationInput struct {
	Coordinates []float64 `json:"coordinates"`
}

type CreateBookingRequest struct {
	ServiceID     string         `json:"serviceId" binding:"required,uuid"`
	Location      *LocationInput `json:"location"`
	Address       string         `json:"address"`
	ScheduledDate *time.Time     `json:"scheduledDate" binding:"required"`
	Emergency     bool           `json:"emergency"`
}

type CompleteBookingRequest struct {
	VerificationCode string `json:"verificationCode" binding:"required"`
}

type RescheduleBookingRequest struct {
	NewDate *time.Time `json:"newDate" binding:"required"`
	Reason  string     `json:"reason" binding:"required"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type MessageRequest struct {
	Message string `json:"message" binding:"required"`
}

type PhaseRequest struct {
	Phase string `json:"phase" binding:"required"`
}

type CreateBookingResponse struct {
	BookingID        uuid.UUID              `json:"bookingId"`
	Status           booking_models.Status  `json:"status"`
	TotalAmount      float64                `json:"totalAmount"`
	ScheduledDate    time.Time              `json:"scheduledDate"`
	IsEmergency      bool                   `json:"isEmergency"`
	VerificationCode string                 `json:"verificationCode"`
	Service          service_models.Summary `json:"service"`
}

func actor(c *gin.Context) (dispatch_coordinator.Actor, bool) {
	id, err := utils.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return dispatch_coordinator.Actor{}, false
	}
	return dispatch_coordinator.Actor{ID: id, Role: utils.GetRoleFromContext(c)}, true
}

func bookingID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID format"})
		return uuid.Nil, false
	}
	return id, true
}

// CreateBooking handles POST /bookings.
func (bc *BookingController) CreateBooking(c *gin.Context) {
	bc.create(c, false)
}

// CreateEmergencyBooking handles POST /bookings/emergency.
func (bc *BookingController) CreateEmergencyBooking(c *gin.Context) {
	bc.create(c, true)
}

func (bc *BookingController) create(c *gin.Context, emergency bool) {
	caller, ok := actor(c)
	if !ok {
		return
	}
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnLogger.Warnf("Invalid create booking request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "serviceId, location and scheduledDate are required"})
		return
	}

	create := booking_store.CreateRequest{
		CustomerID:    caller.ID,
		ServiceID:     uuid.MustParse(req.ServiceID),
		Address:       req.Address,
		ScheduledDate: *req.ScheduledDate,
		Emergency:     req.Emergency || emergency,
	}
	if req.Location != nil {
		if len(req.Location.Coordinates) != 2 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "location.coordinates must be [longitude, latitude]"})
			return
		}
		create.Destination = &geo.Point{Lon: req.Location.Coordinates[0], Lat: req.Location.Coordinates[1]}
	} else if req.Address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location or address is required"})
		return
	}

	var (
		b   *booking_models.Booking
		svc *service_models.Service
		err error
	)
	if create.Emergency {
		b, svc, err = bc.Coordinator.HandleEmergency(c.Request.Context(), create)
	} else {
		b, svc, err = bc.Coordinator.RequestBooking(c.Request.Context(), create)
	}
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateBookingResponse{
		BookingID:        b.ID,
		Status:           b.Status,
		TotalAmount:      b.TotalAmount,
		ScheduledDate:    b.ScheduledDate,
		IsEmergency:      b.IsEmergency,
		VerificationCode: b.VerificationCode,
		Service:          svc.Summary(),
	})
}

// AcceptBooking handles POST /bookings/:id/accept. The caller is the professional.
func (bc *BookingController) AcceptBooking(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}
	b, err := bc.Coordinator.AcceptBooking(c.Request.Context(), id, caller.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bookingId":     b.ID,
		"status":        b.Status,
		"scheduledDate": b.ScheduledDate,
	})
}

// CompleteBooking handles POST /bookings/:id/complete.
func (bc *BookingController) CompleteBooking(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req CompleteBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "verificationCode is required"})
		return
	}
	b, err := bc.Coordinator.CompleteBooking(c.Request.Context(), id, req.VerificationCode, caller)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bookingId":   b.ID,
		"status":      b.Status,
		"completedAt": b.CompletedAt,
	})
}

// RescheduleBooking handles POST /bookings/:id/reschedule.
func (bc *BookingController) RescheduleBooking(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req RescheduleBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "newDate and reason are required"})
		return
	}
	b, err := bc.Coordinator.RescheduleBooking(c.Request.Context(), id, *req.NewDate, req.Reason, caller)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// CancelBooking handles POST /bookings/:id/cancel.
func (bc *BookingController) CancelBooking(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req ReasonRequest
	_ = c.ShouldBindJSON(&req)
	b, err := bc.Coordinator.CancelBooking(c.Request.Context(), id, caller, req.Reason)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// SendMessage handles POST /bookings/:id/messages.
func (bc *BookingController) SendMessage(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	msg, err := bc.Coordinator.SendMessage(c.Request.Context(), id, caller, req.Message)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// RejectBooking handles POST /bookings/:id/reject (operators).
func (bc *BookingController) RejectBooking(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req ReasonRequest
	_ = c.ShouldBindJSON(&req)
	b, err := bc.Coordinator.RejectBooking(c.Request.Context(), id, req.Reason, caller)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// UpdatePhase handles PATCH /bookings/:id/phase.
func (bc *BookingController) UpdatePhase(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req PhaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phase is required"})
		return
	}
	b, err := bc.Coordinator.UpdatePhase(c.Request.Context(), id, caller.ID, req.Phase)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// GetBooking handles GET /bookings/:id.
func (bc *BookingController) GetBooking(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}
	b, err := bc.Coordinator.GetBooking(c.Request.Context(), id, caller)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// GetActiveBooking handles GET /bookings/active.
func (bc *BookingController) GetActiveBooking(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}
	b, err := bc.Coordinator.ActiveBooking(c.Request.Context(), caller)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// GetHistory handles GET /bookings/history?limit=.
func (bc *BookingController) GetHistory(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive number"})
			return
		}
		limit = n
	}
	list, err := bc.Coordinator.History(c.Request.Context(), caller, limit)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": list, "count": len(list)})
}

// GetTracking handles GET /bookings/:id/tracking.
func (bc *BookingController) GetTracking(c *gin.Context) {
	caller, ok := actor(c)
	if !ok {
		return
	}
	id, ok := bookingID(c)
	if !ok {
		return
	}
	info, err := bc.Tracking.GetTrackingInfo(c.Request.Context(), id, caller.ID, caller.Role)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}
