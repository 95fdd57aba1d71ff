package booking

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/healthbridge/booking-api/internal/handler"
	"github.com/healthbridge/booking-api/internal/model"
	"github.com/healthbridge/booking-api/internal/service/booking"
	apperrors "github.com/healthbridge/booking-api/pkg/errors"
)

type Handler struct {
	service *booking.Service
}

func NewHandler(service *booking.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) CreateBooking(c *gin.Context) {
	var req model.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	appt, err := h.service.CreateBooking(c.Request.Context(), &req)
	if err != nil {
		// Unavailable slots are an expected outcome, not a server fault.
		if se, ok := apperrors.AsSlotUnavailable(err); ok {
			c.JSON(http.StatusConflict, handler.NewRejectionResponse(se.Reason, se.Message))
			return
		}
		writeAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(appt))
}

func (h *Handler) GetBooking(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}

	appt, err := h.service.GetBooking(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(appt))
}

func (h *Handler) CancelBooking(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	if req.Reason == "" {
		req.Reason = "cancelled by user"
	}

	if err := h.service.CancelBooking(c.Request.Context(), id, req.Reason); err != nil {
		writeAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

// PaymentEvent is the callback surface for the payment subsystem.
func (h *Handler) PaymentEvent(c *gin.Context) {
	var event model.PaymentEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	var err error
	switch event.Status {
	case "succeeded":
		err = h.service.ConfirmPayment(c.Request.Context(), event.AppointmentID)
	case "failed":
		err = h.service.FailPayment(c.Request.Context(), event.AppointmentID)
	}
	if err != nil {
		writeAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	bookings := r.Group("/bookings")
	{
		bookings.POST("", h.CreateBooking)
		bookings.GET("/:id", h.GetBooking)
		bookings.POST("/:id/cancel", h.CancelBooking)
	}
	r.POST("/payments/events", h.PaymentEvent)
}

func writeAppError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrNotFound:
			status = http.StatusNotFound
		case apperrors.ErrBadRequest:
			status = http.StatusBadRequest
		case apperrors.ErrUnauthorized:
			status = http.StatusUnauthorized
		case apperrors.ErrConflict:
			status = http.StatusConflict
		}
		c.JSON(status, handler.NewErrorResponse(appErr.Message))
		return
	}
	c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
}
