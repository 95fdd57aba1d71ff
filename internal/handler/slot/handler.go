package slot

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/healthbridge/booking-api/internal/handler"
	"github.com/healthbridge/booking-api/internal/model"
	"github.com/healthbridge/booking-api/internal/service/availability"
	"github.com/healthbridge/booking-api/internal/service/schedule"
)

// Handler serves slot listings and the checkout lock endpoints. Listings go
// through a short-lived cache owned by this handler; locks and bookings
// never do.
type Handler struct {
	availabilitySvc *availability.Service
	scheduleSvc     *schedule.Service
	listingCache    *cache.Cache
	cacheTTL        time.Duration
}

func NewHandler(availabilitySvc *availability.Service, scheduleSvc *schedule.Service, cacheTTL time.Duration) *Handler {
	return &Handler{
		availabilitySvc: availabilitySvc,
		scheduleSvc:     scheduleSvc,
		listingCache:    cache.New(cacheTTL, 10*time.Minute),
		cacheTTL:        cacheTTL,
	}
}

func (h *Handler) ListAvailableSlots(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Query("doctor_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
		return
	}

	date, err := time.Parse(model.DateOnly, c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid date format, expected YYYY-MM-DD"))
		return
	}

	mode := model.ConsultationMode(c.DefaultQuery("mode", string(model.ConsultationModeInPerson)))
	if mode != model.ConsultationModeRemote && mode != model.ConsultationModeInPerson {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid consultation mode"))
		return
	}

	cacheKey := fmt.Sprintf("%s:%s:%s", doctorID, date.Format(model.DateOnly), mode)
	if cached, ok := h.listingCache.Get(cacheKey); ok {
		c.JSON(http.StatusOK, handler.NewSuccessResponse(cached))
		return
	}

	slots, err := h.availabilitySvc.ListOpenSlots(c.Request.Context(), doctorID, date, mode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	h.listingCache.Set(cacheKey, slots, h.cacheTTL)
	c.JSON(http.StatusOK, handler.NewSuccessResponse(slots))
}

func (h *Handler) LockSlot(c *gin.Context) {
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid slot ID"))
		return
	}

	var req model.LockSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	locked, err := h.availabilitySvc.LockSlot(c.Request.Context(), slotID, req.RequesterID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	status := http.StatusOK
	if !locked {
		status = http.StatusConflict
	}
	c.JSON(status, handler.NewSuccessResponse(gin.H{"locked": locked}))
}

func (h *Handler) UnlockSlot(c *gin.Context) {
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid slot ID"))
		return
	}

	var req model.LockSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	released, err := h.availabilitySvc.ReleaseSlotLock(c.Request.Context(), slotID, req.RequesterID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"released": released}))
}

// RegenerateSlots rebuilds a doctor's future slots after a schedule edit.
func (h *Handler) RegenerateSlots(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
		return
	}

	created, err := h.scheduleSvc.RegenerateForDoctor(c.Request.Context(), doctorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"slots_created": created}))
}

// RegisterPublicRoutes exposes the read-only listing so prospective patients
// can browse without an account.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/slots", h.ListAvailableSlots)
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	slots := r.Group("/slots")
	{
		slots.POST("/:id/lock", h.LockSlot)
		slots.POST("/:id/unlock", h.UnlockSlot)
	}
	r.POST("/doctors/:id/slots/generate", h.RegenerateSlots)
}
