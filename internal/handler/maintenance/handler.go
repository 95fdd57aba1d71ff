package maintenance

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/healthbridge/booking-api/internal/handler"
	"github.com/healthbridge/booking-api/internal/service/janitor"
)

// Handler exposes the janitor sweeps as triggerable endpoints; each returns
// the number of affected rows for observability. The sweeps are idempotent,
// so manual triggers are always safe alongside the scheduled worker.
type Handler struct {
	janitorSvc *janitor.Service
}

func NewHandler(janitorSvc *janitor.Service) *Handler {
	return &Handler{janitorSvc: janitorSvc}
}

func (h *Handler) RunPaymentExpiry(c *gin.Context) {
	affected, err := h.janitorSvc.RunPaymentExpiry(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"affected": affected}))
}

func (h *Handler) ReleaseExpiredLocks(c *gin.Context) {
	affected, err := h.janitorSvc.ReleaseExpiredLocks(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"affected": affected}))
}

func (h *Handler) MarkNoShows(c *gin.Context) {
	affected, err := h.janitorSvc.MarkNoShows(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"affected": affected}))
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	maintenance := r.Group("/maintenance")
	{
		maintenance.POST("/payment-expiry", h.RunPaymentExpiry)
		maintenance.POST("/expired-locks", h.ReleaseExpiredLocks)
		maintenance.POST("/no-shows", h.MarkNoShows)
	}
}
