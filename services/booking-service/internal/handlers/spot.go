package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/service"
)

type SpotHandler struct {
	spots    *service.SpotSvc
	bookings *service.BookingSvc
}

func NewSpotHandler(spots *service.SpotSvc, bookings *service.BookingSvc) *SpotHandler {
	return &SpotHandler{spots: spots, bookings: bookings}
}

// POST /v1/spots (OWNER/ADMIN)
func (h *SpotHandler) Create(c *gin.Context) {
	var in struct {
		LotID               string          `json:"lot_id"`
		OwnerID             string          `json:"owner_id"`
		Name                string          `json:"name" binding:"required"`
		HourlyPrice         decimal.Decimal `json:"hourly_price"`
		DailyPrice          decimal.Decimal `json:"daily_price"`
		MonthlyPrice        decimal.Decimal `json:"monthly_price"`
		AllowDynamicPricing bool            `json:"allow_dynamic_pricing"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	sp, err := h.spots.Create(c.Request.Context(), actorOf(c), domain.Spot{
		LotID:               in.LotID,
		OwnerID:             in.OwnerID,
		Name:                in.Name,
		HourlyPrice:         in.HourlyPrice,
		DailyPrice:          in.DailyPrice,
		MonthlyPrice:        in.MonthlyPrice,
		AllowDynamicPricing: in.AllowDynamicPricing,
		Active:              true,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sp)
}

// GET /v1/spots/:id
func (h *SpotHandler) Get(c *gin.Context) {
	sp, err := h.spots.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sp)
}

// GET /v1/spots/:id/availability?start=RFC3339&end=RFC3339&exclude=<booking>&kind=HOURLY
// The quote is included when kind is given.
func (h *SpotHandler) Availability(c *gin.Context) {
	var q struct {
		Start   time.Time `form:"start" binding:"required"`
		End     time.Time `form:"end" binding:"required,gtfield=Start"`
		Exclude string    `form:"exclude"`
		Kind    string    `form:"kind" binding:"omitempty,booking_kind"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	free, err := h.bookings.IsAvailable(ctx, id, q.Start, q.End, q.Exclude)
	if err != nil {
		writeError(c, err)
		return
	}
	out := gin.H{"spot_id": id, "available": free}
	if q.Kind != "" {
		quote, err := h.bookings.Quote(ctx, id, domain.BookingKind(q.Kind), q.Start, q.End)
		if err != nil {
			writeError(c, err)
			return
		}
		out["quote"] = gin.H{
			"kind":       quote.Kind,
			"units":      quote.Units,
			"unit_price": quote.UnitPrice.StringFixed(2),
			"total":      quote.Total.StringFixed(2),
			"dynamic":    quote.Dynamic,
		}
	}
	c.JSON(http.StatusOK, out)
}
