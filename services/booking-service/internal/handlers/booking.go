package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/service"
)

type BookingHandler struct {
	svc *service.BookingSvc
}

func NewBookingHandler(svc *service.BookingSvc) *BookingHandler {
	return &BookingHandler{svc: svc}
}

type bookingView struct {
	BookingID         string    `json:"booking_id"`
	UserID            string    `json:"user_id"`
	SpotID            string    `json:"spot_id"`
	Kind              string    `json:"kind"`
	Status            string    `json:"status"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	TotalPrice        string    `json:"total_price"`
	Currency          string    `json:"currency"`
	Paid              bool      `json:"paid"`
	PaymentDeadline   time.Time `json:"payment_deadline"`
	ExternalPaymentID string    `json:"external_payment_id,omitempty"`
}

func viewOf(b *domain.Booking) bookingView {
	return bookingView{
		BookingID:         b.ID,
		UserID:            b.UserID,
		SpotID:            b.SpotID,
		Kind:              string(b.Kind),
		Status:            string(b.Status),
		Start:             b.StartTime,
		End:               b.EndTime,
		TotalPrice:        b.TotalPrice.StringFixed(2),
		Currency:          b.Currency,
		Paid:              b.Paid,
		PaymentDeadline:   b.PaymentDeadline,
		ExternalPaymentID: b.ExternalPaymentID.String,
	}
}

// POST /v1/bookings
func (h *BookingHandler) Create(c *gin.Context) {
	var in struct {
		SpotID string    `json:"spot_id" binding:"required"`
		Start  time.Time `json:"start" binding:"required"` // RFC3339
		End    time.Time `json:"end" binding:"required,gtfield=Start"`
		Kind   string    `json:"kind" binding:"omitempty,booking_kind"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	kind := domain.BookingKind(in.Kind)
	if kind == "" {
		kind = domain.KindHourly
	}
	b, err := h.svc.Create(c.Request.Context(), service.CreateBookingInput{
		UserID: actorOf(c).UserID,
		SpotID: in.SpotID,
		Start:  in.Start,
		End:    in.End,
		Kind:   kind,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(b))
}

// PATCH /v1/bookings/:id
func (h *BookingHandler) Edit(c *gin.Context) {
	var in struct {
		Start *time.Time `json:"start"`
		End   *time.Time `json:"end"`
		Kind  *string    `json:"kind" binding:"omitempty,booking_kind"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	edit := service.EditBookingInput{Start: in.Start, End: in.End}
	if in.Kind != nil {
		k := domain.BookingKind(*in.Kind)
		edit.Kind = &k
	}
	b, err := h.svc.Edit(c.Request.Context(), c.Param("id"), actorOf(c), edit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(b))
}

// DELETE /v1/bookings/:id
func (h *BookingHandler) Cancel(c *gin.Context) {
	if _, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), actorOf(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /v1/bookings/:id
func (h *BookingHandler) Get(c *gin.Context) {
	b, err := h.svc.Get(c.Request.Context(), c.Param("id"), actorOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(b))
}

// GET /v1/bookings?page=1&page_size=20&spot_id=...&status=...&user_id=...
func (h *BookingHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	items, total, err := h.svc.List(c.Request.Context(), actorOf(c), domain.BookingFilter{
		UserID: c.Query("user_id"),
		SpotID: c.Query("spot_id"),
		Status: domain.BookingStatus(c.Query("status")),
		Page:   page - 1,
		Size:   size,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]bookingView, 0, len(items))
	for i := range items {
		out = append(out, viewOf(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": out, "total": total, "page": page})
}
