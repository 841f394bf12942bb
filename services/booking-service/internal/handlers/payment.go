package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/service"
)

type PaymentHandler struct {
	svc *service.PaymentSvc
}

func NewPaymentHandler(svc *service.PaymentSvc) *PaymentHandler { return &PaymentHandler{svc: svc} }

// POST /v1/bookings/:id/payments
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var in struct {
		ReturnURL string `json:"return_url" binding:"omitempty,url"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
	}
	co, err := h.svc.Initiate(c.Request.Context(), c.Param("id"), actorOf(c), in.ReturnURL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"payment_id":       co.Payment.ID,
		"status":           co.Payment.Status,
		"amount":           co.Payment.Amount.StringFixed(2),
		"currency":         co.Payment.Currency,
		"confirmation_url": co.ConfirmationURL,
		"reused":           co.Reused,
	})
}

// GET /v1/payments/:id
func (h *PaymentHandler) Get(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), c.Param("id"), actorOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
