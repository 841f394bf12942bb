package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/service"
)

type WaitlistHandler struct {
	svc *service.WaitlistNotifier
}

func NewWaitlistHandler(svc *service.WaitlistNotifier) *WaitlistHandler {
	return &WaitlistHandler{svc: svc}
}

// POST /v1/waitlist
func (h *WaitlistHandler) Join(c *gin.Context) {
	var in struct {
		SpotID   string    `json:"spot_id" binding:"required"`
		Start    time.Time `json:"start" binding:"required"`
		End      time.Time `json:"end" binding:"required,gtfield=Start"`
		AutoBook bool      `json:"auto_book"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	e, err := h.svc.Join(c.Request.Context(), actorOf(c), in.SpotID, in.Start, in.End, in.AutoBook)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}
