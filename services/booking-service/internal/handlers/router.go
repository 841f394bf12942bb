package handlers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Leis4/parkshare-ru-part1/pkg/auth"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/gateway"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/middlewares"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/realtime"
	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/service"
)

type Deps struct {
	Bookings  *service.BookingSvc
	Payments  *service.PaymentSvc
	Spots     *service.SpotSvc
	Waitlist  *service.WaitlistNotifier
	Gateway   gateway.Adapter
	Sink      WebhookSink
	Hub       *realtime.Hub
	JWTSecret string
}

var registerOnce sync.Once

func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("booking_kind", func(fl validator.FieldLevel) bool {
				return domain.BookingKind(fl.Field().String()).Valid()
			})
		}
	})
}

func NewRouter(d Deps) *gin.Engine {
	registerValidators()
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	wh := NewWebhookHandler(d.Gateway, d.Sink)
	r.POST("/webhooks/:provider", wh.Receive)

	if d.Hub != nil {
		r.GET("/ws", middlewares.JWTAuth(d.JWTSecret), d.Hub.Serve)
	}

	v1 := r.Group("/v1")
	v1.Use(middlewares.JWTAuth(d.JWTSecret))
	{
		bh := NewBookingHandler(d.Bookings)
		v1.POST("/bookings", bh.Create)
		v1.GET("/bookings", bh.List)
		v1.GET("/bookings/:id", bh.Get)
		v1.PATCH("/bookings/:id", bh.Edit)
		v1.DELETE("/bookings/:id", bh.Cancel)

		ph := NewPaymentHandler(d.Payments)
		v1.POST("/bookings/:id/payments", ph.Initiate)
		v1.GET("/payments/:id", ph.Get)

		sh := NewSpotHandler(d.Spots, d.Bookings)
		v1.GET("/spots/:id", sh.Get)
		v1.GET("/spots/:id/availability", sh.Availability)
		v1.POST("/spots", middlewares.RequireRole(auth.RoleOwner, auth.RoleAdmin), sh.Create)

		v1.POST("/waitlist", NewWaitlistHandler(d.Waitlist).Join)
	}
	return r
}
