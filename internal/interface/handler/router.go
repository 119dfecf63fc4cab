package handler

import (
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"booking-engine/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	bookingNumberPattern = regexp.MustCompile(`^BK-[0-9A-F]{8}$`)
	registerOnce         sync.Once
)

// registerValidators adds the booking_number tag and reports json field names
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "uri"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return fld.Name
		})
		_ = v.RegisterValidation("booking_number", func(fl validator.FieldLevel) bool {
			return bookingNumberPattern.MatchString(fl.Field().String())
		})
	})
}

// NewRouter wires the API routes plus /health and /metrics
func NewRouter(h *BookingHandler, log logger.Logger, gatherer prometheus.Gatherer) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/v1")
	{
		api.POST("/bookings", h.CreateBooking)
		api.GET("/bookings", h.ListBookings)
		api.GET("/bookings/:id", h.GetBooking)
		api.GET("/bookings/number/:number", h.GetBookingByNumber)
		api.GET("/bookings/:id/audit", h.AuditTrail)
		api.PATCH("/bookings/:id/confirm", h.ConfirmBooking)
		api.PATCH("/bookings/:id/start", h.StartBooking)
		api.PATCH("/bookings/:id/complete", h.CompleteBooking)
		api.PATCH("/bookings/:id/cancel", h.CancelBooking)
		api.PATCH("/bookings/:id/reject", h.RejectBooking)
		api.GET("/availability", h.Availability)

		api.POST("/payments/transactions", h.CreateTransaction)
		api.POST("/payments/transactions/:txid/link", h.PaymentLink)
		api.GET("/payments/transactions/:txid/status", h.TransactionStatus)
		api.GET("/payments/transactions/booking/:id", h.BookingTransaction)
		api.POST("/payments/transactions/:txid/verify", h.VerifyTransaction)
		api.POST("/payments/callback", h.PaymentCallback)

		admin := api.Group("/admin")
		admin.POST("/bookings/:id/correct-completed", h.CorrectCompleted)
		admin.POST("/sweep", h.RunSweep)
	}
	return r
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/health" || c.FullPath() == "/metrics" {
			return
		}
		log.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"clientIP", c.ClientIP())
	}
}
