/*
Package api provides HTTP gateway to the place ratings.

Routes:

	GET  /healthz
	GET  /places
	GET  /places/:id
	GET  /places/:id/message?identity=<address>&score=<1..5>
	POST /places/:id/ratings
	GET  /identities/:address/ratings?sort=asc|desc&filter=all|4plus|5&limit=N

Ratings are accepted in relayed mode only: clients fetch the message, sign
its digest with the identity key and post the signature back.
*/
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nspcc-dev/place-ratings/app"
	"github.com/nspcc-dev/place-ratings/submit"
	"go.uber.org/zap"
)

// Handler serves HTTP requests.
type Handler struct {
	log *zap.Logger
	svc *app.Service
}

// NewHandler returns Handler over the service. Nil log means nop.
func NewHandler(log *zap.Logger, svc *app.Service) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{log: log, svc: svc}
}

// NewRouter returns gin engine with all routes registered.
func NewRouter(log *zap.Logger, svc *app.Service) *gin.Engine {
	h := NewHandler(log, svc)

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.log))

	r.GET("/healthz", h.Health)

	places := r.Group("/places")
	{
		places.GET("", h.ListPlaces)
		places.GET("/:id", h.GetPlace)
		places.GET("/:id/message", h.GetMessage)
		places.POST("/:id/ratings", h.PostRating)
	}

	r.GET("/identities/:address/ratings", h.MyRatings)

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request served",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Health reports service liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func placeID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid place ID"})
		return 0, false
	}
	return id, true
}

// statusOf maps service errors to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, app.ErrPlaceNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrSubmissionDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, submit.ErrAlreadyInFlight):
		return http.StatusConflict
	case errors.Is(err, submit.ErrNoIdentity):
		return http.StatusUnauthorized
	case errors.Is(err, submit.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, submit.ErrSubmissionRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, submit.ErrNonceUnavailable), errors.Is(err, submit.ErrSigningFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}

	msg := err.Error()
	if errors.Is(err, app.ErrPlaceNotFound) {
		msg = "Place not found"
	}

	c.JSON(status, gin.H{"error": msg})
}
