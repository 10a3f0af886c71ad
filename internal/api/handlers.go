package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/raine/price-estimator-bot/internal/vision"
	"github.com/rs/zerolog/log"
)

func NewHandler(est Estimator, history HistoryStore) *Handler {
	return &Handler{
		estimator: est,
		history:   history,
	}
}

// Estimate runs one price estimate for an image URL. Any failure inside the
// pipeline still yields 200 with avgPrice null; only bad input is a 400.
func (h *Handler) Estimate(c *gin.Context) {
	var req EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	res, outcome := h.estimator.EstimateDetailed(c.Request.Context(), vision.Image{URI: req.ImageURL}, req.Title)
	c.JSON(http.StatusOK, EstimateResponse{Result: res, Outcome: outcome})
}

// ListEstimates returns the most recent estimates, newest first.
func (h *Handler) ListEstimates(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.history.RecentEstimates(limit)
	if err != nil {
		log.Error().Err(err).Str("operation", "recent_estimates").Msg("database error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	c.JSON(http.StatusOK, EstimatesResponse{Estimates: records})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
