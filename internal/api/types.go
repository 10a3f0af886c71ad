package api

import (
	"context"

	"github.com/raine/price-estimator-bot/internal/estimator"
	"github.com/raine/price-estimator-bot/internal/storage"
	"github.com/raine/price-estimator-bot/internal/vision"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Estimator produces price estimates for images.
type Estimator interface {
	EstimateDetailed(ctx context.Context, img vision.Image, title string) (estimator.Result, estimator.Outcome)
}

// HistoryStore lists past estimates.
type HistoryStore interface {
	RecentEstimates(limit int) ([]storage.EstimateRecord, error)
}

type Handler struct {
	estimator Estimator
	history   HistoryStore
}

// EstimateRequest is the body of POST /api/v1/estimate.
type EstimateRequest struct {
	ImageURL string `json:"imageUrl" binding:"required,http_url"`
	Title    string `json:"title"`
}

// EstimateResponse is the estimate result together with how it ended.
type EstimateResponse struct {
	estimator.Result
	Outcome estimator.Outcome `json:"outcome"`
}

type EstimatesResponse struct {
	Estimates []storage.EstimateRecord `json:"estimates"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
