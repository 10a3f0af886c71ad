// Package app builds the estimator from configuration. It is shared by the
// service and the command line tool.
package app

import (
	"context"
	"fmt"

	"github.com/raine/price-estimator-bot/config"
	"github.com/raine/price-estimator-bot/internal/estimator"
	"github.com/raine/price-estimator-bot/internal/search"
	"github.com/raine/price-estimator-bot/internal/storage"
	"github.com/raine/price-estimator-bot/internal/vision"
	"github.com/rs/zerolog/log"
)

// NewExtractor creates the configured feature extractor. When cache is not
// nil, extracted features are cached in it.
func NewExtractor(ctx context.Context, cfg *config.Config, cache vision.FeatureCache) (vision.Extractor, error) {
	var extractor vision.Extractor
	switch cfg.Extractor {
	case config.ExtractorGemini:
		gemini, err := vision.NewGeminiExtractor(ctx, cfg.GeminiAPIKey, cfg.VisionTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini extractor: %w", err)
		}
		extractor = gemini
	case config.ExtractorCloudVision, "":
		extractor = vision.NewCloudVisionClient(vision.CloudVisionOpts{
			APIKey:  cfg.GoogleAPIKey,
			Timeout: cfg.VisionTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown extractor %q", cfg.Extractor)
	}
	log.Info().Str("extractor", cfg.Extractor).Msg("feature extractor initialized")

	if cache != nil {
		extractor = vision.NewCachedExtractor(extractor, cache)
		log.Info().Msg("feature extraction caching enabled")
	}
	return extractor, nil
}

// NewSearcher creates the throttled listing searcher.
func NewSearcher(cfg *config.Config) *search.Searcher {
	client := search.NewClient(search.ClientOpts{
		APIKey:         cfg.GoogleAPIKey,
		SearchEngineID: cfg.SearchEngineID,
		Timeout:        cfg.SearchTimeout,
	})
	return search.NewSearcher(client, cfg.SearchDelay)
}

// NewEstimator wires extractor, searcher and options into an estimator.
func NewEstimator(ctx context.Context, cfg *config.Config, cache vision.FeatureCache, opts ...estimator.Option) (*estimator.Estimator, error) {
	if missing := cfg.MissingCredentials(); len(missing) > 0 {
		log.Warn().Strs("missing", missing).Msg("search credentials not set, estimates will be empty")
	}

	extractor, err := NewExtractor(ctx, cfg, cache)
	if err != nil {
		return nil, err
	}
	return estimator.New(cfg.EstimatorConfig(), extractor, NewSearcher(cfg), opts...), nil
}

// EstimateSaver is where finished estimates are kept.
type EstimateSaver interface {
	SaveEstimate(record *storage.EstimateRecord) error
}

// HistoryRecorder returns a recorder that saves every estimate, tagged with
// the user from the estimate's context.
func HistoryRecorder(store EstimateSaver) estimator.Recorder {
	return func(ctx context.Context, img vision.Image, title string, res estimator.Result, outcome estimator.Outcome) {
		record := NewEstimateRecord(img, title, res, outcome)
		record.UserID = estimator.UserIDFrom(ctx)
		if err := store.SaveEstimate(record); err != nil {
			log.Warn().Err(err).Msg("failed to save estimate")
		}
	}
}

// NewEstimateRecord converts an estimate into a history record.
func NewEstimateRecord(img vision.Image, title string, res estimator.Result, outcome estimator.Outcome) *storage.EstimateRecord {
	return &storage.EstimateRecord{
		ImageRef:     img.String(),
		Title:        title,
		AvgPrice:     res.AvgPrice,
		MedianPrice:  res.MedianPrice,
		Confidence:   string(res.Confidence),
		Outcome:      string(outcome),
		SearchQuery:  res.SearchQuery,
		ListingCount: len(res.Listings),
	}
}
