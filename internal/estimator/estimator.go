package estimator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raine/price-estimator-bot/internal/metrics"
	"github.com/raine/price-estimator-bot/internal/search"
	"github.com/raine/price-estimator-bot/internal/vision"
	"github.com/rs/zerolog/log"
)

// Config holds the credentials and limits of the estimator.
type Config struct {
	APIKey         string
	SearchEngineID string
	// MaxListings caps the listings returned with a result. Zero means
	// MaxListings.
	MaxListings int
}

// Configured reports whether both credentials are set.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.SearchEngineID) != ""
}

// Searcher runs base queries and returns every result found.
type Searcher interface {
	SearchAll(ctx context.Context, queries []string, title string) []search.Item
}

// Recorder is called once after every estimate. ctx is the estimate's
// context, so it carries the user set by WithUserID.
type Recorder func(ctx context.Context, img vision.Image, title string, res Result, outcome Outcome)

type userIDKey struct{}

// WithUserID tags ctx with the ID of the user an estimate is made for.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFrom returns the user set by WithUserID, or 0 when there is none.
func UserIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey{}).(int64)
	return id
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithRecorder registers a recorder that sees every finished estimate.
func WithRecorder(r Recorder) Option {
	return func(e *Estimator) {
		e.recorders = append(e.recorders, r)
	}
}

// Estimator turns an image and an optional title into a price estimate.
// It holds no per-call state and is safe for concurrent use.
type Estimator struct {
	cfg       Config
	extractor vision.Extractor
	searcher  Searcher
	recorders []Recorder
}

// New creates an estimator.
func New(cfg Config, extractor vision.Extractor, searcher Searcher, opts ...Option) *Estimator {
	if cfg.MaxListings <= 0 {
		cfg.MaxListings = MaxListings
	}
	e := &Estimator{
		cfg:       cfg,
		extractor: extractor,
		searcher:  searcher,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate runs the pipeline and returns the result. It never fails; when no
// estimate can be made the result has a nil AvgPrice.
func (e *Estimator) Estimate(ctx context.Context, img vision.Image, title string) Result {
	res, _ := e.EstimateDetailed(ctx, img, title)
	return res
}

// EstimateDetailed is like Estimate but also reports how the pipeline ended.
func (e *Estimator) EstimateDetailed(ctx context.Context, img vision.Image, title string) (res Result, outcome Outcome) {
	started := time.Now()
	title = strings.TrimSpace(title)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("stage", "pipeline").Interface("panic", r).Msg("estimate panicked")
			res, outcome = EmptyResult(nil, ""), OutcomeInternalError
		}
		metrics.EstimatesTotal.WithLabelValues(string(outcome)).Inc()
		metrics.EstimateDuration.Observe(time.Since(started).Seconds())
		log.Info().
			Str("image", img.String()).
			Str("outcome", string(outcome)).
			Bool("available", res.Available()).
			Dur("took", time.Since(started)).
			Msg("estimate finished")
		e.record(ctx, img, title, res, outcome)
	}()

	return e.run(ctx, img, title)
}

func (e *Estimator) run(ctx context.Context, img vision.Image, title string) (Result, Outcome) {
	if !e.cfg.Configured() {
		log.Warn().Str("stage", "config").Msg("search credentials missing, skipping estimate")
		return EmptyResult(nil, ""), OutcomeConfigurationMissing
	}
	if img.IsZero() {
		log.Warn().Str("stage", "vision").Msg("no image given")
		return EmptyResult(nil, ""), OutcomeNoSignal
	}

	features, err := e.extractor.Extract(ctx, img)
	if err != nil {
		log.Warn().Err(err).Str("stage", "vision").Msg("feature extraction failed")
		return EmptyResult(nil, ""), OutcomeUpstreamUnavailable
	}
	if features.Empty() {
		log.Warn().Str("stage", "vision").Msg("no labels or text found in image")
		var labels []string
		if features != nil {
			labels = features.Labels
		}
		return EmptyResult(labels, ""), OutcomeNoSignal
	}
	labels := features.Labels
	if labels == nil {
		labels = []string{}
	}

	queries := BuildQueries(title, features)
	searchQuery := strings.Join(queries, " | ")
	log.Debug().Strs("queries", queries).Msg("built search queries")

	items := e.searcher.SearchAll(ctx, queries, title)
	if len(items) == 0 {
		log.Warn().Str("stage", "search").Str("query", searchQuery).Msg("no search results")
		return EmptyResult(labels, searchQuery), OutcomeNoResults
	}

	listings := ExtractPrices(items, strings.Join(queries, " "), title)
	metrics.ExtractedPrices.Add(float64(len(listings)))
	if len(listings) == 0 {
		log.Warn().Str("stage", "prices").Int("results", len(items)).Msg("no prices found in search results")
		return EmptyResult(labels, searchQuery), OutcomeNoPrices
	}

	filtered := FilterOutliers(listings)
	if len(filtered) == 0 {
		log.Warn().Str("stage", "outliers").Int("candidates", len(listings)).Msg("all prices filtered as outliers")
		return EmptyResult(labels, searchQuery), OutcomeAllFilteredAsOutliers
	}

	summary := Summarize(filtered)
	if len(filtered) > e.cfg.MaxListings {
		filtered = filtered[:e.cfg.MaxListings]
	}

	return Result{
		Labels:      labels,
		AvgPrice:    &summary.AvgPrice,
		MedianPrice: &summary.MedianPrice,
		PriceRange:  &summary.PriceRange,
		Listings:    filtered,
		Confidence:  summary.Confidence,
		SearchQuery: searchQuery,
	}, OutcomeOK
}

func (e *Estimator) record(ctx context.Context, img vision.Image, title string, res Result, outcome Outcome) {
	for _, r := range e.recorders {
		func() {
			defer func() {
				if p := recover(); p != nil {
					log.Error().Interface("panic", p).Msg("estimate recorder panicked")
				}
			}()
			r(ctx, img, title, res, outcome)
		}()
	}
}

// String renders a one-line description of the result for logs and the CLI.
func (r Result) String() string {
	if !r.Available() {
		return "no estimate"
	}
	return fmt.Sprintf("avg %s, median %s, %d listings, %s confidence",
		*r.AvgPrice, *r.MedianPrice, len(r.Listings), r.Confidence)
}
