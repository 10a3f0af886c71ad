package maintenance

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// PruneInterval is how often to prune old cached features.
	PruneInterval = 24 * time.Hour

	// DefaultCacheMaxAge is how long to keep cached features before pruning.
	DefaultCacheMaxAge = 30 * 24 * time.Hour // 30 days
)

// CachePruner removes cache entries older than maxAge.
type CachePruner interface {
	PruneVisionCache(maxAge time.Duration) (int64, error)
}

// Service is the background service that keeps the feature cache bounded.
type Service struct {
	store    CachePruner
	maxAge   time.Duration
	interval time.Duration
}

// NewService creates a new maintenance service.
func NewService(store CachePruner, maxAge time.Duration) *Service {
	if maxAge <= 0 {
		maxAge = DefaultCacheMaxAge
	}
	return &Service{
		store:    store,
		maxAge:   maxAge,
		interval: PruneInterval,
	}
}

// Run prunes once at startup and then every interval. It blocks until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Dur("maxAge", s.maxAge).Msg("starting maintenance service")

	s.pruneVisionCache()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("maintenance service stopped")
			return
		case <-ticker.C:
			s.pruneVisionCache()
		}
	}
}

// pruneVisionCache removes old cached features to prevent database bloat.
func (s *Service) pruneVisionCache() {
	count, err := s.store.PruneVisionCache(s.maxAge)
	if err != nil {
		log.Error().Err(err).Msg("failed to prune vision cache")
		return
	}
	if count > 0 {
		log.Info().Int64("pruned", count).Msg("pruned old vision cache entries")
	}
}
