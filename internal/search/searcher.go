package search

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// QueryRunner runs a single search query.
type QueryRunner interface {
	Search(ctx context.Context, query string) ([]Item, error)
}

// Searcher expands queries into price-oriented sub-queries and runs them one
// at a time through a throttle. Failed sub-queries contribute no results.
type Searcher struct {
	runner      QueryRunner
	newThrottle func() Throttle
}

// NewSearcher creates a searcher that spaces calls by delay. Each SearchAll
// call gets its own throttle so concurrent estimates share no state.
func NewSearcher(runner QueryRunner, delay time.Duration) *Searcher {
	return NewSearcherWithThrottle(runner, func() Throttle {
		return NewIntervalThrottle(delay)
	})
}

// NewSearcherWithThrottle creates a searcher with a custom throttle factory.
func NewSearcherWithThrottle(runner QueryRunner, newThrottle func() Throttle) *Searcher {
	return &Searcher{runner: runner, newThrottle: newThrottle}
}

// SubQueries returns the search strings issued for one base query.
func SubQueries(query, title string) []string {
	queries := make([]string, 0, 4)
	if title != "" && title != query {
		queries = append(queries, `"`+title+`" price`)
	}
	return append(queries, query+" price", "buy "+query, query+" cost")
}

// Search runs the sub-queries of a single base query.
func (s *Searcher) Search(ctx context.Context, query, title string) []Item {
	return s.search(ctx, s.newThrottle(), query, title)
}

// SearchAll runs the sub-queries of every base query in order and merges the
// results. It stops early only when ctx is done.
func (s *Searcher) SearchAll(ctx context.Context, queries []string, title string) []Item {
	throttle := s.newThrottle()
	items := []Item{}
	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		items = append(items, s.search(ctx, throttle, q, title)...)
	}
	return items
}

func (s *Searcher) search(ctx context.Context, throttle Throttle, query, title string) []Item {
	var items []Item
	for _, q := range SubQueries(query, title) {
		if err := throttle.Wait(ctx); err != nil {
			log.Debug().Err(err).Str("query", q).Msg("search cancelled")
			return items
		}

		found, err := s.runner.Search(ctx, q)
		if err != nil {
			log.Warn().Err(err).Str("stage", "search").Str("query", q).Msg("search query failed, skipping")
			continue
		}
		log.Debug().Str("query", q).Int("results", len(found)).Msg("search query done")
		items = append(items, found...)
	}
	return items
}
