package vision

import (
	"context"
	"encoding/hex"

	"github.com/raine/price-estimator-bot/internal/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"
)

// FeatureCache persists extracted features by image key.
type FeatureCache interface {
	GetVisionCache(key string) (*storage.VisionCacheEntry, error)
	SetVisionCache(key string, entry *storage.VisionCacheEntry) error
}

// CachedExtractor wraps an Extractor with a persistent cache.
type CachedExtractor struct {
	inner Extractor
	cache FeatureCache
}

// NewCachedExtractor creates a cached extractor.
func NewCachedExtractor(inner Extractor, cache FeatureCache) *CachedExtractor {
	return &CachedExtractor{inner: inner, cache: cache}
}

// cacheKey hashes the image content, or the URI when no content is given.
// The prefix keeps a URI and identical raw bytes from colliding.
func cacheKey(img Image) string {
	var sum [32]byte
	if len(img.Content) > 0 {
		sum = blake2b.Sum256(append([]byte("content:"), img.Content...))
	} else {
		sum = blake2b.Sum256([]byte("uri:" + img.URI))
	}
	return hex.EncodeToString(sum[:])
}

// Extract implements Extractor with caching. Failed extractions are not cached.
func (c *CachedExtractor) Extract(ctx context.Context, img Image) (*Features, error) {
	key := cacheKey(img)

	if c.cache != nil {
		cached, err := c.cache.GetVisionCache(key)
		if err != nil {
			log.Warn().Err(err).Msg("failed to check vision cache")
		} else if cached != nil {
			log.Debug().Str("key", key[:16]).Msg("vision cache hit")
			return &Features{
				Labels:      cached.Labels,
				Texts:       cached.Texts,
				Objects:     cached.Objects,
				Logos:       cached.Logos,
				WebEntities: cached.WebEntities,
			}, nil
		}
	}

	features, err := c.inner.Extract(ctx, img)
	if err != nil {
		return nil, err
	}

	if c.cache != nil && features != nil {
		entry := &storage.VisionCacheEntry{
			Labels:      features.Labels,
			Texts:       features.Texts,
			Objects:     features.Objects,
			Logos:       features.Logos,
			WebEntities: features.WebEntities,
		}
		if err := c.cache.SetVisionCache(key, entry); err != nil {
			log.Warn().Err(err).Msg("failed to cache vision result")
		} else {
			log.Debug().Str("key", key[:16]).Msg("cached vision result")
		}
	}

	return features, nil
}
