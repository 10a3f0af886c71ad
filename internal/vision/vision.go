package vision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrUpstreamUnavailable is returned when the image-understanding service
// cannot be reached, answers with an error status, or returns a response
// that does not match the expected shape.
var ErrUpstreamUnavailable = errors.New("vision service unavailable")

// MinWebEntityScore is the relevance score a web entity must exceed to be
// kept in Features.WebEntities.
const MinWebEntityScore = 0.5

// Image references the image to analyze. URI must be reachable by the
// external service; Content is sent inline when set.
type Image struct {
	URI      string
	Content  []byte
	MIMEType string
}

// IsZero reports whether the image has neither a URI nor content.
func (i Image) IsZero() bool {
	return i.URI == "" && len(i.Content) == 0
}

// String returns a short description of the image for logs and history.
func (i Image) String() string {
	if i.URI != "" {
		return i.URI
	}
	return fmt.Sprintf("inline:%d bytes", len(i.Content))
}

// Features contains the visual signals extracted from one image.
type Features struct {
	Labels      []string `json:"labels"`
	Texts       []string `json:"texts"`
	Objects     []string `json:"objects"`
	Logos       []string `json:"logos"`
	WebEntities []string `json:"webEntities"`
}

// Empty reports whether the features carry no labels and no detected text,
// which leaves nothing to build a search query from.
func (f *Features) Empty() bool {
	return f == nil || (len(f.Labels) == 0 && len(f.Texts) == 0)
}

// Extractor extracts visual features from an image.
type Extractor interface {
	Extract(ctx context.Context, img Image) (*Features, error)
}

// handleError turns failing responses (>399 status code) into errors wrapping
// ErrUpstreamUnavailable. Without this, failing responses would have nil error.
func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if res.IsError() {
		return res, fmt.Errorf("%w: %s %s (status: %d)", ErrUpstreamUnavailable, res.Request.Method, res.Request.URL, res.StatusCode())
	}
	return res, nil
}

// withTimeout derives a context bounded by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
