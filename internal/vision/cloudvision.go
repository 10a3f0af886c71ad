package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/raine/price-estimator-bot/internal/metrics"
	"github.com/raine/price-estimator-bot/internal/schema"
	"github.com/rs/zerolog/log"
)

const (
	CloudVisionBaseURL = "https://vision.googleapis.com"
	annotatePath       = "/v1/images:annotate"

	DefaultVisionTimeout = 15 * time.Second
)

type featureRequest struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

// requestedFeatures are the detections asked for in the single annotate call.
var requestedFeatures = []featureRequest{
	{Type: "LABEL_DETECTION", MaxResults: 10},
	{Type: "TEXT_DETECTION", MaxResults: 10},
	{Type: "OBJECT_LOCALIZATION", MaxResults: 5},
	{Type: "LOGO_DETECTION", MaxResults: 5},
	{Type: "WEB_DETECTION", MaxResults: 5},
}

type annotateRequest struct {
	Requests []annotateImageRequest `json:"requests"`
}

type annotateImageRequest struct {
	Image    requestImage     `json:"image"`
	Features []featureRequest `json:"features"`
}

type requestImage struct {
	Content string       `json:"content,omitempty"`
	Source  *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	ImageURI string `json:"imageUri"`
}

type annotateResponse struct {
	Responses []imageAnnotation `json:"responses"`
}

type imageAnnotation struct {
	LabelAnnotations           []entityAnnotation `json:"labelAnnotations"`
	TextAnnotations            []entityAnnotation `json:"textAnnotations"`
	LocalizedObjectAnnotations []localizedObject  `json:"localizedObjectAnnotations"`
	LogoAnnotations            []entityAnnotation `json:"logoAnnotations"`
	WebDetection               *webDetection      `json:"webDetection"`
	Error                      *statusError       `json:"error"`
}

type entityAnnotation struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

type localizedObject struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type webDetection struct {
	WebEntities []entityAnnotation `json:"webEntities"`
}

type statusError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type CloudVisionOpts struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// CloudVisionClient extracts features with the Google Cloud Vision
// images:annotate endpoint.
type CloudVisionClient struct {
	httpClient *resty.Client
	apiKey     string
	timeout    time.Duration
}

func NewCloudVisionClient(opts CloudVisionOpts) *CloudVisionClient {
	c := CloudVisionClient{
		apiKey:  opts.APIKey,
		timeout: DefaultVisionTimeout,
	}
	baseURL := CloudVisionBaseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	if opts.Timeout > 0 {
		c.timeout = opts.Timeout
	}
	c.httpClient = resty.New().
		SetDebug(false).
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")

	return &c
}

// Extract implements Extractor.
func (c *CloudVisionClient) Extract(ctx context.Context, img Image) (*Features, error) {
	if img.IsZero() {
		return nil, fmt.Errorf("no image to analyze")
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	res, err := handleError(c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(newAnnotateRequest(img)).
		Post(annotatePath))
	metrics.ObserveUpstream("vision", statusCode(res), started)
	if err != nil {
		return nil, err
	}

	return parseAnnotateResponse(res.Body())
}

func newAnnotateRequest(img Image) annotateRequest {
	var image requestImage
	if len(img.Content) > 0 {
		image.Content = base64.StdEncoding.EncodeToString(img.Content)
	} else {
		image.Source = &imageSource{ImageURI: img.URI}
	}

	return annotateRequest{
		Requests: []annotateImageRequest{
			{Image: image, Features: requestedFeatures},
		},
	}
}

func parseAnnotateResponse(body []byte) (*Features, error) {
	if err := schema.VisionResponse.Validate(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	var resp annotateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrUpstreamUnavailable, err)
	}

	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("%w: empty responses", ErrUpstreamUnavailable)
	}

	annotation := resp.Responses[0]
	if annotation.Error != nil {
		return nil, fmt.Errorf("%w: %s (code %d)", ErrUpstreamUnavailable, annotation.Error.Message, annotation.Error.Code)
	}

	features := annotation.features()
	log.Debug().
		Strs("labels", features.Labels).
		Strs("logos", features.Logos).
		Strs("webEntities", features.WebEntities).
		Int("texts", len(features.Texts)).
		Msg("vision features extracted")

	return features, nil
}

func (a imageAnnotation) features() *Features {
	f := &Features{
		Labels:      descriptions(a.LabelAnnotations),
		Texts:       descriptions(a.TextAnnotations),
		Logos:       descriptions(a.LogoAnnotations),
		Objects:     []string{},
		WebEntities: []string{},
	}
	for _, o := range a.LocalizedObjectAnnotations {
		if o.Name != "" {
			f.Objects = append(f.Objects, o.Name)
		}
	}
	if a.WebDetection != nil {
		for _, e := range a.WebDetection.WebEntities {
			if e.Score > MinWebEntityScore && e.Description != "" {
				f.WebEntities = append(f.WebEntities, e.Description)
			}
		}
	}
	return f
}

func descriptions(annotations []entityAnnotation) []string {
	out := make([]string, 0, len(annotations))
	for _, a := range annotations {
		if a.Description != "" {
			out = append(out, a.Description)
		}
	}
	return out
}

func statusCode(res *resty.Response) int {
	if res == nil || res.RawResponse == nil {
		return 0
	}
	return res.StatusCode()
}
