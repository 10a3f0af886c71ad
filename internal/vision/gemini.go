package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/raine/price-estimator-bot/internal/metrics"
	"github.com/raine/price-estimator-bot/internal/schema"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

// DefaultMaxImageSize is the largest image the Gemini extractor downloads (10MB).
const DefaultMaxImageSize = 10 * 1024 * 1024

const geminiFeaturePrompt = `Analyze this product photo the way an image labeling service would.

Respond in JSON format with these fields, each a list of strings ordered from most to least relevant:
- labels: up to 10 general labels describing the item (e.g. "Headphones", "Audio equipment")
- texts: up to 10 pieces of text printed on the item or its packaging, verbatim
- objects: up to 5 names of distinct physical objects in the photo
- logos: up to 5 brand logos visible in the photo
- webEntities: up to 5 specific named entities you are confident about (brand, product line, model)

Use empty lists when nothing applies.

Example response:
{"labels": ["Headphones", "Audio equipment"], "texts": ["SONY", "WH-1000XM4"], "objects": ["Headphones"], "logos": ["Sony"], "webEntities": ["Sony", "Sony WH-1000XM4"]}

Respond ONLY with the JSON object, no markdown or other text.`

// contentGenerator is the part of the genai client the extractor uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiExtractor extracts features by asking Gemini to label the image.
type GeminiExtractor struct {
	models     contentGenerator
	httpClient *resty.Client
	timeout    time.Duration
	maxSize    int64

	// allowPrivateHosts disables the public address check on image URIs.
	allowPrivateHosts bool
}

// NewGeminiExtractor creates a Gemini-based extractor authenticated with apiKey.
func NewGeminiExtractor(ctx context.Context, apiKey string, timeout time.Duration) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newGeminiExtractor(client.Models, timeout), nil
}

func newGeminiExtractor(models contentGenerator, timeout time.Duration) *GeminiExtractor {
	if timeout <= 0 {
		timeout = DefaultVisionTimeout
	}
	return &GeminiExtractor{
		models:     models,
		httpClient: newDownloadClient(timeout),
		timeout:    timeout,
		maxSize:    DefaultMaxImageSize,
	}
}

var featureResponseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"labels":      stringList,
		"texts":       stringList,
		"objects":     stringList,
		"logos":       stringList,
		"webEntities": stringList,
	},
	PropertyOrdering: []string{"labels", "texts", "objects", "logos", "webEntities"},
}

var stringList = &genai.Schema{
	Type:  genai.TypeArray,
	Items: &genai.Schema{Type: genai.TypeString},
}

// Extract implements Extractor.
func (g *GeminiExtractor) Extract(ctx context.Context, img Image) (*Features, error) {
	if img.IsZero() {
		return nil, fmt.Errorf("no image to analyze")
	}

	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	data, mimeType := img.Content, img.MIMEType
	if len(data) == 0 {
		var err error
		data, mimeType, err = g.download(ctx, img.URI)
		if err != nil {
			return nil, err
		}
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	parts := []*genai.Part{
		genai.NewPartFromText(geminiFeaturePrompt),
		{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}},
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   featureResponseSchema,
	}

	started := time.Now()
	result, err := g.models.GenerateContent(ctx, geminiModel, []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}, config)
	if err != nil {
		metrics.ObserveUpstream("gemini", 0, started)
		return nil, fmt.Errorf("%w: failed to generate content: %v", ErrUpstreamUnavailable, err)
	}
	metrics.ObserveUpstream("gemini", http.StatusOK, started)

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no response from Gemini", ErrUpstreamUnavailable)
	}

	features, err := parseFeatureJSON(result.Text())
	if err != nil {
		return nil, err
	}

	if result.UsageMetadata != nil {
		log.Info().
			Str("model", geminiModel).
			Int("inputTokens", int(result.UsageMetadata.PromptTokenCount)).
			Int("outputTokens", int(result.UsageMetadata.CandidatesTokenCount)).
			Strs("labels", features.Labels).
			Msg("vision llm call")
	}

	return features, nil
}

func (g *GeminiExtractor) download(ctx context.Context, uri string) ([]byte, string, error) {
	if !g.allowPrivateHosts {
		if err := checkImageURI(uri); err != nil {
			return nil, "", err
		}
	}
	return downloadImage(ctx, g.httpClient, uri, g.maxSize)
}

// extractJSONObject extracts a JSON object from text that may contain markdown
// code blocks or other formatting.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response: %s", text)
	}
	return text[start : end+1], nil
}

func parseFeatureJSON(text string) (*Features, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if err := schema.FeatureResponse.Validate([]byte(jsonStr)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	var f Features
	if err := json.Unmarshal([]byte(jsonStr), &f); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response JSON: %v (response: %s)", ErrUpstreamUnavailable, err, jsonStr)
	}

	f.Labels = nonEmpty(f.Labels, 10)
	f.Texts = nonEmpty(f.Texts, 10)
	f.Objects = nonEmpty(f.Objects, 5)
	f.Logos = nonEmpty(f.Logos, 5)
	f.WebEntities = nonEmpty(f.WebEntities, 5)
	return &f, nil
}

func nonEmpty(values []string, limit int) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}
