package vision

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const annotateFixture = `{
	"responses": [{
		"labelAnnotations": [
			{"description": "Headphones", "score": 0.98},
			{"description": "Audio equipment", "score": 0.91}
		],
		"textAnnotations": [
			{"description": "SONY\nWH-1000XM4"},
			{"description": "SONY"},
			{"description": "WH-1000XM4"}
		],
		"localizedObjectAnnotations": [{"name": "Headphones", "score": 0.9}],
		"logoAnnotations": [{"description": "Sony", "score": 0.88}],
		"webDetection": {
			"webEntities": [
				{"description": "Sony", "score": 0.93},
				{"description": "Noise-cancelling headphones", "score": 0.62},
				{"description": "Bluetooth", "score": 0.41},
				{"score": 0.8}
			]
		}
	}]
}`

func TestCloudVisionExtract(t *testing.T) {
	var req *http.Request
	var body annotateRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req = r
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(annotateFixture))
	}))
	defer ts.Close()

	client := NewCloudVisionClient(CloudVisionOpts{BaseURL: ts.URL, APIKey: "secret"})
	features, err := client.Extract(context.Background(), Image{URI: "https://example.com/headphones.jpg"})
	require.NoError(t, err)

	assert.Equal(t, "/v1/images:annotate", req.URL.Path)
	assert.Equal(t, "secret", req.URL.Query().Get("key"))
	assert.Equal(t, http.MethodPost, req.Method)

	require.Len(t, body.Requests, 1)
	require.NotNil(t, body.Requests[0].Image.Source)
	assert.Equal(t, "https://example.com/headphones.jpg", body.Requests[0].Image.Source.ImageURI)
	assert.Empty(t, body.Requests[0].Image.Content)
	assert.Equal(t, requestedFeatures, body.Requests[0].Features)

	assert.Equal(t, &Features{
		Labels:      []string{"Headphones", "Audio equipment"},
		Texts:       []string{"SONY\nWH-1000XM4", "SONY", "WH-1000XM4"},
		Objects:     []string{"Headphones"},
		Logos:       []string{"Sony"},
		WebEntities: []string{"Sony", "Noise-cancelling headphones"},
	}, features)
}

func TestCloudVisionExtractInlineContent(t *testing.T) {
	var body annotateRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &body)
		w.Write([]byte(`{"responses":[{}]}`))
	}))
	defer ts.Close()

	client := NewCloudVisionClient(CloudVisionOpts{BaseURL: ts.URL, APIKey: "secret"})
	features, err := client.Extract(context.Background(), Image{Content: []byte("123")})
	require.NoError(t, err)
	assert.True(t, features.Empty())

	require.Len(t, body.Requests, 1)
	assert.Nil(t, body.Requests[0].Image.Source)
	assert.Equal(t, "MTIz", body.Requests[0].Image.Content)
}

func TestCloudVisionExtractFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"code":500}}`},
		{"forbidden", http.StatusForbidden, `{"error":{"code":403,"message":"API key not valid"}}`},
		{"missing responses", http.StatusOK, `{}`},
		{"empty responses", http.StatusOK, `{"responses":[]}`},
		{"malformed shape", http.StatusOK, `{"responses":[{"labelAnnotations":"Headphones"}]}`},
		{"per-image error", http.StatusOK, `{"responses":[{"error":{"code":7,"message":"denied"}}]}`},
		{"not json", http.StatusOK, `<html></html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			client := NewCloudVisionClient(CloudVisionOpts{BaseURL: ts.URL, APIKey: "secret"})
			features, err := client.Extract(context.Background(), Image{URI: "https://example.com/a.jpg"})
			assert.Nil(t, features)
			assert.ErrorIs(t, err, ErrUpstreamUnavailable)
		})
	}
}

func TestCloudVisionExtractTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	client := NewCloudVisionClient(CloudVisionOpts{BaseURL: ts.URL, APIKey: "secret", Timeout: 50 * time.Millisecond})
	_, err := client.Extract(context.Background(), Image{URI: "https://example.com/a.jpg"})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestCloudVisionExtractRequiresImage(t *testing.T) {
	client := NewCloudVisionClient(CloudVisionOpts{BaseURL: "http://127.0.0.1:0", APIKey: "secret"})
	_, err := client.Extract(context.Background(), Image{})
	assert.Error(t, err)
}
