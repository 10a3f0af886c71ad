package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSearch(t *testing.T) {
	var req *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req = r
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"kind": "customsearch#search",
			"items": [
				{"title": "Sony WH-1000XM4 - Amazon.com", "snippet": "Buy now for $129.99 only!", "link": "https://www.amazon.com/dp/B0863TXGM3", "displayLink": "www.amazon.com"},
				{"title": "Sony headphones review", "snippet": "Great sound.", "link": "https://example.com/review"}
			]
		}`))
	}))
	defer ts.Close()

	client := NewClient(ClientOpts{BaseURL: ts.URL, APIKey: "key", SearchEngineID: "cx"})
	items, err := client.Search(context.Background(), `"Sony Headphones" price`)
	require.NoError(t, err)

	assert.Equal(t, "/customsearch/v1", req.URL.Path)
	q := req.URL.Query()
	assert.Equal(t, "key", q.Get("key"))
	assert.Equal(t, "cx", q.Get("cx"))
	assert.Equal(t, `"Sony Headphones" price`, q.Get("q"))
	assert.Equal(t, "10", q.Get("num"))

	assert.Equal(t, []Item{
		{Title: "Sony WH-1000XM4 - Amazon.com", Snippet: "Buy now for $129.99 only!", URL: "https://www.amazon.com/dp/B0863TXGM3"},
		{Title: "Sony headphones review", Snippet: "Great sound.", URL: "https://example.com/review"},
	}, items)
}

func TestClientSearchNoItems(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"kind": "customsearch#search", "searchInformation": {"totalResults": "0"}}`))
	}))
	defer ts.Close()

	client := NewClient(ClientOpts{BaseURL: ts.URL, APIKey: "key", SearchEngineID: "cx"})
	items, err := client.Search(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestClientSearchFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"code":429}}`},
		{"bad request", http.StatusBadRequest, `{"error":{"code":400}}`},
		{"malformed items", http.StatusOK, `{"items": {"title": "x"}}`},
		{"not json", http.StatusOK, `oops`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			client := NewClient(ClientOpts{BaseURL: ts.URL, APIKey: "key", SearchEngineID: "cx"})
			items, err := client.Search(context.Background(), "q")
			assert.Nil(t, items)
			assert.ErrorIs(t, err, ErrUpstreamUnavailable)
		})
	}
}
