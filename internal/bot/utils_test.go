package bot

import (
	"strings"
	"testing"

	"github.com/raine/price-estimator-bot/internal/estimator"
	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	command, args := parseCommand("/admin  users add 42")
	assert.Equal(t, "/admin", command)
	assert.Equal(t, []string{"users", "add", "42"}, args)

	command, args = parseCommand("/history@price_bot")
	assert.Equal(t, "/history", command)
	assert.Empty(t, args)

	command, args = parseCommand("   ")
	assert.Equal(t, "", command)
	assert.Nil(t, args)
}

func TestFormatEstimate(t *testing.T) {
	want := "*Estimated price: $129.99*\n" +
		"Median: $129.99\n" +
		"Range: $129.99 – $129.99\n" +
		"Confidence: medium\n" +
		"\n" +
		"*Comparable listings*\n" +
		"• $129.99 [Sony WH-1000XM4](https://www.amazon.com/dp/1)"
	assert.Equal(t, want, formatEstimate(sampleResult()))
}

func TestFormatEstimateUnavailable(t *testing.T) {
	assert.Equal(t, MsgNoPricesFound, formatEstimate(estimator.EmptyResult([]string{"Mug"}, "Mug")))
}

func TestFormatEstimateLimitsListings(t *testing.T) {
	res := sampleResult()
	res.Listings = make([]estimator.PriceListing, 8)
	for i := range res.Listings {
		res.Listings[i] = estimator.PriceListing{Title: "Mug", Price: 10, URL: "https://example.com"}
	}
	text := formatEstimate(res)
	assert.Equal(t, maxReplyListings, strings.Count(text, "• $10.00"))
}

func TestFormatListing(t *testing.T) {
	assert.Equal(t, "• $5.00 [Mug (large) best](https://example.com)",
		formatListing(estimator.PriceListing{Title: "*Mug* [large] best", Price: 5, URL: "https://example.com"}))
	assert.Equal(t, "• $5.00 listing", formatListing(estimator.PriceListing{Price: 5}))
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `a\_b\*c\`+"`"+`d\[e`, escapeMarkdown("a_b*c`d[e"))
}
