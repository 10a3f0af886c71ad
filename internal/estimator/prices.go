package estimator

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/raine/price-estimator-bot/internal/search"
)

const (
	MinPrice = 1
	MaxPrice = 100000

	baseConfidence     = 0.3
	trustedBonus       = 0.3
	priceTitleBonus    = 0.1
	maxKeywordBonus    = 0.2
	titleMatchBonus    = 0.1
	minKeywordLength   = 3
	amountCaptureGroup = 1
)

// TrustedDomains are retailers presumed to publish reliable prices.
var TrustedDomains = []string{"amazon.com", "ebay.com", "walmart.com", "bestbuy.com", "target.com"}

// amount matches a number with optional thousands separators and an optional
// two-digit fraction, e.g. 129, 1,299 or 1,299.99.
const amount = `(\d{1,3}(?:,\d{3})+(?:\.\d{2})?|\d+(?:\.\d{2})?)`

var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\s*` + amount),
	regexp.MustCompile(`(?i)USD\s*` + amount),
	regexp.MustCompile(`(?i)` + amount + `\s*(?:USD|dollars?)`),
	regexp.MustCompile(`(?i)from\s*\$\s*` + amount),
	regexp.MustCompile(`(?i)starting at\s*\$\s*` + amount),
}

var priceTitleRe = regexp.MustCompile(`(?i)\$|price`)

// ParsePrices returns the distinct prices mentioned in text, in order of
// first appearance per pattern. Values outside [MinPrice, MaxPrice] are
// ignored.
func ParsePrices(text string) []float64 {
	var prices []float64
	seen := make(map[float64]bool)
	for _, re := range pricePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			value, err := strconv.ParseFloat(strings.ReplaceAll(m[amountCaptureGroup], ",", ""), 64)
			if err != nil || value < MinPrice || value > MaxPrice {
				continue
			}
			if !seen[value] {
				seen[value] = true
				prices = append(prices, value)
			}
		}
	}
	return prices
}

// ExtractPrices turns search results into price listings. query is the
// effective search text used for keyword matching; title is the optional
// user-supplied title. Each distinct price in a result becomes its own
// listing sharing the result's title, URL and confidence.
func ExtractPrices(items []search.Item, query, title string) []PriceListing {
	keywords := queryKeywords(query)
	listings := []PriceListing{}
	for _, item := range items {
		prices := ParsePrices(item.Title + " " + item.Snippet)
		if len(prices) == 0 {
			continue
		}
		confidence := ScoreConfidence(item, keywords, title)
		for _, p := range prices {
			listings = append(listings, PriceListing{
				Title:      item.Title,
				Price:      p,
				URL:        item.URL,
				Confidence: confidence,
			})
		}
	}
	return listings
}

// queryKeywords returns the distinct lowercased words longer than two
// characters, with surrounding quotes stripped.
func queryKeywords(query string) []string {
	var keywords []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, `"'`)
		if len([]rune(w)) < minKeywordLength || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	return keywords
}

// ScoreConfidence scores how trustworthy prices from item are, in [0, 1].
func ScoreConfidence(item search.Item, keywords []string, title string) float64 {
	score := baseConfidence
	if IsTrustedURL(item.URL) {
		score += trustedBonus
	}
	if priceTitleRe.MatchString(item.Title) {
		score += priceTitleBonus
	}

	text := strings.ToLower(item.Title + " " + item.Snippet)
	if len(keywords) > 0 {
		matched := 0
		for _, k := range keywords {
			if strings.Contains(text, k) {
				matched++
			}
		}
		score += math.Min(maxKeywordBonus, float64(matched)/float64(len(keywords))*maxKeywordBonus)
	}

	if title = strings.TrimSpace(title); title != "" && strings.Contains(text, strings.ToLower(title)) {
		score += titleMatchBonus
	}

	return math.Min(score, 1)
}

// IsTrustedURL reports whether rawURL's host is a trusted domain or one of
// its subdomains.
func IsTrustedURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, d := range TrustedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
