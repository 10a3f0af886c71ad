package estimator

import (
	"regexp"
	"strings"

	"github.com/raine/price-estimator-bot/internal/vision"
)

// FallbackQuery is used when no part of a smart query could be built.
const FallbackQuery = "product"

// genericLabels are dropped from labels when choosing a product type. A label
// is dropped if it contains any of these words.
var genericLabels = []string{"object", "product", "item", "thing", "font", "rectangle"}

var (
	capitalizedWordRe = regexp.MustCompile(`^[A-Z][a-z]+$`)
	brandTextRe       = regexp.MustCompile(`^[A-Z][a-z]{2,}$`)
	modelTextRe       = regexp.MustCompile(`\b[A-Z0-9-]{3,}\b`)
	productTypeRe     = regexp.MustCompile(`(?i)\b(phone|laptop|camera|tv|watch|tablet|console)\b`)
)

func filterGenericLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		lower := strings.ToLower(l)
		generic := false
		for _, g := range genericLabels {
			if strings.Contains(lower, g) {
				generic = true
				break
			}
		}
		if !generic {
			out = append(out, l)
		}
	}
	return out
}

func firstMatch(values []string, re *regexp.Regexp) string {
	for _, v := range values {
		if re.MatchString(v) {
			return v
		}
	}
	return ""
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func brandCandidate(title string, f *vision.Features) string {
	if words := strings.Fields(title); len(words) > 0 {
		return words[0]
	}
	if logo := first(f.Logos); logo != "" {
		return logo
	}
	if entity := firstMatch(f.WebEntities, capitalizedWordRe); entity != "" {
		return entity
	}
	return firstMatch(f.Texts, brandTextRe)
}

func modelCandidate(f *vision.Features) string {
	return firstMatch(f.Texts, modelTextRe)
}

func productTypeCandidate(title string, f *vision.Features) string {
	if m := productTypeRe.FindString(title); m != "" {
		return m
	}
	if obj := first(f.Objects); obj != "" {
		return obj
	}
	return first(filterGenericLabels(f.Labels))
}

// BuildSmartQuery combines brand, model, product type and title into one
// query string.
func BuildSmartQuery(title string, f *vision.Features) string {
	if f == nil {
		f = &vision.Features{}
	}
	parts := []string{
		brandCandidate(title, f),
		modelCandidate(f),
		productTypeCandidate(title, f),
		title,
	}

	query := strings.Join(dedupe(parts), " ")
	if query == "" {
		return FallbackQuery
	}
	return query
}

// BuildQueries returns the base queries to search for: the quoted title
// with "price", the smart query and the bare title.
func BuildQueries(title string, f *vision.Features) []string {
	title = strings.TrimSpace(title)
	var queries []string
	if title != "" {
		queries = append(queries, `"`+title+`" price`)
	}
	queries = append(queries, BuildSmartQuery(title, f))
	if title != "" {
		queries = append(queries, title)
	}
	return dedupe(queries)
}

// dedupe trims values and drops empty and repeated ones, keeping order.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
