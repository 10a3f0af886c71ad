package estimator

// PriceListing is one price mention extracted from a search result.
type PriceListing struct {
	Title      string  `json:"title"`
	Price      float64 `json:"price"`
	URL        string  `json:"url"`
	Confidence float64 `json:"confidence"`
}

// PriceRange is the lowest and highest price among the kept listings.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Confidence is the overall trust label of an estimate.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Result is the output of one estimate. AvgPrice is nil when no estimate
// could be made; callers should render a neutral fallback in that case.
type Result struct {
	Labels      []string       `json:"labels"`
	AvgPrice    *string        `json:"avgPrice"`
	MedianPrice *string        `json:"medianPrice"`
	PriceRange  *PriceRange    `json:"priceRange"`
	Listings    []PriceListing `json:"listings"`
	Confidence  Confidence     `json:"confidence"`
	SearchQuery string         `json:"searchQuery"`
}

// Available reports whether the result carries a price estimate.
func (r Result) Available() bool {
	return r.AvgPrice != nil
}

// EmptyResult returns the "no estimate" result.
func EmptyResult(labels []string, query string) Result {
	if labels == nil {
		labels = []string{}
	}
	return Result{
		Labels:      labels,
		Listings:    []PriceListing{},
		Confidence:  ConfidenceLow,
		SearchQuery: query,
	}
}

// Outcome names how an estimate ended.
type Outcome string

const (
	OutcomeOK                    Outcome = "ok"
	OutcomeConfigurationMissing  Outcome = "configuration_missing"
	OutcomeUpstreamUnavailable   Outcome = "upstream_unavailable"
	OutcomeNoSignal              Outcome = "no_signal"
	OutcomeNoResults             Outcome = "no_results"
	OutcomeNoPrices              Outcome = "no_prices"
	OutcomeAllFilteredAsOutliers Outcome = "all_filtered_as_outliers"
	OutcomeInternalError         Outcome = "internal_error"
)
