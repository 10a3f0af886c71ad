package estimator

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// MaxListings is the default number of listings returned with a result.
const MaxListings = 10

const (
	minOutlierSample = 4
	iqrMultiplier    = 1.5

	highConfidence   = 0.7
	mediumConfidence = 0.5
)

// Summary holds the statistics computed over the kept listings.
type Summary struct {
	AvgPrice    string
	MedianPrice string
	PriceRange  PriceRange
	Confidence  Confidence
}

// IQRBand returns the acceptance band [q1-1.5*iqr, q3+1.5*iqr] of prices.
// Quartiles are taken at floor(n*0.25) and floor(n*0.75) of the sorted
// prices. prices must not be empty.
func IQRBand(prices []float64) (lo, hi float64) {
	sorted := slices.Clone(prices)
	slices.Sort(sorted)
	n := len(sorted)
	q1 := sorted[int(math.Floor(float64(n)*0.25))]
	q3 := sorted[int(math.Floor(float64(n)*0.75))]
	iqr := q3 - q1
	return q1 - iqrMultiplier*iqr, q3 + iqrMultiplier*iqr
}

// FilterOutliers drops listings whose price falls outside the IQR band and
// sorts the rest by confidence, highest first. With fewer than four listings
// there is too little data and the input is returned unchanged.
func FilterOutliers(listings []PriceListing) []PriceListing {
	if len(listings) < minOutlierSample {
		return listings
	}

	prices := make([]float64, len(listings))
	for i, l := range listings {
		prices[i] = l.Price
	}
	lo, hi := IQRBand(prices)

	kept := []PriceListing{}
	for _, l := range listings {
		if l.Price >= lo && l.Price <= hi {
			kept = append(kept, l)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Confidence > kept[j].Confidence
	})
	return kept
}

// Summarize computes average, median, range and the overall confidence label
// of listings. listings must not be empty.
func Summarize(listings []PriceListing) Summary {
	prices := make([]float64, len(listings))
	var total, confidence float64
	for i, l := range listings {
		prices[i] = l.Price
		total += l.Price
		confidence += l.Confidence
	}
	slices.Sort(prices)

	n := len(prices)
	median := prices[n/2]
	if n%2 == 0 {
		median = (prices[n/2-1] + prices[n/2]) / 2
	}

	return Summary{
		AvgPrice:    fmt.Sprintf("%.2f", total/float64(n)),
		MedianPrice: fmt.Sprintf("%.2f", median),
		PriceRange:  PriceRange{Min: prices[0], Max: prices[n-1]},
		Confidence:  ConfidenceLabel(confidence / float64(n)),
	}
}

// ConfidenceLabel maps a mean listing confidence to a label.
func ConfidenceLabel(mean float64) Confidence {
	switch {
	case mean > highConfidence:
		return ConfidenceHigh
	case mean > mediumConfidence:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
