package bot

import (
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/raine/price-estimator-bot/internal/estimator"
	"github.com/raine/price-estimator-bot/internal/storage"
)

// maxReplyListings is how many comparable listings a reply shows.
const maxReplyListings = 5

func formatReplyText(text string, a ...any) string {
	return fmt.Sprintf(strings.TrimSpace(dedent.Dedent(text)), a...)
}

func parseCommand(s string) (string, []string) {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return "", nil
	}
	// Commands in groups arrive as /command@botname
	command, _, _ := strings.Cut(parts[0], "@")
	return command, parts[1:]
}

// escapeMarkdown escapes special characters for Telegram Markdown V1
func escapeMarkdown(text string) string {
	text = strings.ReplaceAll(text, "*", "\\*")
	text = strings.ReplaceAll(text, "_", "\\_")
	text = strings.ReplaceAll(text, "`", "\\`")
	text = strings.ReplaceAll(text, "[", "\\[")
	return text
}

// formatEstimate renders an estimate as a Markdown reply. An unavailable
// estimate renders the neutral fallback message.
func formatEstimate(res estimator.Result) string {
	if !res.Available() {
		return MsgNoPricesFound
	}

	lines := []string{
		fmt.Sprintf(MsgEstimateHeader, *res.AvgPrice),
		fmt.Sprintf(MsgEstimateMedian, *res.MedianPrice),
	}
	if res.PriceRange != nil {
		lines = append(lines, fmt.Sprintf(MsgEstimateRange, res.PriceRange.Min, res.PriceRange.Max))
	}
	lines = append(lines, fmt.Sprintf(MsgEstimateConf, res.Confidence))

	if len(res.Listings) > 0 {
		lines = append(lines, "", MsgEstimateListings)
		for i, l := range res.Listings {
			if i == maxReplyListings {
				break
			}
			lines = append(lines, formatListing(l))
		}
	}

	return strings.Join(lines, "\n")
}

func formatListing(l estimator.PriceListing) string {
	// Markdown V1 cannot escape inside link text
	title := strings.NewReplacer("[", "(", "]", ")", "*", "", "_", " ", "`", "'").Replace(strings.TrimSpace(l.Title))
	if title == "" {
		title = "listing"
	}
	if l.URL == "" {
		return fmt.Sprintf("• $%.2f %s", l.Price, title)
	}
	return fmt.Sprintf("• $%.2f [%s](%s)", l.Price, title, l.URL)
}

// formatHistory renders recent estimates, newest first.
func formatHistory(records []storage.EstimateRecord) string {
	if len(records) == 0 {
		return MsgHistoryEmpty
	}

	var sb strings.Builder
	sb.WriteString(MsgHistoryHeader)
	for _, r := range records {
		name := r.Title
		if name == "" {
			name = "untitled"
		}
		price := "no estimate"
		if r.AvgPrice != nil {
			price = "$" + *r.AvgPrice
		}
		sb.WriteString(fmt.Sprintf("• %s %s: %s (%s)\n",
			r.CreatedAt.Format("2006-01-02 15:04"), escapeMarkdown(name), price, r.Confidence))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
