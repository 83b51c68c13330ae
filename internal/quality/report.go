package quality

import (
	"fmt"
	"strings"
)

// Render prints a table of per-organization quality reports and a closing
// AVERAGE row (the mean of the organizations' overall scores), in the style
// of the batch driver's per-source scrape summary.
func Render(reports []OrganizationReport) string {
	var b strings.Builder
	if len(reports) == 0 {
		b.WriteString("No organizations scored.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%-30s %-6s %-7s %-6s %-10s\n",
		"ORGANIZATION", "DOGS", "SCORE", "TREND", "PREVIOUS",
	)

	var totalScore float64
	for _, r := range reports {
		previous := "n/a"
		if r.PreviousScore != nil {
			previous = fmt.Sprintf("%.1f", *r.PreviousScore)
		}
		fmt.Fprintf(&b, "%-30s %-6d %-7.1f %-6s %-10s\n",
			r.OrganizationName, r.AnimalCount, r.AverageScore.Overall, r.Trend, previous,
		)
		totalScore += r.AverageScore.Overall
	}

	fmt.Fprintf(&b, "---\n")
	fmt.Fprintf(&b, "%-30s %-6s %-7.1f\n", "AVERAGE", "", totalScore/float64(len(reports)))
	return b.String()
}
