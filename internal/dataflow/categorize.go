package dataflow

import (
	"strings"

	"github.com/osservatorio-istat/platform/internal/ingestion"
	"github.com/osservatorio-istat/platform/internal/rules"
)

// refreshFrequencyByCategory implements §4.J step 4's per-category refresh
// suggestion table.
var refreshFrequencyByCategory = map[string]string{
	rules.CategoryPopolazione: "monthly",
	rules.CategoryEconomia:    "quarterly",
	rules.CategoryLavoro:      "monthly",
	rules.CategoryTerritorio:  "yearly",
	rules.CategoryIstruzione:  "yearly",
	rules.CategorySalute:      "quarterly",
}

// Categorize runs df through activeRules (already ordered by descending
// priority, ties broken by rule_id) and assigns a category plus a
// relevance_score equal to the summed length of every matched keyword. No
// match falls back to "altri" with a score of 0, per §4.J step 2.
func Categorize(df ingestion.Dataflow, activeRules []*rules.Rule) AnalyzedDataflow {
	displayName := DisplayName(df)
	haystack := strings.ToLower(displayName + " " + df.Description)

	analyzed := AnalyzedDataflow{
		ID:          df.ID,
		DisplayName: displayName,
		Description: df.Description,
		Category:    rules.CategoryAltri,
	}

	for _, rule := range activeRules {
		if !rule.IsActive {
			continue
		}
		score := 0
		matched := false
		for _, kw := range rule.Keywords {
			if strings.Contains(haystack, kw) {
				matched = true
				score += len(kw)
			}
		}
		if matched {
			analyzed.Category = rule.Category
			analyzed.RelevanceScore = score
			break
		}
	}

	return analyzed
}

// RefreshFrequency returns the suggested refresh cadence for category,
// defaulting to quarterly per §4.J step 4.
func RefreshFrequency(category string) string {
	if freq, ok := refreshFrequencyByCategory[category]; ok {
		return freq
	}
	return "quarterly"
}

// ConnectionType suggests a BI connection strategy by payload size, per
// §4.J step 4's size thresholds.
func ConnectionType(sizeBytes int64) string {
	switch {
	case sizeBytes <= 5<<20:
		return "direct"
	case sizeBytes <= 50<<20:
		return "sheets_import"
	default:
		return "extract"
	}
}
