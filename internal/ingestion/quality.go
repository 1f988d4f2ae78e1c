package ingestion

import (
	"fmt"

	"github.com/osservatorio-istat/platform/internal/analyticsstore"
)

// QualityResult mirrors the teacher's ValidationResult shape, narrowed to
// the three measures §4.G asks for: completeness, consistency, and a
// combined 0-1 score.
type QualityResult struct {
	Completeness     float64  `json:"completeness"`
	Consistency      float64  `json:"consistency"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
	QualityScore     float64  `json:"quality_score"`
}

// ValidateObservations computes completeness (fraction of observations with
// a non-null Value), consistency (no duplicate (time_period, territory_code,
// measure_code) keys), and a blended quality_score. It mirrors the weighting
// shape of the teacher's calculateQualityScore without the freshness/anomaly
// components, which don't apply to a point-in-time batch of already-published
// statistics.
func ValidateObservations(observations []analyticsstore.Observation) *QualityResult {
	result := &QualityResult{ValidationErrors: make([]string, 0)}

	if len(observations) == 0 {
		result.ValidationErrors = append(result.ValidationErrors, "no observations to validate")
		return result
	}

	nonNull := 0
	seen := make(map[string]int, len(observations))
	for _, obs := range observations {
		if obs.ObsValue != nil {
			nonNull++
		}
		key := fmt.Sprintf("%s|%s|%s", obs.TimePeriod, obs.TerritoryCode, obs.MeasureCode)
		seen[key]++
	}

	result.Completeness = float64(nonNull) / float64(len(observations))

	duplicates := 0
	for key, count := range seen {
		if count > 1 {
			duplicates++
			result.ValidationErrors = append(result.ValidationErrors, fmt.Sprintf("duplicate observation key %q seen %d times", key, count))
		}
	}
	result.Consistency = 1.0 - float64(duplicates)/float64(len(seen))

	if result.Completeness < 0.5 {
		result.ValidationErrors = append(result.ValidationErrors, "completeness below 50%")
	}

	result.QualityScore = 0.6*result.Completeness + 0.4*result.Consistency
	return result
}
