package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osservatorio-istat/platform/internal/analyticsstore"
)

func floatPtr(v float64) *float64 { return &v }

func TestValidateObservationsEmptyInput(t *testing.T) {
	result := ValidateObservations(nil)
	assert.Contains(t, result.ValidationErrors, "no observations to validate")
}

func TestValidateObservationsFullyComplete(t *testing.T) {
	obs := []analyticsstore.Observation{
		{TimePeriod: "2023", TerritoryCode: "IT", MeasureCode: "POP", ObsValue: floatPtr(1.0)},
		{TimePeriod: "2024", TerritoryCode: "IT", MeasureCode: "POP", ObsValue: floatPtr(2.0)},
	}
	result := ValidateObservations(obs)
	assert.Equal(t, 1.0, result.Completeness)
	assert.Equal(t, 1.0, result.Consistency)
	assert.Equal(t, 1.0, result.QualityScore)
	assert.Empty(t, result.ValidationErrors)
}

func TestValidateObservationsDetectsDuplicateKeys(t *testing.T) {
	obs := []analyticsstore.Observation{
		{TimePeriod: "2023", TerritoryCode: "IT", MeasureCode: "POP", ObsValue: floatPtr(1.0)},
		{TimePeriod: "2023", TerritoryCode: "IT", MeasureCode: "POP", ObsValue: floatPtr(1.0)},
	}
	result := ValidateObservations(obs)
	assert.Less(t, result.Consistency, 1.0)
	assert.NotEmpty(t, result.ValidationErrors)
}

func TestValidateObservationsDetectsNullValues(t *testing.T) {
	obs := []analyticsstore.Observation{
		{TimePeriod: "2023", TerritoryCode: "IT", MeasureCode: "POP", ObsValue: nil},
		{TimePeriod: "2024", TerritoryCode: "IT", MeasureCode: "POP", ObsValue: nil},
	}
	result := ValidateObservations(obs)
	assert.Equal(t, 0.0, result.Completeness)
	assert.Contains(t, result.ValidationErrors, "completeness below 50%")
}
