package repository

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osservatorio-istat/platform/internal/analyticsstore"
	"github.com/osservatorio-istat/platform/internal/metadatastore"
)

func TestPreferenceCacheKeyIsNamespacedPerUser(t *testing.T) {
	k1 := preferenceCacheKey("user-1", "default_format")
	k2 := preferenceCacheKey("user-2", "default_format")
	assert.NotEqual(t, k1, k2)
	assert.Equal(t, "pref:user-1:default_format", k1)
}

func TestErrStringHandlesNil(t *testing.T) {
	assert.Equal(t, "", errString(nil))
}

func TestDatasetViewSerializesAnalyticsStats(t *testing.T) {
	view := &DatasetView{
		Dataset:   &metadatastore.Dataset{DatasetID: "TEST_DATASET", Category: "test"},
		Analytics: &analyticsstore.Stats{},
	}

	raw, err := json.Marshal(view)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, false, decoded["has_analytics_data"])
	stats, ok := decoded["analytics_stats"].(map[string]interface{})
	require.True(t, ok, "analytics_stats must be present when stats were computed")
	assert.Equal(t, float64(0), stats["record_count"])
}

func TestDatasetViewOmitsStatsWhenUnavailable(t *testing.T) {
	view := &DatasetView{Dataset: &metadatastore.Dataset{DatasetID: "TEST_DATASET"}}

	raw, err := json.Marshal(view)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	_, present := decoded["analytics_stats"]
	assert.False(t, present)
}
