package dataflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osservatorio-istat/platform/internal/ingestion"
	"github.com/osservatorio-istat/platform/internal/rules"
)

func sampleRules() []*rules.Rule {
	return []*rules.Rule{
		{RuleID: "a_pop", Category: rules.CategoryPopolazione, Keywords: []string{"popolazione", "residenti"}, Priority: 10, IsActive: true},
		{RuleID: "b_eco", Category: rules.CategoryEconomia, Keywords: []string{"pil"}, Priority: 5, IsActive: true},
		{RuleID: "c_inactive", Category: rules.CategorySalute, Keywords: []string{"popolazione"}, Priority: 20, IsActive: false},
	}
}

func TestCategorizeMatchesHighestPriorityActiveRule(t *testing.T) {
	df := ingestion.Dataflow{ID: "POPRES1", NameIT: "Popolazione residente", Description: "dati demografici"}
	analyzed := Categorize(df, sampleRules())
	assert.Equal(t, rules.CategoryPopolazione, analyzed.Category)
	assert.Greater(t, analyzed.RelevanceScore, 0)
}

func TestCategorizeFallsBackToAltriWhenNoMatch(t *testing.T) {
	df := ingestion.Dataflow{ID: "UNKNOWN1", NameIT: "Qualcosa di inedito", Description: ""}
	analyzed := Categorize(df, sampleRules())
	assert.Equal(t, rules.CategoryAltri, analyzed.Category)
	assert.Equal(t, 0, analyzed.RelevanceScore)
}

func TestDisplayNamePrefersItalianThenEnglishThenID(t *testing.T) {
	assert.Equal(t, "IT", DisplayName(ingestion.Dataflow{ID: "X", NameIT: "IT"}))
	assert.Equal(t, "EN", DisplayName(ingestion.Dataflow{ID: "X", NameEN: "EN"}))
	assert.Equal(t, "X", DisplayName(ingestion.Dataflow{ID: "X"}))
}

func TestRefreshFrequencyDefaultsToQuarterly(t *testing.T) {
	assert.Equal(t, "monthly", RefreshFrequency(rules.CategoryPopolazione))
	assert.Equal(t, "yearly", RefreshFrequency(rules.CategoryTerritorio))
	assert.Equal(t, "quarterly", RefreshFrequency(rules.CategoryAltri))
}

func TestConnectionTypeBySize(t *testing.T) {
	assert.Equal(t, "direct", ConnectionType(1<<20))
	assert.Equal(t, "sheets_import", ConnectionType(10<<20))
	assert.Equal(t, "extract", ConnectionType(100<<20))
}
