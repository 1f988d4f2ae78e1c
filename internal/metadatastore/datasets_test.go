package metadatastore

import (
	"context"
	"testing"
)

func TestValidateDatasetID(t *testing.T) {
	cases := []struct {
		id      string
		wantErr bool
	}{
		{"DCCN_POPRES1", false},
		{"IT1", false},
		{"ab", true},              // too short
		{"has space", true},       // invalid rune
		{"_leading", true},        // leading separator
		{"trailing_", true},       // trailing separator
		{"double__sep", true},     // consecutive separators
	}
	for _, c := range cases {
		err := ValidateDatasetID(c.id)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateDatasetID(%q) error = %v, wantErr %v", c.id, err, c.wantErr)
		}
	}
}

func TestSuggestDatasetID(t *testing.T) {
	cases := map[string]string{
		"  Population  Residents ": "POPULATION_RESIDENTS",
		"dccn/popres1":             "DCCN_POPRES1",
		"!!!":                      "DATASET",
		"already_OK-123":           "ALREADY_OK-123",
	}
	for in, want := range cases {
		got := SuggestDatasetID(in)
		if got != want {
			t.Errorf("SuggestDatasetID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDatasetIDRoundTripsThroughValidation(t *testing.T) {
	messy := []string{"  weird id!!", "123", "a--b", ""}
	for _, m := range messy {
		suggested := SuggestDatasetID(m)
		if err := ValidateDatasetID(suggested); err != nil {
			t.Errorf("suggested id %q for input %q still fails validation: %v", suggested, m, err)
		}
	}
}

// TestDatasetRepoGetNotFoundType checks that NotFoundError, the type
// DatasetRepo.Get returns for a missing row, satisfies error with a
// non-empty message. It builds no Store and runs no query.
func TestDatasetRepoGetNotFoundType(t *testing.T) {
	err := &NotFoundError{Resource: "dataset", ID: "MISSING"}
	if err.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
	var _ error = err
	_ = context.Background()
}
