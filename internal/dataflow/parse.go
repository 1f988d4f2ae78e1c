// Package dataflow implements the dataflow analysis service (§4.J): parsing
// an SDMX dataflow-list document, categorizing each dataflow against active
// rules, and optionally probing upstream data access.
package dataflow

import (
	"io"
	"strings"

	"github.com/osservatorio-istat/platform/internal/ingestion"
)

// maxUploadBytes bounds uploaded/posted SDMX documents, per §5's streaming-
// parser size cap.
const maxUploadBytes = 16 << 20 // 16 MiB

// AnalyzedDataflow is one dataflow after parsing, categorization, and
// (optionally) an access probe.
type AnalyzedDataflow struct {
	ID              string  `json:"id"`
	DisplayName     string  `json:"display_name"`
	Description     string  `json:"description"`
	Category        string  `json:"category"`
	RelevanceScore  int     `json:"relevance_score"`
	TableauReady    bool    `json:"tableau_ready,omitempty"`
	ConnectionType  string  `json:"connection_type,omitempty"`
	RefreshFreq     string  `json:"refresh_frequency,omitempty"`
	Probe           *Probe  `json:"probe,omitempty"`
}

// ParseDataflows reads an SDMX dataflow-list document from r and returns
// the raw parsed dataflows, ready for categorization.
func ParseDataflows(r io.Reader) ([]ingestion.Dataflow, error) {
	return ingestion.ParseDataflows(r, maxUploadBytes)
}

// DisplayName derives the stable display name §4.J step 1 requires:
// Italian preferred, English fallback, id last.
func DisplayName(df ingestion.Dataflow) string {
	if strings.TrimSpace(df.NameIT) != "" {
		return df.NameIT
	}
	if strings.TrimSpace(df.NameEN) != "" {
		return df.NameEN
	}
	return df.ID
}
