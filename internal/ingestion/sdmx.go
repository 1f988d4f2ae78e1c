package ingestion

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/osservatorio-istat/platform/internal/analyticsstore"
	"github.com/osservatorio-istat/platform/internal/xmlsafe"
)

// sdmxGenericData mirrors the handful of SDMX-ML 2.1 structure-specific data
// elements (root <StructureSpecificData>) this service actually consumes.
// ISTAT's real payloads carry far more (attribute groups, dataset-level
// attributes), but fetch_dataset only
// needs the observation series: (time, territory, measure) -> value.
type sdmxGenericData struct {
	XMLName xml.Name      `xml:"StructureSpecificData"`
	Series  []sdmxSeries  `xml:"DataSet>Series"`
}

type sdmxSeries struct {
	TerritoryCode string    `xml:"TERRITORIO,attr"`
	TerritoryName string    `xml:"TERRITORIO_label,attr"`
	MeasureCode   string    `xml:"TIPO_DATO,attr"`
	MeasureName   string    `xml:"TIPO_DATO_label,attr"`
	Obs           []sdmxObs `xml:"Obs"`
}

type sdmxObs struct {
	TimePeriod string `xml:"TIME_PERIOD,attr"`
	ObsValue   string `xml:"OBS_VALUE,attr"`
	ObsStatus  string `xml:"OBS_STATUS,attr"`
}

// ParseObservations decodes an SDMX-ML structure-specific data document into the
// analytics store's Observation rows, bounded to maxBytes per the
// streaming-parser redesign flag. Malformed OBS_VALUE fields are left null
// rather than failing the whole document — SDMX marks missing/confidential
// cells this way routinely.
func ParseObservations(r io.Reader, datasetID string, maxBytes int64) ([]analyticsstore.Observation, error) {
	dec := xmlsafe.NewDecoder(r, maxBytes)

	var doc sdmxGenericData
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("ingestion: decode sdmx data: %w", err)
	}

	var out []analyticsstore.Observation
	for _, series := range doc.Series {
		for _, obs := range series.Obs {
			year, _ := parseYear(obs.TimePeriod)
			o := analyticsstore.Observation{
				DatasetID:     datasetID,
				Year:          year,
				TimePeriod:    obs.TimePeriod,
				TerritoryCode: series.TerritoryCode,
				TerritoryName: series.TerritoryName,
				MeasureCode:   series.MeasureCode,
				MeasureName:   series.MeasureName,
				ObsStatus:     obs.ObsStatus,
			}
			if v, err := strconv.ParseFloat(obs.ObsValue, 64); err == nil {
				o.ObsValue = &v
			}
			out = append(out, o)
		}
	}
	return out, nil
}

// parseYear extracts the leading 4-digit year from a time period like
// "2023", "2023-Q1", or "2023-03".
func parseYear(timePeriod string) (uint16, error) {
	if len(timePeriod) < 4 {
		return 0, fmt.Errorf("ingestion: time period %q too short", timePeriod)
	}
	y, err := strconv.Atoi(timePeriod[:4])
	if err != nil {
		return 0, fmt.Errorf("ingestion: invalid year in time period %q: %w", timePeriod, err)
	}
	return uint16(y), nil
}

// sdmxDataflows mirrors the dataflow-list document §4.J parses: a catalog
// of id + bilingual names + description, much smaller than a full data
// document.
type sdmxDataflows struct {
	XMLName   xml.Name       `xml:"Structure"`
	Dataflows []sdmxDataflow `xml:"Structures>Dataflows>Dataflow"`
}

type sdmxDataflow struct {
	ID          string     `xml:"id,attr"`
	Names       []sdmxName `xml:"Name"`
	Description string     `xml:"Description"`
}

type sdmxName struct {
	Lang  string `xml:"lang,attr"`
	Value string `xml:",chardata"`
}

// Dataflow is the parsed, language-resolved dataflow descriptor §4.J builds
// display names from.
type Dataflow struct {
	ID          string
	NameIT      string
	NameEN      string
	Description string
}

// ParseDataflows decodes an SDMX-ML dataflow-list document, bounded to
// maxBytes.
func ParseDataflows(r io.Reader, maxBytes int64) ([]Dataflow, error) {
	dec := xmlsafe.NewDecoder(r, maxBytes)

	var doc sdmxDataflows
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("ingestion: decode sdmx dataflows: %w", err)
	}

	out := make([]Dataflow, 0, len(doc.Dataflows))
	for _, df := range doc.Dataflows {
		d := Dataflow{ID: df.ID, Description: df.Description}
		for _, n := range df.Names {
			switch n.Lang {
			case "it":
				d.NameIT = n.Value
			case "en":
				d.NameEN = n.Value
			}
		}
		out = append(out, d)
	}
	return out, nil
}
