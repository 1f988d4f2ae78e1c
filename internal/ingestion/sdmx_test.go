package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDataDoc = `<?xml version="1.0"?>
<StructureSpecificData>
  <DataSet>
    <Series TERRITORIO="IT" TERRITORIO_label="Italy" TIPO_DATO="POP" TIPO_DATO_label="Population">
      <Obs TIME_PERIOD="2023" OBS_VALUE="59000000" OBS_STATUS="A"/>
      <Obs TIME_PERIOD="2024" OBS_VALUE="58900000" OBS_STATUS="A"/>
    </Series>
  </DataSet>
</StructureSpecificData>`

func TestParseObservationsDecodesSeries(t *testing.T) {
	obs, err := ParseObservations(strings.NewReader(sampleDataDoc), "POPRES1", 1<<20)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "POPRES1", obs[0].DatasetID)
	assert.Equal(t, "IT", obs[0].TerritoryCode)
	assert.Equal(t, uint16(2023), obs[0].Year)
	require.NotNil(t, obs[0].ObsValue)
	assert.Equal(t, 59000000.0, *obs[0].ObsValue)
}

func TestParseObservationsRejectsOversizedInput(t *testing.T) {
	_, err := ParseObservations(strings.NewReader(sampleDataDoc), "POPRES1", 10)
	require.Error(t, err)
}

const sampleDataflowsDoc = `<?xml version="1.0"?>
<Structure>
  <Structures>
    <Dataflows>
      <Dataflow id="POPRES1">
        <Name lang="it">Popolazione residente</Name>
        <Name lang="en">Resident population</Name>
        <Description>Annual resident population by territory</Description>
      </Dataflow>
    </Dataflows>
  </Structures>
</Structure>`

func TestParseDataflowsResolvesBilingualNames(t *testing.T) {
	dataflows, err := ParseDataflows(strings.NewReader(sampleDataflowsDoc), 1<<20)
	require.NoError(t, err)
	require.Len(t, dataflows, 1)
	assert.Equal(t, "POPRES1", dataflows[0].ID)
	assert.Equal(t, "Popolazione residente", dataflows[0].NameIT)
	assert.Equal(t, "Resident population", dataflows[0].NameEN)
}
