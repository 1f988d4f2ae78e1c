package odata

// EntitySets is the list of entity sets the service document and
// $metadata both advertise, per §6.2.
var EntitySets = []string{"Datasets", "Observations", "Territories", "Measures"}

// ServiceDocument builds the OData v4 service document body.
func ServiceDocument(baseURL string) map[string]interface{} {
	values := make([]map[string]interface{}, 0, len(EntitySets))
	for _, name := range EntitySets {
		values = append(values, map[string]interface{}{
			"name": name,
			"kind": "EntitySet",
			"url":  name,
		})
	}
	return map[string]interface{}{
		"@odata.context": baseURL + "/odata/$metadata",
		"value":          values,
	}
}

// metadataXML is the CSDL EDMX document describing the four entity sets
// and their shapes. It's static because the schema itself never changes
// at runtime.
const metadataXML = `<?xml version="1.0" encoding="utf-8"?>
<edmx:Edmx Version="4.0" xmlns:edmx="http://docs.oasis-open.org/odata/ns/edmx">
  <edmx:DataServices>
    <Schema Namespace="Istat" xmlns="http://docs.oasis-open.org/odata/ns/edm">
      <EntityType Name="Dataset">
        <Key><PropertyRef Name="DatasetId"/></Key>
        <Property Name="DatasetId" Type="Edm.String" Nullable="false"/>
        <Property Name="Name" Type="Edm.String"/>
        <Property Name="Category" Type="Edm.String"/>
        <Property Name="Description" Type="Edm.String"/>
        <Property Name="Agency" Type="Edm.String"/>
        <Property Name="Status" Type="Edm.String"/>
        <Property Name="RecordsSynced" Type="Edm.Int64"/>
      </EntityType>
      <EntityType Name="Observation">
        <Key>
          <PropertyRef Name="DatasetId"/>
          <PropertyRef Name="TimePeriod"/>
          <PropertyRef Name="TerritoryCode"/>
          <PropertyRef Name="MeasureCode"/>
        </Key>
        <Property Name="DatasetId" Type="Edm.String" Nullable="false"/>
        <Property Name="Year" Type="Edm.Int32"/>
        <Property Name="TimePeriod" Type="Edm.String"/>
        <Property Name="TerritoryCode" Type="Edm.String"/>
        <Property Name="TerritoryName" Type="Edm.String"/>
        <Property Name="MeasureCode" Type="Edm.String"/>
        <Property Name="MeasureName" Type="Edm.String"/>
        <Property Name="ObsValue" Type="Edm.Double"/>
        <Property Name="ObsStatus" Type="Edm.String"/>
      </EntityType>
      <EntityType Name="Territory">
        <Key><PropertyRef Name="TerritoryCode"/></Key>
        <Property Name="TerritoryCode" Type="Edm.String" Nullable="false"/>
        <Property Name="TerritoryName" Type="Edm.String"/>
      </EntityType>
      <EntityType Name="Measure">
        <Key><PropertyRef Name="MeasureCode"/></Key>
        <Property Name="MeasureCode" Type="Edm.String" Nullable="false"/>
        <Property Name="MeasureName" Type="Edm.String"/>
      </EntityType>
      <EntityContainer Name="Container">
        <EntitySet Name="Datasets" EntityType="Istat.Dataset"/>
        <EntitySet Name="Observations" EntityType="Istat.Observation"/>
        <EntitySet Name="Territories" EntityType="Istat.Territory"/>
        <EntitySet Name="Measures" EntityType="Istat.Measure"/>
      </EntityContainer>
    </Schema>
  </edmx:DataServices>
</edmx:Edmx>`

// MetadataXML returns the static CSDL document served at /odata/$metadata.
func MetadataXML() string {
	return metadataXML
}
