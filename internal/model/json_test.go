package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferredFamilies_RoundTrip(t *testing.T) {
	raw, err := EncodePreferredFamilies([]FamilyShare{{Family: "red", Share: 0.6}, {Family: "white", Share: 0.4}})
	require.NoError(t, err)

	decoded, err := DecodePreferredFamilies(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, decoded.SchemaVersion)
	require.Len(t, decoded.Families, 2)
	assert.Equal(t, "red", decoded.Families[0].Family)
	assert.InDelta(t, 0.6, decoded.Families[0].Share, 0.0001)
}

func TestDecodePreferredFamilies_EmptyStringIsNotAnError(t *testing.T) {
	decoded, err := DecodePreferredFamilies("")
	require.NoError(t, err)
	assert.Equal(t, 1, decoded.SchemaVersion)
	assert.Empty(t, decoded.Families)
}

func TestAromaAxes_RoundTrip(t *testing.T) {
	axes := AromaAxes{Fruit: 4, Floral: 1, Spice: 2, Mineral: 3, Acidity: 5, Body: 2, Tannin: 1}
	raw, err := EncodeAromaAxes(axes)
	require.NoError(t, err)

	decoded, err := DecodeAromaAxes(raw)
	require.NoError(t, err)
	assert.Equal(t, axes, decoded)
}

func TestDecodeAromaAxes_EmptyStringYieldsZeroValue(t *testing.T) {
	decoded, err := DecodeAromaAxes("")
	require.NoError(t, err)
	assert.Equal(t, AromaAxes{}, decoded)
}

func TestAromaProfile_RoundTrip(t *testing.T) {
	profile := AromaProfile{Axes: AromaAxes{Fruit: 1}, Confidence: 0.82, Level: "High"}
	raw, err := EncodeAromaProfile(profile)
	require.NoError(t, err)

	decoded, err := DecodeAromaProfile(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, decoded.SchemaVersion)
	assert.Equal(t, "High", decoded.Level)
	assert.InDelta(t, 0.82, decoded.Confidence, 0.0001)
}

func TestEncodeReasons_SerializesTermMap(t *testing.T) {
	raw, err := EncodeReasons(map[string]float64{"popularity": 0.4, "price_fit": 0.6})
	require.NoError(t, err)
	assert.Contains(t, raw, "popularity")
	assert.Contains(t, raw, "price_fit")
}

func TestSummary_RoundTrip(t *testing.T) {
	s := Summary{
		GatingRate: 0.75, TotalClients: 10, TotalRecommendations: 40,
		ScenarioCounts: map[string]int{"winback": 3}, NErrors: 0, NWarns: 2,
		AuditScore: 80, GateExport: true,
	}
	raw, err := EncodeSummary(s)
	require.NoError(t, err)

	decoded, err := DecodeSummary(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, decoded.SchemaVersion)
	assert.Equal(t, 80, decoded.AuditScore)
	assert.True(t, decoded.GateExport)
	assert.Equal(t, 3, decoded.ScenarioCounts["winback"])
}

func TestDecodeSummary_EmptyStringIsNotAnError(t *testing.T) {
	decoded, err := DecodeSummary("")
	require.NoError(t, err)
	assert.Equal(t, Summary{}, decoded)
}
