package sourcetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() Table {
	return Table{
		Casters: []CasterEntry{{Host: "caster.example.com", Port: 2101, Identifier: "ExampleCaster", Country: "DEU"}},
		Mounts: []StreamEntry{
			{Name: "MT01", Format: "RTCM 3.3", CountryCode: "DEU", Bitrate: 9600},
			{Name: "MT02", Format: "RTCM 3.3", CountryCode: "USA", Bitrate: 4800},
		},
	}
}

func TestTableStringEndsWithMarker(t *testing.T) {
	s := sampleTable().String()
	assert.Contains(t, s, "ENDSOURCETABLE")
	assert.Contains(t, s, "STR;MT01;")
	assert.Contains(t, s, "CAS;caster.example.com;2101;")
}

func TestFilterByCountryCode(t *testing.T) {
	filtered, err := sampleTable().Filter("?STR;;;;;;;;DEU")
	require.NoError(t, err)
	require.Len(t, filtered.Mounts, 1)
	assert.Equal(t, "MT01", filtered.Mounts[0].Name)
}

func TestFilterByBitrateComparison(t *testing.T) {
	filtered, err := sampleTable().Filter("?bitrate>5000")
	require.NoError(t, err)
	require.Len(t, filtered.Mounts, 1)
	assert.Equal(t, "MT01", filtered.Mounts[0].Name)
}

func TestFilterEmptyQueryReturnsAll(t *testing.T) {
	filtered, err := sampleTable().Filter("")
	require.NoError(t, err)
	assert.Len(t, filtered.Mounts, 2)
}

func TestParseRoundTrip(t *testing.T) {
	body := sampleTable().String()
	parsed, errs := Parse(body)
	assert.Empty(t, errs)
	require.Len(t, parsed.Mounts, 2)
	assert.Equal(t, "MT01", parsed.Mounts[0].Name)
	assert.Equal(t, 9600, parsed.Mounts[0].Bitrate)
}

func TestParseInvalidConditionErrors(t *testing.T) {
	_, err := sampleTable().Filter("?notanoperator")
	assert.Error(t, err)
}
