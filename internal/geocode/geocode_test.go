package geocode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupKnownRegion(t *testing.T) {
	r := Lookup(39.7392, -104.9903) // Denver, US
	assert.Equal(t, "USA", r.CountryISO3)
	assert.Equal(t, "US", r.CountryISO2)
}

func TestLookupUnknownRegion(t *testing.T) {
	r := Lookup(0, 0) // Gulf of Guinea, no region covers this
	assert.Equal(t, Result{}, r)
}

func TestLookupNaNIsSafe(t *testing.T) {
	r := Lookup(math.NaN(), math.NaN())
	assert.Equal(t, Result{}, r)
}

func TestISO2To3(t *testing.T) {
	v, ok := ISO2To3("DE")
	assert.True(t, ok)
	assert.Equal(t, "DEU", v)

	_, ok = ISO2To3("ZZ")
	assert.False(t, ok)
}
