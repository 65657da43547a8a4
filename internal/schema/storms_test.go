package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStorms_Shapes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantShape StormShape
		wantLen   int
	}{
		{"bare list", `[{"id":"al01","name":"Alberto"}]`, ShapeList, 1},
		{"storms wrapper", `{"storms":[{"name":"A"},{"name":"B"}]}`, ShapeStorms, 2},
		{"activeStorms wrapper", `{"activeStorms":[{"stormName":"C"}]}`, ShapeActiveStorms, 1},
		{"empty active list", `{"activeStorms":[]}`, ShapeActiveStorms, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodeStorms([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.wantShape, p.Shape)
			assert.Len(t, p.Storms, tt.wantLen)
		})
	}
}

func TestDecodeStorms_FieldVariantsAndDefaults(t *testing.T) {
	body := `{"activeStorms":[
	  {"id":"al052024","stormName":"Ernesto","basinId":"AL","advisoryNumber":"12A","classification":"HU","latitudeNumeric":25.1,"longitudeNumeric":-66.3},
	  {"lat":"18.4","lon":"bad"},
	  {"name":"Gil","advisory":7,"latitude":"14.2N","longitude":"120.5W"},
	  {"id":"al01","name":"Alpha","lat":"Infinity","lon":"-Inf"},
	  {"id":"al02","name":"Beta","lat":"NaN","lon":"181"},
	  {"id":"al03","name":"Gamma","lat":-91,"latitude":"22.5","lon":"-80"}
	]}`

	p, err := DecodeStorms([]byte(body))
	require.NoError(t, err)
	require.Len(t, p.Storms, 6)

	first := p.Storms[0]
	assert.Equal(t, "al052024", first.ID)
	assert.Equal(t, "Ernesto", first.Name)
	assert.Equal(t, "AL", first.Basin)
	assert.Equal(t, "12A", first.Advisory)
	assert.Equal(t, "HU", first.Status)
	require.NotNil(t, first.Lat)
	assert.InDelta(t, 25.1, *first.Lat, 1e-9)
	assert.InDelta(t, -66.3, *first.Lon, 1e-9)

	second := p.Storms[1]
	assert.Equal(t, "1", second.ID)
	assert.Equal(t, "Storm", second.Name)
	assert.Equal(t, "ATL/EPAC", second.Basin)
	require.NotNil(t, second.Lat)
	assert.InDelta(t, 18.4, *second.Lat, 1e-9)
	assert.Nil(t, second.Lon)

	third := p.Storms[2]
	assert.Equal(t, "2", third.ID)
	assert.Equal(t, "7", third.Advisory)
	assert.InDelta(t, 14.2, *third.Lat, 1e-9)
	assert.InDelta(t, -120.5, *third.Lon, 1e-9)

	infinite := p.Storms[3]
	assert.Equal(t, "Alpha", infinite.Name)
	assert.Nil(t, infinite.Lat)
	assert.Nil(t, infinite.Lon)

	outOfRange := p.Storms[4]
	assert.Nil(t, outOfRange.Lat)
	assert.Nil(t, outOfRange.Lon)

	// An out-of-range key is skipped in favour of the next variant.
	fallback := p.Storms[5]
	require.NotNil(t, fallback.Lat)
	assert.InDelta(t, 22.5, *fallback.Lat, 1e-9)
	assert.InDelta(t, -80, *fallback.Lon, 1e-9)
}

func TestDecodeStorms_Violations(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantPath string
	}{
		{"empty body", ``, "$"},
		{"scalar", `42`, "$"},
		{"object without list", `{"meta":{}}`, "storms"},
		{"null entry", `[null]`, "storms[0]"},
		{"truncated", `{"storms":[{"name":`, "$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeStorms([]byte(tt.body))
			v := requireViolation(t, err)
			assert.Equal(t, "storms", v.Source)
			assert.Equal(t, tt.wantPath, v.Path)
		})
	}
}
