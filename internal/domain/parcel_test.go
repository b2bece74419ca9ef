package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupString(t *testing.T) {
	props := map[string]any{
		"blank":  "   ",
		"nil":    nil,
		"price":  float64(1250000),
		"ratio":  0.875,
		"count":  3,
		"num":    json.Number("42"),
		"padded": "  PALM BEACH ",
	}

	tests := []struct {
		name string
		keys []string
		want string
		ok   bool
	}{
		{"large float has no exponent", []string{"price"}, "1250000", true},
		{"fraction", []string{"ratio"}, "0.875", true},
		{"int", []string{"count"}, "3", true},
		{"json number", []string{"num"}, "42", true},
		{"trims strings", []string{"padded"}, "PALM BEACH", true},
		{"skips blank and nil", []string{"blank", "nil", "padded"}, "PALM BEACH", true},
		{"missing", []string{"nope"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LookupString(props, tt.keys...)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupString_NilMap(t *testing.T) {
	_, ok := LookupString(nil, SiteAddressKeys...)
	assert.False(t, ok)
}

func TestGeoPoint_Validate(t *testing.T) {
	assert.NoError(t, palmBeach.Validate())
	assert.Error(t, GeoPoint{Lat: 91}.Validate())
	assert.Error(t, GeoPoint{Lon: -181}.Validate())
	assert.Error(t, GeoPoint{Lat: math.NaN()}.Validate())
}

func TestGeoPoint_CoordIsLonLat(t *testing.T) {
	c := palmBeach.Coord()
	assert.Equal(t, -80.0534, c[0])
	assert.Equal(t, 26.7153, c[1])
}
