package domain

import (
	"errors"
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
)

// GeoPoint is a WGS-84 coordinate created per user interaction.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lng"`
}

// Validate reports whether the point is a usable WGS-84 coordinate.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return errors.New("coordinate is NaN")
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", p.Lon)
	}
	return nil
}

// Coord returns the point in go-geom XY order: longitude first.
func (p GeoPoint) Coord() geom.Coord {
	return geom.Coord{p.Lon, p.Lat}
}

// Geometry builds a go-geom point from (lon, lat).
func (p GeoPoint) Geometry() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat})
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}
