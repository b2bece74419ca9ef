package domain

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// Resolve returns the first candidate whose geometry contains point.
// The boolean is false when no candidate contains it, which is a normal outcome
// (right-of-way, water, or outside data coverage).
func Resolve(point GeoPoint, candidates []ParcelCandidate) (ParcelCandidate, bool) {
	pt := point.Geometry()
	for _, c := range candidates {
		if Contains(c.Geometry, pt.Coords()) {
			return c, true
		}
	}
	return ParcelCandidate{}, false
}

// Contains reports whether g contains coord, boundary inclusive. Only Polygon
// and MultiPolygon geometries can contain a point.
func Contains(g geom.T, coord geom.Coord) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, coord)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), coord) {
				return true
			}
		}
	}
	return false
}

// polygonContains checks the shell, then rejects points strictly inside a hole.
func polygonContains(p *geom.Polygon, coord geom.Coord) bool {
	if p == nil || p.NumLinearRings() == 0 {
		return false
	}
	layout := p.Layout()
	shell := p.LinearRing(0)
	if xy.LocatePointInRing(layout, coord, shell.FlatCoords()) == location.Exterior {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		hole := p.LinearRing(i)
		if xy.LocatePointInRing(layout, coord, hole.FlatCoords()) == location.Interior {
			return false
		}
	}
	return true
}
