/*
Copyright © 2024 the Cate authors.
This file is part of Cate.

Cate is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Cate is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Cate.  If not, see <http://www.gnu.org/licenses/>.
*/

package cate

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
)

// An Extent is a geographic bounding box in degrees with LatMin <= LatMax.
// LonMin > LonMax signals a box that crosses the antimeridian when the
// extent was given explicitly.
type Extent struct {
	LonMin, LatMin, LonMax, LatMax float64
}

// Legal reports whether the extent lies within the legal longitude and
// latitude ranges.
func (e Extent) Legal() bool {
	return e.LonMin >= -180 && e.LonMin <= 180 &&
		e.LonMax >= -180 && e.LonMax <= 180 &&
		e.LatMin >= -90 && e.LatMin <= 90 &&
		e.LatMax >= -90 && e.LatMax <= 90 &&
		e.LatMin <= e.LatMax
}

// Polygon returns the rectangle described by the extent as a closed ring.
func (e Extent) Polygon() geom.Polygon {
	return geom.Polygon{{
		{X: e.LonMin, Y: e.LatMin},
		{X: e.LonMax, Y: e.LatMin},
		{X: e.LonMax, Y: e.LatMax},
		{X: e.LonMin, Y: e.LatMax},
		{X: e.LonMin, Y: e.LatMin},
	}}
}

// A Region is the resolved form of a user-supplied region specification:
// either an explicit extent or an arbitrary polygon. Explicit extents
// bypass polygon masking; polygon-derived ones are subject to it.
type Region struct {
	Polygon geom.Polygon
	Extent  Extent
	// Explicit records whether the extent was given literally rather than
	// derived from a polygon.
	Explicit bool
}

// NewExtentRegion builds a region from four explicit box coordinates.
// lonMin > lonMax is accepted and denotes an antimeridian-crossing box.
func NewExtentRegion(lonMin, latMin, lonMax, latMax float64) Region {
	e := Extent{LonMin: lonMin, LatMin: latMin, LonMax: lonMax, LatMax: latMax}
	return Region{Polygon: e.Polygon(), Extent: e, Explicit: true}
}

// NewPolygonRegion builds a region from a polygon, healing invalid input
// through boolean-op reconstruction. It fails with a ValidationError if no
// valid polygon can be obtained.
func NewPolygonRegion(p geom.Polygon) (Region, error) {
	if !polygonValid(p) {
		p = repairPolygon(p)
		if !polygonValid(p) {
			return Region{}, newValidationError("region polygon is invalid and could not be repaired")
		}
	}
	b := p.Bounds()
	e := Extent{LonMin: b.Min.X, LatMin: b.Min.Y, LonMax: b.Max.X, LatMax: b.Max.Y}
	return Region{Polygon: p, Extent: e, Explicit: false}, nil
}

// ParseRegion resolves an ambiguous region specification (an Extent, four
// numbers, a comma-separated extent string, a WKT POLYGON, GeoJSON bytes,
// or an already-typed polygon) into a Region. Downstream code operates
// only on the resolved value.
func ParseRegion(spec interface{}) (Region, error) {
	switch v := spec.(type) {
	case Region:
		return v, nil
	case Extent:
		return NewExtentRegion(v.LonMin, v.LatMin, v.LonMax, v.LatMax), nil
	case [4]float64:
		return NewExtentRegion(v[0], v[1], v[2], v[3]), nil
	case []float64:
		if len(v) == 4 {
			return NewExtentRegion(v[0], v[1], v[2], v[3]), nil
		}
		return Region{}, newValidationError("a numeric region must have exactly 4 values, got %d", len(v))
	case geom.Polygon:
		return NewPolygonRegion(v)
	case geom.Polygonal:
		polys := v.Polygons()
		if len(polys) != 1 {
			return Region{}, newValidationError("a region must be a single polygon, got %d", len(polys))
		}
		return NewPolygonRegion(polys[0])
	case []geom.Point:
		return NewPolygonRegion(geom.Polygon{v})
	case []byte:
		return parseRegionString(string(v))
	case string:
		return parseRegionString(v)
	}
	return Region{}, newValidationError("cannot determine an extent from region type %T", spec)
}

func parseRegionString(s string) (Region, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Region{}, newValidationError("empty region specification")
	}
	if coords, ok := parseNumberList(s); ok {
		if len(coords) != 4 {
			return Region{}, newValidationError("a numeric region must have exactly 4 values, got %d", len(coords))
		}
		return NewExtentRegion(coords[0], coords[1], coords[2], coords[3]), nil
	}
	if strings.HasPrefix(strings.ToUpper(s), "POLYGON") {
		p, err := parseWKTPolygon(s)
		if err != nil {
			return Region{}, err
		}
		return NewPolygonRegion(p)
	}
	if strings.HasPrefix(s, "{") {
		g, err := geojson.Decode([]byte(s))
		if err != nil {
			return Region{}, newValidationError("invalid GeoJSON region: %v", err)
		}
		return ParseRegion(g)
	}
	return Region{}, newValidationError("cannot determine an extent from region %q", s)
}

func parseNumberList(s string) ([]float64, bool) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// parseWKTPolygon parses a WKT POLYGON with an optional hole ring. Only the
// POLYGON geometry type is supported; region input never needs more.
func parseWKTPolygon(s string) (geom.Polygon, error) {
	s = strings.TrimSpace(s)
	if len(s) < len("POLYGON") || !strings.EqualFold(s[:len("POLYGON")], "POLYGON") {
		return nil, newValidationError("malformed WKT polygon %q", s)
	}
	body := strings.TrimSpace(s[len("POLYGON"):])
	if !strings.HasPrefix(body, "(") || !strings.HasSuffix(body, ")") {
		return nil, newValidationError("malformed WKT polygon %q", s)
	}
	body = body[1 : len(body)-1]
	var p geom.Polygon
	for _, ringText := range splitWKTRings(body) {
		ringText = strings.TrimSpace(ringText)
		if !strings.HasPrefix(ringText, "(") || !strings.HasSuffix(ringText, ")") {
			return nil, newValidationError("malformed WKT ring %q", ringText)
		}
		var ring []geom.Point
		for _, pair := range strings.Split(ringText[1:len(ringText)-1], ",") {
			fields := strings.Fields(strings.TrimSpace(pair))
			if len(fields) != 2 {
				return nil, newValidationError("malformed WKT coordinate %q", pair)
			}
			x, err1 := strconv.ParseFloat(fields[0], 64)
			y, err2 := strconv.ParseFloat(fields[1], 64)
			if err1 != nil || err2 != nil {
				return nil, newValidationError("malformed WKT coordinate %q", pair)
			}
			ring = append(ring, geom.Point{X: x, Y: y})
		}
		if len(ring) < 4 {
			return nil, newValidationError("WKT ring has fewer than 4 points")
		}
		p = append(p, ring)
	}
	if len(p) == 0 {
		return nil, newValidationError("WKT polygon has no rings")
	}
	return p, nil
}

// splitWKTRings splits "(…),(…)" at top-level commas.
func splitWKTRings(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

// polygonValid reports whether p has at least one usable ring and nonzero
// area.
func polygonValid(p geom.Polygon) bool {
	if len(p) == 0 {
		return false
	}
	for _, ring := range p {
		distinct := 0
		seen := map[geom.Point]bool{}
		for _, pt := range ring {
			if math.IsNaN(pt.X) || math.IsNaN(pt.Y) {
				return false
			}
			if !seen[pt] {
				seen[pt] = true
				distinct++
			}
		}
		if distinct < 3 {
			return false
		}
	}
	return p.Area() > 0
}

// repairPolygon rebuilds p through a boolean union with an empty clip,
// which resolves self-intersections the same way a zero-width buffer does.
func repairPolygon(p geom.Polygon) geom.Polygon {
	return p.Union(geom.Polygon{})
}

// padExtent widens e by half the dataset's pixel size in each direction so
// that a subsequent slice includes every pixel whose center falls inside, or
// whose footprint is crossed by, the original box. Axes with fewer than two
// values leave their directions unpadded. The result is clamped to the
// legal coordinate ranges.
func padExtent(ds *Dataset, e Extent) Extent {
	if lon, ok := ds.Coords["lon"]; ok && !lon.IsTime() && lon.Data != nil && len(lon.Data.Elements) >= 2 {
		half := math.Abs(lon.Data.Elements[1]-lon.Data.Elements[0]) / 2
		e.LonMin -= half
		e.LonMax += half
	}
	if lat, ok := ds.Coords["lat"]; ok && !lat.IsTime() && lat.Data != nil && len(lat.Data.Elements) >= 2 {
		half := math.Abs(lat.Data.Elements[1]-lat.Data.Elements[0]) / 2
		e.LatMin -= half
		e.LatMax += half
	}
	e.LonMin = math.Max(e.LonMin, -180)
	e.LonMax = math.Min(e.LonMax, 180)
	e.LatMin = math.Max(e.LatMin, -90)
	e.LatMax = math.Min(e.LatMax, 90)
	return e
}

// crossesAntimeridian reports whether the polygon wraps across the
// 180°/-180° longitude line. The polygon is shifted into a 0–360° frame
// and tested against the 180° meridian; an invalid shifted polygon is
// repaired first and treated as non-crossing if still invalid. When both
// readings are geometrically valid, the smaller-area interpretation is
// preferred as the more likely intended shape. This heuristic can
// misclassify near-equal-area dateline-straddling shapes; callers needing
// certainty should supply explicit box coordinates instead.
func crossesAntimeridian(p geom.Polygon) bool {
	shifted := shiftPolygonTo360(p)
	if !polygonValid(shifted) {
		shifted = repairPolygon(shifted)
		if !polygonValid(shifted) {
			return false
		}
	}
	if !meridianCrossesPolygon(shifted, 180) {
		return false
	}
	if !polygonValid(p) {
		return true
	}
	return shifted.Area() <= p.Area()
}

// shiftPolygonTo360 maps the polygon's longitudes from [-180,180) into
// [0,360).
func shiftPolygonTo360(p geom.Polygon) geom.Polygon {
	o := make(geom.Polygon, len(p))
	for i, ring := range p {
		o[i] = make([]geom.Point, len(ring))
		for j, pt := range ring {
			if pt.X < 0 {
				pt.X += 360
			}
			o[i][j] = pt
		}
	}
	return o
}

// meridianCrossesPolygon tests whether the vertical line of the given
// longitude crosses any edge of the polygon's rings.
func meridianCrossesPolygon(p geom.Polygon, lon float64) bool {
	for _, ring := range p {
		for i := 1; i < len(ring); i++ {
			a, b := ring[i-1], ring[i]
			if (a.X-lon)*(b.X-lon) < 0 {
				return true
			}
		}
		if len(ring) > 1 && !ring[0].Equals(ring[len(ring)-1]) {
			a, b := ring[len(ring)-1], ring[0]
			if (a.X-lon)*(b.X-lon) < 0 {
				return true
			}
		}
	}
	return false
}

// pointInPolygon reports whether the point lies inside or on the edge of p.
// Edge points count as inside so that masking stays inclusive.
func pointInPolygon(x, y float64, p geom.Polygon) bool {
	return geom.Point{X: x, Y: y}.Within(p) != geom.Outside
}

// formatWKTBox renders the four extent scalars as a WKT POLYGON string, for
// the geospatial_bounds global attribute.
func formatWKTBox(lonMin, latMin, lonMax, latMax float64) string {
	return fmt.Sprintf("POLYGON((%v %v, %v %v, %v %v, %v %v, %v %v))",
		lonMin, latMin,
		lonMin, latMax,
		lonMax, latMax,
		lonMax, latMin,
		lonMin, latMin)
}
