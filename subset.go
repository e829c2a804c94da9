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

	"github.com/ctessum/geom"
)

// maskCellLimit bounds the corner-containment grid built during polygon
// masking. Larger grids would need multiple gigabytes of scratch space;
// exceeding the limit is reported as a ValidationError advising the caller
// to disable masking.
const maskCellLimit = 1 << 27

// maskChunkRows is the number of corner rows tested between progress
// reports and cancellation checks.
const maskChunkRows = 256

// SubsetSpatial returns the minimal slice of ds covering the region,
// optionally masked to the exact polygon shape rather than its bounding
// box. Boxes crossing the antimeridian are handled by concatenating the
// west-of-antimeridian and east-of-antimeridian columns in that order.
// Variables with neither lat nor lon among their dimensions are always
// copied through untouched.
//
// The dataset must expose 1D lat and lon coordinates (see Normalize);
// otherwise a ValidationError is returned. A nil monitor disables progress
// reporting.
func SubsetSpatial(ds *Dataset, region Region, mask bool, m Monitor) (*Dataset, error) {
	m = monitorOrNull(m)

	lat, okLat := ds.Coords["lat"]
	lon, okLon := ds.Coords["lon"]
	if !okLat || !okLon || lat.IsTime() || lon.IsTime() ||
		len(lat.Dims) != 1 || len(lon.Dims) != 1 || lat.Data == nil || lon.Data == nil {
		return nil, newValidationError("dataset must have 1D lat and lon coordinates; normalize it first")
	}
	if !polygonValid(region.Polygon) {
		return nil, newValidationError("region does not describe a valid polygon")
	}
	if !region.Extent.Legal() {
		return nil, newValidationError("region %+v is outside the legal longitude/latitude ranges", region.Extent)
	}

	simple := polygonFillsItsBounds(region)
	box := region.Extent

	var crossing bool
	if region.Explicit {
		crossing = box.LonMin > box.LonMax
	} else {
		crossing = crossesAntimeridian(region.Polygon)
		if crossing {
			// The bounds of a dateline-crossing polygon come back
			// inverted; swap them so that LonMin..180 and -180..LonMax
			// denote the west and east legs of the box.
			box.LonMin, box.LonMax = box.LonMax, box.LonMin
		}
	}
	padded := padExtent(ds, box)

	latVals := lat.Data.Elements
	lonVals := lon.Data.Elements

	// A pixel is selected when its center lies inside the box (inclusive)
	// or strictly inside the half-pixel-padded box, so that pixels whose
	// footprint is crossed by the box edge are kept but pixels merely
	// tangent to it are not.
	aboveMin := func(v, boxMin, padMin float64) bool { return v >= boxMin || v > padMin }
	belowMax := func(v, boxMax, padMax float64) bool { return v <= boxMax || v < padMax }

	// The latitude selection honors the axis direction: collecting indices
	// in axis order keeps a descending axis descending.
	var latSel []int
	for i, v := range latVals {
		if aboveMin(v, box.LatMin, padded.LatMin) && belowMax(v, box.LatMax, padded.LatMax) {
			latSel = append(latSel, i)
		}
	}

	if crossing && mask && !simple {
		return nil, fmt.Errorf("cate: polygon masking across the antimeridian is not implemented; use an explicit box or mask=false")
	}

	var lonSel []int
	if crossing {
		for i, v := range lonVals {
			if aboveMin(v, box.LonMin, padded.LonMin) {
				lonSel = append(lonSel, i)
			}
		}
		for i, v := range lonVals {
			if belowMax(v, box.LonMax, padded.LonMax) {
				lonSel = append(lonSel, i)
			}
		}
	} else {
		for i, v := range lonVals {
			if aboveMin(v, box.LonMin, padded.LonMin) && belowMax(v, box.LonMax, padded.LonMax) {
				lonSel = append(lonSel, i)
			}
		}
	}
	if len(latSel) == 0 || len(lonSel) == 0 {
		return nil, fmt.Errorf("cate: region %+v does not intersect the dataset extent", region.Extent)
	}

	out := sliceLatLon(ds, latSel, lonSel)

	if !mask || simple || region.Explicit {
		return out, nil
	}
	return maskToPolygon(out, region.Polygon, m)
}

// polygonFillsItsBounds reports whether masking against the region's
// polygon would be a no-op because the polygon is geometrically identical
// to its own bounding box.
func polygonFillsItsBounds(region Region) bool {
	if region.Explicit {
		return true
	}
	p := region.Polygon
	if len(p) != 1 {
		return false
	}
	b := p.Bounds()
	boxArea := (b.Max.X - b.Min.X) * (b.Max.Y - b.Min.Y)
	return math.Abs(p.Area()-boxArea) <= 1e-9*math.Max(1, boxArea)
}

// sliceLatLon restricts every variable carrying a lat or lon dimension to
// the given index selections. Variables with neither dimension are shared
// with the source dataset unchanged.
func sliceLatLon(ds *Dataset, latSel, lonSel []int) *Dataset {
	out := ds.Copy()
	out.Dims["lat"] = len(latSel)
	out.Dims["lon"] = len(lonSel)
	slice := func(vars map[string]*Variable) {
		for name, v := range vars {
			if !v.hasDim("lat") && !v.hasDim("lon") {
				continue
			}
			nv := v
			if nv.hasDim("lat") {
				nv = takeAlongDim(ds, nv, "lat", latSel)
			}
			if nv.hasDim("lon") {
				nv = takeAlongDim(ds, nv, "lon", lonSel)
			}
			vars[name] = nv
		}
	}
	slice(out.Coords)
	slice(out.DataVars)
	return out
}

// maskToPolygon masks the lat/lon plane of every data variable to the
// polygon. The general case keeps a pixel when any of its four corners lies
// inside the polygon (inclusive rather than requiring full containment) and
// fills the rest with NaN without shrinking the array extent. The
// degenerate single-row or single-column case instead tests pixel centers
// and drops the extent of non-contained pixels; the asymmetry is
// deliberate, long-standing behavior.
func maskToPolygon(ds *Dataset, poly geom.Polygon, m Monitor) (*Dataset, error) {
	latVals := ds.Coords["lat"].Data.Elements
	lonVals := ds.Coords["lon"].Data.Elements
	nr, nc := len(latVals), len(lonVals)

	if nr == 1 || nc == 1 {
		return maskDegenerate(ds, poly, latVals, lonVals)
	}

	if (nr+1)*(nc+1) > maskCellLimit {
		return nil, newValidationError(
			"the polygon mask for a %d x %d grid is too large to build; retry with masking disabled", nr, nc)
	}

	latCorners := cellCorners(latVals)
	lonCorners := cellCorners(lonVals)

	// Corner containment, computed in latitude-row chunks so progress and
	// cancellation stay responsive on large grids.
	m.Start("masking region", float64(nr+1))
	inside := make([][]bool, nr+1)
	for i0 := 0; i0 <= nr; i0 += maskChunkRows {
		if m.Cancelled() {
			return nil, ErrCancelled
		}
		i1 := i0 + maskChunkRows
		if i1 > nr+1 {
			i1 = nr + 1
		}
		for i := i0; i < i1; i++ {
			row := make([]bool, nc+1)
			for j := 0; j <= nc; j++ {
				row[j] = pointInPolygon(lonCorners[j], latCorners[i], poly)
			}
			inside[i] = row
		}
		m.Progress(float64(i1-i0), "")
	}
	m.Done()

	// A pixel is kept if any of its four corners lies inside the polygon.
	keep := make([][]bool, nr)
	for i := 0; i < nr; i++ {
		keep[i] = make([]bool, nc)
		for j := 0; j < nc; j++ {
			keep[i][j] = inside[i][j] || inside[i+1][j] || inside[i][j+1] || inside[i+1][j+1]
		}
	}

	for _, v := range ds.DataVars {
		if !v.hasDim("lat") || !v.hasDim("lon") || v.Data == nil {
			continue
		}
		applyMaskNaN(ds, v, keep)
	}
	return ds, nil
}

// maskDegenerate handles the single-row or single-column case: containment
// is evaluated at pixel centers and non-contained pixels are dropped rather
// than NaN-filled.
func maskDegenerate(ds *Dataset, poly geom.Polygon, latVals, lonVals []float64) (*Dataset, error) {
	var latKeep, lonKeep []int
	for i, la := range latVals {
		hit := false
		for _, lo := range lonVals {
			if pointInPolygon(lo, la, poly) {
				hit = true
				break
			}
		}
		if hit {
			latKeep = append(latKeep, i)
		}
	}
	for j, lo := range lonVals {
		hit := false
		for _, la := range latVals {
			if pointInPolygon(lo, la, poly) {
				hit = true
				break
			}
		}
		if hit {
			lonKeep = append(lonKeep, j)
		}
	}
	if len(latKeep) == 0 || len(lonKeep) == 0 {
		return nil, fmt.Errorf("cate: the region polygon does not contain any grid cell centers")
	}
	return sliceLatLon(ds, latKeep, lonKeep), nil
}

// cellCorners returns the pixel corner coordinates for an axis of pixel
// centers: midpoints between neighbors, extrapolated by half a pixel at
// either end. The result has one more element than vals.
func cellCorners(vals []float64) []float64 {
	n := len(vals)
	out := make([]float64, n+1)
	for i := 1; i < n; i++ {
		out[i] = (vals[i-1] + vals[i]) / 2
	}
	if n >= 2 {
		out[0] = vals[0] - (vals[1]-vals[0])/2
		out[n] = vals[n-1] + (vals[n-1]-vals[n-2])/2
	} else {
		out[0] = vals[0]
		out[n] = vals[0]
	}
	return out
}

// applyMaskNaN writes NaN into every lat/lon cell of v not kept by the
// mask, leaving the array extent intact. v must hold freshly sliced
// buffers, which sliceLatLon guarantees.
func applyMaskNaN(ds *Dataset, v *Variable, keep [][]bool) {
	shape := v.shape(ds)
	str := strides(shape)
	latDim := v.dimIndex("lat")
	lonDim := v.dimIndex("lon")
	n := product(shape)
	for fl := 0; fl < n; fl++ {
		i := fl / str[latDim] % shape[latDim]
		j := fl / str[lonDim] % shape[lonDim]
		if !keep[i][j] {
			v.Data.Elements[fl] = math.NaN()
		}
	}
}
