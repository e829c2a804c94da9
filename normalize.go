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
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// Normalize rewrites an arbitrarily-shaped gridded dataset into canonical
// form: 1D lat/lon coordinate variables (ascending latitude, longitude in
// [-180,180)), dimension order (..., time, lat, lon), and a proper
// timestamp axis, synthesized from global attributes or decoded from
// Julian-day encodings when absent. Every pass is best-effort: a pass whose
// preconditions are not met returns its input unchanged, so heterogeneous
// real-world files degrade gracefully instead of aborting a batch.
// Normalizing an already-canonical dataset is a no-op.
func Normalize(ds *Dataset) *Dataset {
	ds = normalizeZonalMean(ds)
	ds = normalizeCoordVars(ds)
	ds = normalizeCoordNames(ds)
	ds = normalize2DLatLon(ds)
	ds = normalizeDimOrder(ds)
	ds = normalizeLon360(ds)
	ds = normalizeInvertedLat(ds)
	ds = normalizeMissingTime(ds)
	ds = normalizeJulianTime(ds)
	ds = AdjustSpatialAttrs(ds)
	ds = AdjustTemporalAttrs(ds)
	return ds
}

// nearEqual is a NaN-tolerant approximate float comparison: two NaNs
// compare equal.
func nearEqual(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return math.Abs(a-b) <= 1e-8+1e-5*math.Abs(b)
}

func dense1(vals []float64) *sparse.DenseArray {
	a := sparse.ZerosDense(len(vals))
	copy(a.Elements, vals)
	return a
}

// renameDim renames a dimension throughout m, which must already be a
// private copy. Variables touching the dimension are copied before editing.
func renameDim(m *Dataset, old, new string) {
	if old == new {
		return
	}
	size, ok := m.Dims[old]
	if !ok {
		return
	}
	delete(m.Dims, old)
	m.Dims[new] = size
	rename := func(vars map[string]*Variable) {
		for name, v := range vars {
			if !v.hasDim(old) {
				continue
			}
			nv := v.Copy()
			for i, d := range nv.Dims {
				if d == old {
					nv.Dims[i] = new
				}
			}
			vars[name] = nv
		}
	}
	rename(m.Coords)
	rename(m.DataVars)
}

// normalizeZonalMean expands a zonal-mean (latitude-band) dataset onto a
// regular longitude axis: every latitude-indexed variable is broadcast
// across a synthesized uniform longitude axis with the same angular
// resolution as the latitude spacing, bounds variables are generated if
// absent, and latitude_centers becomes the lat coordinate.
func normalizeZonalMean(ds *Dataset) *Dataset {
	latc, ok := ds.Var("latitude_centers")
	if !ok || latc.IsTime() || len(latc.Dims) != 1 || latc.Dims[0] != "latitude_centers" {
		return ds
	}
	if _, ok := LonDimension(ds); ok {
		return ds
	}
	lats := latc.Data.Elements
	if len(lats) < 2 {
		return ds
	}
	res := lats[1] - lats[0]
	if res <= 0 {
		return ds
	}
	nLon := int(math.Round(360 / res))
	if nLon < 1 {
		return ds
	}

	out := NewDataset()
	out.Attrs = ds.Attrs.Copy()
	for name, size := range ds.Dims {
		if name == "latitude_centers" {
			out.Dims["lat"] = size
		} else {
			out.Dims[name] = size
		}
	}
	out.Dims["lon"] = nLon
	if _, ok := out.Dims["bnds"]; !ok {
		out.Dims["bnds"] = 2
	}

	lonVals := make([]float64, nLon)
	if nLon == 1 {
		lonVals[0] = -180 + res/2
	} else {
		floats.Span(lonVals, -180+res/2, 180-res/2)
	}

	renameDims := func(dims []string) []string {
		o := make([]string, len(dims))
		for i, d := range dims {
			if d == "latitude_centers" {
				o[i] = "lat"
			} else {
				o[i] = d
			}
		}
		return o
	}

	for name, v := range ds.Coords {
		if name == "latitude_centers" {
			continue
		}
		nv := v.Copy()
		nv.Dims = renameDims(nv.Dims)
		out.Coords[name] = nv
	}
	latVar := latc.Copy()
	latVar.Dims = []string{"lat"}
	out.Coords["lat"] = latVar
	out.Coords["lon"] = &Variable{
		Dims:  []string{"lon"},
		Attrs: Attributes{"long_name": "longitude", "standard_name": "longitude", "units": "degrees_east"},
		Data:  dense1(lonVals),
	}

	for name, v := range ds.DataVars {
		if name == "latitude_centers" {
			continue
		}
		if !v.hasDim("latitude_centers") {
			out.DataVars[name] = v
			continue
		}
		nv := v.Copy()
		nv.Dims = append(renameDims(nv.Dims), "lon")
		n := v.Len()
		arr := sparse.ZerosDense(append(v.shape(ds), nLon)...)
		var src []float64
		if v.Data != nil {
			src = v.Data.Elements
		}
		for i := 0; i < n; i++ {
			for j := 0; j < nLon; j++ {
				arr.Elements[i*nLon+j] = src[i]
			}
		}
		nv.Data = arr
		out.DataVars[name] = nv
	}

	if _, ok := out.Var("lat_bnds"); !ok {
		b := sparse.ZerosDense(len(lats), 2)
		for i, v := range lats {
			b.Elements[2*i] = v - res/2
			b.Elements[2*i+1] = v + res/2
		}
		out.Coords["lat_bnds"] = &Variable{Dims: []string{"lat", "bnds"}, Attrs: Attributes{}, Data: b}
		out.Coords["lat"].Attrs["bounds"] = "lat_bnds"
	}
	if _, ok := out.Var("lon_bnds"); !ok {
		b := sparse.ZerosDense(nLon, 2)
		for i, v := range lonVals {
			b.Elements[2*i] = v - res/2
			b.Elements[2*i+1] = v + res/2
		}
		out.Coords["lon_bnds"] = &Variable{Dims: []string{"lon", "bnds"}, Attrs: Attributes{}, Data: b}
		out.Coords["lon"].Attrs["bounds"] = "lon_bnds"
	}
	return out
}

// normalizeCoordVars reclassifies data variables as coordinate variables
// when their sole dimension shares their own name, or when they are a
// two-column bounds variable for a known coordinate.
func normalizeCoordVars(ds *Dataset) *Dataset {
	b := newBuilder(ds)
	for name, v := range ds.DataVars {
		promote := len(v.Dims) == 1 && v.Dims[0] == name
		if !promote && len(v.Dims) == 2 && v.Dims[1] == "bnds" && ds.Dims["bnds"] == 2 {
			if _, ok := ds.Var(v.Dims[0]); ok {
				promote = true
			}
		}
		if promote {
			m := b.mutable()
			delete(m.DataVars, name)
			m.Coords[name] = v
		}
	}
	return b.result()
}

// normalizeCoordNames renames variables (and their dimensions) matching the
// longitude and latitude alias lists to lon and lat, but only if lon/lat
// are not already present.
func normalizeCoordNames(ds *Dataset) *Dataset {
	b := newBuilder(ds)
	renameAxisVar(b, lonAliases, "lon")
	renameAxisVar(b, latAliases, "lat")
	return b.result()
}

func renameAxisVar(b *builder, aliases []string, canonical string) {
	ds := b.result()
	if _, ok := ds.Var(canonical); ok {
		return
	}
	for _, alias := range aliases {
		if alias == canonical {
			continue
		}
		v, ok := ds.Var(alias)
		if !ok {
			continue
		}
		m := b.mutable()
		if _, inCoords := m.Coords[alias]; inCoords {
			delete(m.Coords, alias)
			m.Coords[canonical] = v
		} else {
			delete(m.DataVars, alias)
			m.DataVars[canonical] = v
		}
		renameDim(m, alias, canonical)
		return
	}
}

// rowNearConstant reports whether row i of an ny-by-nx array holds a single
// value, under NaN-tolerant near-equality.
func rowNearConstant(a *sparse.DenseArray, i, nx int) bool {
	for j := 1; j < nx; j++ {
		if !nearEqual(a.Elements[i*nx+j], a.Elements[i*nx]) {
			return false
		}
	}
	return true
}

// colNearConstant reports whether column j of an ny-by-nx array holds a
// single value, under NaN-tolerant near-equality.
func colNearConstant(a *sparse.DenseArray, j, ny, nx int) bool {
	for i := 1; i < ny; i++ {
		if !nearEqual(a.Elements[i*nx+j], a.Elements[j]) {
			return false
		}
	}
	return true
}

// normalize2DLatLon collapses 2D lat/lon variables on an equi-rectangular
// grid into 1D coordinates, renaming the underlying dimensions to lat/lon.
// A warped (non-equi-rectangular) 2D grid cannot be represented by 1D axes;
// the 2D variables are dropped in that case, a deliberate lossy fallback
// since downstream code assumes 1D coordinates.
func normalize2DLatLon(ds *Dataset) *Dataset {
	lat, okLat := ds.Var("lat")
	lon, okLon := ds.Var("lon")
	if !okLat || !okLon || lat.IsTime() || lon.IsTime() {
		return ds
	}
	if len(lat.Dims) != 2 || len(lon.Dims) != 2 {
		return ds
	}
	if lat.Dims[0] != lon.Dims[0] || lat.Dims[1] != lon.Dims[1] {
		return ds
	}
	d0, d1 := lat.Dims[0], lat.Dims[1]
	ny, nx := ds.Dims[d0], ds.Dims[d1]
	if ny < 1 || nx < 1 || lat.Data == nil || lon.Data == nil {
		return ds
	}

	// Sample the grid for equi-rectangularity: the first and last rows of
	// lat must each be constant across columns, and the first and last
	// columns of lon constant across rows.
	equi := rowNearConstant(lat.Data, 0, nx) && rowNearConstant(lat.Data, ny-1, nx) &&
		colNearConstant(lon.Data, 0, ny, nx) && colNearConstant(lon.Data, nx-1, ny, nx)

	b := newBuilder(ds)
	m := b.mutable()
	delete(m.Coords, "lat")
	delete(m.Coords, "lon")
	delete(m.DataVars, "lat")
	delete(m.DataVars, "lon")
	if !equi {
		return m
	}

	lat1 := make([]float64, ny)
	for i := 0; i < ny; i++ {
		lat1[i] = lat.Data.Elements[i*nx]
	}
	lon1 := make([]float64, nx)
	copy(lon1, lon.Data.Elements[:nx])

	renameDim(m, d0, "lat")
	renameDim(m, d1, "lon")
	m.Coords["lat"] = &Variable{Dims: []string{"lat"}, Attrs: lat.Attrs.Copy(), Data: dense1(lat1)}
	m.Coords["lon"] = &Variable{Dims: []string{"lon"}, Attrs: lon.Attrs.Copy(), Data: dense1(lon1)}
	return m
}

// canonicalDimOrder returns the permutation that brings dims into canonical
// order (time first; lat then lon as the last two dimensions when both are
// present), or nil if the dims are already canonical.
func canonicalDimOrder(dims []string) []int {
	latI, lonI := -1, -1
	var front, middle []int
	for i, d := range dims {
		switch d {
		case "time":
			front = append(front, i)
		case "lat":
			latI = i
		case "lon":
			lonI = i
		default:
			middle = append(middle, i)
		}
	}
	var order []int
	order = append(order, front...)
	if latI >= 0 && lonI >= 0 {
		order = append(order, middle...)
		order = append(order, latI, lonI)
	} else {
		// Only one (or neither) of lat/lon: leave it in place relative to
		// the other non-time dimensions.
		rest := make([]int, 0, len(dims)-len(front))
		for i, d := range dims {
			if d != "time" {
				rest = append(rest, i)
			}
		}
		order = append(order, rest...)
	}
	identity := true
	for i, o := range order {
		if o != i {
			identity = false
			break
		}
	}
	if identity {
		return nil
	}
	return order
}

// normalizeDimOrder transposes data variables into (..., time, lat, lon)
// order. The dataset is only copied if an actual transpose occurred.
func normalizeDimOrder(ds *Dataset) *Dataset {
	b := newBuilder(ds)
	for name, v := range ds.DataVars {
		order := canonicalDimOrder(v.Dims)
		if order == nil {
			continue
		}
		m := b.mutable()
		m.DataVars[name] = transposeVar(ds, v, order)
	}
	return b.result()
}

// normalizeLon360 rolls a 0–360° longitude axis (and every variable
// dimensioned by it) so that longitude runs contiguously from -180+½Δ to
// +180-½Δ, splitting and swapping the data at the middle index. The global
// geospatial bounding-box attributes are recomputed afterwards.
func normalizeLon360(ds *Dataset) *Dataset {
	lon, ok := ds.Coords["lon"]
	if !ok || lon.IsTime() || len(lon.Dims) != 1 || lon.Dims[0] != "lon" || lon.Data == nil {
		return ds
	}
	vals := lon.Data.Elements
	n := len(vals)
	if n < 2 {
		return ds
	}
	mid := n / 2
	if floats.Max(vals[mid:]) <= 180 {
		return ds
	}

	sel := make([]int, 0, n)
	for i := mid; i < n; i++ {
		sel = append(sel, i)
	}
	for i := 0; i < mid; i++ {
		sel = append(sel, i)
	}

	b := newBuilder(ds)
	m := b.mutable()
	roll := func(vars map[string]*Variable) {
		for name, v := range vars {
			if v.hasDim("lon") {
				vars[name] = takeAlongDim(ds, v, "lon", sel)
			}
		}
	}
	roll(m.Coords)
	roll(m.DataVars)

	// The rolled-to-front half moves into the western hemisphere.
	nRolled := n - mid
	newLon := m.Coords["lon"]
	for j := 0; j < nRolled; j++ {
		newLon.Data.Elements[j] -= 360
	}
	if bnds := boundsVarOf(m, "lon"); bnds != nil && bnds.Data != nil {
		for j := 0; j < nRolled*2 && j < len(bnds.Data.Elements); j++ {
			bnds.Data.Elements[j] -= 360
		}
	}
	return AdjustSpatialAttrs(m)
}

// boundsVarOf returns the bounds variable of the named coordinate, located
// through its bounds attribute or the <name>_bnds convention.
func boundsVarOf(ds *Dataset, name string) *Variable {
	c, ok := ds.Coords[name]
	if !ok {
		return nil
	}
	if bname, ok := c.Attrs.String("bounds"); ok {
		if v, ok := ds.Var(bname); ok {
			return v
		}
	}
	if v, ok := ds.Var(name + "_bnds"); ok {
		return v
	}
	return nil
}

// normalizeInvertedLat reverses a descending latitude axis (and all
// co-varying data) so latitude ascends. Datasets without a usable 1D lat
// axis pass through unchanged.
func normalizeInvertedLat(ds *Dataset) *Dataset {
	lat, ok := ds.Coords["lat"]
	if !ok || lat.IsTime() || len(lat.Dims) != 1 || lat.Dims[0] != "lat" || lat.Data == nil {
		return ds
	}
	vals := lat.Data.Elements
	n := len(vals)
	if n < 2 || vals[0] <= vals[n-1] {
		return ds
	}
	sel := make([]int, n)
	for i := range sel {
		sel[i] = n - 1 - i
	}
	b := newBuilder(ds)
	m := b.mutable()
	flip := func(vars map[string]*Variable) {
		for name, v := range vars {
			if v.hasDim("lat") {
				vars[name] = takeAlongDim(ds, v, "lat", sel)
			}
		}
	}
	flip(m.Coords)
	flip(m.DataVars)
	return m
}

// timestampLayouts are the formats accepted for the time_coverage_start and
// time_coverage_end global attributes.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// cfTimeEncoding is the metadata stamped onto synthesized time coordinates.
func cfTimeEncoding() Attributes {
	return Attributes{
		"long_name":     "time",
		"standard_name": "time",
		"units":         "days since 1970-01-01",
	}
}

// normalizeMissingTime synthesizes a one-element time axis from the
// time_coverage_start/end global attributes when no usable time coordinate
// exists. A time variable of zero or one dimensions that no data variable
// actually uses as a dimension counts as unusable and is replaced.
func normalizeMissingTime(ds *Dataset) *Dataset {
	startStr, _ := ds.Attrs.String("time_coverage_start")
	endStr, _ := ds.Attrs.String("time_coverage_end")
	t0, ok0 := parseTimestamp(startStr)
	t1, ok1 := parseTimestamp(endStr)
	if !ok0 && !ok1 {
		return ds
	}
	// A time dimension in active use must not be collapsed, whether or not
	// a time coordinate variable accompanies it.
	for _, v := range ds.DataVars {
		if v.hasDim("time") {
			return ds
		}
	}
	if tv, ok := ds.Var("time"); ok && len(tv.Dims) > 1 {
		return ds
	}

	var mid time.Time
	switch {
	case ok0 && ok1:
		mid = t0.Add(t1.Sub(t0) / 2)
	case ok0:
		mid = t0
	default:
		mid = t1
	}

	b := newBuilder(ds)
	m := b.mutable()
	m.Dims["time"] = 1
	delete(m.DataVars, "time")
	timeVar := &Variable{Dims: []string{"time"}, Attrs: cfTimeEncoding(), Times: []time.Time{mid}}
	if ok0 && ok1 {
		m.Dims["bnds"] = 2
		timeVar.Attrs["bounds"] = "time_bnds"
		m.Coords["time_bnds"] = &Variable{
			Dims:  []string{"time", "bnds"},
			Attrs: cfTimeEncoding(),
			Times: []time.Time{t0, t1},
		}
	}
	m.Coords["time"] = timeVar
	return m
}

// julianEpoch is the Julian day number of 1970-01-01T00:00Z.
const julianEpoch = 2440587.5

func julianToTime(jd float64) time.Time {
	secs := (jd - julianEpoch) * 86400
	sec, frac := math.Modf(secs)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// normalizeJulianTime decodes a time coordinate whose units or long_name
// declares "time in julian days" into calendar dates.
func normalizeJulianTime(ds *Dataset) *Dataset {
	tv, ok := ds.Var("time")
	if !ok || tv.IsTime() || tv.Data == nil {
		return ds
	}
	isJD := func(s string) bool {
		return strings.EqualFold(strings.TrimSpace(s), "time in julian days")
	}
	units, _ := tv.Attrs.String("units")
	longName, _ := tv.Attrs.String("long_name")
	if !isJD(units) && !isJD(longName) {
		return ds
	}
	times := make([]time.Time, len(tv.Data.Elements))
	for i, jd := range tv.Data.Elements {
		times[i] = julianToTime(jd)
	}
	b := newBuilder(ds)
	m := b.mutable()
	nv := tv.Copy()
	nv.Data = nil
	nv.Times = times
	nv.Attrs["long_name"] = "time"
	nv.Attrs["calendar"] = "standard"
	delete(nv.Attrs, "units")
	delete(m.DataVars, "time")
	m.Coords["time"] = nv
	return m
}

type axisInfo struct {
	min, max, res float64
}

// axisExtent derives an axis's outer bounds and resolution from its bounds
// variable when present, or from first/last spacing otherwise.
func axisExtent(ds *Dataset, name string) (axisInfo, bool) {
	v, ok := ds.Coords[name]
	if !ok || v.IsTime() || len(v.Dims) != 1 || v.Data == nil {
		return axisInfo{}, false
	}
	vals := v.Data.Elements
	n := len(vals)
	if n == 0 {
		return axisInfo{}, false
	}
	if bnds := boundsVarOf(ds, name); bnds != nil && bnds.Data != nil && len(bnds.Data.Elements) == 2*n {
		e := bnds.Data.Elements
		return axisInfo{
			min: math.Min(e[0], e[2*n-1]),
			max: math.Max(e[0], e[2*n-1]),
			res: math.Abs(e[1] - e[0]),
		}, true
	}
	if n < 2 {
		return axisInfo{min: vals[0], max: vals[0], res: 0}, true
	}
	res := math.Abs(vals[1] - vals[0])
	lo := math.Min(vals[0], vals[n-1]) - res/2
	hi := math.Max(vals[0], vals[n-1]) + res/2
	return axisInfo{min: lo, max: hi, res: res}, true
}

// AdjustSpatialAttrs recomputes the geospatial_* global attributes from the
// 1D lat/lon coordinates, including the WKT geospatial_bounds polygon, and
// drops vertical-extent attributes that cannot be safely re-derived.
// Datasets without both axes pass through unchanged.
func AdjustSpatialAttrs(ds *Dataset) *Dataset {
	lonI, okLon := axisExtent(ds, "lon")
	latI, okLat := axisExtent(ds, "lat")
	if !okLon || !okLat {
		return ds
	}
	b := newBuilder(ds)
	m := b.mutable()
	m.Attrs["geospatial_lon_min"] = lonI.min
	m.Attrs["geospatial_lon_max"] = lonI.max
	m.Attrs["geospatial_lon_resolution"] = lonI.res
	m.Attrs["geospatial_lat_min"] = latI.min
	m.Attrs["geospatial_lat_max"] = latI.max
	m.Attrs["geospatial_lat_resolution"] = latI.res
	m.Attrs["geospatial_bounds"] = formatWKTBox(lonI.min, latI.min, lonI.max, latI.max)
	for _, stale := range []string{
		"geospatial_vertical_min", "geospatial_vertical_max",
		"geospatial_vertical_positive", "geospatial_vertical_units",
		"geospatial_vertical_resolution",
	} {
		delete(m.Attrs, stale)
	}
	return m
}

// isoPeriodDays renders a day count as an ISO-8601 period string, bucketing
// typical month lengths to P1M.
func isoPeriodDays(days int) string {
	if days >= 28 && days <= 32 {
		return "P1M"
	}
	if days < 1 {
		days = 1
	}
	return "P" + strconv.Itoa(days) + "D"
}

// AdjustTemporalAttrs recomputes the time_coverage_* global attributes from
// the time and time_bnds coordinates. It only applies when the time
// coordinate is datetime-typed; numeric time axes are skipped.
func AdjustTemporalAttrs(ds *Dataset) *Dataset {
	tv, ok := ds.Var("time")
	if !ok || !tv.IsTime() || len(tv.Dims) != 1 || len(tv.Times) == 0 {
		return ds
	}
	n := len(tv.Times)
	start, end := tv.Times[0], tv.Times[n-1]
	if tb, ok := ds.Var("time_bnds"); ok && tb.IsTime() && len(tb.Times) >= 2 {
		start = tb.Times[0]
		end = tb.Times[len(tb.Times)-1]
	}
	b := newBuilder(ds)
	m := b.mutable()
	m.Attrs["time_coverage_start"] = start.UTC().Format(time.RFC3339)
	m.Attrs["time_coverage_end"] = end.UTC().Format(time.RFC3339)
	durDays := int(end.Sub(start).Hours()/24+0.5) + 1
	m.Attrs["time_coverage_duration"] = isoPeriodDays(durDays)
	if n > 1 {
		spacing := tv.Times[n-1].Sub(tv.Times[0]) / time.Duration(n-1)
		resDays := int(spacing.Hours()/24 + 0.5)
		m.Attrs["time_coverage_resolution"] = isoPeriodDays(resDays)
	}
	return m
}
