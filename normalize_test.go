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
	"reflect"
	"testing"
	"time"

	"github.com/ctessum/sparse"
)

func TestNormalizeZonalMean(t *testing.T) {
	ds := NewDataset()
	ds.Dims["latitude_centers"] = 2
	ds.Coords["latitude_centers"] = &Variable{
		Dims: []string{"latitude_centers"}, Attrs: Attributes{}, Data: dense1([]float64{-45, 45}),
	}
	ds.DataVars["temp"] = &Variable{
		Dims: []string{"latitude_centers"}, Attrs: Attributes{}, Data: dense1([]float64{10, 20}),
	}

	o := Normalize(ds)
	if err := o.Check(); err != nil {
		t.Fatal(err)
	}

	lat, ok := o.Coords["lat"]
	if !ok {
		t.Fatal("no lat coordinate")
	}
	if want := []float64{-45, 45}; !reflect.DeepEqual(lat.Data.Elements, want) {
		t.Errorf("lat: want %v but have %v", want, lat.Data.Elements)
	}
	lon, ok := o.Coords["lon"]
	if !ok {
		t.Fatal("no lon coordinate")
	}
	if want := []float64{-135, -45, 45, 135}; !reflect.DeepEqual(lon.Data.Elements, want) {
		t.Errorf("lon: want %v but have %v", want, lon.Data.Elements)
	}

	temp := o.DataVars["temp"]
	if want := []string{"lat", "lon"}; !reflect.DeepEqual(temp.Dims, want) {
		t.Errorf("temp dims: want %v but have %v", want, temp.Dims)
	}
	want := []float64{10, 10, 10, 10, 20, 20, 20, 20}
	if !reflect.DeepEqual(temp.Data.Elements, want) {
		t.Errorf("temp: want %v but have %v", want, temp.Data.Elements)
	}

	for _, b := range []string{"lat_bnds", "lon_bnds"} {
		if _, ok := o.Coords[b]; !ok {
			t.Errorf("missing bounds variable %s", b)
		}
	}
	if min, _ := o.Attrs.Float("geospatial_lon_min"); min != -180 {
		t.Errorf("geospatial_lon_min: want -180 but have %v", min)
	}
	if max, _ := o.Attrs.Float("geospatial_lon_max"); max != 180 {
		t.Errorf("geospatial_lon_max: want 180 but have %v", max)
	}
}

func TestNormalizeInvertedLat(t *testing.T) {
	ds := NewDataset()
	ds.Dims["lat"] = 3
	ds.Coords["lat"] = &Variable{Dims: []string{"lat"}, Attrs: Attributes{}, Data: dense1([]float64{10, 5, 0})}
	ds.DataVars["d"] = &Variable{Dims: []string{"lat"}, Attrs: Attributes{}, Data: dense1([]float64{1, 2, 3})}

	o := Normalize(ds)
	if want := []float64{0, 5, 10}; !reflect.DeepEqual(o.Coords["lat"].Data.Elements, want) {
		t.Errorf("lat: want %v but have %v", want, o.Coords["lat"].Data.Elements)
	}
	if want := []float64{3, 2, 1}; !reflect.DeepEqual(o.DataVars["d"].Data.Elements, want) {
		t.Errorf("d: want %v but have %v", want, o.DataVars["d"].Data.Elements)
	}
	// The input is untouched.
	if want := []float64{10, 5, 0}; !reflect.DeepEqual(ds.Coords["lat"].Data.Elements, want) {
		t.Errorf("input lat was modified: %v", ds.Coords["lat"].Data.Elements)
	}
}

func TestNormalizeLon360(t *testing.T) {
	ds := NewDataset()
	ds.Dims["lat"] = 2
	ds.Dims["lon"] = 4
	ds.Dims["bnds"] = 2
	ds.Coords["lat"] = &Variable{Dims: []string{"lat"}, Attrs: Attributes{}, Data: dense1([]float64{-45, 45})}
	ds.Coords["lon"] = &Variable{
		Dims: []string{"lon"}, Attrs: Attributes{"bounds": "lon_bnds"},
		Data: dense1([]float64{45, 135, 225, 315}),
	}
	bnds := sparse.ZerosDense(4, 2)
	copy(bnds.Elements, []float64{0, 90, 90, 180, 180, 270, 270, 360})
	ds.Coords["lon_bnds"] = &Variable{Dims: []string{"lon", "bnds"}, Attrs: Attributes{}, Data: bnds}
	ds.DataVars["v"] = &Variable{Dims: []string{"lon"}, Attrs: Attributes{}, Data: dense1([]float64{0, 1, 2, 3})}

	o := Normalize(ds)
	if want := []float64{-135, -45, 45, 135}; !reflect.DeepEqual(o.Coords["lon"].Data.Elements, want) {
		t.Errorf("lon: want %v but have %v", want, o.Coords["lon"].Data.Elements)
	}
	if want := []float64{2, 3, 0, 1}; !reflect.DeepEqual(o.DataVars["v"].Data.Elements, want) {
		t.Errorf("v: want %v but have %v", want, o.DataVars["v"].Data.Elements)
	}
	wantBnds := []float64{-180, -90, -90, 0, 0, 90, 90, 180}
	if !reflect.DeepEqual(o.Coords["lon_bnds"].Data.Elements, wantBnds) {
		t.Errorf("lon_bnds: want %v but have %v", wantBnds, o.Coords["lon_bnds"].Data.Elements)
	}
	if min, _ := o.Attrs.Float("geospatial_lon_min"); min != -180 {
		t.Errorf("geospatial_lon_min: want -180 but have %v", min)
	}
	if max, _ := o.Attrs.Float("geospatial_lon_max"); max != 180 {
		t.Errorf("geospatial_lon_max: want 180 but have %v", max)
	}
}

func TestNormalize2DLatLon(t *testing.T) {
	ds := NewDataset()
	ds.Dims["y"] = 2
	ds.Dims["x"] = 3
	la := sparse.ZerosDense(2, 3)
	copy(la.Elements, []float64{10, 10, 10, 20, 20, 20})
	lo := sparse.ZerosDense(2, 3)
	copy(lo.Elements, []float64{5, 6, 7, 5, 6, 7})
	ds.Coords["lat"] = &Variable{Dims: []string{"y", "x"}, Attrs: Attributes{}, Data: la}
	ds.Coords["lon"] = &Variable{Dims: []string{"y", "x"}, Attrs: Attributes{}, Data: lo}
	v := sparse.ZerosDense(2, 3)
	copy(v.Elements, []float64{1, 2, 3, 4, 5, 6})
	ds.DataVars["v"] = &Variable{Dims: []string{"y", "x"}, Attrs: Attributes{}, Data: v}

	o := Normalize(ds)
	if err := o.Check(); err != nil {
		t.Fatal(err)
	}
	if want := []float64{10, 20}; !reflect.DeepEqual(o.Coords["lat"].Data.Elements, want) {
		t.Errorf("lat: want %v but have %v", want, o.Coords["lat"].Data.Elements)
	}
	if want := []float64{5, 6, 7}; !reflect.DeepEqual(o.Coords["lon"].Data.Elements, want) {
		t.Errorf("lon: want %v but have %v", want, o.Coords["lon"].Data.Elements)
	}
	ov := o.DataVars["v"]
	if want := []string{"lat", "lon"}; !reflect.DeepEqual(ov.Dims, want) {
		t.Errorf("v dims: want %v but have %v", want, ov.Dims)
	}
	if !reflect.DeepEqual(ov.Data.Elements, v.Elements) {
		t.Errorf("v data changed: %v", ov.Data.Elements)
	}
}

func TestNormalize2DLatLonWarped(t *testing.T) {
	ds := NewDataset()
	ds.Dims["y"] = 2
	ds.Dims["x"] = 2
	la := sparse.ZerosDense(2, 2)
	copy(la.Elements, []float64{10, 10, 20, 20})
	lo := sparse.ZerosDense(2, 2)
	copy(lo.Elements, []float64{5, 6, 5.5, 6.5}) // rotated grid
	ds.Coords["lat"] = &Variable{Dims: []string{"y", "x"}, Attrs: Attributes{}, Data: la}
	ds.Coords["lon"] = &Variable{Dims: []string{"y", "x"}, Attrs: Attributes{}, Data: lo}
	ds.DataVars["v"] = &Variable{Dims: []string{"y", "x"}, Attrs: Attributes{}, Data: sparse.ZerosDense(2, 2)}

	o := Normalize(ds)
	if _, ok := o.Var("lat"); ok {
		t.Error("warped 2D lat should have been dropped")
	}
	if _, ok := o.Var("lon"); ok {
		t.Error("warped 2D lon should have been dropped")
	}
	if want := []string{"y", "x"}; !reflect.DeepEqual(o.DataVars["v"].Dims, want) {
		t.Errorf("v dims: want %v but have %v", want, o.DataVars["v"].Dims)
	}
}

func TestNormalizeCoordNames(t *testing.T) {
	ds := NewDataset()
	ds.Dims["longitude"] = 2
	ds.Coords["longitude"] = &Variable{Dims: []string{"longitude"}, Attrs: Attributes{}, Data: dense1([]float64{0, 1})}
	ds.DataVars["v"] = &Variable{Dims: []string{"longitude"}, Attrs: Attributes{}, Data: dense1([]float64{7, 8})}

	o := Normalize(ds)
	if _, ok := o.Coords["lon"]; !ok {
		t.Fatal("longitude was not renamed to lon")
	}
	if _, ok := o.Dims["lon"]; !ok {
		t.Error("longitude dimension was not renamed")
	}
	if want := []string{"lon"}; !reflect.DeepEqual(o.DataVars["v"].Dims, want) {
		t.Errorf("v dims: want %v but have %v", want, o.DataVars["v"].Dims)
	}
}

func TestNormalizeDimOrder(t *testing.T) {
	ds := NewDataset()
	ds.Dims["lon"] = 2
	ds.Dims["time"] = 2
	ds.Dims["lat"] = 2
	ds.Coords["lon"] = &Variable{Dims: []string{"lon"}, Attrs: Attributes{}, Data: dense1([]float64{0, 1})}
	ds.Coords["lat"] = &Variable{Dims: []string{"lat"}, Attrs: Attributes{}, Data: dense1([]float64{0, 1})}
	t0 := time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)
	ds.Coords["time"] = &Variable{Dims: []string{"time"}, Attrs: Attributes{}, Times: []time.Time{t0, t0.AddDate(0, 0, 1)}}
	v := sparse.ZerosDense(2, 2, 2)
	for i := range v.Elements {
		v.Elements[i] = float64(i)
	}
	ds.DataVars["v"] = &Variable{Dims: []string{"lon", "time", "lat"}, Attrs: Attributes{}, Data: v}

	o := Normalize(ds)
	ov := o.DataVars["v"]
	if want := []string{"time", "lat", "lon"}; !reflect.DeepEqual(ov.Dims, want) {
		t.Fatalf("dims: want %v but have %v", want, ov.Dims)
	}
	want := []float64{0, 4, 1, 5, 2, 6, 3, 7}
	if !reflect.DeepEqual(ov.Data.Elements, want) {
		t.Errorf("elements: want %v but have %v", want, ov.Data.Elements)
	}
}

func TestNormalizeJulianTime(t *testing.T) {
	ds := NewDataset()
	ds.Dims["time"] = 1
	ds.DataVars["time"] = &Variable{
		Dims:  []string{"time"},
		Attrs: Attributes{"units": "time in Julian days"},
		Data:  dense1([]float64{2451545}),
	}

	o := Normalize(ds)
	tv, ok := o.Coords["time"]
	if !ok {
		t.Fatal("time was not promoted to a coordinate")
	}
	if !tv.IsTime() {
		t.Fatal("time was not decoded")
	}
	want := time.Date(2000, time.January, 1, 12, 0, 0, 0, time.UTC)
	if !tv.Times[0].Equal(want) {
		t.Errorf("want %v but have %v", want, tv.Times[0])
	}
	if s, _ := o.Attrs.String("time_coverage_start"); s != "2000-01-01T12:00:00Z" {
		t.Errorf("time_coverage_start: have %q", s)
	}
	if s, _ := o.Attrs.String("time_coverage_duration"); s != "P1D" {
		t.Errorf("time_coverage_duration: want P1D but have %q", s)
	}
}

func TestNormalizeMissingTime(t *testing.T) {
	ds := NewDataset()
	ds.Dims["lat"] = 2
	ds.Coords["lat"] = &Variable{Dims: []string{"lat"}, Attrs: Attributes{}, Data: dense1([]float64{0, 1})}
	ds.DataVars["d"] = &Variable{Dims: []string{"lat"}, Attrs: Attributes{}, Data: dense1([]float64{1, 2})}
	ds.Attrs["time_coverage_start"] = "2010-01-01"
	ds.Attrs["time_coverage_end"] = "2010-01-03"

	o := Normalize(ds)
	if o.Dims["time"] != 1 {
		t.Fatalf("time dimension: want 1 but have %d", o.Dims["time"])
	}
	tv := o.Coords["time"]
	if tv == nil || !tv.IsTime() {
		t.Fatal("no datetime-typed time coordinate")
	}
	want := time.Date(2010, time.January, 2, 0, 0, 0, 0, time.UTC)
	if !tv.Times[0].Equal(want) {
		t.Errorf("time: want %v but have %v", want, tv.Times[0])
	}
	tb := o.Coords["time_bnds"]
	if tb == nil || len(tb.Times) != 2 {
		t.Fatal("no time_bnds coordinate")
	}
	if s, _ := o.Attrs.String("time_coverage_duration"); s != "P3D" {
		t.Errorf("time_coverage_duration: want P3D but have %q", s)
	}
}

func TestNormalizeMissingTimeUsedDimension(t *testing.T) {
	// A bare time dimension in active use must not be collapsed to the
	// synthesized one-step axis even when coverage attributes are present.
	ds := NewDataset()
	ds.Dims["time"] = 3
	ds.DataVars["d"] = &Variable{Dims: []string{"time"}, Attrs: Attributes{}, Data: dense1([]float64{1, 2, 3})}
	ds.Attrs["time_coverage_start"] = "2010-01-01"
	ds.Attrs["time_coverage_end"] = "2010-01-03"

	o := Normalize(ds)
	if o.Dims["time"] != 3 {
		t.Errorf("time dimension: want 3 but have %d", o.Dims["time"])
	}
	if err := o.Check(); err != nil {
		t.Error(err)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	ds := NewDataset()
	ds.Dims["latitude_centers"] = 2
	ds.Coords["latitude_centers"] = &Variable{
		Dims: []string{"latitude_centers"}, Attrs: Attributes{}, Data: dense1([]float64{-45, 45}),
	}
	ds.DataVars["temp"] = &Variable{
		Dims: []string{"latitude_centers"}, Attrs: Attributes{}, Data: dense1([]float64{10, 20}),
	}
	once := Normalize(ds)
	twice := Normalize(once)
	if !reflect.DeepEqual(once, twice) {
		t.Error("normalizing a canonical dataset should be a no-op")
	}
}
