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

// smallGrid returns a 2x3 lat/lon dataset with a data variable "v" holding
// its own flat indices.
func smallGrid() *Dataset {
	ds := NewDataset()
	ds.Dims["lat"] = 2
	ds.Dims["lon"] = 3
	ds.Coords["lat"] = &Variable{Dims: []string{"lat"}, Attrs: Attributes{}, Data: dense1([]float64{0, 5})}
	ds.Coords["lon"] = &Variable{Dims: []string{"lon"}, Attrs: Attributes{}, Data: dense1([]float64{1, 2, 3})}
	v := sparse.ZerosDense(2, 3)
	for i := range v.Elements {
		v.Elements[i] = float64(i)
	}
	ds.DataVars["v"] = &Variable{Dims: []string{"lat", "lon"}, Attrs: Attributes{}, Data: v}
	return ds
}

func TestDatasetCheck(t *testing.T) {
	ds := smallGrid()
	if err := ds.Check(); err != nil {
		t.Fatalf("valid dataset: %v", err)
	}

	bad := ds.Copy()
	bad.DataVars["w"] = &Variable{Dims: []string{"height"}, Attrs: Attributes{}, Data: dense1([]float64{1})}
	if err := bad.Check(); err == nil {
		t.Error("undeclared dimension: want error but have nil")
	}

	bad = ds.Copy()
	bad.DataVars["w"] = &Variable{Dims: []string{"lat"}, Attrs: Attributes{}, Data: dense1([]float64{1, 2, 3})}
	if err := bad.Check(); err == nil {
		t.Error("wrong element count: want error but have nil")
	}
}

func TestBuilderCopyOnWrite(t *testing.T) {
	ds := smallGrid()
	b := newBuilder(ds)
	if b.result() != ds {
		t.Error("untouched builder should return its input unchanged")
	}
	m := b.mutable()
	if m == ds {
		t.Error("mutable should clone the dataset")
	}
	if m.DataVars["v"] != ds.DataVars["v"] {
		t.Error("clone should share variable pointers")
	}
	if b.mutable() != m {
		t.Error("second mutable call should not clone again")
	}
}

func TestTakeAlongDim(t *testing.T) {
	ds := smallGrid()
	v := ds.DataVars["v"]

	o := takeAlongDim(ds, v, "lon", []int{2, 0})
	want := []float64{2, 0, 5, 3}
	if !reflect.DeepEqual(o.Data.Elements, want) {
		t.Errorf("lon selection: want %v but have %v", want, o.Data.Elements)
	}
	if !reflect.DeepEqual(o.Data.Shape, []int{2, 2}) {
		t.Errorf("lon selection shape: want [2 2] but have %v", o.Data.Shape)
	}

	// A variable lacking the dimension passes through untouched.
	lat := ds.Coords["lat"]
	if takeAlongDim(ds, lat, "lon", []int{0}) != lat {
		t.Error("variable without the dimension should be returned unchanged")
	}

	// Datetime variables are gathered the same way.
	ds.Dims["time"] = 3
	t0 := time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)
	tv := &Variable{Dims: []string{"time"}, Attrs: Attributes{}, Times: []time.Time{
		t0, t0.AddDate(0, 0, 1), t0.AddDate(0, 0, 2),
	}}
	ds.Coords["time"] = tv
	ot := takeAlongDim(ds, tv, "time", []int{2, 0})
	wantT := []time.Time{t0.AddDate(0, 0, 2), t0}
	if !reflect.DeepEqual(ot.Times, wantT) {
		t.Errorf("time selection: want %v but have %v", wantT, ot.Times)
	}
}

func TestTransposeVar(t *testing.T) {
	ds := smallGrid()
	o := transposeVar(ds, ds.DataVars["v"], []int{1, 0})
	if !reflect.DeepEqual(o.Dims, []string{"lon", "lat"}) {
		t.Errorf("dims: want [lon lat] but have %v", o.Dims)
	}
	want := []float64{0, 3, 1, 4, 2, 5}
	if !reflect.DeepEqual(o.Data.Elements, want) {
		t.Errorf("elements: want %v but have %v", want, o.Data.Elements)
	}
}

func TestAttributesFloat(t *testing.T) {
	a := Attributes{
		"f64":   []float64{3.5},
		"f32":   []float32{2},
		"i32":   []int32{7},
		"plain": 1.5,
		"text":  "nope",
	}
	cases := []struct {
		key  string
		want float64
		ok   bool
	}{
		{"f64", 3.5, true},
		{"f32", 2, true},
		{"i32", 7, true},
		{"plain", 1.5, true},
		{"text", 0, false},
		{"missing", 0, false},
	}
	for _, c := range cases {
		have, ok := a.Float(c.key)
		if ok != c.ok || have != c.want {
			t.Errorf("%s: want (%v, %v) but have (%v, %v)", c.key, c.want, c.ok, have, ok)
		}
	}
}
