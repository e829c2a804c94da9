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
	"strings"
	"testing"
	"time"
)

func timeSeries(n int) *Dataset {
	ds := NewDataset()
	ds.Dims["time"] = n
	t0 := time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, n)
	vals := make([]float64, n)
	for i := range times {
		times[i] = t0.AddDate(0, 0, i)
		vals[i] = float64(i + 1)
	}
	ds.Coords["time"] = &Variable{Dims: []string{"time"}, Attrs: Attributes{}, Times: times}
	ds.DataVars["d"] = &Variable{Dims: []string{"time"}, Attrs: Attributes{}, Data: dense1(vals)}
	return ds
}

func TestSubsetTemporal(t *testing.T) {
	ds := timeSeries(5)
	start := time.Date(2010, time.January, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2010, time.January, 4, 0, 0, 0, 0, time.UTC)

	out, err := SubsetTemporal(ds, start, end)
	if err != nil {
		t.Fatal(err)
	}
	if out.Dims["time"] != 3 {
		t.Fatalf("time dim: want 3 but have %d", out.Dims["time"])
	}
	// Both range ends are included.
	tv := out.Coords["time"]
	if !tv.Times[0].Equal(start) || !tv.Times[2].Equal(end) {
		t.Errorf("times: have %v", tv.Times)
	}
	if want := []float64{2, 3, 4}; !reflect.DeepEqual(out.DataVars["d"].Data.Elements, want) {
		t.Errorf("d: want %v but have %v", want, out.DataVars["d"].Data.Elements)
	}

	// A reversed range is swapped, not rejected.
	out2, err := SubsetTemporal(ds, end, start)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out2.DataVars["d"].Data.Elements, out.DataVars["d"].Data.Elements) {
		t.Error("reversed range should give the same result")
	}

	// An empty range is a ValidationError.
	_, err = SubsetTemporal(ds, start.AddDate(1, 0, 0), end.AddDate(1, 0, 0))
	if !IsValidationError(err) {
		t.Errorf("empty range: want ValidationError but have %v", err)
	}
}

func TestSubsetTemporalIndex(t *testing.T) {
	ds := timeSeries(5)

	// Both index ends are inclusive.
	out, err := SubsetTemporalIndex(ds, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{2, 3, 4}; !reflect.DeepEqual(out.DataVars["d"].Data.Elements, want) {
		t.Errorf("d: want %v but have %v", want, out.DataVars["d"].Data.Elements)
	}

	out, err = SubsetTemporalIndex(ds, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if out.Dims["time"] != 1 {
		t.Errorf("single index: want 1 step but have %d", out.Dims["time"])
	}

	for _, c := range [][2]int{{-1, 3}, {0, 5}, {3, 1}} {
		if _, err := SubsetTemporalIndex(ds, c[0], c[1]); !IsValidationError(err) {
			t.Errorf("range %v: want ValidationError but have %v", c, err)
		}
	}
}

func TestSubsetTemporalNotDatetime(t *testing.T) {
	ds := NewDataset()
	ds.Dims["time"] = 2
	ds.Coords["time"] = &Variable{Dims: []string{"time"}, Attrs: Attributes{}, Data: dense1([]float64{0, 1})}

	_, err := SubsetTemporal(ds, time.Time{}, time.Now())
	if !IsValidationError(err) {
		t.Fatalf("want ValidationError but have %v", err)
	}
	if !strings.Contains(err.Error(), "normalize") {
		t.Errorf("the error should suggest normalization: %v", err)
	}

	noTime := NewDataset()
	_, err = SubsetTemporal(noTime, time.Time{}, time.Now())
	if !IsValidationError(err) {
		t.Errorf("missing time axis: want ValidationError but have %v", err)
	}
}
