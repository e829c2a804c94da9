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

import "time"

// timeAxis returns the dataset's 1D datetime-typed time coordinate, or a
// ValidationError explaining how to obtain one.
func timeAxis(ds *Dataset) (*Variable, error) {
	tv, ok := ds.Var("time")
	if !ok {
		return nil, newValidationError("dataset has no time coordinate; normalize it first to synthesize one")
	}
	if !tv.IsTime() || len(tv.Dims) != 1 || tv.Dims[0] != "time" {
		return nil, newValidationError(
			"the time coordinate is not datetime-typed; normalize the dataset to decode it")
	}
	return tv, nil
}

// SubsetTemporal slices the dataset to the time steps falling inside the
// given timestamp range. Both ends are inclusive.
func SubsetTemporal(ds *Dataset, start, end time.Time) (*Dataset, error) {
	tv, err := timeAxis(ds)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		start, end = end, start
	}
	var sel []int
	for i, t := range tv.Times {
		if !t.Before(start) && !t.After(end) {
			sel = append(sel, i)
		}
	}
	if len(sel) == 0 {
		return nil, newValidationError("no time steps between %v and %v", start, end)
	}
	return sliceTime(ds, sel), nil
}

// SubsetTemporalIndex slices the dataset by integer position into the time
// dimension. Unlike conventional half-open slicing, BOTH iMin and iMax are
// inclusive, keeping the call behaviorally symmetric with SubsetTemporal.
func SubsetTemporalIndex(ds *Dataset, iMin, iMax int) (*Dataset, error) {
	tv, err := timeAxis(ds)
	if err != nil {
		return nil, err
	}
	n := len(tv.Times)
	if iMin < 0 || iMax >= n || iMin > iMax {
		return nil, newValidationError("time index range [%d, %d] is invalid for a %d-step axis", iMin, iMax, n)
	}
	sel := make([]int, 0, iMax-iMin+1)
	for i := iMin; i <= iMax; i++ {
		sel = append(sel, i)
	}
	return sliceTime(ds, sel), nil
}

// sliceTime restricts every variable carrying the time dimension to the
// given indices; all other variables are shared with the source unchanged.
func sliceTime(ds *Dataset, sel []int) *Dataset {
	out := ds.Copy()
	out.Dims["time"] = len(sel)
	slice := func(vars map[string]*Variable) {
		for name, v := range vars {
			if v.hasDim("time") {
				vars[name] = takeAlongDim(ds, v, "time", sel)
			}
		}
	}
	slice(out.Coords)
	slice(out.DataVars)
	return out
}
