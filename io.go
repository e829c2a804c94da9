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
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// targetChunkBytes is the amount of data processed per chunk when copying
// large variables out of a file, giving progress reporting and cancellation
// a reasonable granularity.
const targetChunkBytes = 250 << 20

// chunkGrid computes how many chunks to split an nLat-by-nLon grid into so
// that each chunk holds roughly targetChunkBytes of data. The chunk count
// is rounded up to the nearest perfect square so that lat and lon divide
// evenly; if they cannot, the grid falls back to a single chunk.
func chunkGrid(nLat, nLon int, varBytes int64) (cLat, cLon int) {
	if varBytes <= targetChunkBytes || nLat < 2 || nLon < 2 {
		return 1, 1
	}
	n := int(math.Ceil(float64(varBytes) / float64(targetChunkBytes)))
	side := int(math.Ceil(math.Sqrt(float64(n))))
	if side < 1 {
		return 1, 1
	}
	if nLat%side != 0 || nLon%side != 0 {
		return 1, 1
	}
	return side, side
}

// readNumericVar reads a variable as float64 values, widening the numeric
// types NetCDF classic supports. It returns nil for non-numeric variables.
func readNumericVar(nc *cdf.File, v string) ([]float64, error) {
	r := nc.Reader(v, nil, nil)
	buf := r.Zero(-1)
	switch buf.(type) {
	case []float64, []float32, []int32, []int16, []int8:
	default:
		return nil, nil
	}
	if _, err := r.Read(buf); err != nil {
		return nil, err
	}
	var data []float64
	switch t := buf.(type) {
	case []float64:
		data = t
	case []float32:
		data = make([]float64, len(t))
		for i, x := range t {
			data[i] = float64(x)
		}
	case []int32:
		data = make([]float64, len(t))
		for i, x := range t {
			data[i] = float64(x)
		}
	case []int16:
		data = make([]float64, len(t))
		for i, x := range t {
			data[i] = float64(x)
		}
	case []int8:
		data = make([]float64, len(t))
		for i, x := range t {
			data[i] = float64(x)
		}
	}
	fillAttrs := Attributes{"_FillValue": nc.Header.GetAttribute(v, "_FillValue")}
	if fill, ok := fillAttrs.Float("_FillValue"); ok {
		for i, d := range data {
			if d == fill {
				data[i] = math.NaN()
			}
		}
	}
	return data, nil
}

// cfTimeUnit parses a CF time-units string like "days since 1970-01-01"
// into the epoch and the per-unit duration.
func cfTimeUnit(units string) (time.Time, time.Duration, bool) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return time.Time{}, 0, false
	}
	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "days", "day":
		step = 24 * time.Hour
	case "hours", "hour":
		step = time.Hour
	case "minutes", "minute":
		step = time.Minute
	case "seconds", "second":
		step = time.Second
	default:
		return time.Time{}, 0, false
	}
	epoch, ok := parseTimestamp(parts[1])
	if !ok {
		return time.Time{}, 0, false
	}
	return epoch, step, true
}

func decodeCFTime(vals []float64, units string) ([]time.Time, bool) {
	epoch, step, ok := cfTimeUnit(units)
	if !ok {
		return nil, false
	}
	out := make([]time.Time, len(vals))
	for i, v := range vals {
		out[i] = epoch.Add(time.Duration(v * float64(step))).UTC()
	}
	return out, true
}

// isTimeVariable reports whether a variable should be decoded into
// timestamps: the time coordinate itself, its bounds, or anything declaring
// the time standard name.
func isTimeVariable(name string, attrs Attributes) bool {
	if name == "time" || name == "time_bnds" {
		return true
	}
	sn, _ := attrs.String("standard_name")
	return sn == "time"
}

// Open reads a classic-format NetCDF dataset. Numeric variables become
// float64 arrays with _FillValue mapped to NaN; variables carrying CF time
// units are decoded into timestamps. Large variables are copied in chunks
// with cancellation checked between chunks. A nil monitor disables
// progress reporting.
func Open(r cdf.ReaderWriterAt, m Monitor) (*Dataset, error) {
	m = monitorOrNull(m)
	nc, err := cdf.Open(r)
	if err != nil {
		return nil, fmt.Errorf("cate: opening NetCDF input: %v", err)
	}

	ds := NewDataset()
	for _, a := range nc.Header.Attributes("") {
		ds.Attrs[a] = nc.Header.GetAttribute("", a)
	}

	vars := nc.Header.Variables()
	m.Start("reading dataset", float64(len(vars)))
	for _, name := range vars {
		if m.Cancelled() {
			return nil, ErrCancelled
		}
		dims := nc.Header.Dimensions(name)
		lens := nc.Header.Lengths(name)
		for i, d := range dims {
			if prev, ok := ds.Dims[d]; ok && prev != lens[i] {
				return nil, fmt.Errorf("cate: dimension %s has conflicting sizes %d and %d", d, prev, lens[i])
			}
			ds.Dims[d] = lens[i]
		}
		attrs := make(Attributes)
		for _, a := range nc.Header.Attributes(name) {
			attrs[a] = nc.Header.GetAttribute(name, a)
		}
		raw, err := readNumericVar(nc, name)
		if err != nil {
			return nil, fmt.Errorf("cate: reading variable %s: %v", name, err)
		}
		if raw == nil {
			m.Progress(1, name)
			continue // character or otherwise non-numeric variable
		}
		v := &Variable{Dims: append([]string{}, dims...), Attrs: attrs}
		if units, ok := attrs.String("units"); ok && isTimeVariable(name, attrs) {
			if times, ok := decodeCFTime(raw, units); ok {
				v.Times = times
			}
		}
		if v.Times == nil {
			v.Data = copyIntoArray(raw, lens, m)
			if v.Data == nil {
				return nil, ErrCancelled
			}
		}
		ds.DataVars[name] = v
		m.Progress(1, name)
	}
	m.Done()
	return normalizeCoordVars(ds), nil
}

// copyIntoArray moves decoded values into a DenseArray chunk by chunk,
// checking the monitor for cancellation between chunks. It returns nil if
// cancelled.
func copyIntoArray(raw []float64, shape []int, m Monitor) *sparse.DenseArray {
	arr := sparse.ZerosDense(shape...)
	nLat, nLon := 1, 1
	if len(shape) >= 2 {
		nLat, nLon = shape[len(shape)-2], shape[len(shape)-1]
	}
	cLat, _ := chunkGrid(nLat, nLon, int64(len(raw))*8)
	chunk := len(raw)
	if cLat > 1 {
		chunk = len(raw) / cLat
	}
	for lo := 0; lo < len(raw); lo += chunk {
		if m.Cancelled() {
			return nil
		}
		hi := lo + chunk
		if hi > len(raw) {
			hi = len(raw)
		}
		copy(arr.Elements[lo:hi], raw[lo:hi])
	}
	return arr
}

// OpenFile reads a classic-format NetCDF file from disk.
func OpenFile(path string, m Monitor) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cate: opening %s: %v", path, err)
	}
	defer f.Close()
	ds, err := Open(f, m)
	if err != nil {
		return nil, fmt.Errorf("cate: reading %s: %v", path, err)
	}
	return ds, nil
}

// OpenMulti opens several NetCDF files as one dataset concatenated along
// the time axis. Each file is normalized before concatenation and the
// inputs are ordered by their first time step. Progress is reported per
// file.
func OpenMulti(paths []string, m Monitor) (*Dataset, error) {
	m = monitorOrNull(m)
	if len(paths) == 0 {
		return nil, newValidationError("no input files given")
	}
	m.Start("opening files", float64(len(paths)))
	parts := make([]*Dataset, 0, len(paths))
	for _, p := range paths {
		if m.Cancelled() {
			return nil, ErrCancelled
		}
		ds, err := OpenFile(p, Child(m, 1))
		if err != nil {
			return nil, err
		}
		parts = append(parts, Normalize(ds))
		m.Progress(1, p)
	}
	m.Done()
	if len(parts) == 1 {
		return parts[0], nil
	}
	sort.SliceStable(parts, func(i, j int) bool {
		ti, oki := firstTime(parts[i])
		tj, okj := firstTime(parts[j])
		if !oki || !okj {
			return oki && !okj
		}
		return ti.Before(tj)
	})
	return concatTime(parts)
}

func firstTime(ds *Dataset) (time.Time, bool) {
	tv, ok := ds.Var("time")
	if !ok || !tv.IsTime() || len(tv.Times) == 0 {
		return time.Time{}, false
	}
	return tv.Times[0], true
}

// concatTime concatenates datasets along the time dimension. All inputs
// must agree on every other dimension. Variables must carry time as their
// first dimension (guaranteed after Normalize), so concatenation is a
// buffer append.
func concatTime(parts []*Dataset) (*Dataset, error) {
	first := parts[0]
	out := first.Copy()
	totalTime := 0
	for _, p := range parts {
		n, ok := p.Dims["time"]
		if !ok {
			return nil, fmt.Errorf("cate: cannot concatenate a dataset without a time dimension")
		}
		totalTime += n
		for d, size := range p.Dims {
			if d == "time" {
				continue
			}
			if firstSize, ok := first.Dims[d]; !ok || firstSize != size {
				return nil, fmt.Errorf("cate: dimension %s differs between input files", d)
			}
		}
	}
	out.Dims["time"] = totalTime

	concat := func(name string, v *Variable) (*Variable, error) {
		if !v.hasDim("time") {
			return v, nil
		}
		if v.dimIndex("time") != 0 {
			return nil, fmt.Errorf("cate: variable %s does not have time as its first dimension", name)
		}
		nv := v.Copy()
		if v.IsTime() {
			var times []time.Time
			for _, p := range parts {
				pv, ok := p.Var(name)
				if !ok || !pv.IsTime() {
					return nil, fmt.Errorf("cate: variable %s is missing from an input file", name)
				}
				times = append(times, pv.Times...)
			}
			nv.Times = times
			return nv, nil
		}
		shape := append([]int{}, v.shape(first)...)
		shape[0] = totalTime
		arr := sparse.ZerosDense(shape...)
		off := 0
		for _, p := range parts {
			pv, ok := p.Var(name)
			if !ok || pv.Data == nil {
				return nil, fmt.Errorf("cate: variable %s is missing from an input file", name)
			}
			copy(arr.Elements[off:], pv.Data.Elements)
			off += len(pv.Data.Elements)
		}
		nv.Data = arr
		return nv, nil
	}
	for name, v := range out.Coords {
		nv, err := concat(name, v)
		if err != nil {
			return nil, err
		}
		out.Coords[name] = nv
	}
	for name, v := range out.DataVars {
		nv, err := concat(name, v)
		if err != nil {
			return nil, err
		}
		out.DataVars[name] = nv
	}
	return out, nil
}

// encodeAttr converts an attribute value into a type the cdf package can
// store. Unsupported types are dropped.
func encodeAttr(v interface{}) (interface{}, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []float64, []float32, []int32, []int16, []int8, []byte:
		return t, true
	case float64:
		return []float64{t}, true
	case float32:
		return []float32{t}, true
	case int:
		return []int32{int32(t)}, true
	case int32:
		return []int32{t}, true
	}
	return nil, false
}

// epochDays converts a timestamp to fractional days since 1970-01-01, the
// encoding used for datetime axes on output.
func epochDays(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(24*time.Hour)
}

// Write stores the dataset as a classic-format NetCDF file. Datetime
// variables are encoded as "days since 1970-01-01" doubles.
func Write(ds *Dataset, f *os.File) error {
	dimNames := make([]string, 0, len(ds.Dims))
	for d := range ds.Dims {
		dimNames = append(dimNames, d)
	}
	// Keep the canonical axes in conventional positions and everything
	// else deterministic.
	rank := map[string]int{"time": 0, "lat": 1, "lon": 2, "bnds": 3}
	sort.Slice(dimNames, func(i, j int) bool {
		ri, oki := rank[dimNames[i]]
		rj, okj := rank[dimNames[j]]
		switch {
		case oki && okj:
			return ri < rj
		case oki:
			return true
		case okj:
			return false
		}
		return dimNames[i] < dimNames[j]
	})
	lens := make([]int, len(dimNames))
	for i, d := range dimNames {
		lens[i] = ds.Dims[d]
	}
	h := cdf.NewHeader(dimNames, lens)
	for k, v := range ds.Attrs {
		if ev, ok := encodeAttr(v); ok {
			h.AddAttribute("", k, ev)
		}
	}

	names := make([]string, 0, len(ds.Coords)+len(ds.DataVars))
	for n := range ds.Coords {
		names = append(names, n)
	}
	for n := range ds.DataVars {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, name := range names {
		v, _ := ds.Var(name)
		h.AddVariable(name, v.Dims, []float64{0})
		for k, av := range v.Attrs {
			if v.IsTime() && k == "units" {
				continue
			}
			if ev, ok := encodeAttr(av); ok {
				h.AddAttribute(name, k, ev)
			}
		}
		if v.IsTime() {
			h.AddAttribute(name, "units", "days since 1970-01-01")
		}
	}
	h.Define()
	nc, err := cdf.Create(f, h)
	if err != nil {
		return fmt.Errorf("cate: creating NetCDF output: %v", err)
	}
	for _, name := range names {
		v, _ := ds.Var(name)
		var buf []float64
		if v.IsTime() {
			buf = make([]float64, len(v.Times))
			for i, t := range v.Times {
				buf[i] = epochDays(t)
			}
		} else {
			buf = v.Data.Elements
		}
		end := nc.Header.Lengths(name)
		start := make([]int, len(end))
		w := nc.Writer(name, start, end)
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("cate: writing variable %s: %v", name, err)
		}
	}
	if err := cdf.UpdateNumRecs(f); err != nil {
		return fmt.Errorf("cate: finalizing NetCDF output: %v", err)
	}
	return nil
}

// WriteFile stores the dataset as a classic-format NetCDF file at path.
func WriteFile(ds *Dataset, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cate: creating %s: %v", path, err)
	}
	defer f.Close()
	return Write(ds, f)
}
