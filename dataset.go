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

// Package cate normalizes gridded geophysical datasets into a canonical
// spatial and temporal representation and subsets them by region and time.
package cate

import (
	"fmt"
	"time"

	"github.com/ctessum/sparse"
)

// Attributes holds free-form key/value metadata for a dataset or variable.
// Values read from NetCDF files are either strings or numeric slices
// (e.g. []float64, []int32), following the conventions of the cdf package.
type Attributes map[string]interface{}

// Copy returns a copy of a. The values themselves are shared.
func (a Attributes) Copy() Attributes {
	o := make(Attributes, len(a))
	for k, v := range a {
		o[k] = v
	}
	return o
}

// String returns the attribute with the given key as a string.
func (a Attributes) String(key string) (string, bool) {
	v, ok := a[key]
	if !ok {
		return "", false
	}
	switch v := v.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}

// Float returns the attribute with the given key as a float64, unwrapping
// the single-element numeric slices produced by NetCDF attribute storage.
func (a Attributes) Float(key string) (float64, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case []float64:
		if len(v) > 0 {
			return v[0], true
		}
	case []float32:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	case []int32:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	}
	return 0, false
}

// A Variable is a single labeled array within a Dataset. Numeric variables
// hold their values in Data; datetime-typed variables (a decoded time axis
// or its bounds) hold them in Times instead, shaped row-major by Dims.
// Exactly one of Data and Times is non-nil.
type Variable struct {
	Dims  []string
	Attrs Attributes
	Data  *sparse.DenseArray
	Times []time.Time
}

// IsTime reports whether the variable is datetime-typed.
func (v *Variable) IsTime() bool { return v.Times != nil }

// Len returns the total number of elements in the variable.
func (v *Variable) Len() int {
	if v.Times != nil {
		return len(v.Times)
	}
	if v.Data != nil {
		return len(v.Data.Elements)
	}
	return 0
}

// Copy returns a copy of v with fresh dim and attribute containers.
// The underlying value buffers are shared.
func (v *Variable) Copy() *Variable {
	o := &Variable{
		Dims:  append([]string{}, v.Dims...),
		Attrs: v.Attrs.Copy(),
		Data:  v.Data,
		Times: v.Times,
	}
	return o
}

func (v *Variable) hasDim(name string) bool {
	for _, d := range v.Dims {
		if d == name {
			return true
		}
	}
	return false
}

func (v *Variable) dimIndex(name string) int {
	for i, d := range v.Dims {
		if d == name {
			return i
		}
	}
	return -1
}

// shape returns the sizes of the variable's dimensions according to ds.
func (v *Variable) shape(ds *Dataset) []int {
	s := make([]int, len(v.Dims))
	for i, d := range v.Dims {
		s[i] = ds.Dims[d]
	}
	return s
}

// A Dataset is an in-memory collection of labeled N-dimensional arrays,
// the Go analog of a NetCDF file. Variables are partitioned into coordinate
// variables (those defining an axis or the bounds of one) and data
// variables (everything else).
type Dataset struct {
	Dims     map[string]int
	Coords   map[string]*Variable
	DataVars map[string]*Variable
	Attrs    Attributes
}

// NewDataset creates an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{
		Dims:     make(map[string]int),
		Coords:   make(map[string]*Variable),
		DataVars: make(map[string]*Variable),
		Attrs:    make(Attributes),
	}
}

// Var looks up a variable by name among the coordinate variables first
// and the data variables second.
func (d *Dataset) Var(name string) (*Variable, bool) {
	if v, ok := d.Coords[name]; ok {
		return v, true
	}
	v, ok := d.DataVars[name]
	return v, ok
}

// Copy returns a shallow copy of d: the maps are fresh but the variables
// and their value buffers are shared with the original.
func (d *Dataset) Copy() *Dataset {
	o := &Dataset{
		Dims:     make(map[string]int, len(d.Dims)),
		Coords:   make(map[string]*Variable, len(d.Coords)),
		DataVars: make(map[string]*Variable, len(d.DataVars)),
		Attrs:    d.Attrs.Copy(),
	}
	for k, v := range d.Dims {
		o.Dims[k] = v
	}
	for k, v := range d.Coords {
		o.Coords[k] = v
	}
	for k, v := range d.DataVars {
		o.DataVars[k] = v
	}
	return o
}

// Check verifies that every variable's declared dimensions exist in the
// dimension-size mapping and that its element count matches its shape.
func (d *Dataset) Check() error {
	check := func(name string, v *Variable) error {
		n := 1
		for _, dim := range v.Dims {
			size, ok := d.Dims[dim]
			if !ok {
				return fmt.Errorf("cate: variable %s refers to undeclared dimension %s", name, dim)
			}
			n *= size
		}
		if got := v.Len(); got != n {
			return fmt.Errorf("cate: variable %s has %d elements but its dimensions specify %d", name, got, n)
		}
		return nil
	}
	for name, v := range d.Coords {
		if err := check(name, v); err != nil {
			return err
		}
	}
	for name, v := range d.DataVars {
		if err := check(name, v); err != nil {
			return err
		}
	}
	return nil
}

// builder implements copy-on-write mutation of a dataset: the wrapped
// dataset is cloned (maps only, not value buffers) on the first call to
// mutable, so passes that turn out to be no-ops return their input
// unchanged.
type builder struct {
	ds    *Dataset
	dirty bool
}

func newBuilder(ds *Dataset) *builder { return &builder{ds: ds} }

func (b *builder) mutable() *Dataset {
	if !b.dirty {
		b.ds = b.ds.Copy()
		b.dirty = true
	}
	return b.ds
}

func (b *builder) result() *Dataset { return b.ds }

// strides returns the row-major strides for shape.
func strides(shape []int) []int {
	s := make([]int, len(shape))
	st := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = st
		st *= shape[i]
	}
	return s
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// gather computes the element moves needed to select the indices sel along
// dimension dim of an array with the given shape, calling move(dst, src)
// for each output element. It returns the output shape.
func gather(shape []int, dim int, sel []int, move func(dst, src int)) []int {
	outShape := append([]int{}, shape...)
	outShape[dim] = len(sel)
	inStrides := strides(shape)
	outStrides := strides(outShape)
	n := product(outShape)
	for o := 0; o < n; o++ {
		rem := o
		src := 0
		for d := range outShape {
			i := rem / outStrides[d]
			rem = rem % outStrides[d]
			if d == dim {
				i = sel[i]
			}
			src += i * inStrides[d]
		}
		move(o, src)
	}
	return outShape
}

// takeAlongDim returns a copy of v restricted to the indices sel along the
// named dimension. Variables lacking the dimension are returned unchanged.
// Numeric variables are gathered against the shape their array carries,
// which may already differ from ds.Dims when several dimensions are sliced
// in sequence.
func takeAlongDim(ds *Dataset, v *Variable, dim string, sel []int) *Variable {
	di := v.dimIndex(dim)
	if di < 0 {
		return v
	}
	o := v.Copy()
	if v.IsTime() {
		shape := v.shape(ds)
		outShape := append([]int{}, shape...)
		outShape[di] = len(sel)
		out := make([]time.Time, product(outShape))
		gather(shape, di, sel, func(dst, src int) { out[dst] = v.Times[src] })
		o.Times = out
		return o
	}
	shape := v.Data.Shape
	outShape := append([]int{}, shape...)
	outShape[di] = len(sel)
	arr := sparse.ZerosDense(outShape...)
	gather(shape, di, sel, func(dst, src int) { arr.Elements[dst] = v.Data.Elements[src] })
	o.Data = arr
	return o
}

// transposeVar returns a copy of v with its dimensions permuted into the
// given order (a permutation of indices into v.Dims).
func transposeVar(ds *Dataset, v *Variable, order []int) *Variable {
	shape := v.shape(ds)
	outShape := make([]int, len(order))
	outDims := make([]string, len(order))
	for i, d := range order {
		outShape[i] = shape[d]
		outDims[i] = v.Dims[d]
	}
	inStrides := strides(shape)
	outStrides := strides(outShape)
	n := product(shape)
	o := v.Copy()
	o.Dims = outDims
	if v.IsTime() {
		out := make([]time.Time, n)
		for fl := 0; fl < n; fl++ {
			rem := fl
			src := 0
			for d := range outShape {
				i := rem / outStrides[d]
				rem = rem % outStrides[d]
				src += i * inStrides[order[d]]
			}
			out[fl] = v.Times[src]
		}
		o.Times = out
		return o
	}
	arr := sparse.ZerosDense(outShape...)
	for fl := 0; fl < n; fl++ {
		rem := fl
		src := 0
		for d := range outShape {
			i := rem / outStrides[d]
			rem = rem % outStrides[d]
			src += i * inStrides[order[d]]
		}
		arr.Elements[fl] = v.Data.Elements[src]
	}
	o.Data = arr
	return o
}
