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

// Package store catalogs Earth-observation datasets and opens them as
// in-memory gridded datasets through pluggable data stores.
package store

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	cate "github.com/CCI-Tools/cate-sub000"
)

// A Descriptor describes one dataset available from a store.
type Descriptor struct {
	ID    string            `toml:"-"`
	Title string            `toml:"title"`
	Files []string          `toml:"files"`
	Meta  map[string]string `toml:"meta"`
}

// A Store catalogs datasets by ID and opens them as normalized in-memory
// grids. Remote protocol stores implement the same interface elsewhere;
// this package ships the local-filesystem store.
type Store interface {
	IDs() []string
	Describe(id string) (*Descriptor, error)
	Open(id string, m cate.Monitor) (*cate.Dataset, error)
}

type catalogFile struct {
	Datasets map[string]*Descriptor `toml:"datasets"`
}

// Local is a Store over NetCDF files on the local filesystem, described by
// a TOML catalog of the form:
//
//	[datasets.sst]
//	title = "Sea surface temperature"
//	files = ["sst/*.nc"]
//
// File globs are resolved relative to the catalog's directory.
type Local struct {
	dir      string
	datasets map[string]*Descriptor
}

// OpenLocal reads a TOML catalog file and returns the store it describes.
func OpenLocal(path string) (*Local, error) {
	var cf catalogFile
	if _, err := toml.DecodeFile(path, &cf); err != nil {
		return nil, fmt.Errorf("store: reading catalog %s: %v", path, err)
	}
	if len(cf.Datasets) == 0 {
		return nil, fmt.Errorf("store: catalog %s declares no datasets", path)
	}
	for id, d := range cf.Datasets {
		d.ID = id
		if len(d.Files) == 0 {
			return nil, fmt.Errorf("store: dataset %s declares no files", id)
		}
	}
	return &Local{dir: filepath.Dir(path), datasets: cf.Datasets}, nil
}

// IDs returns the catalog's dataset identifiers in sorted order.
func (s *Local) IDs() []string {
	ids := make([]string, 0, len(s.datasets))
	for id := range s.datasets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Describe returns the descriptor for the given dataset ID.
func (s *Local) Describe(id string) (*Descriptor, error) {
	d, ok := s.datasets[id]
	if !ok {
		return nil, fmt.Errorf("store: unknown dataset %q", id)
	}
	return d, nil
}

// Open resolves the dataset's file globs and opens the matching NetCDF
// files as one normalized dataset concatenated along time.
func (s *Local) Open(id string, m cate.Monitor) (*cate.Dataset, error) {
	d, err := s.Describe(id)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, pattern := range d.Files {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(s.dir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("store: bad file pattern %q for dataset %s: %v", pattern, id, err)
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("store: no files match the patterns of dataset %s", id)
	}
	sort.Strings(paths)
	return cate.OpenMulti(paths, m)
}
