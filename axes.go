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

// Alias lists for the geographic axes, in priority order. Real-world files
// disagree on these names, so resolution checks each alias in turn against
// the declared dimension names.
var (
	latAliases = []string{"lat", "latitude"}
	lonAliases = []string{"lon", "longitude", "long"}
)

// LatDimension returns the name of the dimension that plays the latitude
// role in ds, if any. A false result means "axis unknown", not an error.
func LatDimension(ds *Dataset) (string, bool) {
	return findDimension(ds, latAliases)
}

// LonDimension returns the name of the dimension that plays the longitude
// role in ds, if any. A false result means "axis unknown", not an error.
func LonDimension(ds *Dataset) (string, bool) {
	return findDimension(ds, lonAliases)
}

func findDimension(ds *Dataset, aliases []string) (string, bool) {
	for _, a := range aliases {
		if _, ok := ds.Dims[a]; ok {
			return a, true
		}
	}
	return "", false
}

func isLatAlias(name string) bool { return containsString(latAliases, name) }
func isLonAlias(name string) bool { return containsString(lonAliases, name) }

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
