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
	"errors"
	"fmt"
)

// A ValidationError reports that caller-supplied input violated a contract:
// a bad region, a dataset missing required axes, a bounding box outside the
// legal range, or a mask too large to build. It is always surfaced to the
// caller and never recovered silently.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "cate: " + e.Msg }

func newValidationError(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ErrCancelled is returned when an operation is aborted because the
// injected monitor reported a cancellation request.
var ErrCancelled = errors.New("cate: operation cancelled")
