/*
Copyright © 2018 the HydroMap authors.
This file is part of HydroMap.

HydroMap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

HydroMap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with HydroMap.  If not, see <http://www.gnu.org/licenses/>.
*/

package hydromap

import (
	"errors"
	"fmt"
)

// Error codes reported on fatal failures; the CLI exits with the code of
// the error that aborted the run.
const (
	CodeConfiguration    = 51
	CodeMetDateMismatch  = 28
	CodeRootMaxIter      = 33
	CodeRootNotBracketed = 34
	CodeSupersaturated   = 35
	CodeGridNotSquare    = 36
	CodeMassBalance      = 60
	CodeIO               = 57
)

// Error is a fatal model error carrying an exit code and, when the
// failure is cell-local, the offending coordinates and step.
type Error struct {
	Code int
	Msg  string

	X, Y int // offending cell, -1 when not cell-local
	Step int // step index, -1 when not step-local

	wrapped error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("hydromap: %s (code %d)", e.Msg, e.Code)
	if e.X >= 0 || e.Y >= 0 {
		s += fmt.Sprintf(" at cell (%d, %d)", e.X, e.Y)
	}
	if e.Step >= 0 {
		s += fmt.Sprintf(" step %d", e.Step)
	}
	if e.wrapped != nil {
		s += ": " + e.wrapped.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.wrapped }

// newError builds a non-cell-local coded error.
func newError(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), X: -1, Y: -1, Step: -1}
}

// cellError builds a cell-local coded error.
func cellError(code, x, y, step int, wrapped error, format string, args ...interface{}) *Error {
	return &Error{
		Code: code, Msg: fmt.Sprintf(format, args...),
		X: x, Y: y, Step: step, wrapped: wrapped,
	}
}

// ExitCode extracts the exit code from an error chain; unknown errors map
// to 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 1
}
