// Public domain.

// Package rv defines radial velocity observation sets and Keplerian
// radial velocity orbits.
package rv

import (
	"fmt"
	"math"
)

// Data is an observation set: epochs, radial velocities and their
// uncertainties, index aligned.  Instrument, if not nil, tags each
// observation with the instrument that took it.  Each distinct instrument
// gets its own systemic velocity offset.
//
// Epochs, velocities and uncertainties must be in consistent units; the
// package does no unit handling.  Data should be treated as immutable once
// validated.
type Data struct {
	T          []float64
	RV         []float64
	Err        []float64
	Instrument []string
}

// InvalidDataError describes the first row of Data found to be unusable.
type InvalidDataError struct {
	Row    int // -1 for errors not specific to a row
	Field  string
	Value  float64
	Reason string
}

func (e *InvalidDataError) Error() string {
	if e.Row < 0 {
		return "rv: invalid data: " + e.Reason
	}
	return fmt.Sprintf("rv: invalid data, row %d, %s = %g: %s",
		e.Row, e.Field, e.Value, e.Reason)
}

// Len returns the number of observations.
func (d *Data) Len() int { return len(d.T) }

// Validate checks that columns are aligned, that every epoch and velocity
// is finite, and that every uncertainty is finite and strictly positive.
func (d *Data) Validate() error {
	n := len(d.T)
	if n == 0 {
		return &InvalidDataError{Row: -1, Reason: "no observations"}
	}
	if len(d.RV) != n || len(d.Err) != n {
		return &InvalidDataError{Row: -1, Reason: fmt.Sprintf(
			"column lengths differ: t %d, rv %d, err %d",
			n, len(d.RV), len(d.Err))}
	}
	if d.Instrument != nil && len(d.Instrument) != n {
		return &InvalidDataError{Row: -1, Reason: fmt.Sprintf(
			"instrument column length %d, want %d", len(d.Instrument), n)}
	}
	for i := 0; i < n; i++ {
		switch {
		case !finite(d.T[i]):
			return &InvalidDataError{i, "t", d.T[i], "not finite"}
		case !finite(d.RV[i]):
			return &InvalidDataError{i, "rv", d.RV[i], "not finite"}
		case !finite(d.Err[i]):
			return &InvalidDataError{i, "err", d.Err[i], "not finite"}
		case d.Err[i] <= 0:
			return &InvalidDataError{i, "err", d.Err[i], "not positive"}
		}
	}
	return nil
}

// Instruments returns the distinct instrument names in order of first
// appearance, and for each observation the index of its instrument in
// that list.  Untagged data has a single unnamed instrument.
func (d *Data) Instruments() (names []string, index []int) {
	index = make([]int, len(d.T))
	if d.Instrument == nil {
		return []string{""}, index
	}
	seen := map[string]int{}
	for i, s := range d.Instrument {
		x, ok := seen[s]
		if !ok {
			x = len(names)
			seen[s] = x
			names = append(names, s)
		}
		index[i] = x
	}
	return
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
