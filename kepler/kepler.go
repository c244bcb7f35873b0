// Public domain.

// Package kepler solves Kepler's equation for the eccentric anomaly.
//
// Functions here are pure and safe for concurrent use.  They take and
// return angles as unit.Angle, radians underneath.
package kepler

import (
	"errors"
	"math"

	mk "github.com/soniakeys/meeus/v3/kepler"
	"github.com/soniakeys/unit"
)

// Defaults used when a caller has no reason to pick otherwise.
const (
	DefaultTol     = 1e-10
	DefaultMaxIter = 128
)

// ErrNonConvergence is returned when Newton iteration does not reach the
// requested tolerance within the allowed number of iterations.
var ErrNonConvergence = errors.New("kepler: no convergence")

// ErrEccentricity is returned for eccentricities outside [0, 1).
var ErrEccentricity = errors.New("kepler: eccentricity not in [0, 1)")

// Solve returns eccentric anomaly E such that E - e sin E = M (mod 2π)
// to within tol.
//
// M may be any real angle.  It is wrapped to [0, 2π) before iterating and
// the result is also in [0, 2π).  Iteration is Newton-Raphson from
// E0 = M + e sin M, or from E0 = π when e >= .8, where the former guess
// can overshoot.
func Solve(M unit.Angle, e, tol float64, maxIter int) (E unit.Angle, err error) {
	if !(e >= 0 && e < 1) {
		return 0, ErrEccentricity
	}
	m := M.Mod1().Rad()
	var x float64
	if e < .8 {
		x = m + e*math.Sin(m)
	} else {
		x = math.Pi
	}
	for i := 0; i < maxIter; i++ {
		s, c := math.Sincos(x)
		f := x - e*s - m
		if math.Abs(f) < tol {
			return unit.Angle(x).Mod1(), nil
		}
		x -= f / (1 - e*c)
	}
	// last step may have landed inside tolerance
	if math.Abs(x-e*math.Sin(x)-m) < tol {
		return unit.Angle(x).Mod1(), nil
	}
	return 0, ErrNonConvergence
}

// SolveAll solves Kepler's equation for each mean anomaly in M, all with
// the same eccentricity.  Results are stored in E, which must have the
// same length as M.
//
// Elements are solved independently, exactly as Solve would solve them.
// The first failure is returned; elements of E past that point are not
// meaningful.
func SolveAll(E, M []unit.Angle, e, tol float64, maxIter int) error {
	if len(E) != len(M) {
		panic("kepler.SolveAll: length mismatch")
	}
	for i, m := range M {
		x, err := Solve(m, e, tol, maxIter)
		if err != nil {
			return err
		}
		E[i] = x
	}
	return nil
}

// TrueAnomaly returns the true anomaly ν for eccentric anomaly E.
func TrueAnomaly(E unit.Angle, e float64) unit.Angle {
	return mk.True(E, e)
}

// MeanAnomaly returns mean anomaly 2π t / P - φ0 for time t, period P and
// phase φ0.  t and P must be in the same time unit.
func MeanAnomaly(t, P float64, phi0 unit.Angle) unit.Angle {
	return unit.Angle(2*math.Pi*t/P) - phi0
}
