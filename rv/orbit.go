// Public domain.

package rv

import (
	"fmt"
	"math"

	"github.com/soniakeys/unit"

	"github.com/soniakeys/joker/kepler"
)

// Orbit is a full Keplerian radial velocity parameter set.
//
// The model is
//
//	rv(t) = K [cos(ω + ν(t)) + e cos ω] + v0
//
// where ν is true anomaly, found from mean anomaly M = 2π t / P - φ0
// through Kepler's equation.
type Orbit struct {
	P      float64    // period, in the time unit of the data
	Ecc    float64    // eccentricity, [0, 1)
	Phi0   unit.Angle // phase: mean anomaly is -Phi0 at t = 0
	Omega  unit.Angle // argument of periastron
	Jitter float64    // extra velocity noise, added in quadrature
	K      float64    // velocity semi-amplitude
	V0     []float64  // systemic velocity, one per instrument
}

// NumNonlinear is the number of leading nonlinear elements in a parameter
// vector, see Orbit.Vector.
const NumNonlinear = 5

// Shape is the radial velocity per unit semi-amplitude at eccentric anomaly
// E, cos(ω + ν) + e cos ω, without systemic velocity.
func Shape(E unit.Angle, e float64, ω unit.Angle) float64 {
	ν := kepler.TrueAnomaly(E, e)
	return math.Cos((ω+ν).Rad()) + e*math.Cos(ω.Rad())
}

// RadialVelocity computes model velocity at time t for the instrument with
// index inst.  An error is returned only if Kepler's equation cannot be
// solved.
func (o *Orbit) RadialVelocity(t float64, inst int) (float64, error) {
	E, err := kepler.Solve(kepler.MeanAnomaly(t, o.P, o.Phi0), o.Ecc,
		kepler.DefaultTol, kepler.DefaultMaxIter)
	if err != nil {
		return 0, err
	}
	v := o.K * Shape(E, o.Ecc, o.Omega)
	if inst < len(o.V0) {
		v += o.V0[inst]
	}
	return v, nil
}

// Curve computes model velocities over a grid of times, relative to the
// first instrument.  It is the array a plotting collaborator renders.
func (o *Orbit) Curve(tGrid []float64) ([]float64, error) {
	c := make([]float64, len(tGrid))
	for i, t := range tGrid {
		v, err := o.RadialVelocity(t, 0)
		if err != nil {
			return nil, fmt.Errorf("rv: curve at t = %g: %w", t, err)
		}
		c[i] = v
	}
	return c, nil
}

// T0 returns the time of pericenter closest to epoch.
func (o *Orbit) T0(epoch float64) float64 {
	t0 := o.Phi0.Rad() * o.P / (2 * math.Pi)
	return t0 + math.Round((epoch-t0)/o.P)*o.P
}

// Canonical returns a copy of o with K non-negative.  A negative
// semi-amplitude is the same curve as |K| with ω advanced by π.
func (o Orbit) Canonical() Orbit {
	o.V0 = append([]float64(nil), o.V0...)
	if o.K < 0 {
		o.K = -o.K
		o.Omega = (o.Omega + math.Pi).Mod1()
	}
	return o
}

// Vector returns the orbit as a flat parameter vector,
// P, e, φ0, ω, jitter, K, v0...
func (o *Orbit) Vector() []float64 {
	v := make([]float64, 0, NumNonlinear+1+len(o.V0))
	v = append(v, o.P, o.Ecc, o.Phi0.Rad(), o.Omega.Rad(), o.Jitter, o.K)
	return append(v, o.V0...)
}

// OrbitFromVector is the inverse of Orbit.Vector.
func OrbitFromVector(v []float64) Orbit {
	if len(v) < NumNonlinear+1 {
		panic("rv.OrbitFromVector: short vector")
	}
	return Orbit{
		P:      v[0],
		Ecc:    v[1],
		Phi0:   unit.Angle(v[2]),
		Omega:  unit.Angle(v[3]),
		Jitter: v[4],
		K:      v[5],
		V0:     append([]float64(nil), v[6:]...),
	}
}

// VectorNames labels the elements of Orbit.Vector for nInst instruments.
func VectorNames(nInst int) []string {
	n := []string{"P", "e", "phi0", "omega", "jitter", "K"}
	if nInst == 1 {
		return append(n, "v0")
	}
	for i := 0; i < nInst; i++ {
		n = append(n, fmt.Sprintf("v0_%d", i))
	}
	return n
}
