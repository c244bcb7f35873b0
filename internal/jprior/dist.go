// Public domain.

package jprior

import (
	"errors"
	"fmt"
	"math"

	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Dist is a one dimensional prior distribution.
//
// Sample draws n independent values using rnd and nothing else, so that
// the same rnd state gives the same values.  Bounds reports the closed
// interval containing every value Sample can return.
type Dist interface {
	Sample(n int, rnd *xrand.Rand) []float64
	Bounds() (lo, hi float64)
}

// validator is implemented by distributions with parameters that can be
// invalid beyond what Bounds shows.
type validator interface {
	validate() error
}

// LogUniform is uniform in log x over [Min, Max].  Min must be > 0.
type LogUniform struct {
	Min, Max float64
}

func (d LogUniform) Sample(n int, rnd *xrand.Rand) []float64 {
	lo, hi := math.Log(d.Min), math.Log(d.Max)
	s := make([]float64, n)
	for i := range s {
		s[i] = math.Exp(lo + (hi-lo)*rnd.Float64())
	}
	return s
}

func (d LogUniform) Bounds() (lo, hi float64) { return d.Min, d.Max }

func (d LogUniform) validate() error {
	if !(d.Min > 0) {
		return fmt.Errorf("log-uniform minimum %g not positive", d.Min)
	}
	return nil
}

// Uniform is uniform over [Min, Max).
type Uniform struct {
	Min, Max float64
}

func (d Uniform) Sample(n int, rnd *xrand.Rand) []float64 {
	u := distuv.Uniform{Min: d.Min, Max: d.Max, Src: rnd}
	s := make([]float64, n)
	for i := range s {
		s[i] = u.Rand()
	}
	return s
}

func (d Uniform) Bounds() (lo, hi float64) { return d.Min, d.Max }

// Beta is the beta distribution on [0, 1].
type Beta struct {
	Alpha, Beta float64
}

// Kipping is the beta distribution fit to the eccentricities of known
// exoplanets, Kipping 2013, MNRAS 434, L51.
var Kipping = Beta{Alpha: .867, Beta: 3.03}

func (d Beta) Sample(n int, rnd *xrand.Rand) []float64 {
	b := distuv.Beta{Alpha: d.Alpha, Beta: d.Beta, Src: rnd}
	s := make([]float64, n)
	for i := range s {
		s[i] = b.Rand()
	}
	return s
}

func (d Beta) Bounds() (lo, hi float64) { return 0, 1 }

func (d Beta) validate() error {
	if !(d.Alpha > 0 && d.Beta > 0) {
		return fmt.Errorf("beta parameters %g, %g not positive", d.Alpha, d.Beta)
	}
	return nil
}

// Fixed always returns the same value.  It consumes no random numbers.
type Fixed float64

func (d Fixed) Sample(n int, rnd *xrand.Rand) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = float64(d)
	}
	return s
}

func (d Fixed) Bounds() (lo, hi float64) { return float64(d), float64(d) }

// Grid draws uniformly among a fixed set of values.
type Grid []float64

func (d Grid) Sample(n int, rnd *xrand.Rand) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = d[rnd.Intn(len(d))]
	}
	return s
}

func (d Grid) Bounds() (lo, hi float64) {
	if len(d) == 0 {
		return math.NaN(), math.NaN()
	}
	lo, hi = d[0], d[0]
	for _, x := range d[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return
}

func (d Grid) validate() error {
	if len(d) == 0 {
		return errors.New("empty grid")
	}
	return nil
}

// checkDist validates d and that its bounds lie within [lo, hi], or
// (lo, hi] with loOpen.
func checkDist(name string, d Dist, lo, hi float64, loOpen bool) error {
	if d == nil {
		return fmt.Errorf("jprior: %s prior missing", name)
	}
	if v, ok := d.(validator); ok {
		if err := v.validate(); err != nil {
			return fmt.Errorf("jprior: %s prior: %w", name, err)
		}
	}
	dlo, dhi := d.Bounds()
	switch {
	case !finite(dlo) || !finite(dhi) || dlo > dhi:
		return fmt.Errorf("jprior: %s prior bounds [%g, %g] invalid", name, dlo, dhi)
	case dlo < lo || loOpen && dlo == lo || dhi > hi:
		return fmt.Errorf("jprior: %s prior bounds [%g, %g] outside support",
			name, dlo, dhi)
	}
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
