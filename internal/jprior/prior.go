// Public domain.

// Package jprior draws candidate orbits from priors over the nonlinear
// orbital parameters.
package jprior

import (
	"fmt"
	"math"

	"github.com/soniakeys/unit"
	xrand "golang.org/x/exp/rand"

	"github.com/soniakeys/joker/kepler"
)

// Candidate is one draw of the nonlinear orbital parameters.
type Candidate struct {
	P      float64
	Ecc    float64
	Phi0   unit.Angle
	Omega  unit.Angle
	Jitter float64
}

// Config holds priors for each nonlinear parameter and the Kepler solver
// settings used when candidates are evaluated.
type Config struct {
	Period Dist
	Ecc    Dist
	Phase  Dist
	Omega  Dist
	Jitter Dist

	KeplerTol     float64
	KeplerMaxIter int
}

// maxEcc is the largest eccentricity a candidate gets.  A distribution
// with support reaching 1 is clipped here.
var maxEcc = math.Nextafter(1, 0)

// DefaultConfig returns a configuration with period log-uniform over
// [pMin, pMax], the Kipping eccentricity prior, uniform angles, and no
// jitter.
func DefaultConfig(pMin, pMax float64) Config {
	return Config{
		Period:        LogUniform{pMin, pMax},
		Ecc:           Kipping,
		Phase:         Uniform{0, 2 * math.Pi},
		Omega:         Uniform{0, 2 * math.Pi},
		Jitter:        Fixed(0),
		KeplerTol:     kepler.DefaultTol,
		KeplerMaxIter: kepler.DefaultMaxIter,
	}
}

// Validate checks that every prior is present and has support compatible
// with its parameter.
func (c *Config) Validate() error {
	if err := checkDist("period", c.Period, 0, math.Inf(1), true); err != nil {
		return err
	}
	if err := checkDist("eccentricity", c.Ecc, 0, 1, false); err != nil {
		return err
	}
	if err := checkDist("phase", c.Phase, 0, 2*math.Pi, false); err != nil {
		return err
	}
	if err := checkDist("omega", c.Omega, 0, 2*math.Pi, false); err != nil {
		return err
	}
	if err := checkDist("jitter", c.Jitter, 0, math.Inf(1), false); err != nil {
		return err
	}
	if !(c.KeplerTol > 0) {
		return fmt.Errorf("jprior: kepler tolerance %g not positive", c.KeplerTol)
	}
	if c.KeplerMaxIter < 1 {
		return fmt.Errorf("jprior: kepler max iterations %d < 1", c.KeplerMaxIter)
	}
	return nil
}

// Sample draws n candidates.
//
// Parameters are drawn a column at a time in a fixed order, period,
// eccentricity, phase, omega, jitter, so identical rnd state and n give
// identical candidates.
func (c *Config) Sample(n int, rnd *xrand.Rand) []Candidate {
	p := c.Period.Sample(n, rnd)
	e := c.Ecc.Sample(n, rnd)
	ph := c.Phase.Sample(n, rnd)
	om := c.Omega.Sample(n, rnd)
	j := c.Jitter.Sample(n, rnd)
	cs := make([]Candidate, n)
	for i := range cs {
		cs[i] = Candidate{
			P:      p[i],
			Ecc:    math.Min(e[i], maxEcc),
			Phi0:   unit.Angle(ph[i]).Mod1(),
			Omega:  unit.Angle(om[i]).Mod1(),
			Jitter: j[i],
		}
	}
	return cs
}
