// Public domain.

package jsolver

import (
	"math"

	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/soniakeys/joker/rv"
)

// Diagnostics counts what happened to the candidates of a run.
type Diagnostics struct {
	Evaluated      int
	NonConvergence int
	Singular       int
	NonFinite      int
	Accepted       int
	MaxLnL         float64 // -Inf if no candidate was valid
	NoneAccepted   bool
}

// Invalid is the number of candidates with LnL = -Inf.
func (d *Diagnostics) Invalid() int {
	return d.NonConvergence + d.Singular + d.NonFinite
}

// SampleSet is the result of a run: accepted orbits in candidate order.
type SampleSet struct {
	Orbits      []rv.Orbit
	Instruments []string // names, indexed as Orbit.V0
	Diag        Diagnostics
}

// Len is the number of accepted samples.
func (s *SampleSet) Len() int { return len(s.Orbits) }

// Column returns one element of every sample's parameter vector.  See
// rv.Orbit.Vector for element order.
func (s *SampleSet) Column(j int) []float64 {
	c := make([]float64, len(s.Orbits))
	for i := range s.Orbits {
		c[i] = s.Orbits[i].Vector()[j]
	}
	return c
}

// Mean returns the sample mean orbit.  Angles are averaged on the circle.
// The result is the zero Orbit if the set is empty.
func (s *SampleSet) Mean() rv.Orbit {
	if len(s.Orbits) == 0 {
		return rv.Orbit{}
	}
	v := make([]float64, rv.NumNonlinear+1+len(s.Instruments))
	for j := range v {
		c := s.Column(j)
		switch j {
		case 2, 3:
			v[j] = circularMean(c)
		default:
			v[j] = stat.Mean(c, nil)
		}
	}
	return rv.OrbitFromVector(v)
}

// StdDev returns the sample standard deviation of each parameter vector
// element.  Angles get the circular standard deviation.  Fewer than two
// samples give NaN.
func (s *SampleSet) StdDev() []float64 {
	sd := make([]float64, rv.NumNonlinear+1+len(s.Instruments))
	for j := range sd {
		c := s.Column(j)
		switch {
		case len(c) < 2:
			sd[j] = math.NaN()
		case j == 2 || j == 3:
			sd[j] = circularStdDev(c)
		default:
			sd[j] = stat.StdDev(c, nil)
		}
	}
	return sd
}

// Curves evaluates up to nPlot sample orbits over tGrid, evenly spread
// through the set.  The rows are ready for plotting; nothing is rendered
// here.  nPlot < 1 means all samples.
func (s *SampleSet) Curves(tGrid []float64, nPlot int) ([][]float64, error) {
	n := len(s.Orbits)
	if nPlot < 1 || nPlot > n {
		nPlot = n
	}
	rows := make([][]float64, 0, nPlot)
	for k := 0; k < nPlot; k++ {
		c, err := s.Orbits[k*n/nPlot].Curve(tGrid)
		if err != nil {
			return nil, err
		}
		rows = append(rows, c)
	}
	return rows, nil
}

func circularMean(a []float64) float64 {
	var s, c float64
	for _, x := range a {
		s += math.Sin(x)
		c += math.Cos(x)
	}
	return unit.Angle(math.Atan2(s, c)).Mod1().Rad()
}

func circularStdDev(a []float64) float64 {
	sn := make([]float64, len(a))
	cs := make([]float64, len(a))
	for i, x := range a {
		sn[i], cs[i] = math.Sincos(x)
	}
	n := float64(len(a))
	r := math.Hypot(floats.Sum(sn)/n, floats.Sum(cs)/n)
	if r >= 1 {
		return 0
	}
	return math.Sqrt(-2 * math.Log(r))
}
