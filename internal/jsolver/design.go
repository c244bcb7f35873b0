// Public domain.

package jsolver

import (
	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/joker/internal/jprior"
	"github.com/soniakeys/joker/kepler"
	"github.com/soniakeys/joker/rv"
)

// problem is the read-only part of a run: observations prepared for
// evaluation, and settings common to all candidates.  It is shared by all
// workers and never written after newProblem.
type problem struct {
	t, y, err2 []float64
	inst       []int
	nInst      int
	lambda     []float64 // prior variances of linear parameters
	tol        float64
	maxIter    int
}

func newProblem(d *rv.Data, cfg *Config) *problem {
	names, inst := d.Instruments()
	p := &problem{
		t:       d.T,
		y:       d.RV,
		err2:    make([]float64, d.Len()),
		inst:    inst,
		nInst:   len(names),
		lambda:  make([]float64, 1+len(names)),
		tol:     cfg.Prior.KeplerTol,
		maxIter: cfg.Prior.KeplerMaxIter,
	}
	for i, e := range d.Err {
		p.err2[i] = e * e
	}
	p.lambda[0] = cfg.PriorVarK
	for j := 1; j < len(p.lambda); j++ {
		p.lambda[j] = cfg.PriorVarV0
	}
	return p
}

// Design builds the linear design matrix for candidate c at epochs t.
//
// Column 0 is the velocity shape for unit semi-amplitude,
// cos(ω + ν) + e cos ω.  Columns 1..nInst are indicator columns for the
// systemic offset of each instrument; inst gives the instrument index of
// each epoch.  The error is kepler.ErrNonConvergence if any epoch's
// anomaly cannot be solved.
func Design(c jprior.Candidate, t []float64, inst []int, nInst int,
	tol float64, maxIter int) (*mat.Dense, error) {
	M := make([]unit.Angle, len(t))
	for i, ti := range t {
		M[i] = kepler.MeanAnomaly(ti, c.P, c.Phi0)
	}
	E := make([]unit.Angle, len(t))
	if err := kepler.SolveAll(E, M, c.Ecc, tol, maxIter); err != nil {
		return nil, err
	}
	A := mat.NewDense(len(t), 1+nInst, nil)
	for i, x := range E {
		A.Set(i, 0, rv.Shape(x, c.Ecc, c.Omega))
		A.Set(i, 1+inst[i], 1)
	}
	return A, nil
}

// evaluate runs a single candidate through design matrix construction and
// marginal likelihood.  It never fails; problems are recorded in the
// returned Evaluation.
func (p *problem) evaluate(c jprior.Candidate) Evaluation {
	ev := Evaluation{Candidate: c}
	A, err := Design(c, p.t, p.inst, p.nInst, p.tol, p.maxIter)
	if err != nil {
		ev.invalidate(NonConvergence)
		return ev
	}
	variance := p.err2
	if s2 := c.Jitter * c.Jitter; s2 > 0 {
		variance = make([]float64, len(p.err2))
		for i, e2 := range p.err2 {
			variance[i] = e2 + s2
		}
	}
	ev.LinearPosterior, ev.Reason = Marginal(A, p.y, variance, p.lambda)
	return ev
}
