// Public domain.

// Package jsolver implements rejection sampling of Keplerian orbits from
// sparse radial velocity data.
//
// Candidates for the nonlinear parameters are drawn from the prior.  Each
// is evaluated with the linear parameters (semi-amplitude and systemic
// velocities) marginalized in closed form.  Once every candidate is
// evaluated, candidates are accepted with probability exp(ln L - ln Lmax),
// Lmax being the largest likelihood over the whole run.
package jsolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/soniakeys/joker/internal/jprior"
	"github.com/soniakeys/joker/rv"
)

// Config is the sampler configuration.
type Config struct {
	Prior      jprior.Config
	NumSamples int    // prior candidates to draw
	ChunkSize  int    // candidates per unit of work
	Seed       uint64 // seeds all random streams of a run

	// prior variances of the linear parameters, semi-amplitude and each
	// systemic velocity
	PriorVarK  float64
	PriorVarV0 float64
}

// DefaultConfig returns a configuration drawing 2^17 candidates with
// period log-uniform over [pMin, pMax].
func DefaultConfig(pMin, pMax float64) Config {
	return Config{
		Prior:      jprior.DefaultConfig(pMin, pMax),
		NumSamples: 1 << 17,
		ChunkSize:  1 << 12,
		PriorVarK:  1e8,
		PriorVarV0: 1e8,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Prior.Validate(); err != nil {
		return err
	}
	switch {
	case c.NumSamples < 1:
		return fmt.Errorf("jsolver: number of samples %d < 1", c.NumSamples)
	case c.ChunkSize < 1:
		return fmt.Errorf("jsolver: chunk size %d < 1", c.ChunkSize)
	case !(c.PriorVarK > 0) || math.IsInf(c.PriorVarK, 0):
		return fmt.Errorf("jsolver: K prior variance %g invalid", c.PriorVarK)
	case !(c.PriorVarV0 > 0) || math.IsInf(c.PriorVarV0, 0):
		return fmt.Errorf("jsolver: v0 prior variance %g invalid", c.PriorVarV0)
	}
	return nil
}

// Sampler holds a validated configuration and a logger.  It keeps no state
// between runs; each call to Run or RunCandidates is independent.
type Sampler struct {
	cfg Config
	log logrus.FieldLogger
}

// New creates a Sampler.  A nil log discards log output.
func New(cfg Config, log logrus.FieldLogger) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Sampler{cfg: cfg, log: log.WithField("component", "sampler")}, nil
}

// Config returns the sampler configuration.
func (s *Sampler) Config() Config { return s.cfg }

// Run draws NumSamples candidates from the prior, evaluates them on pool,
// and returns the accepted samples.
//
// Invalid data is reported with *rv.InvalidDataError before any sampling.
// A failed chunk is reported as *PoolError.  If ctx is done between chunk
// dispatches the run is abandoned and ctx.Err() returned.  Zero accepted
// samples is not an error; see Diagnostics.NoneAccepted.
//
// The pool is only borrowed for the duration of the call.  A nil pool
// means serial evaluation.
func (s *Sampler) Run(ctx context.Context, d *rv.Data, pool Pool) (*SampleSet, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	chunks := Partition(s.cfg.NumSamples, s.cfg.ChunkSize, s.cfg.Seed)
	return s.run(ctx, d, pool, chunks)
}

// RunCandidates is Run for candidates supplied by the caller rather than
// drawn from the prior.  They are chunked by ChunkSize.  The acceptance
// stream depends only on Seed, so for the same candidates and seed the
// accepted set does not depend on chunk size or pool.
func (s *Sampler) RunCandidates(ctx context.Context, d *rv.Data,
	cands []jprior.Candidate, pool Pool) (*SampleSet, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, errors.New("jsolver: no candidates")
	}
	chunks := Partition(len(cands), s.cfg.ChunkSize, s.cfg.Seed)
	for i := range chunks {
		c := &chunks[i]
		c.Candidates = cands[c.Start : c.Start+c.Size]
	}
	return s.run(ctx, d, pool, chunks)
}

func (s *Sampler) run(ctx context.Context, d *rv.Data, pool Pool, chunks []Chunk) (*SampleSet, error) {
	start := time.Now()
	p := newProblem(d, &s.cfg)
	names, _ := d.Instruments()
	log := s.log

	evals, err := Dispatch(ctx, pool, s.chunkFunc(p), chunks)
	if err != nil {
		log.WithError(err).Error("evaluation failed")
		return nil, err
	}

	// all candidates are in.  decide acceptance against the global maximum.
	rnd := xrand.New(&xrand.PCGSource{})
	rnd.Seed(acceptSeed(s.cfg.Seed))
	accepted, lnLMax := Accept(evals, rnd)

	set := &SampleSet{
		Instruments: names,
		Orbits:      make([]rv.Orbit, 0, len(accepted)),
	}
	set.Diag.Evaluated = len(evals)
	set.Diag.MaxLnL = lnLMax
	for _, ev := range evals {
		switch ev.Reason {
		case NonConvergence:
			set.Diag.NonConvergence++
		case Singular:
			set.Diag.Singular++
		case NonFinite:
			set.Diag.NonFinite++
		}
	}
	for _, i := range accepted {
		set.Orbits = append(set.Orbits, drawOrbit(&evals[i], rnd))
	}
	set.Diag.Accepted = len(set.Orbits)
	set.Diag.NoneAccepted = len(set.Orbits) == 0

	fields := logrus.Fields{
		"evaluated": set.Diag.Evaluated,
		"invalid":   set.Diag.Invalid(),
		"accepted":  set.Diag.Accepted,
		"ln_l_max":  lnLMax,
		"chunks":    len(chunks),
		"elapsed":   time.Since(start).String(),
	}
	if set.Diag.NoneAccepted {
		log.WithFields(fields).Warn("no samples accepted; draw more prior samples")
	} else {
		log.WithFields(fields).Info("sampling complete")
	}
	return set, nil
}

// chunkFunc returns the per chunk work: draw candidates if needed, then
// evaluate each one.  It touches nothing but p (read only) and its chunk.
func (s *Sampler) chunkFunc(p *problem) ChunkFunc {
	prior := s.cfg.Prior
	log := s.log
	return func(c Chunk) (ChunkResult, error) {
		cands := c.Candidates
		if cands == nil {
			rnd := xrand.New(&xrand.PCGSource{})
			rnd.Seed(c.Seed)
			cands = prior.Sample(c.Size, rnd)
		}
		if len(cands) != c.Size {
			return ChunkResult{}, fmt.Errorf("%d candidates, want %d",
				len(cands), c.Size)
		}
		evals := make([]Evaluation, len(cands))
		invalid := 0
		for i, cd := range cands {
			evals[i] = p.evaluate(cd)
			if evals[i].Reason != Valid {
				invalid++
			}
		}
		log.WithFields(logrus.Fields{
			"chunk":   c.Index,
			"size":    c.Size,
			"invalid": invalid,
		}).Debug("chunk evaluated")
		return ChunkResult{Index: c.Index, Evals: evals}, nil
	}
}

// Accept decides acceptance for a complete set of evaluations.
//
// A uniform u in [0, 1) is drawn from rnd for every evaluation, valid or
// not, in order.  Candidate i is accepted if it is valid and
// exp(ln L_i - ln Lmax) > u.  Returned are the indexes of accepted
// evaluations, in order, and ln Lmax, which is -Inf if nothing is valid.
func Accept(evals []Evaluation, rnd *xrand.Rand) (accepted []int, lnLMax float64) {
	lnLMax = math.Inf(-1)
	for i := range evals {
		if evals[i].Reason == Valid && evals[i].LnL > lnLMax {
			lnLMax = evals[i].LnL
		}
	}
	for i := range evals {
		u := rnd.Float64()
		if evals[i].Reason == Valid && math.Exp(evals[i].LnL-lnLMax) > u {
			accepted = append(accepted, i)
		}
	}
	return
}

// drawOrbit completes an accepted candidate with one draw of the linear
// parameters from its posterior.
func drawOrbit(ev *Evaluation, rnd *xrand.Rand) rv.Orbit {
	lin := ev.Mean
	if n, ok := distmv.NewNormal(ev.Mean, ev.Cov, rnd); ok {
		lin = n.Rand(nil)
	}
	c := ev.Candidate
	return rv.Orbit{
		P:      c.P,
		Ecc:    c.Ecc,
		Phi0:   c.Phi0,
		Omega:  c.Omega,
		Jitter: c.Jitter,
		K:      lin[0],
		V0:     append([]float64(nil), lin[1:]...),
	}
}

// MeanVelocities evaluates design matrix A at the linear parameter vector
// lin, giving model velocities A·lin.
func MeanVelocities(A mat.Matrix, lin []float64) []float64 {
	n, _ := A.Dims()
	v := mat.NewVecDense(n, nil)
	v.MulVec(A, mat.NewVecDense(len(lin), append([]float64(nil), lin...)))
	return v.RawVector().Data
}
