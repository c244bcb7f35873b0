// Public domain.

package jsolver_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/soniakeys/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/soniakeys/joker/internal/jprior"
	"github.com/soniakeys/joker/internal/jsolver"
	"github.com/soniakeys/joker/kepler"
	"github.com/soniakeys/joker/rv"
)

// synthetic observes o at n random epochs over [0, span) with gaussian
// noise sigma.  sigma 0 gives noiseless velocities with uncertainty 1e-3.
func synthetic(t testing.TB, o rv.Orbit, n int, span, sigma float64, seed uint64) *rv.Data {
	rnd := xrand.New(xrand.NewSource(seed))
	noise := distuv.Normal{Sigma: sigma, Src: rnd}
	d := &rv.Data{
		T:   make([]float64, n),
		RV:  make([]float64, n),
		Err: make([]float64, n),
	}
	for i := range d.T {
		d.T[i] = span * rnd.Float64()
	}
	sort.Float64s(d.T)
	for i, ti := range d.T {
		v, err := o.RadialVelocity(ti, 0)
		require.NoError(t, err)
		d.Err[i] = 1e-3
		if sigma > 0 {
			v += noise.Rand()
			d.Err[i] = sigma
		}
		d.RV[i] = v
	}
	return d
}

var truth = rv.Orbit{
	P:     20,
	Ecc:   .3,
	Phi0:  1.1,
	Omega: 2.5,
	K:     10,
	V0:    []float64{-3},
}

func truthCandidate() jprior.Candidate {
	return jprior.Candidate{
		P:     truth.P,
		Ecc:   truth.Ecc,
		Phi0:  truth.Phi0,
		Omega: truth.Omega,
	}
}

func testConfig() jsolver.Config {
	c := jsolver.DefaultConfig(2, 200)
	c.NumSamples = 5000
	c.ChunkSize = 512
	c.Seed = 12
	return c
}

func newSampler(t testing.TB, c jsolver.Config) *jsolver.Sampler {
	s, err := jsolver.New(c, nil)
	require.NoError(t, err)
	return s
}

func ExamplePartition() {
	for _, c := range jsolver.Partition(10, 4, 1) {
		fmt.Println(c.Index, c.Start, c.Size)
	}
	// Output:
	// 0 0 4
	// 1 4 4
	// 2 8 2
}

func TestPartition(t *testing.T) {
	cs := jsolver.Partition(1000, 64, 7)
	seeds := map[uint64]bool{}
	total := 0
	for i, c := range cs {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, total, c.Start)
		total += c.Size
		seeds[c.Seed] = true
	}
	assert.Equal(t, 1000, total)
	assert.Len(t, seeds, len(cs))
	assert.Len(t, jsolver.Partition(10, 0, 1), 1)
	// seeds depend on chunk index only, not chunk size
	assert.Equal(t, cs[3].Seed, jsolver.Partition(1000, 10, 7)[3].Seed)
}

func TestDesignCircular(t *testing.T) {
	c := jprior.Candidate{P: 10}
	ts := []float64{0, 1, 2.5, 7}
	inst := []int{0, 1, 0, 1}
	A, err := jsolver.Design(c, ts, inst, 2, kepler.DefaultTol, kepler.DefaultMaxIter)
	require.NoError(t, err)
	r, k := A.Dims()
	require.Equal(t, 4, r)
	require.Equal(t, 3, k)
	for i, ti := range ts {
		assert.InDelta(t, math.Cos(2*math.Pi*ti/10), A.At(i, 0), 1e-9)
		assert.Equal(t, float64(1-inst[i]), A.At(i, 1))
		assert.Equal(t, float64(inst[i]), A.At(i, 2))
	}
}

func TestDesignNonConvergence(t *testing.T) {
	c := jprior.Candidate{P: 10, Ecc: .5}
	_, err := jsolver.Design(c, []float64{1, 2}, []int{0, 0}, 1, 1e-300, 1)
	assert.ErrorIs(t, err, kepler.ErrNonConvergence)
}

func TestMarginalRecoversLinear(t *testing.T) {
	d := synthetic(t, truth, 30, 100, 0, 3)
	// second half from another instrument
	d.Instrument = make([]string, d.Len())
	for i := range d.T {
		d.Instrument[i] = "a"
		if i >= d.Len()/2 {
			d.Instrument[i] = "b"
			d.RV[i] += 8
		}
	}
	_, inst := d.Instruments()
	A, err := jsolver.Design(truthCandidate(), d.T, inst, 2,
		kepler.DefaultTol, kepler.DefaultMaxIter)
	require.NoError(t, err)
	variance := make([]float64, d.Len())
	for i, e := range d.Err {
		variance[i] = e * e
	}
	lp, r := jsolver.Marginal(A, d.RV, variance, []float64{1e8, 1e8, 1e8})
	require.Equal(t, jsolver.Valid, r)
	assert.InDelta(t, 10, lp.Mean[0], 1e-4)
	assert.InDelta(t, -3, lp.Mean[1], 1e-4)
	assert.InDelta(t, 5, lp.Mean[2], 1e-4)
	model := jsolver.MeanVelocities(A, lp.Mean)
	for i := range model {
		assert.InDelta(t, d.RV[i], model[i], 1e-4)
	}
	for j := 0; j < 3; j++ {
		assert.Greater(t, lp.Cov.At(j, j), 0.)
	}
}

// The closed form must match the log density of y under its marginal
// distribution, N(0, C + AΛAᵀ).
func TestMarginalLogLikelihood(t *testing.T) {
	d := synthetic(t, truth, 8, 60, 2, 5)
	A, err := jsolver.Design(truthCandidate(), d.T, make([]int, d.Len()), 1,
		kepler.DefaultTol, kepler.DefaultMaxIter)
	require.NoError(t, err)
	lambda := []float64{25, 16}
	variance := make([]float64, d.Len())
	for i, e := range d.Err {
		variance[i] = e*e + .5
	}
	lp, r := jsolver.Marginal(A, d.RV, variance, lambda)
	require.Equal(t, jsolver.Valid, r)

	n := d.Len()
	S := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s := lambda[0]*A.At(i, 0)*A.At(j, 0) + lambda[1]*A.At(i, 1)*A.At(j, 1)
			if i == j {
				s += variance[i]
			}
			S.SetSym(i, j, s)
		}
	}
	norm, ok := distmv.NewNormal(make([]float64, n), S, nil)
	require.True(t, ok)
	assert.InDelta(t, norm.LogProb(d.RV), lp.LnL, 1e-8)
}

func TestMarginalSingular(t *testing.T) {
	A := mat.NewDense(3, 2, []float64{1, 1, 1, 1, 1, 1})
	lp, r := jsolver.Marginal(A, []float64{1, 2, 3}, []float64{1, 1, 1}, []float64{1e8, 1e8})
	assert.Equal(t, jsolver.Singular, r)
	assert.True(t, math.IsInf(lp.LnL, -1))
	assert.Nil(t, lp.Mean)
	assert.Equal(t, "singular", r.String())
}

func TestAccept(t *testing.T) {
	evals := []jsolver.Evaluation{
		{LinearPosterior: jsolver.LinearPosterior{LnL: -5}},
		{LinearPosterior: jsolver.LinearPosterior{LnL: math.Inf(-1)}, Reason: jsolver.NonConvergence},
		{LinearPosterior: jsolver.LinearPosterior{LnL: -1000}},
		{LinearPosterior: jsolver.LinearPosterior{LnL: 3}},
	}
	acc, lmax := jsolver.Accept(evals, xrand.New(xrand.NewSource(1)))
	assert.Equal(t, 3., lmax)
	assert.Contains(t, acc, 3)
	assert.NotContains(t, acc, 1)
	assert.NotContains(t, acc, 2)

	// the same stream gives the same decisions
	acc2, _ := jsolver.Accept(evals, xrand.New(xrand.NewSource(1)))
	assert.Equal(t, acc, acc2)

	none, lmax := jsolver.Accept(evals[1:2], xrand.New(xrand.NewSource(1)))
	assert.Empty(t, none)
	assert.True(t, math.IsInf(lmax, -1))
}

func TestRunAcceptsBestCandidate(t *testing.T) {
	d := synthetic(t, truth, 15, 100, 0, 8)
	cfg := testConfig()
	cands := cfg.Prior.Sample(300, xrand.New(xrand.NewSource(2)))
	cands = append(cands, truthCandidate())

	set, err := newSampler(t, cfg).RunCandidates(context.Background(), d, cands, nil)
	require.NoError(t, err)
	require.False(t, set.Diag.NoneAccepted)
	assert.Equal(t, len(cands), set.Diag.Evaluated)
	assert.LessOrEqual(t, set.Len(), set.Diag.Evaluated)

	var best *rv.Orbit
	for i := range set.Orbits {
		if set.Orbits[i].P == truth.P {
			best = &set.Orbits[i]
		}
	}
	require.NotNil(t, best, "perfect candidate not accepted")
	assert.InDelta(t, truth.K, best.K, .05)
	assert.InDelta(t, truth.V0[0], best.V0[0], .05)
	assert.Equal(t, []string{""}, set.Instruments)
}

func TestRunChunkingInvariant(t *testing.T) {
	d := synthetic(t, truth, 12, 100, 1, 4)
	cfg := testConfig()
	cands := cfg.Prior.Sample(3000, xrand.New(xrand.NewSource(5)))

	cfg.ChunkSize = 3000
	ref, err := newSampler(t, cfg).RunCandidates(context.Background(), d, cands, jsolver.Serial{})
	require.NoError(t, err)
	require.NotZero(t, ref.Len())

	for _, size := range []int{1, 7, 256} {
		for _, pool := range []jsolver.Pool{jsolver.Serial{}, jsolver.Goroutines{Workers: 4}} {
			cfg.ChunkSize = size
			got, err := newSampler(t, cfg).RunCandidates(context.Background(), d, cands, pool)
			require.NoError(t, err)
			assert.Equal(t, ref.Orbits, got.Orbits, "chunk size %d, pool %T", size, pool)
			assert.Equal(t, ref.Diag, got.Diag)
		}
	}
}

func TestRunPoolIndependent(t *testing.T) {
	d := synthetic(t, truth, 12, 100, 1, 4)
	s := newSampler(t, testConfig())
	a, err := s.Run(context.Background(), d, nil)
	require.NoError(t, err)
	b, err := s.Run(context.Background(), d, jsolver.Goroutines{Workers: 3})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	cfg := testConfig()
	cfg.Seed++
	c, err := newSampler(t, cfg).Run(context.Background(), d, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.Orbits, c.Orbits)
}

func TestRunInvalidData(t *testing.T) {
	s := newSampler(t, testConfig())
	d := &rv.Data{T: []float64{1, 2}, RV: []float64{1, 2}, Err: []float64{1, 0}}
	_, err := s.Run(context.Background(), d, nil)
	var ide *rv.InvalidDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, 1, ide.Row)
}

// One observation cannot fix two linear parameters.  Every candidate is
// singular and nothing is accepted, which is a result, not an error.
func TestRunNoneAccepted(t *testing.T) {
	cfg := testConfig()
	cfg.NumSamples = 200
	d := &rv.Data{T: []float64{3}, RV: []float64{4}, Err: []float64{1}}
	set, err := newSampler(t, cfg).Run(context.Background(), d, nil)
	require.NoError(t, err)
	assert.True(t, set.Diag.NoneAccepted)
	assert.Zero(t, set.Len())
	assert.Equal(t, 200, set.Diag.Invalid())
	assert.Equal(t, 200, set.Diag.Singular)
	assert.True(t, math.IsInf(set.Diag.MaxLnL, -1))
}

func TestRunNonConvergenceCounted(t *testing.T) {
	cfg := testConfig()
	cfg.NumSamples = 100
	cfg.Prior.Ecc = jprior.Fixed(.6)
	cfg.Prior.KeplerTol = 1e-300
	cfg.Prior.KeplerMaxIter = 1
	d := synthetic(t, truth, 10, 100, 1, 9)
	set, err := newSampler(t, cfg).Run(context.Background(), d, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, set.Diag.NonConvergence)
	assert.True(t, set.Diag.NoneAccepted)
}

type failPool struct{ err error }

func (p failPool) Map(context.Context, jsolver.ChunkFunc, []jsolver.Chunk) ([]jsolver.ChunkResult, error) {
	return nil, p.err
}

type shortPool struct{}

func (shortPool) Map(ctx context.Context, fn jsolver.ChunkFunc, cs []jsolver.Chunk) ([]jsolver.ChunkResult, error) {
	return jsolver.Serial{}.Map(ctx, fn, cs[1:])
}

func TestRunPoolFailure(t *testing.T) {
	d := synthetic(t, truth, 12, 100, 1, 4)
	s := newSampler(t, testConfig())
	boom := errors.New("boom")

	_, err := s.Run(context.Background(), d, failPool{boom})
	var pe *jsolver.PoolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, -1, pe.Chunk)
	assert.ErrorIs(t, err, boom)

	_, err = s.Run(context.Background(), d, shortPool{})
	require.ErrorAs(t, err, &pe)
}

func TestGoroutinesPanic(t *testing.T) {
	cs := jsolver.Partition(100, 10, 1)
	fn := func(c jsolver.Chunk) (jsolver.ChunkResult, error) {
		if c.Index == 3 {
			panic("chunk three")
		}
		return jsolver.ChunkResult{Index: c.Index}, nil
	}
	for _, pool := range []jsolver.Pool{jsolver.Serial{}, jsolver.Goroutines{Workers: 4}} {
		_, err := pool.Map(context.Background(), fn, cs)
		var pe *jsolver.PoolError
		require.ErrorAs(t, err, &pe, "%T", pool)
		assert.Equal(t, 3, pe.Chunk)
		assert.Contains(t, pe.Error(), "chunk three")
	}
}

func TestRunCanceled(t *testing.T) {
	d := synthetic(t, truth, 12, 100, 1, 4)
	s := newSampler(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, pool := range []jsolver.Pool{nil, jsolver.Goroutines{Workers: 2}} {
		_, err := s.Run(ctx, d, pool)
		assert.ErrorIs(t, err, context.Canceled)
		var pe *jsolver.PoolError
		assert.False(t, errors.As(err, &pe))
	}
}

func TestConfigValidate(t *testing.T) {
	for name, mod := range map[string]func(*jsolver.Config){
		"samples": func(c *jsolver.Config) { c.NumSamples = 0 },
		"chunk":   func(c *jsolver.Config) { c.ChunkSize = 0 },
		"var K":   func(c *jsolver.Config) { c.PriorVarK = 0 },
		"var v0":  func(c *jsolver.Config) { c.PriorVarV0 = math.Inf(1) },
		"prior":   func(c *jsolver.Config) { c.Prior.Period = nil },
	} {
		c := testConfig()
		mod(&c)
		_, err := jsolver.New(c, nil)
		assert.Error(t, err, name)
	}
}

func TestSampleSetSummary(t *testing.T) {
	s := jsolver.SampleSet{
		Instruments: []string{""},
		Orbits: []rv.Orbit{
			{P: 10, Ecc: .1, Phi0: unit.Angle(.1), Omega: unit.Angle(2*math.Pi - .1), K: 4, V0: []float64{1}},
			{P: 12, Ecc: .3, Phi0: unit.Angle(.3), Omega: unit.Angle(.1), K: 6, V0: []float64{3}},
		},
	}
	m := s.Mean()
	assert.InDelta(t, 11, m.P, 1e-12)
	assert.InDelta(t, .2, m.Ecc, 1e-12)
	assert.InDelta(t, .2, m.Phi0.Rad(), 1e-12)
	// mean of angles either side of zero is zero, not π
	ω := m.Omega.Rad()
	assert.True(t, ω < 1e-9 || ω > 2*math.Pi-1e-9, "omega %g", ω)
	assert.InDelta(t, 5, m.K, 1e-12)
	assert.InDelta(t, 2, m.V0[0], 1e-12)

	sd := s.StdDev()
	assert.InDelta(t, math.Sqrt2, sd[0], 1e-12)
	assert.InDelta(t, .1, sd[3], 1e-3)

	rows, err := s.Curves([]float64{0, 1, 2}, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 3)

	var empty jsolver.SampleSet
	assert.Equal(t, rv.Orbit{}, empty.Mean())
}

// Recover a low amplitude orbit from sparse noisy data with a default size
// run.
func TestEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("long running")
	}
	orb := rv.Orbit{
		P:     61.1166,
		Ecc:   .0324,
		Phi0:  unit.AngleFromDeg(52),
		Omega: unit.AngleFromDeg(210),
		K:     150,
		V0:    []float64{25},
	}
	d := synthetic(t, orb, 31, 350, 25, 2024)
	cfg := jsolver.DefaultConfig(16, 512)
	cfg.Seed = 42
	set, err := newSampler(t, cfg).Run(context.Background(), d, jsolver.Goroutines{})
	require.NoError(t, err)
	require.False(t, set.Diag.NoneAccepted)
	assert.Equal(t, 1<<17, set.Diag.Evaluated)
	for _, o := range set.Orbits {
		assert.InEpsilon(t, orb.P, o.P, .05)
		// K and ω+π give the same curve as -K and ω
		assert.InEpsilon(t, orb.K, o.Canonical().K, .3)
	}
	assert.InEpsilon(t, orb.P, set.Mean().P, .03)
}
