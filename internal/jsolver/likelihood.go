// Public domain.

package jsolver

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/joker/internal/jprior"
)

// Reason tells why a candidate is invalid, or that it is valid.
type Reason int

const (
	Valid          Reason = iota
	NonConvergence        // Kepler's equation not solved
	Singular              // design matrix or normal equations ill-conditioned
	NonFinite             // posterior or likelihood not finite
)

var reasonNames = [...]string{"valid", "non-convergence", "singular", "non-finite"}

func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return "unknown"
}

// maxCond is the largest condition number accepted for the weighted
// design matrix product AᵀWA and for the normal equations matrix.
const maxCond = 1e12

// LinearPosterior is the Gaussian posterior over the linear parameters
// given one candidate, and the candidate's marginal log likelihood.
// LnL is -Inf for an invalid candidate, and Mean and Cov are then nil.
type LinearPosterior struct {
	Mean []float64
	Cov  *mat.SymDense
	LnL  float64
}

// Evaluation is the full result for one candidate.
type Evaluation struct {
	Candidate jprior.Candidate
	LinearPosterior
	Reason Reason
}

func (ev *Evaluation) invalidate(r Reason) {
	ev.LinearPosterior = LinearPosterior{LnL: math.Inf(-1)}
	ev.Reason = r
}

// Marginal computes the linear parameter posterior and marginal log
// likelihood for design matrix A, observed values y, and total variances
// (uncertainty squared plus jitter squared).  The linear parameters have a
// zero mean Gaussian prior with diagonal variances lambda.
//
// With W = diag(1/variance), F = AᵀWA + Λ⁻¹,
//
//	μ = F⁻¹ AᵀWy
//	Σ = F⁻¹
//	ln L = -½ [yᵀWy - μᵀFμ + ln|F| - ln|Λ⁻¹| + Σ ln(2π variance)]
//
// A candidate whose AᵀWA or F is singular or badly conditioned, or whose
// results are not finite, gets LnL = -Inf and a Reason other than Valid.
func Marginal(A *mat.Dense, y, variance, lambda []float64) (LinearPosterior, Reason) {
	invalid := LinearPosterior{LnL: math.Inf(-1)}
	n, k := A.Dims()
	if len(y) != n || len(variance) != n || len(lambda) != k {
		panic("jsolver.Marginal: dimension mismatch")
	}

	// B = W^½ A, z = W^½ y
	B := mat.NewDense(n, k, nil)
	z := mat.NewVecDense(n, nil)
	var yWy, lnVar float64
	for i := 0; i < n; i++ {
		w := 1 / math.Sqrt(variance[i])
		for j := 0; j < k; j++ {
			B.Set(i, j, A.At(i, j)*w)
		}
		zi := y[i] * w
		z.SetVec(i, zi)
		yWy += zi * zi
		lnVar += math.Log(2 * math.Pi * variance[i])
	}

	// AᵀWA must be well conditioned by itself; the prior term would
	// otherwise hide a design matrix without full column rank.
	var F mat.SymDense
	F.SymOuterK(1, B.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(&F); !ok || chol.Cond() > maxCond {
		return invalid, Singular
	}

	// F = AᵀWA + Λ⁻¹
	var lnDetLambdaInv float64
	for j, l := range lambda {
		F.SetSym(j, j, F.At(j, j)+1/l)
		lnDetLambdaInv -= math.Log(l)
	}
	if ok := chol.Factorize(&F); !ok || chol.Cond() > maxCond {
		return invalid, Singular
	}

	b := mat.NewVecDense(k, nil)
	b.MulVec(B.T(), z)
	mu := mat.NewVecDense(k, nil)
	if err := chol.SolveVecTo(mu, b); err != nil {
		return invalid, Singular
	}
	cov := mat.NewSymDense(k, nil)
	if err := chol.InverseTo(cov); err != nil {
		return invalid, Singular
	}

	lnL := -.5 * (yWy - mat.Dot(mu, b) + chol.LogDet() - lnDetLambdaInv + lnVar)
	if !finite(lnL) {
		return invalid, NonFinite
	}
	mean := make([]float64, k)
	for j := range mean {
		mean[j] = mu.AtVec(j)
		if !finite(mean[j]) {
			return invalid, NonFinite
		}
		for i := 0; i <= j; i++ {
			if !finite(cov.At(i, j)) {
				return invalid, NonFinite
			}
		}
	}
	return LinearPosterior{Mean: mean, Cov: cov, LnL: lnL}, Valid
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
