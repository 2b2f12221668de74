// Package curvefit fits nonlinear parametric models to observed data using
// damped least squares (Levenberg-Marquardt).
package curvefit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Model evaluates a parametric function at the independent variable t with
// parameter vector p. The parameter vector length is fixed for a given fit.
type Model func(t float64, p []float64) float64

// ErrNoConvergence indicates the optimizer exhausted its iteration budget
// (or diverged) without settling on a parameter vector.
var ErrNoConvergence = errors.New("curvefit: no convergence within iteration budget")

// Config controls the optimizer. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	MaxIterations  int     // total step attempts (accepted or rejected) before giving up
	InitialDamping float64 // starting Levenberg damping factor
	DampingRaise   float64 // damping multiplier after a rejected step
	DampingDrop    float64 // damping divisor after an accepted step
	MaxDamping     float64 // divergence guard; exceeding it aborts the fit
	StepTol        float64 // relative parameter-step size considered converged
	CostTol        float64 // relative cost decrease considered converged
}

// DefaultConfig returns the optimizer settings used throughout the service.
func DefaultConfig() Config {
	return Config{
		MaxIterations:  200,
		InitialDamping: 1e-3,
		DampingRaise:   10,
		DampingDrop:    10,
		MaxDamping:     1e12,
		StepTol:        1e-10,
		CostTol:        1e-10,
	}
}

// Result holds a converged fit: the parameter estimates and their covariance.
type Result struct {
	// Params is the best-fit parameter vector, same length as the initial
	// guess.
	Params []float64

	// Covariance is inverse(JᵀJ) scaled by the residual variance, the usual
	// linearized estimate around the solution. When JᵀJ is singular, or when
	// there are no residual degrees of freedom, every entry is +Inf so that
	// variance-based model selection ranks the fit behind any finite one.
	Covariance *mat.Dense
}

// Variance returns the estimated variance of parameter i.
func (r *Result) Variance(i int) float64 {
	return r.Covariance.At(i, i)
}

// Fit minimizes the sum of squared residuals between model(ts[i], p) and
// ys[i], starting from the guess p0:
//
//  1. Build the numeric Jacobian J of the model at the current parameters
//     (forward differences).
//  2. Solve the damped normal equations (JᵀJ + λ·diag(JᵀJ))·δ = Jᵀr for the
//     step δ, where r is the residual vector.
//  3. Accept the step if it lowers the cost (then relax the damping) or
//     reject it and raise the damping.
//  4. Stop once the step or the cost improvement becomes negligible; fail
//     with ErrNoConvergence when the iteration budget runs out or the
//     damping factor grows past the divergence guard.
//
// p0 is not modified. The returned parameters are a fresh slice.
func Fit(model Model, ts, ys, p0 []float64, cfg Config) (*Result, error) {
	if len(ts) != len(ys) {
		return nil, fmt.Errorf("curvefit: sample length mismatch: %d times, %d values", len(ts), len(ys))
	}
	if len(ts) == 0 {
		return nil, fmt.Errorf("curvefit: no samples")
	}
	if len(p0) == 0 {
		return nil, fmt.Errorf("curvefit: empty parameter guess")
	}

	n := len(ts)
	k := len(p0)

	p := make([]float64, k)
	copy(p, p0)

	resid := make([]float64, n)
	cost := residuals(model, ts, ys, p, resid)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return nil, ErrNoConvergence
	}
	if cost == 0 {
		// The guess already reproduces the data exactly.
		return finish(model, ts, p, cost, n, k)
	}

	lambda := cfg.InitialDamping
	trial := make([]float64, k)
	trialResid := make([]float64, n)

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		jac := jacobian(model, ts, p)

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)

		var grad mat.VecDense
		grad.MulVec(jac.T(), mat.NewVecDense(n, resid))

		// Inflate the normal-equation diagonal by the damping factor.
		lhs := mat.DenseCopyOf(&jtj)
		for j := 0; j < k; j++ {
			d := jtj.At(j, j)
			if d == 0 {
				d = 1e-12
			}
			lhs.Set(j, j, d*(1+lambda))
		}

		var step mat.VecDense
		if err := step.SolveVec(lhs, &grad); err != nil {
			// Singular system at this damping; damp harder and retry.
			lambda *= cfg.DampingRaise
			if lambda > cfg.MaxDamping {
				return nil, ErrNoConvergence
			}
			continue
		}

		maxRel := 0.0
		for j := 0; j < k; j++ {
			trial[j] = p[j] + step.AtVec(j)
			rel := math.Abs(step.AtVec(j)) / (math.Abs(p[j]) + 1)
			if rel > maxRel {
				maxRel = rel
			}
		}

		trialCost := residuals(model, ts, ys, trial, trialResid)

		if trialCost < cost {
			improvement := (cost - trialCost) / cost
			copy(p, trial)
			copy(resid, trialResid)
			cost = trialCost
			lambda /= cfg.DampingDrop

			if maxRel < cfg.StepTol || improvement < cfg.CostTol {
				return finish(model, ts, p, cost, n, k)
			}
			continue
		}

		// Rejected step: a vanishing proposal means we are already at a
		// minimum for any useful damping.
		if maxRel < cfg.StepTol {
			return finish(model, ts, p, cost, n, k)
		}
		lambda *= cfg.DampingRaise
		if lambda > cfg.MaxDamping {
			return nil, ErrNoConvergence
		}
	}

	return nil, ErrNoConvergence
}

// residuals fills r with ys - model(ts, p) and returns the summed squares.
func residuals(model Model, ts, ys, p, r []float64) float64 {
	cost := 0.0
	for i, t := range ts {
		r[i] = ys[i] - model(t, p)
		cost += r[i] * r[i]
	}
	return cost
}

// jacobian estimates the n-by-k model Jacobian at p by forward differences.
func jacobian(model Model, ts []float64, p []float64) *mat.Dense {
	n := len(ts)
	k := len(p)
	jac := mat.NewDense(n, k, nil)

	base := make([]float64, n)
	for i, t := range ts {
		base[i] = model(t, p)
	}

	perturbed := make([]float64, k)
	for j := 0; j < k; j++ {
		copy(perturbed, p)
		h := math.Sqrt(2.2e-16) * math.Max(math.Abs(p[j]), 1)
		perturbed[j] += h
		for i, t := range ts {
			jac.Set(i, j, (model(t, perturbed)-base[i])/h)
		}
	}
	return jac
}

// finish builds the Result at the accepted parameters, estimating the
// parameter covariance from the Jacobian at the solution.
func finish(model Model, ts, p []float64, cost float64, n, k int) (*Result, error) {
	params := make([]float64, k)
	copy(params, p)

	cov := mat.NewDense(k, k, nil)
	dof := n - k

	jac := jacobian(model, ts, p)
	var jtj mat.Dense
	jtj.Mul(jac.T(), jac)

	var inv mat.Dense
	if dof <= 0 || inv.Inverse(&jtj) != nil {
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				cov.Set(i, j, math.Inf(1))
			}
		}
		return &Result{Params: params, Covariance: cov}, nil
	}

	s2 := cost / float64(dof)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			cov.Set(i, j, inv.At(i, j)*s2)
		}
	}
	return &Result{Params: params, Covariance: cov}, nil
}
