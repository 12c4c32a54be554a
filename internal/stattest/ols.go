// Package stattest provides the reusable numerical utilities consumed by
// both model stages: least-squares estimation, the ADF unit-root test and
// AIC-based lag/order selection.
package stattest

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// OLS solves X*B ≈ Y by ordinary least squares. It first tries the normal
// equations and falls back to an SVD pseudo-inverse when X'X is singular or
// badly conditioned. B is m x k for X (t x m) and Y (t x k).
func OLS(x, y *mat.Dense) (*mat.Dense, error) {
	var b mat.Dense

	var xtx mat.Dense
	xtx.Mul(x.T(), x)

	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err == nil {
		var xty mat.Dense
		xty.Mul(x.T(), y)
		b.Mul(&xtxInv, &xty)
	} else {
		var svd mat.SVD
		if ok := svd.Factorize(x, mat.SVDFullU|mat.SVDFullV); !ok {
			return nil, fmt.Errorf("least squares: X'X singular and SVD factorization failed: %v", err)
		}
		rank := svd.Rank(1e-12)
		if rank == 0 {
			// X is numerically all-zero; the minimum-norm solution is B = 0.
			_, m := x.Dims()
			_, k := y.Dims()
			b = *mat.NewDense(m, k, nil)
		} else {
			svd.SolveTo(&b, y, rank)
		}
	}

	rows, cols := b.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := b.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("least squares: non-finite coefficient at (%d,%d)", i, j)
			}
		}
	}
	return &b, nil
}

// olsWithStdErrors solves X*beta ≈ y for a single response and returns the
// coefficient vector together with standard errors. Returns nil errors
// slice when the covariance cannot be computed.
func olsWithStdErrors(x *mat.Dense, y []float64) (coeffs, stdErrors []float64, err error) {
	t, m := x.Dims()
	if len(y) != t {
		return nil, nil, fmt.Errorf("least squares: %d rows but %d responses", t, len(y))
	}

	yMat := mat.NewDense(t, 1, append([]float64(nil), y...))
	b, err := OLS(x, yMat)
	if err != nil {
		return nil, nil, err
	}

	coeffs = make([]float64, m)
	for i := range coeffs {
		coeffs[i] = b.At(i, 0)
	}

	// Residual variance.
	sse := 0.0
	for i := 0; i < t; i++ {
		pred := 0.0
		for j := 0; j < m; j++ {
			pred += coeffs[j] * x.At(i, j)
		}
		r := y[i] - pred
		sse += r * r
	}
	if t <= m {
		return coeffs, nil, nil
	}
	s2 := sse / float64(t-m)

	var xtx, xtxInv mat.Dense
	xtx.Mul(x.T(), x)
	if err := xtxInv.Inverse(&xtx); err != nil {
		return coeffs, nil, nil
	}
	stdErrors = make([]float64, m)
	for i := range stdErrors {
		stdErrors[i] = math.Sqrt(s2 * xtxInv.At(i, i))
	}
	return coeffs, stdErrors, nil
}
