package strategy

import (
	"fmt"
	"math"
)

// Polynomial coefficients are stored lowest degree first: c[0] + c[1]*x + ...
// Callers fitting against epoch timestamps should shift x to start near zero
// first, or the normal equations become hopelessly ill-conditioned.

// Polyfit computes the least-squares polynomial of the given degree through
// (x, y) by solving the normal equations with Gaussian elimination.
func Polyfit(x, y []float64, degree int) ([]float64, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("polyfit: x and y lengths differ (%d vs %d)", len(x), len(y))
	}
	if degree < 0 {
		return nil, fmt.Errorf("polyfit: negative degree %d", degree)
	}
	if len(x) < degree+1 {
		return nil, fmt.Errorf("polyfit: need at least %d points for degree %d, got %d", degree+1, degree, len(x))
	}

	n := degree + 1

	// powSums[k] = sum of x^k for k in [0, 2*degree].
	powSums := make([]float64, 2*degree+1)
	for _, xi := range x {
		p := 1.0
		for k := range powSums {
			powSums[k] += p
			p *= xi
		}
	}

	// Augmented normal-equations matrix.
	m := make([][]float64, n)
	for i := 0; i < n; i++ {
		m[i] = make([]float64, n+1)
		for j := 0; j < n; j++ {
			m[i][j] = powSums[i+j]
		}
		for k, xi := range x {
			m[i][n] += y[k] * math.Pow(xi, float64(i))
		}
	}

	// Gaussian elimination with partial pivoting.
	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(m[row][col]) > math.Abs(m[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(m[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("polyfit: singular system, points may be degenerate")
		}
		m[col], m[pivot] = m[pivot], m[col]
		for row := col + 1; row < n; row++ {
			factor := m[row][col] / m[col][col]
			for j := col; j <= n; j++ {
				m[row][j] -= factor * m[col][j]
			}
		}
	}

	coeffs := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := m[i][n]
		for j := i + 1; j < n; j++ {
			sum -= m[i][j] * coeffs[j]
		}
		coeffs[i] = sum / m[i][i]
	}
	return coeffs, nil
}

// Deriv differentiates the polynomial order times.
func Deriv(coeffs []float64, order int) []float64 {
	for ; order > 0; order-- {
		if len(coeffs) <= 1 {
			return []float64{0}
		}
		next := make([]float64, len(coeffs)-1)
		for j := 1; j < len(coeffs); j++ {
			next[j-1] = coeffs[j] * float64(j)
		}
		coeffs = next
	}
	return coeffs
}

// Eval evaluates the polynomial at x using Horner's method.
func Eval(coeffs []float64, x float64) float64 {
	if len(coeffs) == 0 {
		return 0
	}
	result := coeffs[len(coeffs)-1]
	for i := len(coeffs) - 2; i >= 0; i-- {
		result = result*x + coeffs[i]
	}
	return result
}
