// Package regression fits ordinary least squares models.
//
// Fit centres and scales every regressor and solves the normal problem with a
// modified Gram-Schmidt QR decomposition. Regressors that are constant or a
// linear combination of earlier ones are dropped and keep a zero coefficient,
// so a constant signal degrades to the mean of the target and blend
// percentages that always sum to 100 do not make the system singular.
package regression

import (
	"fmt"
	"math"
	"strings"
)

// rankTolerance is the fraction of a column's norm that must survive
// orthogonalisation for the column to be kept.
const rankTolerance = 1e-8

// Model is a fitted linear model y = Intercept + Σ Coefficients[i]*x[i].
type Model struct {
	Kind         Kind      `json:"kind"`
	Features     []string  `json:"features"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
	// Dropped marks regressors removed as constant or collinear.
	Dropped  []bool  `json:"dropped,omitempty"`
	RSquared float64 `json:"r_squared"`
	RMSE     float64 `json:"rmse"`
	MAE      float64 `json:"mae"`
	N        int     `json:"n"`
	Formula  string  `json:"formula"`
}

func (m *Model) String() string {
	return fmt.Sprintf("Model{Kind: %s, R²: %.4f, RMSE: %.4f, Formula: %s}",
		m.Kind, m.RSquared, m.RMSE, m.Formula)
}

// Predict evaluates the model at one regressor row.
func (m *Model) Predict(row []float64) (float64, error) {
	if len(row) != len(m.Coefficients) {
		return 0, fmt.Errorf("%w: row has %d values, model has %d features",
			ErrLengthMismatch, len(row), len(m.Coefficients))
	}
	y := m.Intercept
	for i, c := range m.Coefficients {
		y += c * row[i]
	}
	return y, nil
}

// Fit fits y against the rows of x. features names the columns of x and is
// used for the formula; kind is recorded on the model as-is.
func Fit(kind Kind, features []string, x [][]float64, y []float64) (*Model, error) {
	n := len(y)
	if n == 0 {
		return nil, ErrNoData
	}
	if len(x) != n {
		return nil, fmt.Errorf("%w: %d rows, %d targets", ErrLengthMismatch, len(x), n)
	}
	p := len(features)
	for i, row := range x {
		if len(row) != p {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrLengthMismatch, i, len(row), p)
		}
		if !finite(y[i]) {
			return nil, fmt.Errorf("%w: target at row %d", ErrNonFinite, i)
		}
		for _, v := range row {
			if !finite(v) {
				return nil, fmt.Errorf("%w: regressor at row %d", ErrNonFinite, i)
			}
		}
	}

	meanY := mean(y)
	yc := make([]float64, n)
	for i := range y {
		yc[i] = y[i] - meanY
	}

	// Centred, unit-scaled columns.
	means := make([]float64, p)
	scales := make([]float64, p)
	cols := make([][]float64, p)
	for j := 0; j < p; j++ {
		col := make([]float64, n)
		for i := range x {
			col[i] = x[i][j]
		}
		means[j] = mean(col)
		for i := range col {
			col[i] -= means[j]
		}
		scales[j] = norm(col)
		if scales[j] > 0 {
			for i := range col {
				col[i] /= scales[j]
			}
		}
		cols[j] = col
	}

	q, r, kept := orthogonalise(cols)

	// Project the centred target onto Q column by column.
	qty := make([]float64, len(q))
	res := append([]float64(nil), yc...)
	for k, qk := range q {
		qty[k] = dot(qk, res)
		axpy(-qty[k], qk, res)
	}

	// Back substitution on the upper triangular R.
	gamma := make([]float64, len(q))
	for k := len(q) - 1; k >= 0; k-- {
		s := qty[k]
		for m := k + 1; m < len(q); m++ {
			s -= r[m][k] * gamma[m]
		}
		gamma[k] = s / r[k][k]
	}

	model := &Model{
		Kind:         kind,
		Features:     append([]string(nil), features...),
		Coefficients: make([]float64, p),
		Dropped:      make([]bool, p),
		N:            n,
	}
	for j := range model.Dropped {
		model.Dropped[j] = true
	}
	model.Intercept = meanY
	for k, j := range kept {
		beta := gamma[k] / scales[j]
		model.Coefficients[j] = beta
		model.Dropped[j] = false
		model.Intercept -= beta * means[j]
	}

	predicted := make([]float64, n)
	for i, row := range x {
		predicted[i], _ = model.Predict(row)
	}
	model.RSquared = RSquared(y, predicted)
	model.RMSE = RMSE(y, predicted)
	model.MAE = MAE(y, predicted)
	model.Formula = formula(model)
	return model, nil
}

// orthogonalise runs modified Gram-Schmidt over cols and returns the
// orthonormal basis, the columns of R (r[k] holds column k, length k+1) and
// the indices of the kept input columns.
func orthogonalise(cols [][]float64) (q [][]float64, r [][]float64, kept []int) {
	for j, col := range cols {
		orig := norm(col)
		if orig == 0 {
			continue
		}
		v := append([]float64(nil), col...)
		rc := make([]float64, len(q)+1)
		for k, qk := range q {
			rc[k] = dot(qk, v)
			axpy(-rc[k], qk, v)
		}
		nv := norm(v)
		if nv <= rankTolerance*orig {
			continue
		}
		for i := range v {
			v[i] /= nv
		}
		rc[len(q)] = nv
		q = append(q, v)
		r = append(r, rc)
		kept = append(kept, j)
	}
	return q, r, kept
}

// RSquared is the coefficient of determination. A constant target yields 0.
func RSquared(observed, predicted []float64) float64 {
	if len(observed) == 0 {
		return 0
	}
	m := mean(observed)
	var ssTot, ssRes float64
	for i := range observed {
		ssTot += (observed[i] - m) * (observed[i] - m)
		ssRes += (observed[i] - predicted[i]) * (observed[i] - predicted[i])
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// RMSE is the root mean square error of the residuals.
func RMSE(observed, predicted []float64) float64 {
	if len(observed) == 0 {
		return 0
	}
	var sum float64
	for i := range observed {
		d := observed[i] - predicted[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(observed)))
}

// MAE is the mean absolute error of the residuals.
func MAE(observed, predicted []float64) float64 {
	if len(observed) == 0 {
		return 0
	}
	var sum float64
	for i := range observed {
		sum += math.Abs(observed[i] - predicted[i])
	}
	return sum / float64(len(observed))
}

func formula(m *Model) string {
	var b strings.Builder
	fmt.Fprintf(&b, "marker = %.4f", m.Intercept)
	for j, c := range m.Coefficients {
		if m.Dropped[j] {
			continue
		}
		sign := "+"
		if c < 0 {
			sign = "-"
		}
		fmt.Fprintf(&b, " %s %.4f*%s", sign, math.Abs(c), m.Features[j])
	}
	return b.String()
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm(v []float64) float64 { return math.Sqrt(dot(v, v)) }

// axpy computes y += a*x in place.
func axpy(a float64, x, y []float64) {
	for i := range x {
		y[i] += a * x[i]
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
