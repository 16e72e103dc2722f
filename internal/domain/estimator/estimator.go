// Package estimator predicts the marker-fiber percentage of a blend.
//
// One regression model is trained per fiber type on the reference samples in
// which that fiber dominates. A query is answered by evaluating every model
// whose fiber appears in the query blend and combining the results weighted by
// the blend composition.
package estimator

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/okian/fibertrace/internal/domain/model"
	"github.com/okian/fibertrace/internal/domain/regression"
)

// Query is a blend whose marker content is to be estimated.
type Query struct {
	Signal float64     `json:"signal_count"`
	Blend  model.Blend `json:"blend"`
	// AshColor is the optional #RRGGBB ash reading of the queried blend.
	// Only multivariate models use it; the training mean stands in when empty.
	AshColor string `json:"ash_color,omitempty"`
}

// FiberModel is the model trained for one fiber type together with its
// training data.
type FiberModel struct {
	Fiber     model.FiberType
	Kind      regression.Kind
	Model     *regression.Model
	Signals   []float64
	Targets   []float64
	Blends    []model.Blend
	AshColors []string
	MinSignal float64
	MaxSignal float64
	// MeanLuminance replaces a missing or malformed ash colour.
	MeanLuminance float64
}

// Covers reports whether signal lies within the training signal range.
func (fm *FiberModel) Covers(signal float64) bool {
	return signal >= fm.MinSignal && signal <= fm.MaxSignal
}

// PredictAt evaluates the model at q. The blend and ash colour only matter
// for multivariate models.
func (fm *FiberModel) PredictAt(q Query) (float64, error) {
	return fm.Model.Predict(fm.Kind.Expand(q.Signal, fm.covariates(q.Blend, q.AshColor)...))
}

// covariates returns the blend percentages followed by the ash luminance.
func (fm *FiberModel) covariates(b model.Blend, ashColor string) []float64 {
	out := make([]float64, 0, len(model.FiberTypes)+1)
	for _, f := range model.FiberTypes {
		out = append(out, b.Percent(f))
	}
	lum, err := model.AshLuminance(ashColor)
	if err != nil {
		lum = fm.MeanLuminance
	}
	return append(out, lum)
}

// Models maps each fiber type to its trained model. Fibers without enough
// training rows are absent.
type Models map[model.FiberType]*FiberModel

// Fibers returns the fibers that have a model, in reporting order.
func (m Models) Fibers() []model.FiberType {
	out := make([]model.FiberType, 0, len(m))
	for _, f := range model.FiberTypes {
		if _, ok := m[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Fiber statuses reported per estimate detail row.
const (
	StatusUsed       = "used"
	StatusNoModel    = "no_model"
	StatusOutOfRange = "out_of_range"
)

// FiberEstimate is one per-fiber row of an estimate. Prediction and
// Confidence are nil when the fiber did not contribute.
type FiberEstimate struct {
	Fiber model.FiberType `json:"fiber"`
	// Weight is the blend share of the fiber in [0, 1].
	Weight float64 `json:"weight"`
	// EffectiveWeight is the renormalised weight used in the combination.
	EffectiveWeight float64  `json:"effective_weight"`
	Prediction      *float64 `json:"prediction"`
	// Confidence is the training RMSE of the fiber model, reported as a ±
	// band around Prediction. It is not a statistical interval.
	Confidence *float64 `json:"confidence"`
	Status     string   `json:"status"`
}

// Estimate is the combined result of a query.
type Estimate struct {
	Prediction float64         `json:"prediction"`
	Confidence float64         `json:"confidence"`
	Details    []FiberEstimate `json:"details"`
}

// ValidateQuery checks the blend and signal of q. Percentages must be finite,
// within [0, 100] and sum to 100 within tolerance; the signal must be finite
// and non-negative.
func ValidateQuery(q Query, tolerance float64) error {
	if !finite(q.Signal) || q.Signal < 0 {
		return fmt.Errorf("%w: signal count must be a non-negative number", ErrInvalidInput)
	}
	for _, f := range model.FiberTypes {
		p := q.Blend.Percent(f)
		if !finite(p) || p < 0 || p > maxPercent {
			return fmt.Errorf("%w: %s percentage must be between 0 and 100", ErrInvalidInput, f)
		}
	}
	if sum := q.Blend.Sum(); math.Abs(sum-maxPercent) > tolerance {
		return fmt.Errorf("%w: fiber percentages sum to %.2f, want 100", ErrInvalidInput, sum)
	}
	if q.AshColor != "" && !model.ValidColor(q.AshColor) {
		return fmt.Errorf("%w: ash color %q is not #RRGGBB", ErrInvalidInput, q.AshColor)
	}
	return nil
}

// BuildFiberModels trains one model per fiber type. A fiber gets a model when
// at least MinSamples rows have that fiber at or above the dominance
// threshold, a signal within the ceiling and finite regressors. Empty history
// yields an empty map.
//
// A fiber whose fit fails is left out; the other fibers keep their models
// and the failures are returned joined under ErrFitFailed alongside them.
func BuildFiberModels(samples []model.Sample, opts ...Option) (Models, error) {
	o := NewOptions(opts...)
	models := make(Models, len(model.FiberTypes))
	names := o.Kind.FeatureNames(append(fiberNames(), ashLuminanceFeature)...)

	var errs []error
	for _, f := range model.FiberTypes {
		fm, rows := collect(f, samples, o)
		if len(rows) < o.MinSamples {
			continue
		}
		m, err := regression.Fit(o.Kind, names, rows, fm.Targets)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrFitFailed, f, err))
			continue
		}
		fm.Model = m
		fm.MinSignal, fm.MaxSignal = bounds(fm.Signals)
		models[f] = fm
	}
	return models, errors.Join(errs...)
}

// collect gathers the training rows of fiber f and their regressors. Rows
// whose regressors are not finite, such as a squared signal that overflows,
// are skipped like rows with a non-finite target.
func collect(f model.FiberType, samples []model.Sample, o Options) (*FiberModel, [][]float64) {
	fm := &FiberModel{Fiber: f, Kind: o.Kind}
	var dominant []model.Sample
	for _, s := range samples {
		if s.Percent(f) < o.DominanceThreshold {
			continue
		}
		if !finite(s.SignalCount) || !finite(s.TrueMarkerPercent) {
			continue
		}
		if o.SignalCeiling > 0 && s.SignalCount > o.SignalCeiling {
			continue
		}
		dominant = append(dominant, s)
	}
	fm.MeanLuminance = meanLuminance(dominant)

	var rows [][]float64
	for _, s := range dominant {
		row := o.Kind.Expand(s.SignalCount, fm.covariates(s.Blend(), s.AshColor)...)
		if slices.ContainsFunc(row, func(v float64) bool { return !finite(v) }) {
			continue
		}
		rows = append(rows, row)
		fm.Signals = append(fm.Signals, s.SignalCount)
		fm.Targets = append(fm.Targets, s.TrueMarkerPercent)
		fm.Blends = append(fm.Blends, s.Blend())
		fm.AshColors = append(fm.AshColors, s.AshColor)
	}
	return fm, rows
}

func meanLuminance(samples []model.Sample) float64 {
	var sum float64
	n := 0
	for _, s := range samples {
		if l, err := model.AshLuminance(s.AshColor); err == nil {
			sum += l
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Predict combines the per-fiber predictions for q. Fibers with zero weight
// or without a model are skipped; with the range check on, so are fibers
// whose training range misses the query signal. Weights are renormalised
// over the contributing fibers and the result is clipped to [0, 100].
func Predict(q Query, models Models, opts ...Option) (Estimate, error) {
	o := NewOptions(opts...)
	est := Estimate{Details: make([]FiberEstimate, 0, len(model.FiberTypes))}

	var total float64
	for _, f := range model.FiberTypes {
		w := q.Blend.Percent(f) / maxPercent
		if w <= 0 {
			continue
		}
		d := FiberEstimate{Fiber: f, Weight: w}
		fm, ok := models[f]
		switch {
		case !ok || fm == nil || fm.Model == nil:
			d.Status = StatusNoModel
		case o.RangeCheck && !fm.Covers(q.Signal):
			d.Status = StatusOutOfRange
		default:
			p, err := fm.PredictAt(q)
			if err != nil {
				return Estimate{}, fmt.Errorf("predict %s: %w", f, err)
			}
			rmse := fm.Model.RMSE
			d.Prediction = &p
			d.Confidence = &rmse
			d.Status = StatusUsed
			total += w
		}
		est.Details = append(est.Details, d)
	}
	if total == 0 {
		return Estimate{}, ErrNoValidPrediction
	}

	for i := range est.Details {
		d := &est.Details[i]
		if d.Status != StatusUsed {
			continue
		}
		d.EffectiveWeight = d.Weight / total
		est.Prediction += d.EffectiveWeight * *d.Prediction
		est.Confidence += d.EffectiveWeight * *d.Confidence
	}
	if !finite(est.Prediction) || !finite(est.Confidence) {
		return Estimate{}, fmt.Errorf("%w: combined prediction is not finite", ErrNoValidPrediction)
	}
	est.Prediction = math.Max(0, math.Min(maxPercent, est.Prediction))
	return est, nil
}

// Estimator bundles a set of options for repeated use.
type Estimator struct {
	opts []Option
	o    Options
}

// New creates an Estimator with the given options.
func New(opts ...Option) *Estimator {
	return &Estimator{opts: opts, o: NewOptions(opts...)}
}

// Options returns the effective options.
func (e *Estimator) Options() Options { return e.o }

// Validate checks q against the configured tolerance.
func (e *Estimator) Validate(q Query) error {
	return ValidateQuery(q, e.o.Tolerance)
}

// Build trains fiber models from samples.
func (e *Estimator) Build(samples []model.Sample) (Models, error) {
	return BuildFiberModels(samples, e.opts...)
}

// Predict combines models for q with the configured options.
func (e *Estimator) Predict(q Query, models Models) (Estimate, error) {
	return Predict(q, models, e.opts...)
}

// Estimate validates q, trains models from samples and predicts. An empty
// model map is reported as ErrNoModels; fits that failed for some fibers
// only drop those fibers.
func (e *Estimator) Estimate(samples []model.Sample, q Query) (Estimate, Models, error) {
	if err := e.Validate(q); err != nil {
		return Estimate{}, nil, err
	}
	models, err := e.Build(samples)
	if len(models) == 0 {
		if err != nil {
			return Estimate{}, models, fmt.Errorf("%w: %w", ErrNoModels, err)
		}
		return Estimate{}, models, ErrNoModels
	}
	est, err := Predict(q, models, e.opts...)
	return est, models, err
}

const ashLuminanceFeature = "ash_luminance"

func fiberNames() []string {
	out := make([]string, len(model.FiberTypes))
	for i, f := range model.FiberTypes {
		out[i] = string(f)
	}
	return out
}

func bounds(v []float64) (lo, hi float64) {
	return slices.Min(v), slices.Max(v)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
