package estimator

import "github.com/okian/fibertrace/internal/domain/regression"

// Default estimator configuration.
const (
	DefaultDominanceThreshold = 50.0
	DefaultMinSamples         = 3
	DefaultTolerance          = 0.5
	maxPercent                = 100.0
)

// Options controls model building and prediction.
type Options struct {
	// DominanceThreshold is the minimum fiber percentage for a row to train
	// that fiber's model.
	DominanceThreshold float64
	// SignalCeiling excludes training rows above it. Zero disables it.
	SignalCeiling float64
	Kind          regression.Kind
	MinSamples    int
	// RangeCheck excludes fibers whose training signal range misses the
	// query signal.
	RangeCheck bool
	// Tolerance is the allowed deviation of the blend sum from 100.
	Tolerance float64
}

// Option applies a configuration option to Options.
type Option func(*Options)

// WithDominanceThreshold sets the dominant-fiber threshold in percent.
func WithDominanceThreshold(threshold float64) Option {
	return func(o *Options) {
		if threshold > 0 && threshold <= maxPercent {
			o.DominanceThreshold = threshold
		}
	}
}

// WithSignalCeiling drops training rows whose signal exceeds ceiling.
// A non-positive ceiling disables the filter.
func WithSignalCeiling(ceiling float64) Option {
	return func(o *Options) {
		if ceiling < 0 {
			ceiling = 0
		}
		o.SignalCeiling = ceiling
	}
}

// WithModelKind selects the regression kind fitted per fiber.
func WithModelKind(kind regression.Kind) Option {
	return func(o *Options) {
		o.Kind = kind
	}
}

// WithMinSamples sets the minimum training rows for a fiber model.
func WithMinSamples(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MinSamples = n
		}
	}
}

// WithRangeCheck toggles the signal range check.
func WithRangeCheck(enabled bool) Option {
	return func(o *Options) {
		o.RangeCheck = enabled
	}
}

// WithTolerance sets the tolerance on the blend sum.
func WithTolerance(tolerance float64) Option {
	return func(o *Options) {
		if tolerance >= 0 {
			o.Tolerance = tolerance
		}
	}
}

// NewOptions returns defaults with opts applied. The range check is off
// unless requested.
func NewOptions(opts ...Option) Options {
	o := Options{
		DominanceThreshold: DefaultDominanceThreshold,
		Kind:               regression.KindLinear,
		MinSamples:         DefaultMinSamples,
		Tolerance:          DefaultTolerance,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
