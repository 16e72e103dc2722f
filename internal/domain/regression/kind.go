package regression

import (
	"fmt"
	"strings"
)

// Kind selects which regressors are derived from a signal reading.
type Kind int

const (
	// KindLinear regresses on the signal alone: y = a + b*signal.
	KindLinear Kind = iota
	// KindPolynomial adds a squared term: y = a + b*signal + c*signal².
	KindPolynomial
	// KindMultivariate adds the polynomial terms and every covariate.
	KindMultivariate
)

var kindNames = map[Kind]string{
	KindLinear:       "linear",
	KindPolynomial:   "polynomial",
	KindMultivariate: "multivariate",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind maps a case-insensitive name to a Kind.
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for k, v := range kindNames {
		if v == n {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// FeatureNames returns the regressor names for this kind. covariates only
// appear for KindMultivariate.
func (k Kind) FeatureNames(covariates ...string) []string {
	switch k {
	case KindPolynomial:
		return []string{"signal", "signal^2"}
	case KindMultivariate:
		return append([]string{"signal", "signal^2"}, covariates...)
	default:
		return []string{"signal"}
	}
}

// Expand builds one regressor row from a signal and optional covariates.
func (k Kind) Expand(signal float64, covariates ...float64) []float64 {
	switch k {
	case KindPolynomial:
		return []float64{signal, signal * signal}
	case KindMultivariate:
		return append([]float64{signal, signal * signal}, covariates...)
	default:
		return []float64{signal}
	}
}
