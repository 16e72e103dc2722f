package estimator

import (
	"github.com/okian/fibertrace/internal/domain/model"
	"github.com/okian/fibertrace/internal/domain/regression"
)

const defaultCurveSteps = 50

// Summary describes a fiber model without its training data.
type Summary struct {
	Fiber     model.FiberType   `json:"fiber"`
	Samples   int               `json:"samples"`
	MinSignal float64           `json:"min_signal"`
	MaxSignal float64           `json:"max_signal"`
	Model     *regression.Model `json:"model"`
}

// Summary returns the reporting view of fm.
func (fm *FiberModel) Summary() Summary {
	return Summary{
		Fiber:     fm.Fiber,
		Samples:   len(fm.Signals),
		MinSignal: fm.MinSignal,
		MaxSignal: fm.MaxSignal,
		Model:     fm.Model,
	}
}

// Summaries returns one Summary per model in reporting order.
func (m Models) Summaries() []Summary {
	out := make([]Summary, 0, len(m))
	for _, f := range m.Fibers() {
		out = append(out, m[f].Summary())
	}
	return out
}

// Point is one (signal, marker) pair of a plot. AshLuminance is set on
// training points whose ash colour is known.
type Point struct {
	Signal       float64  `json:"signal_count"`
	Marker       float64  `json:"marker_percent"`
	AshLuminance *float64 `json:"ash_luminance,omitempty"`
}

// Series holds the training points of a fiber model and its fitted curve
// across the training signal range.
type Series struct {
	Fiber  model.FiberType `json:"fiber"`
	Points []Point         `json:"points"`
	Curve  []Point         `json:"curve"`
}

// Series samples the fitted curve at steps evenly spaced signals. For
// multivariate models the blend and ash luminance are held at their training
// mean.
func (fm *FiberModel) Series(steps int) (Series, error) {
	if steps < 2 {
		steps = defaultCurveSteps
	}
	s := Series{
		Fiber:  fm.Fiber,
		Points: make([]Point, len(fm.Signals)),
		Curve:  make([]Point, 0, steps),
	}
	for i := range fm.Signals {
		s.Points[i] = Point{Signal: fm.Signals[i], Marker: fm.Targets[i]}
		if i < len(fm.AshColors) {
			if l, err := model.AshLuminance(fm.AshColors[i]); err == nil {
				s.Points[i].AshLuminance = &l
			}
		}
	}

	blend := meanBlend(fm.Blends)
	span := fm.MaxSignal - fm.MinSignal
	for i := 0; i < steps; i++ {
		sig := fm.MinSignal + span*float64(i)/float64(steps-1)
		y, err := fm.PredictAt(Query{Signal: sig, Blend: blend})
		if err != nil {
			return Series{}, err
		}
		s.Curve = append(s.Curve, Point{Signal: sig, Marker: y})
		if span == 0 {
			break
		}
	}
	return s, nil
}

func meanBlend(blends []model.Blend) model.Blend {
	var b model.Blend
	if len(blends) == 0 {
		return b
	}
	for _, x := range blends {
		b.White += x.White
		b.Black += x.Black
		b.Denim += x.Denim
		b.Natural += x.Natural
	}
	n := float64(len(blends))
	b.White /= n
	b.Black /= n
	b.Denim /= n
	b.Natural /= n
	return b
}
