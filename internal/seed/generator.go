package seed

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/fibertrace/internal/domain/model"
)

// Generation ranges.
const (
	minSignal      = 50.0
	maxSignal      = 2000.0
	minDominant    = 55.0
	minAshChannel  = 60
	ashChannelSpan = 150
)

// calibration is the synthetic signal-to-marker line of one fiber type.
type calibration struct {
	slope     float64
	intercept float64
}

// Each fiber responds differently to the marker; the lines stay inside
// [0, 100] over the signal range.
var calibrations = map[model.FiberType]calibration{
	model.FiberWhite:   {slope: 0.040, intercept: 1.0},
	model.FiberBlack:   {slope: 0.030, intercept: 2.5},
	model.FiberDenim:   {slope: 0.035, intercept: 0.5},
	model.FiberNatural: {slope: 0.045, intercept: 1.5},
}

// Submission is one generated sample with its idempotency key.
type Submission struct {
	SubmissionID string
	Sample       model.Sample
}

// Generator produces synthetic reference samples.
type Generator struct {
	rnd   *rand.Rand
	noise float64
}

// NewGenerator returns a generator. A zero seed picks one from the clock.
func NewGenerator(seed uint64, noise float64) *Generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), noise: math.Abs(noise)}
}

// Generate returns n samples. Dominant fibers rotate so every fiber type
// gets about n/4 training rows.
func (g *Generator) Generate(n int) []Submission {
	out := make([]Submission, n)
	for i := range out {
		dominant := model.FiberTypes[i%len(model.FiberTypes)]
		out[i] = Submission{
			SubmissionID: uuid.NewString(),
			Sample:       g.sample(i, dominant),
		}
	}
	return out
}

func (g *Generator) sample(index int, dominant model.FiberType) model.Sample {
	blend := g.blend(dominant)
	signal := minSignal + g.rnd.Float64()*(maxSignal-minSignal)
	c := calibrations[dominant]
	marker := c.slope*signal + c.intercept + g.rnd.NormFloat64()*g.noise
	marker = math.Max(0, math.Min(100, marker))

	return model.Sample{
		LotNumber:         fmt.Sprintf("SYN-%05d", index+1),
		PercentWhite:      blend.White,
		PercentBlack:      blend.Black,
		PercentDenim:      blend.Denim,
		PercentNatural:    blend.Natural,
		SignalCount:       round(signal, 0),
		TrueMarkerPercent: round(marker, 2),
		AshColor:          g.ashColor(),
	}
}

// blend gives the dominant fiber at least minDominant percent and spreads
// the rest over the other fibers. Percentages are whole numbers summing to
// exactly 100.
func (g *Generator) blend(dominant model.FiberType) model.Blend {
	share := map[model.FiberType]float64{
		dominant: math.Round(minDominant + g.rnd.Float64()*(100-minDominant)),
	}
	rest := 100 - share[dominant]
	others := make([]model.FiberType, 0, len(model.FiberTypes)-1)
	for _, f := range model.FiberTypes {
		if f != dominant {
			others = append(others, f)
		}
	}
	for i, f := range others {
		if i == len(others)-1 {
			share[f] = rest
			break
		}
		p := math.Round(g.rnd.Float64() * rest)
		share[f] = p
		rest -= p
	}
	return model.Blend{
		White:   share[model.FiberWhite],
		Black:   share[model.FiberBlack],
		Denim:   share[model.FiberDenim],
		Natural: share[model.FiberNatural],
	}
}

func (g *Generator) ashColor() string {
	v := minAshChannel + g.rnd.IntN(ashChannelSpan)
	return fmt.Sprintf("#%02x%02x%02x", v, v, v)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
