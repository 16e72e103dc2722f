package estimator_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/okian/fibertrace/internal/domain/estimator"
	"github.com/okian/fibertrace/internal/domain/model"
	"github.com/okian/fibertrace/internal/domain/regression"
	. "github.com/smartystreets/goconvey/convey"
)

func sample(b model.Blend, signal, marker float64) model.Sample {
	return model.Sample{
		PercentWhite:      b.White,
		PercentBlack:      b.Black,
		PercentDenim:      b.Denim,
		PercentNatural:    b.Natural,
		SignalCount:       signal,
		TrueMarkerPercent: marker,
	}
}

// linearHistory returns noise-free rows on marker = slope*signal + icept for
// a blend dominated by one fiber.
func linearHistory(b model.Blend, slope, icept float64, signals ...float64) []model.Sample {
	out := make([]model.Sample, len(signals))
	for i, s := range signals {
		out[i] = sample(b, s, slope*s+icept)
	}
	return out
}

var (
	pureWhite = model.Blend{White: 100}
	pureBlack = model.Blend{Black: 100}
)

func TestValidateQuery(t *testing.T) {
	Convey("Given query blends", t, func() {
		Convey("When the blend sums to 100", func() {
			err := estimator.ValidateQuery(estimator.Query{Signal: 10, Blend: model.Blend{White: 60, Black: 40}}, 0.5)
			So(err, ShouldBeNil)
		})

		Convey("When the blend sums within tolerance", func() {
			err := estimator.ValidateQuery(estimator.Query{Signal: 10, Blend: model.Blend{White: 60, Black: 39.6}}, 0.5)
			So(err, ShouldBeNil)
		})

		Convey("When the blend sums to 99 or 101", func() {
			for _, b := range []model.Blend{{White: 99}, {White: 50, Black: 51}} {
				err := estimator.ValidateQuery(estimator.Query{Signal: 10, Blend: b}, 0.5)
				So(errors.Is(err, estimator.ErrInvalidInput), ShouldBeTrue)
			}
		})

		Convey("When a percentage is negative or the signal is negative", func() {
			err := estimator.ValidateQuery(estimator.Query{Signal: 10, Blend: model.Blend{White: 110, Black: -10}}, 0.5)
			So(errors.Is(err, estimator.ErrInvalidInput), ShouldBeTrue)

			err = estimator.ValidateQuery(estimator.Query{Signal: -1, Blend: pureWhite}, 0.5)
			So(errors.Is(err, estimator.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestBuildFiberModels(t *testing.T) {
	Convey("Given reference samples", t, func() {
		history := append(
			linearHistory(pureWhite, 2, 5, 10, 20, 30, 40),
			linearHistory(model.Blend{Black: 70, Denim: 30}, 1, 0, 10, 20)...,
		)

		Convey("When building with defaults", func() {
			models, err := estimator.BuildFiberModels(history)
			So(err, ShouldBeNil)

			Convey("Then only fibers with enough dominant rows get a model", func() {
				So(models.Fibers(), ShouldResemble, []model.FiberType{model.FiberWhite})
				So(models[model.FiberWhite].MinSignal, ShouldEqual, 10)
				So(models[model.FiberWhite].MaxSignal, ShouldEqual, 40)
			})
		})

		Convey("When a signal ceiling is set", func() {
			models, err := estimator.BuildFiberModels(history, estimator.WithSignalCeiling(25))
			So(err, ShouldBeNil)
			So(models, ShouldBeEmpty)
		})

		Convey("When the threshold is lowered", func() {
			models, err := estimator.BuildFiberModels(history, estimator.WithMinSamples(2), estimator.WithDominanceThreshold(30))
			So(err, ShouldBeNil)
			So(models.Fibers(), ShouldResemble, []model.FiberType{model.FiberWhite, model.FiberBlack, model.FiberDenim})
		})

		Convey("When one white row has a signal whose square overflows", func() {
			poisoned := append(
				linearHistory(pureWhite, 2, 5, 10, 20, 30),
				linearHistory(pureBlack, 1, 0, 10, 20, 30)...,
			)
			poisoned = append(poisoned, sample(pureWhite, 1e160, 50))
			models, err := estimator.BuildFiberModels(poisoned, estimator.WithModelKind(regression.KindPolynomial))
			So(err, ShouldBeNil)

			Convey("Then the row is skipped and every fiber keeps its model", func() {
				So(models.Fibers(), ShouldResemble, []model.FiberType{model.FiberWhite, model.FiberBlack})
				So(models[model.FiberWhite].Signals, ShouldHaveLength, 3)
				So(models[model.FiberWhite].MaxSignal, ShouldEqual, 30)
			})
		})

		Convey("When history is empty", func() {
			models, err := estimator.BuildFiberModels(nil)
			So(err, ShouldBeNil)
			So(models, ShouldBeEmpty)

			_, err = estimator.Predict(estimator.Query{Signal: 10, Blend: pureWhite}, models)
			So(errors.Is(err, estimator.ErrNoValidPrediction), ShouldBeTrue)
		})
	})
}

func TestPredict(t *testing.T) {
	Convey("Given noise-free linear history for white and black", t, func() {
		history := append(
			linearHistory(pureWhite, 2, 5, 10, 20, 30, 40),
			linearHistory(pureBlack, 0.5, 1, 10, 20, 30, 40)...,
		)
		models, err := estimator.BuildFiberModels(history)
		So(err, ShouldBeNil)

		Convey("Then a training signal reproduces its target", func() {
			est, err := estimator.Predict(estimator.Query{Signal: 20, Blend: pureWhite}, models)
			So(err, ShouldBeNil)
			So(est.Prediction, ShouldAlmostEqual, 45, 1e-9)
			So(est.Confidence, ShouldAlmostEqual, 0, 1e-9)
		})

		Convey("Then a pure blend equals that fiber's model exactly", func() {
			q := estimator.Query{Signal: 27.3, Blend: pureWhite}
			est, err := estimator.Predict(q, models)
			So(err, ShouldBeNil)
			want, _ := models[model.FiberWhite].PredictAt(q)
			So(est.Prediction, ShouldEqual, want)
			So(est.Details, ShouldHaveLength, 1)
			So(est.Details[0].EffectiveWeight, ShouldEqual, 1)
		})

		Convey("Then a mixed blend is the weighted combination", func() {
			est, err := estimator.Predict(estimator.Query{Signal: 20, Blend: model.Blend{White: 60, Black: 40}}, models)
			So(err, ShouldBeNil)
			So(est.Prediction, ShouldAlmostEqual, 0.6*45+0.4*11, 1e-9)
		})

		Convey("Then a fiber without a model is renormalised away", func() {
			est, err := estimator.Predict(estimator.Query{Signal: 20, Blend: model.Blend{White: 50, Denim: 50}}, models)
			So(err, ShouldBeNil)
			So(est.Prediction, ShouldAlmostEqual, 45, 1e-9)
			So(est.Details[1].Status, ShouldEqual, estimator.StatusNoModel)
			So(est.Details[1].Prediction, ShouldBeNil)
		})

		Convey("Then a blend of unmodelled fibers has no valid prediction", func() {
			_, err := estimator.Predict(estimator.Query{Signal: 20, Blend: model.Blend{Denim: 100}}, models)
			So(errors.Is(err, estimator.ErrNoValidPrediction), ShouldBeTrue)
		})

		Convey("Then the range check excludes fibers outside their training range", func() {
			q := estimator.Query{Signal: 400, Blend: pureWhite}
			_, err := estimator.Predict(q, models, estimator.WithRangeCheck(true))
			So(errors.Is(err, estimator.ErrNoValidPrediction), ShouldBeTrue)

			est, err := estimator.Predict(q, models)
			So(err, ShouldBeNil)
			So(est.Prediction, ShouldEqual, 100)
		})
	})

	Convey("Given identical rows for one fiber", t, func() {
		history := []model.Sample{
			sample(pureWhite, 120, 3.5),
			sample(pureWhite, 120, 3.5),
			sample(pureWhite, 120, 3.5),
		}
		models, err := estimator.BuildFiberModels(history)
		So(err, ShouldBeNil)

		est, err := estimator.Predict(estimator.Query{Signal: 120, Blend: pureWhite}, models, estimator.WithRangeCheck(true))
		So(err, ShouldBeNil)
		So(est.Prediction, ShouldAlmostEqual, 3.5, 1e-12)
	})

	Convey("Given noisy random history", t, func() {
		rng := rand.New(rand.NewSource(7))
		var history []model.Sample
		for i := 0; i < 200; i++ {
			w := 50 + rng.Float64()*50
			b := model.Blend{White: w, Black: 100 - w}
			if i%2 == 1 {
				b = model.Blend{Denim: w, Natural: 100 - w}
			}
			sig := rng.Float64() * 300
			history = append(history, sample(b, sig, rng.Float64()*100))
		}

		for _, kind := range []regression.Kind{regression.KindLinear, regression.KindPolynomial, regression.KindMultivariate} {
			models, err := estimator.BuildFiberModels(history, estimator.WithModelKind(kind))
			So(err, ShouldBeNil)
			So(models, ShouldNotBeEmpty)

			for i := 0; i < 50; i++ {
				a := rng.Float64() * 100
				q := estimator.Query{Signal: rng.Float64() * 600, Blend: model.Blend{White: a, Natural: 100 - a}}
				est, err := estimator.Predict(q, models)
				So(err, ShouldBeNil)
				So(est.Prediction, ShouldBeBetweenOrEqual, 0, 100)
			}
		}
	})
}

func TestEstimator(t *testing.T) {
	Convey("Given an estimator", t, func() {
		e := estimator.New(estimator.WithRangeCheck(true))
		So(e.Options().RangeCheck, ShouldBeTrue)
		So(e.Options().DominanceThreshold, ShouldEqual, estimator.DefaultDominanceThreshold)

		Convey("When the query is invalid", func() {
			_, models, err := e.Estimate(linearHistory(pureWhite, 1, 0, 1, 2, 3), estimator.Query{Signal: 2, Blend: model.Blend{White: 101}})
			So(errors.Is(err, estimator.ErrInvalidInput), ShouldBeTrue)
			So(models, ShouldBeNil)
		})

		Convey("When no fiber has enough rows", func() {
			_, _, err := e.Estimate(linearHistory(pureWhite, 1, 0, 1, 2), estimator.Query{Signal: 2, Blend: pureWhite})
			So(errors.Is(err, estimator.ErrNoModels), ShouldBeTrue)
		})

		Convey("When everything is in place", func() {
			est, models, err := e.Estimate(linearHistory(pureWhite, 1, 0, 1, 2, 3), estimator.Query{Signal: 2, Blend: pureWhite})
			So(err, ShouldBeNil)
			So(models, ShouldContainKey, model.FiberWhite)
			So(est.Prediction, ShouldAlmostEqual, 2, 1e-9)
		})
	})
}

func TestSeries(t *testing.T) {
	Convey("Given a fitted fiber model", t, func() {
		models, err := estimator.BuildFiberModels(linearHistory(pureWhite, 2, 5, 10, 20, 30))
		So(err, ShouldBeNil)
		fm := models[model.FiberWhite]

		s, err := fm.Series(5)
		So(err, ShouldBeNil)
		So(s.Points, ShouldHaveLength, 3)
		So(s.Curve, ShouldHaveLength, 5)
		So(s.Curve[0].Signal, ShouldEqual, 10)
		So(s.Curve[4].Signal, ShouldEqual, 30)
		So(s.Curve[4].Marker, ShouldAlmostEqual, 65, 1e-9)

		sum := models.Summaries()
		So(sum, ShouldHaveLength, 1)
		So(sum[0].Samples, ShouldEqual, 3)
		So(sum[0].Model.Kind, ShouldEqual, regression.KindLinear)
	})
}

func TestPredictAshLuminance(t *testing.T) {
	Convey("Given white history whose marker depends on ash luminance", t, func() {
		// Grey colours have luminance equal to their channel value.
		greys := []string{"#000000", "#ffffff", "#808080", "#404040", "#c0c0c0"}
		signals := []float64{10, 20, 30, 40, 50}
		history := make([]model.Sample, len(signals))
		for i, sig := range signals {
			lum, err := model.AshLuminance(greys[i])
			So(err, ShouldBeNil)
			history[i] = sample(pureWhite, sig, 2*sig+0.1*lum+5)
			history[i].AshColor = greys[i]
		}
		models, err := estimator.BuildFiberModels(history, estimator.WithModelKind(regression.KindMultivariate))
		So(err, ShouldBeNil)
		white := models[model.FiberWhite]
		So(white, ShouldNotBeNil)
		So(white.MeanLuminance, ShouldAlmostEqual, 127.8, 1e-9)
		So(white.Model.Features, ShouldContain, "ash_luminance")

		Convey("Then the query colour drives the prediction", func() {
			est, err := estimator.Predict(estimator.Query{Signal: 30, Blend: pureWhite, AshColor: "#ffffff"}, models)
			So(err, ShouldBeNil)
			So(est.Prediction, ShouldAlmostEqual, 90.5, 1e-6)
		})

		Convey("Then a query without colour uses the training mean", func() {
			est, err := estimator.Predict(estimator.Query{Signal: 30, Blend: pureWhite}, models)
			So(err, ShouldBeNil)
			So(est.Prediction, ShouldAlmostEqual, 77.78, 1e-6)
		})

		Convey("Then a malformed query colour is rejected", func() {
			err := estimator.ValidateQuery(estimator.Query{Signal: 30, Blend: pureWhite, AshColor: "grey"}, 0.5)
			So(errors.Is(err, estimator.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestPredictNonFinite(t *testing.T) {
	Convey("Given a model whose evaluation is not a number", t, func() {
		models := estimator.Models{
			model.FiberWhite: &estimator.FiberModel{
				Fiber:     model.FiberWhite,
				Kind:      regression.KindLinear,
				Model:     &regression.Model{Kind: regression.KindLinear, Intercept: math.NaN(), Coefficients: []float64{1}},
				MinSignal: 0,
				MaxSignal: 100,
			},
		}

		Convey("Then no valid prediction is reported instead of NaN", func() {
			_, err := estimator.Predict(estimator.Query{Signal: 10, Blend: pureWhite}, models)
			So(errors.Is(err, estimator.ErrNoValidPrediction), ShouldBeTrue)
		})
	})
}
