package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/okian/fibertrace/internal/adapters/repository"
	service "github.com/okian/fibertrace/internal/app"
	"github.com/okian/fibertrace/internal/domain/estimator"
	"github.com/okian/fibertrace/internal/domain/model"
)

// countingStore counts List calls and can be told to fail them.
type countingStore struct {
	repository.Store
	lists atomic.Int64
	fail  error
}

func (s *countingStore) List(ctx context.Context) ([]model.Record, error) {
	s.lists.Add(1)
	if s.fail != nil {
		return nil, s.fail
	}
	return s.Store.List(ctx)
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("sample-%03d", n.Add(1)) }
}

func whiteSample(signal float64) model.Sample {
	return model.Sample{
		LotNumber:         fmt.Sprintf("LOT-%.0f", signal),
		PercentWhite:      100,
		SignalCount:       signal,
		TrueMarkerPercent: 2*signal + 5,
		AshColor:          "#808080",
	}
}

func startService(opts ...service.Option) (*service.Service, *countingStore) {
	store := &countingStore{Store: repository.NewMemStore()}
	opts = append([]service.Option{
		service.WithStore(store),
		service.WithIDGenerator(sequentialIDs()),
		service.WithDatasetCacheTTL(0),
	}, opts...)
	svc := service.New(opts...)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc, store
}

func seedWhite(svc *service.Service, signals ...float64) {
	for _, sig := range signals {
		_, err := svc.SubmitSample(context.Background(), service.Submission{
			SubmittedBy: "lab@example.com",
			Sample:      whiteSample(sig),
		})
		So(err, ShouldBeNil)
	}
}

func TestService_SubmitSample(t *testing.T) {
	Convey("Given a running service", t, func() {
		now := time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)
		svc, _ := startService(service.WithClock(func() time.Time { return now }))
		defer svc.Stop()
		ctx := context.Background()

		Convey("When a valid sample is submitted", func() {
			res, err := svc.SubmitSample(ctx, service.Submission{
				SubmittedBy: "lab@example.com",
				Sample:      whiteSample(10),
			})

			Convey("Then it is stored with server-side fields", func() {
				So(err, ShouldBeNil)
				So(res.Duplicate, ShouldBeFalse)
				So(res.Sample.ID, ShouldEqual, "sample-001")
				So(res.Sample.SubmittedBy, ShouldEqual, "lab@example.com")
				So(res.Sample.CreatedAt, ShouldEqual, now)
				So(*res.Sample.AshLuminance, ShouldAlmostEqual, 128, 1e-9)

				got, err := svc.GetSample(ctx, "sample-001")
				So(err, ShouldBeNil)
				So(got.LotNumber, ShouldEqual, "LOT-10")
				So(got.TrueMarkerPercent, ShouldEqual, 25)
			})
		})

		Convey("When the submitter is missing", func() {
			_, err := svc.SubmitSample(ctx, service.Submission{Sample: whiteSample(10)})

			Convey("Then the write is refused", func() {
				So(errors.Is(err, service.ErrIdentityRequired), ShouldBeTrue)
				list, err := svc.ListSamples(ctx)
				So(err, ShouldBeNil)
				So(list, ShouldBeEmpty)
			})
		})

		Convey("When an invalid sample is submitted", func() {
			bad := whiteSample(10)
			bad.PercentWhite = 90
			_, err := svc.SubmitSample(ctx, service.Submission{SubmittedBy: "lab", Sample: bad})
			So(errors.Is(err, service.ErrInvalidSample), ShouldBeTrue)
		})

		Convey("When the same submission id arrives twice", func() {
			sub := service.Submission{SubmissionID: "retry-1", SubmittedBy: "lab", Sample: whiteSample(10)}
			first, err := svc.SubmitSample(ctx, sub)
			So(err, ShouldBeNil)
			second, err := svc.SubmitSample(ctx, sub)
			So(err, ShouldBeNil)

			Convey("Then the second one returns the first sample", func() {
				So(second.Duplicate, ShouldBeTrue)
				So(second.Sample.ID, ShouldEqual, first.Sample.ID)
				list, err := svc.ListSamples(ctx)
				So(err, ShouldBeNil)
				So(list, ShouldHaveLength, 1)
			})
		})

		Convey("When concurrent submissions share a submission id", func() {
			var wg sync.WaitGroup
			var dup atomic.Int64
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := svc.SubmitSample(ctx, service.Submission{
						SubmissionID: "burst", SubmittedBy: "lab", Sample: whiteSample(20),
					})
					if err == nil && res.Duplicate {
						dup.Add(1)
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one sample is stored", func() {
				So(dup.Load(), ShouldEqual, int64(7))
				list, err := svc.ListSamples(ctx)
				So(err, ShouldBeNil)
				So(list, ShouldHaveLength, 1)
			})
		})
	})
}

func TestService_EditSamples(t *testing.T) {
	Convey("Given a stored sample", t, func() {
		svc, _ := startService()
		defer svc.Stop()
		ctx := context.Background()
		seedWhite(svc, 10)

		Convey("When it is updated", func() {
			next := whiteSample(12)
			view, err := svc.UpdateSample(ctx, "sample-001", service.Submission{SubmittedBy: "editor", Sample: next})

			Convey("Then the fields change but the provenance does not", func() {
				So(err, ShouldBeNil)
				So(view.SignalCount, ShouldEqual, 12)
				So(view.SubmittedBy, ShouldEqual, "lab@example.com")

				got, err := svc.GetSample(ctx, "sample-001")
				So(err, ShouldBeNil)
				So(got.SignalCount, ShouldEqual, 12)
				So(got.SubmittedBy, ShouldEqual, "lab@example.com")
			})
		})

		Convey("When an unknown sample is updated", func() {
			_, err := svc.UpdateSample(ctx, "nope", service.Submission{SubmittedBy: "editor", Sample: whiteSample(1)})
			So(errors.Is(err, service.ErrSampleNotFound), ShouldBeTrue)
		})

		Convey("When it is deleted", func() {
			So(svc.DeleteSample(ctx, "sample-001", "editor"), ShouldBeNil)

			Convey("Then it is gone", func() {
				_, err := svc.GetSample(ctx, "sample-001")
				So(errors.Is(err, service.ErrSampleNotFound), ShouldBeTrue)
				err = svc.DeleteSample(ctx, "sample-001", "editor")
				So(errors.Is(err, service.ErrSampleNotFound), ShouldBeTrue)
			})
		})

		Convey("When a delete carries no identity", func() {
			err := svc.DeleteSample(ctx, "sample-001", "")
			So(errors.Is(err, service.ErrIdentityRequired), ShouldBeTrue)
		})

		Convey("When the dataset is refreshed", func() {
			n, err := svc.RefreshDataset(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})
	})
}

func TestService_Estimate(t *testing.T) {
	Convey("Given a service with a noise-free white history", t, func() {
		svc, store := startService()
		defer svc.Stop()
		ctx := context.Background()
		seedWhite(svc, 10, 20, 30)
		pureWhite := model.Blend{White: 100}

		Convey("When estimating a training signal", func() {
			est, err := svc.Estimate(ctx, estimator.Query{Signal: 20, Blend: pureWhite})

			Convey("Then the target is reproduced with near-zero confidence band", func() {
				So(err, ShouldBeNil)
				So(est.Prediction, ShouldAlmostEqual, 45, 1e-9)
				So(est.Confidence, ShouldAlmostEqual, 0, 1e-9)
				So(est.Details, ShouldHaveLength, 1)
				So(est.Details[0].Status, ShouldEqual, estimator.StatusUsed)
			})
		})

		Convey("When the blend does not sum to 100", func() {
			before := store.lists.Load()
			_, err := svc.Estimate(ctx, estimator.Query{Signal: 20, Blend: model.Blend{White: 99}})

			Convey("Then it is rejected before the dataset is read", func() {
				So(errors.Is(err, estimator.ErrInvalidInput), ShouldBeTrue)
				So(store.lists.Load(), ShouldEqual, before)
			})
		})

		Convey("When the signal is outside the training range", func() {
			_, err := svc.Estimate(ctx, estimator.Query{Signal: 80, Blend: pureWhite})
			So(errors.Is(err, estimator.ErrNoValidPrediction), ShouldBeTrue)
		})

		Convey("When the only fiber in the blend has no model", func() {
			_, err := svc.Estimate(ctx, estimator.Query{Signal: 20, Blend: model.Blend{Black: 100}})
			So(errors.Is(err, estimator.ErrNoValidPrediction), ShouldBeTrue)
		})

		Convey("When the data source fails", func() {
			store.fail = errors.New("connection reset")
			_, err := svc.Estimate(ctx, estimator.Query{Signal: 20, Blend: pureWhite})
			So(errors.Is(err, service.ErrDataFetch), ShouldBeTrue)
		})

		Convey("Then the stats count served and failed estimates", func() {
			_, _ = svc.Estimate(ctx, estimator.Query{Signal: 20, Blend: pureWhite})
			_, _ = svc.Estimate(ctx, estimator.Query{Signal: -1, Blend: pureWhite})
			stats := svc.GetStats(ctx)
			So(stats["estimatesServed"], ShouldEqual, int64(1))
			So(stats["estimateFailures"], ShouldEqual, int64(1))
			So(stats["samples"], ShouldEqual, 3)
		})
	})

	Convey("Given an empty dataset", t, func() {
		svc, _ := startService()
		defer svc.Stop()

		_, err := svc.Estimate(context.Background(), estimator.Query{Signal: 1, Blend: model.Blend{White: 100}})
		So(errors.Is(err, service.ErrEmptyDataset), ShouldBeTrue)
	})

	Convey("Given too few dominant rows for any model", t, func() {
		svc, _ := startService()
		defer svc.Stop()
		seedWhite(svc, 10, 20)

		_, err := svc.Estimate(context.Background(), estimator.Query{Signal: 10, Blend: model.Blend{White: 100}})
		So(errors.Is(err, estimator.ErrNoModels), ShouldBeTrue)
	})
}

func TestService_ModelsAndSeries(t *testing.T) {
	Convey("Given a service with a white model", t, func() {
		svc, _ := startService()
		defer svc.Stop()
		ctx := context.Background()
		seedWhite(svc, 10, 20, 30)

		Convey("Then the model summary is reported", func() {
			sums, err := svc.Models(ctx)
			So(err, ShouldBeNil)
			So(sums, ShouldHaveLength, 1)
			So(sums[0].Fiber, ShouldEqual, model.FiberWhite)
			So(sums[0].Samples, ShouldEqual, 3)
			So(sums[0].Model.RMSE, ShouldAlmostEqual, 0, 1e-9)
		})

		Convey("Then the plot series carries points with luminance", func() {
			series, err := svc.Series(ctx, model.FiberWhite, 3)
			So(err, ShouldBeNil)
			So(series.Points, ShouldHaveLength, 3)
			So(series.Points[0].AshLuminance, ShouldNotBeNil)
			So(series.Curve, ShouldHaveLength, 3)
			So(series.Curve[2].Marker, ShouldAlmostEqual, 65, 1e-9)
		})

		Convey("Then a fiber without a model has no series", func() {
			_, err := svc.Series(ctx, model.FiberDenim, 10)
			So(errors.Is(err, estimator.ErrNoModels), ShouldBeTrue)
		})
	})
}

func TestService_Tracing(t *testing.T) {
	Convey("Given a service with a recording tracer", t, func() {
		rec := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
		svc, _ := startService(service.WithTracerProvider(tp))
		defer svc.Stop()

		Convey("When an estimate fails", func() {
			_, err := svc.Estimate(context.Background(), estimator.Query{Signal: 1, Blend: model.Blend{White: 100}})
			So(err, ShouldNotBeNil)

			Convey("Then the estimate span is marked as an error", func() {
				var found bool
				for _, span := range rec.Ended() {
					if span.Name() != "service.Estimate" {
						continue
					}
					found = true
					So(span.Status().Code, ShouldEqual, codes.Error)
					So(span.Events(), ShouldNotBeEmpty)
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}
