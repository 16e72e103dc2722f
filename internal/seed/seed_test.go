package seed_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/fibertrace/internal/adapters/http/api"
	service "github.com/okian/fibertrace/internal/app"
	"github.com/okian/fibertrace/internal/domain/estimator"
	"github.com/okian/fibertrace/internal/domain/model"
	"github.com/okian/fibertrace/internal/seed"
	"github.com/okian/fibertrace/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestGenerator(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		subs := seed.NewGenerator(42, 0.5).Generate(40)

		Convey("Then every sample passes entry validation", func() {
			So(subs, ShouldHaveLength, 40)
			ids := map[string]bool{}
			for _, sub := range subs {
				s := sub.Sample
				So(service.ValidateSample(s, 0), ShouldBeNil)
				So(s.Blend().Sum(), ShouldEqual, 100)
				ids[sub.SubmissionID] = true
			}
			So(ids, ShouldHaveLength, 40)
		})

		Convey("Then dominant fibers rotate", func() {
			for i, sub := range subs {
				dominant := model.FiberTypes[i%len(model.FiberTypes)]
				So(sub.Sample.Percent(dominant), ShouldBeGreaterThanOrEqualTo, 55)
			}
		})

		Convey("Then the same seed gives the same samples", func() {
			again := seed.NewGenerator(42, 0.5).Generate(40)
			for i := range subs {
				So(again[i].Sample, ShouldResemble, subs[i].Sample)
			}
		})
	})
}

func newServer() (*httptest.Server, *service.Service) {
	svc := service.New(service.WithDatasetCacheTTL(0))
	So(svc.Start(context.Background()), ShouldBeNil)
	mux := http.NewServeMux()
	api.NewServer(svc).Register(context.Background(), mux)
	return httptest.NewServer(mux), svc
}

func TestRun(t *testing.T) {
	Convey("Given a running fibertrace server", t, func() {
		srv, svc := newServer()
		defer srv.Close()
		defer svc.Stop()

		cfg := seed.DefaultConfig()
		cfg.BaseURL = srv.URL
		cfg.Count = 40
		cfg.Workers = 4
		cfg.Seed = 7
		cfg.Timeout = 5 * time.Second

		Convey("When seeding it", func() {
			stats, err := seed.Run(context.Background(), cfg)

			Convey("Then every sample is created and all four models exist", func() {
				So(err, ShouldBeNil)
				So(stats.Generated, ShouldEqual, 40)
				So(stats.Created, ShouldEqual, 40)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.Models, ShouldEqual, 4)
			})

			Convey("And the client can estimate against the seeded data", func() {
				client := seed.NewClient(srv.URL, "", time.Second)
				est, err := client.Estimate(context.Background(), estimator.Query{
					Signal: 1000,
					Blend:  model.Blend{White: 70, Black: 30},
				})
				So(err, ShouldBeNil)
				So(est.Prediction, ShouldBeBetweenOrEqual, 0, 100)
			})
		})

		Convey("When the client gets an error body", func() {
			client := seed.NewClient(srv.URL, "", time.Second)
			_, err := client.Estimate(context.Background(), estimator.Query{Signal: 10, Blend: model.Blend{White: 50}})
			So(errors.Is(err, seed.ErrStatus), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "invalid_input")
		})
	})

	Convey("Given a server that reads the identity from a custom header", t, func() {
		svc := service.New(service.WithDatasetCacheTTL(0))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		mux := http.NewServeMux()
		api.NewServer(svc, api.WithIdentityHeader("X-Operator")).Register(context.Background(), mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		cfg := seed.DefaultConfig()
		cfg.BaseURL = srv.URL
		cfg.Count = 8
		cfg.Workers = 2
		cfg.Seed = 3
		cfg.Timeout = 5 * time.Second

		Convey("When the run sends the identity in the default header", func() {
			stats, err := seed.Run(context.Background(), cfg)

			Convey("Then every write is rejected for a missing identity", func() {
				So(err, ShouldBeNil)
				So(stats.Created, ShouldEqual, 0)
				So(stats.Failed, ShouldEqual, 8)
			})
		})

		Convey("When the run is configured with the same header", func() {
			cfg.IdentityHeader = "X-Operator"
			stats, err := seed.Run(context.Background(), cfg)

			Convey("Then every sample is created", func() {
				So(err, ShouldBeNil)
				So(stats.Created, ShouldEqual, 8)
				So(stats.Failed, ShouldEqual, 0)
			})
		})
	})

	Convey("Given no server", t, func() {
		cfg := seed.DefaultConfig()
		cfg.BaseURL = "http://127.0.0.1:1"
		cfg.Timeout = time.Second
		_, err := seed.Run(context.Background(), cfg)
		So(err, ShouldNotBeNil)
	})
}
