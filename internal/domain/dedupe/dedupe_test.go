package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	dedupe "github.com/okian/fibertrace/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("When a submission is claimed for the first time", func() {
			id, seen := d.Claim(ctx, "sub-1", "sample-1")

			Convey("Then it is recorded with the new sample ID", func() {
				So(seen, ShouldBeFalse)
				So(id, ShouldEqual, "sample-1")
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And the same submission is claimed again", func() {
				id, seen := d.Claim(ctx, "sub-1", "sample-2")

				Convey("Then the first sample ID is returned", func() {
					So(seen, ShouldBeTrue)
					So(id, ShouldEqual, "sample-1")
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the submission is released", func() {
				d.Release(ctx, "sub-1")
				So(d.Size(), ShouldEqual, 0)

				id, seen := d.Claim(ctx, "sub-1", "sample-3")
				So(seen, ShouldBeFalse)
				So(id, ShouldEqual, "sample-3")
			})
		})

		Convey("When releasing an unknown submission", func() {
			d.Release(ctx, "missing")
			So(d.Size(), ShouldEqual, 0)
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for i := 1; i <= 4; i++ {
			d.Claim(ctx, fmt.Sprintf("sub-%d", i), fmt.Sprintf("sample-%d", i))
		}

		Convey("Then the oldest submission is forgotten", func() {
			So(d.Size(), ShouldEqual, 3)
			_, seen := d.Claim(ctx, "sub-4", "x")
			So(seen, ShouldBeTrue)
			_, seen = d.Claim(ctx, "sub-1", "x")
			So(seen, ShouldBeFalse)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 20000; i++ {
			d.Claim(ctx, fmt.Sprintf("sub-%d", i), "s")
		}
		So(d.Size(), ShouldEqual, 20000)
	})

	Convey("Given concurrent claims of one submission", t, func() {
		d := dedupe.NewInMemoryDeduper()
		var (
			wg     sync.WaitGroup
			fresh  atomic.Int32
			sample sync.Map
		)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id, seen := d.Claim(ctx, "sub", fmt.Sprintf("sample-%d", i))
				if !seen {
					fresh.Add(1)
				}
				sample.Store(id, true)
			}(i)
		}
		wg.Wait()

		Convey("Then exactly one claim wins and all see its sample ID", func() {
			So(fresh.Load(), ShouldEqual, 1)
			count := 0
			sample.Range(func(_, _ any) bool { count++; return true })
			So(count, ShouldEqual, 1)
		})
	})
}
