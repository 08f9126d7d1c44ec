package distribution_test

import (
	"testing"
	"time"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/distribution"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func scored(wt model.WindowType, score float64) model.EnrichedWindowRow {
	r := model.EnrichedWindowRow{}
	r.WindowType = wt
	r.Score = model.Float(score)
	return r
}

func TestBuild(t *testing.T) {
	Convey("Given ten GAME rows scoring 10 to 100", t, func() {
		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		engine := distribution.NewEngine(distribution.WithClock(func() time.Time { return now }))
		var rows []model.EnrichedWindowRow
		for s := 100.0; s >= 10; s -= 10 {
			rows = append(rows, scored(model.WindowGame, s))
		}
		rows = append(rows, scored(model.WindowSTD, 1), model.EnrichedWindowRow{WindowRow: model.WindowRow{WindowType: model.WindowGame}})

		snap := engine.Build(2, "abc", rows)

		Convey("Then the snapshot uses only scored GAME rows", func() {
			So(snap, ShouldNotBeNil)
			So(snap.N, ShouldEqual, 10)
			So(snap.ModelVersion, ShouldEqual, 2)
			So(snap.ConfigHash, ShouldEqual, "abc")
			So(snap.CreatedAt, ShouldEqual, now)
			So(snap.Validate(), ShouldBeNil)
		})

		Convey("Then thresholds are nearest-rank and ascending", func() {
			So(snap.T20, ShouldEqual, 30)
			So(snap.T40, ShouldEqual, 50)
			So(snap.T60, ShouldEqual, 60)
			So(snap.T80, ShouldEqual, 80)
			So(snap.T80, ShouldBeLessThanOrEqualTo, 100)
		})

		Convey("When tiers are assigned", func() {
			engine.Assign(snap, rows)

			Convey("Then the best row is quintile 1 and the worst quintile 5", func() {
				So(*rows[0].Quintile, ShouldEqual, 1)
				So(*rows[9].Quintile, ShouldEqual, 5)
				So(rows[0].ProvisionalTier, ShouldBeFalse)
			})

			Convey("Then other window types and unscored rows stay provisional", func() {
				So(rows[10].Quintile, ShouldBeNil)
				So(rows[10].ProvisionalTier, ShouldBeTrue)
				So(rows[11].Quintile, ShouldBeNil)
			})
		})
	})

	Convey("Given no scored rows", t, func() {
		Convey("Then no snapshot is built", func() {
			So(distribution.NewEngine().Build(1, "x", nil), ShouldBeNil)
		})
	})
}

func TestAssign(t *testing.T) {
	Convey("Given no snapshot", t, func() {
		rows := []model.EnrichedWindowRow{scored(model.WindowGame, 70)}
		rows[0].Quintile = model.Int(2)
		distribution.NewEngine().Assign(nil, rows)

		Convey("Then rows are provisional without a quintile", func() {
			So(rows[0].Quintile, ShouldBeNil)
			So(rows[0].ProvisionalTier, ShouldBeTrue)
		})
	})

	Convey("Given a snapshot over STD rows", t, func() {
		engine := distribution.NewEngine(distribution.WithWindowType(model.WindowSTD))
		snap := &model.DistributionSnapshot{WindowType: model.WindowSTD, T20: 20, T40: 40, T60: 60, T80: 80}
		rows := []model.EnrichedWindowRow{scored(model.WindowSTD, 40), scored(model.WindowGame, 99)}
		engine.Assign(snap, rows)

		Convey("Then only STD rows are tiered and ties take the better tier", func() {
			So(*rows[0].Quintile, ShouldEqual, 3)
			So(rows[1].Quintile, ShouldBeNil)
		})
	})
}

func TestQuintile(t *testing.T) {
	Convey("Given fixed thresholds", t, func() {
		snap := &model.DistributionSnapshot{T20: 35, T40: 45, T60: 55, T80: 65}

		Convey("Then a higher score never gets a worse quintile", func() {
			prev := 5
			for s := 0.0; s <= 100; s++ {
				q := distribution.Quintile(snap, s)
				So(q, ShouldBeLessThanOrEqualTo, prev)
				So(q, ShouldBeBetweenOrEqual, 1, 5)
				prev = q
			}
		})

		Convey("Then scores on a threshold resolve upward", func() {
			So(distribution.Quintile(snap, 65), ShouldEqual, 1)
			So(distribution.Quintile(snap, 34.9), ShouldEqual, 5)
		})
	})
}
