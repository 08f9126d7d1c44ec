package window_test

import (
	"context"
	"testing"
	"time"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/window"
	. "github.com/smartystreets/goconvey/convey"
)

func day(d int) time.Time {
	return time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func game(player int64, id int64, d int, shots, goals float64) model.GameRow {
	return model.GameRow{
		PlayerID: player, SeasonID: 20242025, PositionCode: "C", GameID: id, GameDate: day(d),
		Shots: shots, Goals: goals, OnIceGoalsFor: goals, OnIceShotsFor: shots * 3, Points: goals,
	}
}

func TestBuild(t *testing.T) {
	Convey("Given three games for one player out of order", t, func() {
		games := []model.GameRow{game(1, 3, 4, 5, 1), game(1, 1, 0, 4, 1), game(1, 2, 2, 3, 0)}
		rows, err := window.NewBuilder(45).Build(context.Background(), games)
		So(err, ShouldBeNil)

		Convey("Then exactly twelve rows are produced", func() {
			So(len(rows), ShouldEqual, 12)
		})

		Convey("Then rows are ordered by date then window type", func() {
			So(rows[0].GameID, ShouldEqual, 1)
			So(rows[0].WindowType, ShouldEqual, model.WindowGame)
			So(rows[3].WindowType, ShouldEqual, model.WindowSTD)
			So(rows[4].GameID, ShouldEqual, 2)
			So(rows[11].GameID, ShouldEqual, 3)
		})

		Convey("Then the last STD row spans all games", func() {
			std := rows[11]
			So(std.WindowType, ShouldEqual, model.WindowSTD)
			So(std.NGames, ShouldEqual, 3)
			So(std.Shots, ShouldEqual, 12)
			So(std.Goals, ShouldEqual, 2)
			So(*std.ShPct, ShouldAlmostEqual, 2.0/12, 1e-12)
			So(std.FreshnessApplied, ShouldBeFalse)
		})

		Convey("Then the GAME row of a scoreless game has a zero rate", func() {
			So(*rows[4].ShPct, ShouldEqual, 0)
		})
	})

	Convey("Given twelve consecutive games", t, func() {
		var games []model.GameRow
		for i := range 12 {
			games = append(games, game(2, int64(i+1), i, 2, 1))
		}
		rows, err := window.NewBuilder(365).Build(context.Background(), games)
		So(err, ShouldBeNil)
		last := rows[len(rows)-4:]

		Convey("Then G5 and G10 are capped while STD keeps growing", func() {
			So(last[1].NGames, ShouldEqual, 5)
			So(last[2].NGames, ShouldEqual, 10)
			So(last[3].NGames, ShouldEqual, 12)
		})

		Convey("Then early rolling windows use the games seen so far", func() {
			So(rows[1].NGames, ShouldEqual, 1)
			So(rows[4*2+2].NGames, ShouldEqual, 3)
		})
	})

	Convey("Given games spread beyond the freshness window", t, func() {
		games := []model.GameRow{game(3, 1, 0, 1, 0), game(3, 2, 30, 1, 0), game(3, 3, 60, 1, 1)}
		rows := window.NewBuilder(45).BuildPlayer(games)

		Convey("Then the last STD row excludes the stale game", func() {
			std := rows[11]
			So(std.NGames, ShouldEqual, 2)
			So(std.FreshnessApplied, ShouldBeTrue)
		})

		Convey("Then the second STD row still includes everything", func() {
			So(rows[7].NGames, ShouldEqual, 2)
			So(rows[7].FreshnessApplied, ShouldBeFalse)
		})
	})

	Convey("Given a game with zero denominators", t, func() {
		rows := window.NewBuilder(45).BuildPlayer([]model.GameRow{{PlayerID: 4, GameDate: day(0)}})

		Convey("Then every rate is nil", func() {
			So(rows[0].ShPct, ShouldBeNil)
			So(rows[0].OnIceShPct, ShouldBeNil)
			So(rows[0].IPP, ShouldBeNil)
		})
	})

	Convey("Given many players", t, func() {
		var games []model.GameRow
		for p := int64(20); p > 0; p-- {
			for d := range 4 {
				games = append(games, game(p, p*100+int64(d), d, float64(d+1), 1))
			}
		}

		Convey("Then the output does not depend on the worker count", func() {
			one, err := window.NewBuilder(45, window.WithWorkers(1)).Build(context.Background(), games)
			So(err, ShouldBeNil)
			many, err := window.NewBuilder(45, window.WithWorkers(8)).Build(context.Background(), games)
			So(err, ShouldBeNil)
			So(many, ShouldResemble, one)
			So(one[0].PlayerID, ShouldEqual, 1)
		})
	})

	Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := window.NewBuilder(45).Build(ctx, []model.GameRow{game(1, 1, 0, 1, 1)})

		Convey("Then the build fails", func() {
			So(err, ShouldNotBeNil)
		})
	})
}
