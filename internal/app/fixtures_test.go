package service_test

import (
	"context"
	"errors"
	"time"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/adapters/repository"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
)

const season = 20242025

var errDown = errors.New("connection refused")

func fixedClock() time.Time {
	return time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func game(player int64, seasonID int, pos string, id int64, date time.Time, shots, goals, oiGF, oiSF, points, xg float64) model.GameRow {
	return model.GameRow{
		PlayerID:               player,
		SeasonID:               seasonID,
		PositionCode:           pos,
		GameID:                 id,
		GameDate:               date,
		Shots:                  shots,
		Goals:                  goals,
		OnIceGoalsFor:          oiGF,
		OnIceShotsFor:          oiSF,
		Points:                 points,
		ExpectedGoals:          xg,
		ShotAttempts:           shots * 2,
		HighDangerShotAttempts: shots / 2,
	}
}

// threeGames is one forward with three games in the target season.
func threeGames() []model.GameRow {
	return []model.GameRow{
		game(8478402, season, "C", 1, day(2024, 10, 10), 4, 1, 2, 20, 2, 0.6),
		game(8478402, season, "C", 2, day(2024, 10, 12), 3, 0, 1, 18, 1, 0.4),
		game(8478402, season, "C", 3, day(2024, 10, 15), 5, 1, 3, 22, 2, 0.9),
	}
}

// league is several skaters over the target season and the one before it.
func league() []model.GameRow {
	var out []model.GameRow
	players := []struct {
		id  int64
		pos string
	}{{8478402, "C"}, {8477934, "LW"}, {8476853, "D"}, {8480069, "D"}, {8479318, "RW"}}
	var gameID int64
	for pi, p := range players {
		for g := 0; g < 6; g++ {
			gameID++
			shots := float64(2 + (pi+g)%4)
			goals := float64((pi*g + g) % 3)
			if goals > shots {
				goals = shots
			}
			oiSF := float64(15 + (pi*3+g)%7)
			oiGF := float64(1 + (pi+2*g)%3)
			points := oiGF
			if goals < points {
				points = goals + float64(g%2)
			}
			out = append(out,
				game(p.id, season, p.pos, gameID, day(2024, 10, 8+2*g), shots, goals, oiGF, oiSF, points, shots*0.1),
				game(p.id, 20232024, p.pos, 1000+gameID, day(2024, 1, 5+2*g), shots+1, goals, oiGF, oiSF+2, points, shots*0.12),
			)
		}
	}
	return out
}

// failingStore fails every store call.
type failingStore struct {
	*repository.MemoryStore
}

func (failingStore) UpsertScoredRows(context.Context, []model.EnrichedWindowRow) (int, error) {
	return 0, repository.Unavailable(repository.OpUpsertRows, errDown)
}

func (failingStore) UpsertSnapshot(context.Context, model.DistributionSnapshot) (bool, error) {
	return false, repository.Unavailable(repository.OpUpsertSnapshot, errDown)
}

func (failingStore) FetchLatestSnapshot(context.Context, model.WindowType, int, string) (*model.DistributionSnapshot, error) {
	return nil, repository.Unavailable(repository.OpFetchSnapshot, errDown)
}

func (failingStore) FetchMaxProcessedDate(context.Context, int, model.WindowType) (*time.Time, error) {
	return nil, repository.Unavailable(repository.OpFetchWatermark, errDown)
}

func (failingStore) InsertRunLog(context.Context, model.RunRecord) error {
	return repository.Unavailable(repository.OpInsertRunLog, errDown)
}

func (failingStore) EnqueueRetroTask(context.Context, string, model.RetroScope) error {
	return repository.Unavailable(repository.OpEnqueueRetro, errDown)
}

func (failingStore) TryLock(context.Context) (bool, error) {
	return false, repository.Unavailable(repository.OpTryLock, errDown)
}

func (failingStore) LeagueAggregates(context.Context, int) ([]model.LeagueAggregate, error) {
	return nil, repository.Unavailable(repository.OpLeagueAggregates, errDown)
}

func (failingStore) PlayerHistory(context.Context, []int) ([]model.PlayerSeasonTotals, error) {
	return nil, repository.Unavailable(repository.OpPlayerHistory, errDown)
}
