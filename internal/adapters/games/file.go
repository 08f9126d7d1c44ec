// Package games reads skater game rows from a JSON file.
package games

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/posterior"
)

type record struct {
	PlayerID               int64   `json:"player_id"`
	SeasonID               int     `json:"season_id"`
	PositionCode           string  `json:"position_code"`
	GameID                 int64   `json:"game_id"`
	GameDate               string  `json:"game_date"`
	Shots                  float64 `json:"shots"`
	Goals                  float64 `json:"goals"`
	OnIceGoalsFor          float64 `json:"on_ice_goals_for"`
	OnIceShotsFor          float64 `json:"on_ice_shots_for"`
	Points                 float64 `json:"points"`
	ExpectedGoals          float64 `json:"expected_goals"`
	ShotAttempts           float64 `json:"shot_attempts"`
	HighDangerShotAttempts float64 `json:"high_danger_shot_attempts"`
}

// FileSource reads the whole file on every call so edits are picked up by
// the next run.
type FileSource struct {
	path string
}

// NewFileSource creates a source over the JSON array at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Games returns rows of seasonID and the two seasons before it.
func (f *FileSource) Games(ctx context.Context, seasonID int) ([]model.GameRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadGames, err)
	}
	all, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	seasons := posterior.SeasonsFor(seasonID)
	out := all[:0]
	for _, g := range all {
		for _, s := range seasons {
			if g.SeasonID == s {
				out = append(out, g)
				break
			}
		}
	}
	return out, nil
}

// Decode parses a JSON array of game records. Dates may be plain dates or
// RFC 3339 timestamps.
func Decode(raw []byte) ([]model.GameRow, error) {
	var recs []record
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadGames, err)
	}
	out := make([]model.GameRow, 0, len(recs))
	for i, r := range recs {
		date, err := parseDate(r.GameDate)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrBadRecord, i, err)
		}
		if r.PlayerID == 0 || r.SeasonID == 0 {
			return nil, fmt.Errorf("%w: record %d: player_id and season_id required", ErrBadRecord, i)
		}
		out = append(out, model.GameRow{
			PlayerID:               r.PlayerID,
			SeasonID:               r.SeasonID,
			PositionCode:           r.PositionCode,
			GameID:                 r.GameID,
			GameDate:               date,
			Shots:                  r.Shots,
			Goals:                  r.Goals,
			OnIceGoalsFor:          r.OnIceGoalsFor,
			OnIceShotsFor:          r.OnIceShotsFor,
			Points:                 r.Points,
			ExpectedGoals:          r.ExpectedGoals,
			ShotAttempts:           r.ShotAttempts,
			HighDangerShotAttempts: r.HighDangerShotAttempts,
		})
	}
	return out, nil
}

// parseDate keeps the calendar day of a timestamp in its own offset; an
// evening game in a western time zone is not moved to the next day.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
