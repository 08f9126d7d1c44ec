package model

import "time"

// Position groups used for priors and standard deviation constants.
const (
	PositionForward = "F"
	PositionDefense = "D"
)

// GameRow is one skater's raw counting stats for a single game.
type GameRow struct {
	PlayerID               int64     `json:"player_id"`
	SeasonID               int       `json:"season_id"`
	PositionCode           string    `json:"position_code"`
	GameID                 int64     `json:"game_id"`
	GameDate               time.Time `json:"game_date"`
	Shots                  float64   `json:"shots"`
	Goals                  float64   `json:"goals"`
	OnIceGoalsFor          float64   `json:"on_ice_goals_for"`
	OnIceShotsFor          float64   `json:"on_ice_shots_for"`
	Points                 float64   `json:"points"`
	ExpectedGoals          float64   `json:"expected_goals"`
	ShotAttempts           float64   `json:"shot_attempts"`
	HighDangerShotAttempts float64   `json:"high_danger_shot_attempts"`
}

// PositionGroup collapses a roster position code into F or D.
func PositionGroup(code string) string {
	switch code {
	case "D", "d", "LD", "RD":
		return PositionDefense
	default:
		return PositionForward
	}
}

// PreviousSeason returns the season id immediately before seasonID. Eight digit
// ids (20242025) step both halves; anything else is treated as a plain year.
func PreviousSeason(seasonID int) int {
	if seasonID >= 10_000_000 {
		start := seasonID / 10_000
		end := seasonID % 10_000
		return (start-1)*10_000 + (end - 1)
	}
	return seasonID - 1
}

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}
