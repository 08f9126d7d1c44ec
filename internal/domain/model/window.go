package model

import (
	"fmt"
	"time"
)

// WindowType names a rolling aggregation window.
type WindowType string

// Window types, in emission order.
const (
	WindowGame WindowType = "GAME"
	WindowG5   WindowType = "G5"
	WindowG10  WindowType = "G10"
	WindowSTD  WindowType = "STD"
)

// AllWindowTypes lists the windows emitted for every game date.
var AllWindowTypes = [4]WindowType{WindowGame, WindowG5, WindowG10, WindowSTD} //nolint:gochecknoglobals // fixed ordering table

// Ordinal returns the position of w in AllWindowTypes, or -1.
func (w WindowType) Ordinal() int {
	for i, t := range AllWindowTypes {
		if t == w {
			return i
		}
	}
	return -1
}

// ParseWindowType validates a window type code.
func ParseWindowType(s string) (WindowType, error) {
	w := WindowType(s)
	if w.Ordinal() < 0 {
		return "", fmt.Errorf("unknown window type %q", s)
	}
	return w, nil
}

// Counters holds the raw aggregate counts of a window.
type Counters struct {
	Shots                  float64 `json:"shots"`
	Goals                  float64 `json:"goals"`
	OnIceGoalsFor          float64 `json:"on_ice_goals_for"`
	OnIceShotsFor          float64 `json:"on_ice_shots_for"`
	Points                 float64 `json:"points"`
	ExpectedGoals          float64 `json:"expected_goals"`
	ShotAttempts           float64 `json:"shot_attempts"`
	HighDangerShotAttempts float64 `json:"high_danger_shot_attempts"`
}

// Add accumulates g's counts.
func (c *Counters) Add(g GameRow) {
	c.Shots += g.Shots
	c.Goals += g.Goals
	c.OnIceGoalsFor += g.OnIceGoalsFor
	c.OnIceShotsFor += g.OnIceShotsFor
	c.Points += g.Points
	c.ExpectedGoals += g.ExpectedGoals
	c.ShotAttempts += g.ShotAttempts
	c.HighDangerShotAttempts += g.HighDangerShotAttempts
}

// Trials returns the natural denominator of a rate metric. Residual metrics
// use shots.
func (c Counters) Trials(m Metric) float64 {
	switch m {
	case MetricOnIceShPct:
		return c.OnIceShotsFor
	case MetricIPP:
		return c.OnIceGoalsFor
	default:
		return c.Shots
	}
}

// Successes returns the numerator of a rate metric.
func (c Counters) Successes(m Metric) float64 {
	switch m {
	case MetricShPct:
		return c.Goals
	case MetricOnIceShPct:
		return c.OnIceGoalsFor
	case MetricIPP:
		return c.Points
	default:
		return 0
	}
}

// WindowRow is one (player, window type, game date) aggregate.
type WindowRow struct {
	PlayerID     int64      `json:"player_id"`
	SeasonID     int        `json:"season_id"`
	PositionCode string     `json:"position_code"`
	GameID       int64      `json:"game_id"`
	GameDate     time.Time  `json:"game_date"`
	WindowType   WindowType `json:"window_type"`
	Counters

	ShPct      *float64 `json:"sh_pct"`
	OnIceShPct *float64 `json:"oish_pct"`
	IPP        *float64 `json:"ipp"`

	NGames           int  `json:"n_games"`
	FreshnessApplied bool `json:"freshness_applied"`
}

// Rate returns the observed value of a rate metric, nil when undefined.
func (w WindowRow) Rate(m Metric) *float64 {
	switch m {
	case MetricShPct:
		return w.ShPct
	case MetricOnIceShPct:
		return w.OnIceShPct
	case MetricIPP:
		return w.IPP
	default:
		return nil
	}
}

// MetricStats is the per-metric standardization and contribution state of an
// enriched row. Nil fields are computation gaps.
type MetricStats struct {
	Observed     *float64 `json:"observed"`
	Expected     *float64 `json:"expected"`
	Delta        *float64 `json:"delta"`
	Z            *float64 `json:"z"`
	ZClipped     *float64 `json:"z_clipped"`
	Reliability  *float64 `json:"reliability"`
	Trials       float64  `json:"trials"`
	Weight       *float64 `json:"weight"`
	Contribution *float64 `json:"contribution"`
}

// EnrichedWindowRow is a WindowRow carried through standardization, scoring and
// tiering.
type EnrichedWindowRow struct {
	WindowRow

	Metrics [NumMetrics]MetricStats `json:"metrics"`

	ContribTotal    *float64 `json:"contrib_total"`
	ScoreRaw        *float64 `json:"score_raw"`
	Score           *float64 `json:"score"`
	Quintile        *int     `json:"quintile"`
	ProvisionalTier bool     `json:"provisional_tier"`
	ComponentsJSON  []byte   `json:"components_json"`

	ModelVersion int    `json:"model_version"`
	ConfigHash   string `json:"config_hash"`
}

// Stat returns a pointer to the stats slot of m.
func (e *EnrichedWindowRow) Stat(m Metric) *MetricStats {
	return &e.Metrics[m]
}

// Float returns a pointer to a copy of v.
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to a copy of v.
func Int(v int) *int {
	return &v
}
