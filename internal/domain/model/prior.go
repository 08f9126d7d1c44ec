package model

// LeagueAggregate is the league-wide successes/trials of one rate metric for a
// (season, position) pair.
type LeagueAggregate struct {
	SeasonID     int     `json:"season_id"`
	PositionCode string  `json:"position_code"`
	Metric       Metric  `json:"metric"`
	Successes    float64 `json:"successes"`
	Trials       float64 `json:"trials"`
}

// LeaguePrior is the Beta prior of one (season, position, metric).
type LeaguePrior struct {
	SeasonID     int     `json:"season_id"`
	PositionCode string  `json:"position_code"`
	Metric       Metric  `json:"metric"`
	Alpha0       float64 `json:"alpha0"`
	Beta0        float64 `json:"beta0"`
	K            float64 `json:"k"`
	LeagueMu     float64 `json:"league_mu"`
}

// PriorKey indexes league priors.
type PriorKey struct {
	SeasonID     int
	PositionCode string
	Metric       Metric
}

// Key returns the lookup key of p.
func (p LeaguePrior) Key() PriorKey {
	return PriorKey{SeasonID: p.SeasonID, PositionCode: p.PositionCode, Metric: p.Metric}
}

// RateTotals holds successes and trials per rate metric.
type RateTotals struct {
	Successes [NumMetrics]float64 `json:"successes"`
	Trials    [NumMetrics]float64 `json:"trials"`
}

// PlayerSeasonTotals is a player's season-level rate totals.
type PlayerSeasonTotals struct {
	PlayerID     int64  `json:"player_id"`
	SeasonID     int    `json:"season_id"`
	PositionCode string `json:"position_code"`
	RateTotals
}

// PlayerPosterior is the shrunk rate estimate for (player, season, metric).
type PlayerPosterior struct {
	PlayerID       int64   `json:"player_id"`
	SeasonID       int     `json:"season_id"`
	Metric         Metric  `json:"metric"`
	SuccessesBlend float64 `json:"successes_blend"`
	TrialsBlend    float64 `json:"trials_blend"`
	PostMean       float64 `json:"post_mean"`
	RookieStatus   bool    `json:"rookie_status"`
	ModelVersion   int     `json:"model_version"`
}

// PosteriorKey indexes player posteriors.
type PosteriorKey struct {
	PlayerID int64
	SeasonID int
	Metric   Metric
}

// Key returns the lookup key of p.
func (p PlayerPosterior) Key() PosteriorKey {
	return PosteriorKey{PlayerID: p.PlayerID, SeasonID: p.SeasonID, Metric: p.Metric}
}
