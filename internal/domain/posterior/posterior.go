// Package posterior shrinks each player's multi-season observed rates toward
// the league prior.
package posterior

import (
	"context"
	"fmt"
	"sort"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
)

// Seasons blended per player: the target season and the two before it.
const Seasons = 3

// DefaultBlendWeights weight the target season, the previous one and the one before.
var DefaultBlendWeights = [Seasons]float64{0.6, 0.3, 0.1} //nolint:gochecknoglobals // default table

// HistorySource fetches per-player season totals for the requested seasons.
type HistorySource interface {
	PlayerHistory(ctx context.Context, seasonIDs []int) ([]model.PlayerSeasonTotals, error)
}

// Engine computes player posteriors.
type Engine struct {
	weights      [Seasons]float64
	modelVersion int
}

// Option configures an Engine.
type Option func(*Engine)

// WithBlendWeights overrides the season blend weights.
func WithBlendWeights(w [Seasons]float64) Option {
	return func(e *Engine) { e.weights = w }
}

// WithModelVersion stamps produced posteriors with v.
func WithModelVersion(v int) Option {
	return func(e *Engine) { e.modelVersion = v }
}

// NewEngine creates a posterior engine.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{weights: DefaultBlendWeights}
	for _, opt := range opts {
		opt(e)
	}
	var sum float64
	for _, w := range e.weights {
		if w < 0 {
			return nil, fmt.Errorf("%w: negative weight %v", ErrInvalidBlendWeights, w)
		}
		sum += w
	}
	if sum <= 0 {
		return nil, ErrInvalidBlendWeights
	}
	return e, nil
}

// SeasonsFor returns the blended season ids for target, newest first.
func SeasonsFor(target int) [Seasons]int {
	var out [Seasons]int
	s := target
	for i := range out {
		out[i] = s
		s = model.PreviousSeason(s)
	}
	return out
}

// Compute returns posteriors for target season ordered by player id and
// metric. Priors are looked up by the target season and the player's
// position group.
func (e *Engine) Compute(target int, history []model.PlayerSeasonTotals, priors map[model.PriorKey]model.LeaguePrior) []model.PlayerPosterior {
	seasons := SeasonsFor(target)
	byPlayer := make(map[int64]*[Seasons]*model.PlayerSeasonTotals)
	for i := range history {
		h := &history[i]
		slot := -1
		for j, s := range seasons {
			if h.SeasonID == s {
				slot = j
				break
			}
		}
		if slot < 0 {
			continue
		}
		row, ok := byPlayer[h.PlayerID]
		if !ok {
			row = new([Seasons]*model.PlayerSeasonTotals)
			byPlayer[h.PlayerID] = row
		}
		row[slot] = h
	}

	ids := make([]int64, 0, len(byPlayer))
	for id := range byPlayer {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]model.PlayerPosterior, 0, len(ids)*len(model.RateMetrics))
	for _, id := range ids {
		out = append(out, e.player(target, id, byPlayer[id], priors)...)
	}
	return out
}

func (e *Engine) player(target int, id int64, rows *[Seasons]*model.PlayerSeasonTotals, priors map[model.PriorKey]model.LeaguePrior) []model.PlayerPosterior {
	var (
		weights  [Seasons]float64
		total    float64
		position string
		rookie   = true
	)
	for i, r := range rows {
		if r == nil {
			continue
		}
		weights[i] = e.weights[i]
		total += weights[i]
		if position == "" {
			position = r.PositionCode
		}
		if i > 0 && weights[i] > 0 {
			rookie = false
		}
	}
	if total <= 0 {
		return nil
	}
	for i := range weights {
		weights[i] /= total
	}

	group := model.PositionGroup(position)
	out := make([]model.PlayerPosterior, 0, len(model.RateMetrics))
	for _, m := range model.RateMetrics {
		prior, ok := priors[model.PriorKey{SeasonID: target, PositionCode: group, Metric: m}]
		if !ok {
			continue
		}
		var sBlend, tBlend float64
		for i, r := range rows {
			if r == nil || weights[i] == 0 {
				continue
			}
			s := r.Successes[m]
			t := max(r.Trials[m], s)
			sBlend += weights[i] * s
			tBlend += weights[i] * t
		}
		out = append(out, model.PlayerPosterior{
			PlayerID:       id,
			SeasonID:       target,
			Metric:         m,
			SuccessesBlend: sBlend,
			TrialsBlend:    tBlend,
			PostMean:       Mean(prior, sBlend, tBlend),
			RookieStatus:   rookie,
			ModelVersion:   e.modelVersion,
		})
	}
	return out
}

// Mean returns the Beta posterior mean of prior updated with blended counts.
func Mean(prior model.LeaguePrior, successes, trials float64) float64 {
	alpha := prior.Alpha0 + successes
	beta := prior.Beta0 + max(trials-successes, 0)
	if alpha+beta <= 0 {
		return prior.LeagueMu
	}
	return alpha / (alpha + beta)
}

// Index keys posteriors for lookup.
func Index(ps []model.PlayerPosterior) map[model.PosteriorKey]model.PlayerPosterior {
	idx := make(map[model.PosteriorKey]model.PlayerPosterior, len(ps))
	for _, p := range ps {
		idx[p.Key()] = p
	}
	return idx
}

// HistoryFromGames sums raw game rows into per-player season totals ordered by
// player and season. The position of a season is the one of its latest game.
func HistoryFromGames(games []model.GameRow) []model.PlayerSeasonTotals {
	sorted := make([]model.GameRow, len(games))
	copy(sorted, games)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.PlayerID != b.PlayerID {
			return a.PlayerID < b.PlayerID
		}
		if a.SeasonID != b.SeasonID {
			return a.SeasonID < b.SeasonID
		}
		if !a.GameDate.Equal(b.GameDate) {
			return a.GameDate.Before(b.GameDate)
		}
		return a.GameID < b.GameID
	})

	var out []model.PlayerSeasonTotals
	var c model.Counters
	flush := func() {
		last := &out[len(out)-1]
		for _, m := range model.RateMetrics {
			last.Successes[m] = c.Successes(m)
			last.Trials[m] = c.Trials(m)
		}
	}
	for _, g := range sorted {
		if n := len(out); n == 0 || out[n-1].PlayerID != g.PlayerID || out[n-1].SeasonID != g.SeasonID {
			if n > 0 {
				flush()
			}
			out = append(out, model.PlayerSeasonTotals{PlayerID: g.PlayerID, SeasonID: g.SeasonID})
			c = model.Counters{}
		}
		out[len(out)-1].PositionCode = g.PositionCode
		c.Add(g)
	}
	if len(out) > 0 {
		flush()
	}
	return out
}
