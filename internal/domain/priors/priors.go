// Package priors derives Beta priors per (season, position, metric) from
// league aggregate counts.
package priors

import (
	"context"
	"sort"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/scoringconfig"
)

const (
	// minPriorMass floors alpha0 and beta0 so no prior is degenerate.
	minPriorMass = 0.5
	// neutralMass is the Beta(1,1) parameter used when trials are zero.
	neutralMass = 1.0
)

// AggregateSource fetches league aggregates for a season.
type AggregateSource interface {
	LeagueAggregates(ctx context.Context, seasonID int) ([]model.LeagueAggregate, error)
}

// Engine computes league priors.
type Engine struct {
	cfg *scoringconfig.ScoringConfig
}

// NewEngine creates a prior engine reading prior strengths from cfg.
func NewEngine(cfg *scoringconfig.ScoringConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Compute returns one prior per aggregate of a rate metric, ordered by
// season, position and metric. Aggregates of non-rate metrics are ignored.
func (e *Engine) Compute(aggs []model.LeagueAggregate) []model.LeaguePrior {
	out := make([]model.LeaguePrior, 0, len(aggs))
	for _, a := range aggs {
		if !a.Metric.IsRate() {
			continue
		}
		k, _ := e.cfg.KR(a.Metric)
		out = append(out, Prior(a, k))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SeasonID != out[j].SeasonID {
			return out[i].SeasonID < out[j].SeasonID
		}
		if out[i].PositionCode != out[j].PositionCode {
			return out[i].PositionCode < out[j].PositionCode
		}
		return out[i].Metric < out[j].Metric
	})
	return out
}

// Prior derives a single Beta prior with strength k.
//
// Successes above trials are a data anomaly (points counted against a smaller
// on-ice goal denominator); trials are expanded to successes before the rate
// is taken rather than clamping the ratio.
func Prior(a model.LeagueAggregate, k float64) model.LeaguePrior {
	p := model.LeaguePrior{
		SeasonID:     a.SeasonID,
		PositionCode: model.PositionGroup(a.PositionCode),
		Metric:       a.Metric,
	}
	successes := max(a.Successes, 0)
	trials := max(a.Trials, successes)
	if trials <= 0 {
		p.LeagueMu = 0
		p.Alpha0 = neutralMass
		p.Beta0 = neutralMass
		p.K = 2 * neutralMass
		return p
	}
	mu := clamp01(successes / trials)
	p.LeagueMu = mu
	p.K = k
	p.Alpha0 = max(mu*k, minPriorMass)
	p.Beta0 = max((1-mu)*k, minPriorMass)
	return p
}

// Index keys priors for lookup.
func Index(ps []model.LeaguePrior) map[model.PriorKey]model.LeaguePrior {
	idx := make(map[model.PriorKey]model.LeaguePrior, len(ps))
	for _, p := range ps {
		idx[p.Key()] = p
	}
	return idx
}

// AggregatesFromGames sums raw game rows into league aggregates per season,
// position group and rate metric.
func AggregatesFromGames(games []model.GameRow) []model.LeagueAggregate {
	type key struct {
		season   int
		position string
	}
	totals := make(map[key]*model.Counters)
	for _, g := range games {
		k := key{season: g.SeasonID, position: model.PositionGroup(g.PositionCode)}
		c, ok := totals[k]
		if !ok {
			c = &model.Counters{}
			totals[k] = c
		}
		c.Add(g)
	}
	keys := make([]key, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].season != keys[j].season {
			return keys[i].season < keys[j].season
		}
		return keys[i].position < keys[j].position
	})
	out := make([]model.LeagueAggregate, 0, len(keys)*len(model.RateMetrics))
	for _, k := range keys {
		c := totals[k]
		for _, m := range model.RateMetrics {
			out = append(out, model.LeagueAggregate{
				SeasonID:     k.season,
				PositionCode: k.position,
				Metric:       m,
				Successes:    c.Successes(m),
				Trials:       c.Trials(m),
			})
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
