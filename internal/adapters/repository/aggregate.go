package repository

import (
	"sort"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
)

// LeagueAggregatesFromTotals sums season totals per season, position group and
// rate metric, ordered by season and position. totals is left unchanged.
func LeagueAggregatesFromTotals(totals []model.PlayerSeasonTotals) []model.LeagueAggregate {
	sorted := make([]model.PlayerSeasonTotals, len(totals))
	copy(sorted, totals)
	SortTotals(sorted)
	type key struct {
		season   int
		position string
	}
	sums := make(map[key]*model.RateTotals)
	var keys []key
	for _, t := range sorted {
		k := key{season: t.SeasonID, position: model.PositionGroup(t.PositionCode)}
		acc, ok := sums[k]
		if !ok {
			acc = &model.RateTotals{}
			sums[k] = acc
			keys = append(keys, k)
		}
		for _, m := range model.RateMetrics {
			acc.Successes[m] += t.Successes[m]
			acc.Trials[m] += t.Trials[m]
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].season != keys[j].season {
			return keys[i].season < keys[j].season
		}
		return keys[i].position < keys[j].position
	})
	out := make([]model.LeagueAggregate, 0, len(keys)*len(model.RateMetrics))
	for _, k := range keys {
		acc := sums[k]
		for _, m := range model.RateMetrics {
			out = append(out, model.LeagueAggregate{
				SeasonID:     k.season,
				PositionCode: k.position,
				Metric:       m,
				Successes:    acc.Successes[m],
				Trials:       acc.Trials[m],
			})
		}
	}
	return out
}

// SortTotals orders totals by player then season.
func SortTotals(totals []model.PlayerSeasonTotals) {
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].PlayerID != totals[j].PlayerID {
			return totals[i].PlayerID < totals[j].PlayerID
		}
		return totals[i].SeasonID < totals[j].SeasonID
	})
}
