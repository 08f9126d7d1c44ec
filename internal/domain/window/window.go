// Package window turns raw per-game rows into rolling GAME, G5, G10 and STD
// aggregates.
package window

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
)

// Rolling window lengths in games.
const (
	ShortGames = 5
	LongGames  = 10
)

// Builder builds window rows.
type Builder struct {
	freshnessDays int
	workers       int
}

// Option configures a Builder.
type Option func(*Builder)

// WithWorkers bounds the number of players built concurrently.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// NewBuilder creates a builder whose STD window only counts games within
// freshnessDays of the current game.
func NewBuilder(freshnessDays int, opts ...Option) *Builder {
	b := &Builder{freshnessDays: freshnessDays, workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type series struct {
	player int64
	season int
	games  []model.GameRow
}

// Build emits four rows per game, ordered by player, season, game date and
// window type. Players are built concurrently; the output does not depend on
// the worker count.
func (b *Builder) Build(ctx context.Context, games []model.GameRow) ([]model.WindowRow, error) {
	groups := group(games)
	results := make([][]model.WindowRow, len(groups))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i := range groups {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = b.buildSeries(groups[i].games)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	n := 0
	for _, r := range results {
		n += len(r)
	}
	out := make([]model.WindowRow, 0, n)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// BuildPlayer builds the rows of one player's season. Games are sorted by date
// and game id first.
func (b *Builder) BuildPlayer(games []model.GameRow) []model.WindowRow {
	sorted := make([]model.GameRow, len(games))
	copy(sorted, games)
	sortGames(sorted)
	return b.buildSeries(sorted)
}

func (b *Builder) buildSeries(games []model.GameRow) []model.WindowRow {
	out := make([]model.WindowRow, 0, len(games)*len(model.AllWindowTypes))
	for i, g := range games {
		out = append(out,
			b.row(g, model.WindowGame, games[i:i+1], false),
			b.row(g, model.WindowG5, games[max(0, i+1-ShortGames):i+1], false),
			b.row(g, model.WindowG10, games[max(0, i+1-LongGames):i+1], false),
		)
		start := 0
		for start < i && model.DaysBetween(games[start].GameDate, g.GameDate) > b.freshnessDays {
			start++
		}
		out = append(out, b.row(g, model.WindowSTD, games[start:i+1], start > 0))
	}
	return out
}

func (b *Builder) row(current model.GameRow, wt model.WindowType, span []model.GameRow, fresh bool) model.WindowRow {
	w := model.WindowRow{
		PlayerID:         current.PlayerID,
		SeasonID:         current.SeasonID,
		PositionCode:     current.PositionCode,
		GameID:           current.GameID,
		GameDate:         model.DateOnly(current.GameDate),
		WindowType:       wt,
		NGames:           len(span),
		FreshnessApplied: fresh,
	}
	for _, g := range span {
		w.Add(g)
	}
	w.ShPct = ratio(w.Goals, w.Shots)
	w.OnIceShPct = ratio(w.OnIceGoalsFor, w.OnIceShotsFor)
	w.IPP = ratio(w.Points, w.OnIceGoalsFor)
	return w
}

func ratio(num, den float64) *float64 {
	if den == 0 {
		return nil
	}
	return model.Float(num / den)
}

func group(games []model.GameRow) []series {
	sorted := make([]model.GameRow, len(games))
	copy(sorted, games)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.PlayerID != b.PlayerID {
			return a.PlayerID < b.PlayerID
		}
		return a.SeasonID < b.SeasonID
	})

	var out []series
	for _, g := range sorted {
		if n := len(out); n == 0 || out[n-1].player != g.PlayerID || out[n-1].season != g.SeasonID {
			out = append(out, series{player: g.PlayerID, season: g.SeasonID})
		}
		last := &out[len(out)-1]
		last.games = append(last.games, g)
	}
	for i := range out {
		sortGames(out[i].games)
	}
	return out
}

func sortGames(games []model.GameRow) {
	sort.SliceStable(games, func(i, j int) bool {
		if !games[i].GameDate.Equal(games[j].GameDate) {
			return games[i].GameDate.Before(games[j].GameDate)
		}
		return games[i].GameID < games[j].GameID
	})
}
