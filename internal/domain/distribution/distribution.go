// Package distribution builds percentile snapshots of scores and assigns
// quintile tiers from them.
package distribution

import (
	"math"
	"sort"
	"time"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
)

// Cumulative fractions of the stored thresholds.
var Fractions = [4]float64{0.2, 0.4, 0.6, 0.8} //nolint:gochecknoglobals // fixed table

// Engine builds snapshots and assigns tiers.
type Engine struct {
	windowType model.WindowType
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithWindowType sets the window type whose scores form the population.
func WithWindowType(w model.WindowType) Option {
	return func(e *Engine) { e.windowType = w }
}

// WithClock sets the snapshot creation clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over GAME rows by default.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{windowType: model.WindowGame, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WindowType returns the population window type.
func (e *Engine) WindowType() model.WindowType { return e.windowType }

// Build returns a snapshot over the scored rows of the engine's window type,
// or nil when none are scored.
func (e *Engine) Build(modelVersion int, configHash string, rows []model.EnrichedWindowRow) *model.DistributionSnapshot {
	scores := make([]float64, 0, len(rows))
	for i := range rows {
		if rows[i].WindowType == e.windowType && rows[i].Score != nil {
			scores = append(scores, *rows[i].Score)
		}
	}
	if len(scores) == 0 {
		return nil
	}
	sort.Float64s(scores)
	t := Thresholds(scores)
	return &model.DistributionSnapshot{
		WindowType:   e.windowType,
		ModelVersion: modelVersion,
		ConfigHash:   configHash,
		N:            len(scores),
		T20:          t[0],
		T40:          t[1],
		T60:          t[2],
		T80:          t[3],
		CreatedAt:    e.now().UTC(),
	}
}

// Thresholds reads nearest-rank values at Fractions from ascending scores.
func Thresholds(sorted []float64) [4]float64 {
	var out [4]float64
	last := float64(len(sorted) - 1)
	for i, p := range Fractions {
		out[i] = sorted[int(math.RoundToEven(last*p))]
	}
	return out
}

// Assign sets quintiles on rows of the engine's window type. Without a
// snapshot, and for every other window type, rows are left provisional.
func (e *Engine) Assign(snap *model.DistributionSnapshot, rows []model.EnrichedWindowRow) {
	for i := range rows {
		r := &rows[i]
		r.Quintile = nil
		r.ProvisionalTier = true
		if snap == nil || r.WindowType != e.windowType || r.Score == nil {
			continue
		}
		r.Quintile = model.Int(Quintile(snap, *r.Score))
		r.ProvisionalTier = false
	}
}

// Quintile returns 1 (best) to 5. Scores on a threshold take the better tier.
func Quintile(snap *model.DistributionSnapshot, score float64) int {
	switch {
	case score >= snap.T80:
		return 1
	case score >= snap.T60:
		return 2
	case score >= snap.T40:
		return 3
	case score >= snap.T20:
		return 4
	default:
		return 5
	}
}
