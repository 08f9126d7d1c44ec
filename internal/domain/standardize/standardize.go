// Package standardize attaches expectation, deviation, z-scores, soft-clipped
// z-scores and reliability weights to window rows.
package standardize

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/scoringconfig"
)

// chunkSize is the number of rows annotated per worker task.
const chunkSize = 512

// Engine standardizes window rows against player posteriors.
type Engine struct {
	cfg        *scoringconfig.ScoringConfig
	posteriors map[model.PosteriorKey]model.PlayerPosterior
	workers    int
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds concurrent annotation.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewEngine creates an engine. Soft clipping with a non-positive scale is a
// configuration error.
func NewEngine(cfg *scoringconfig.ScoringConfig, posteriors map[model.PosteriorKey]model.PlayerPosterior, opts ...Option) (*Engine, error) {
	if cfg.SoftClip() && !(cfg.Constants.C > 0) {
		return nil, fmt.Errorf("%w: soft clip scale c=%v must be > 0", model.ErrBadConfigValue, cfg.Constants.C)
	}
	e := &Engine{cfg: cfg, posteriors: posteriors, workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type sdKey struct {
	position string
	window   model.WindowType
	metric   model.Metric
}

// Apply returns one enriched row per input row, in input order.
func (e *Engine) Apply(ctx context.Context, rows []model.WindowRow) ([]model.EnrichedWindowRow, error) {
	out := make([]model.EnrichedWindowRow, len(rows))
	for i := range rows {
		out[i] = model.EnrichedWindowRow{
			WindowRow:    rows[i],
			ModelVersion: e.cfg.ModelVersion,
			ConfigHash:   e.cfg.ConfigHash,
		}
		for _, m := range model.AllMetrics {
			out[i].Stat(m).Observed = e.observed(&rows[i], m)
		}
	}

	var empirical map[sdKey]float64
	if e.cfg.SDMode == scoringconfig.SDModeEmpirical {
		empirical = empiricalSD(out)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for start := 0; start < len(out); start += chunkSize {
		end := min(start+chunkSize, len(out))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				e.annotate(&out[i], empirical)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) observed(w *model.WindowRow, m model.Metric) *float64 {
	if m.IsRate() {
		return w.Rate(m)
	}
	if !e.cfg.FinishingResidual() {
		return nil
	}
	res := w.Goals - w.ExpectedGoals
	if m == model.MetricFinishingResCount {
		return model.Float(res)
	}
	if w.Shots > 0 {
		return model.Float(res / w.Shots)
	}
	return nil
}

func (e *Engine) annotate(row *model.EnrichedWindowRow, empirical map[sdKey]float64) {
	group := model.PositionGroup(row.PositionCode)
	for _, m := range model.AllMetrics {
		st := row.Stat(m)
		sd, ok := e.sd(group, row.WindowType, m, empirical)

		if m.IsRate() {
			st.Trials = row.Counters.Trials(m)
			if p, found := e.posteriors[model.PosteriorKey{PlayerID: row.PlayerID, SeasonID: row.SeasonID, Metric: m}]; found {
				st.Expected = model.Float(p.PostMean)
			}
			kR, _ := e.cfg.KR(m)
			st.Reliability = model.Float(Reliability(st.Trials, kR))
		} else {
			if !e.cfg.FinishingResidual() {
				continue
			}
			st.Trials = row.Shots
			st.Expected = model.Float(0)
		}

		if st.Observed != nil && st.Expected != nil {
			st.Delta = model.Float(*st.Observed - *st.Expected)
			if ok && sd > 0 {
				st.Z = model.Float(*st.Delta / sd)
			}
		}
		if st.Z != nil && e.cfg.SoftClip() {
			st.ZClipped = model.Float(SoftClip(*st.Z, e.cfg.Constants.C))
		}
		if !m.IsRate() {
			if st.Z != nil {
				st.Reliability = model.Float(1)
			} else {
				st.Reliability = model.Float(0)
			}
		}
	}
}

func (e *Engine) sd(group string, wt model.WindowType, m model.Metric, empirical map[sdKey]float64) (float64, bool) {
	if v, ok := empirical[sdKey{position: group, window: wt, metric: m}]; ok {
		return v, true
	}
	return e.cfg.SD(group, m)
}

// empiricalSD computes the population standard deviation of observed values
// per position group, window type and metric. Groups with fewer than two
// observations or no spread are left out so the fixed constant applies.
func empiricalSD(rows []model.EnrichedWindowRow) map[sdKey]float64 {
	type acc struct{ n, mean, m2 float64 }
	accs := make(map[sdKey]*acc)
	for i := range rows {
		r := &rows[i]
		group := model.PositionGroup(r.PositionCode)
		for _, m := range model.AllMetrics {
			v := r.Metrics[m].Observed
			if v == nil {
				continue
			}
			k := sdKey{position: group, window: r.WindowType, metric: m}
			a, ok := accs[k]
			if !ok {
				a = &acc{}
				accs[k] = a
			}
			a.n++
			d := *v - a.mean
			a.mean += d / a.n
			a.m2 += d * (*v - a.mean)
		}
	}
	out := make(map[sdKey]float64, len(accs))
	for k, a := range accs {
		if a.n < 2 {
			continue
		}
		if sd := math.Sqrt(a.m2 / a.n); sd > 0 {
			out[k] = sd
		}
	}
	return out
}

// Reliability returns sqrt(n/(n+kR)). A non-positive kR gives full trust to
// any observed sample.
func Reliability(n, kR float64) float64 {
	if n <= 0 {
		return 0
	}
	if kR <= 0 {
		return 1
	}
	return math.Sqrt(n / (n + kR))
}

// SoftClip bounds z to the open interval (-1, 1) with tanh(z/c). Values that
// round to ±1 in float64 are pulled back to the nearest representable inner
// value.
func SoftClip(z, c float64) float64 {
	t := math.Tanh(z / c)
	switch {
	case t >= 1:
		return math.Nextafter(1, 0)
	case t <= -1:
		return math.Nextafter(-1, 0)
	}
	return t
}
