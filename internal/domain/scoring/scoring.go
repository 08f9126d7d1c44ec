// Package scoring combines standardized metrics into a guard-railed 0-100
// sustainability score.
package scoring

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/scoringconfig"
)

const maxScoreValue = 100

// Option applies a configuration option to the ContributionScorer.
type Option func(*ContributionScorer)

// WithIncludeMissing keeps metrics without a contribution in the components
// payload.
func WithIncludeMissing() Option {
	return func(s *ContributionScorer) {
		s.includeMissing = true
	}
}

// Scorer scores one enriched row in place.
type Scorer interface {
	Score(row *model.EnrichedWindowRow) error
}

// ContributionScorer implements Scorer with weight·reliability·z contributions
// and a logistic transform.
type ContributionScorer struct {
	weights        [model.NumMetrics]*float64
	lower, upper   float64
	includeMissing bool
}

// NewContributionScorer creates a scorer from cfg's weights and guardrails.
func NewContributionScorer(cfg *scoringconfig.ScoringConfig, opts ...Option) (*ContributionScorer, error) {
	if err := cfg.Constants.Guardrails.Validate(); err != nil {
		return nil, err
	}
	s := &ContributionScorer{
		lower: cfg.Constants.Guardrails.LowerRaw,
		upper: cfg.Constants.Guardrails.UpperRaw,
	}
	for _, m := range model.AllMetrics {
		if w, ok := cfg.Weight(m); ok {
			s.weights[m] = model.Float(w)
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Score fills contributions, the total, the raw and published score and the
// components payload of row.
func (s *ContributionScorer) Score(row *model.EnrichedWindowRow) error {
	var total float64
	for _, m := range model.AllMetrics {
		st := row.Stat(m)
		st.Weight = s.weights[m]
		st.Contribution = Contribution(st.Weight, st.Reliability, st.Z, st.ZClipped)
		if st.Contribution != nil {
			total += *st.Contribution
		}
	}
	raw := s.Guard(Logistic(total))
	row.ContribTotal = model.Float(total)
	row.ScoreRaw = model.Float(raw)
	row.Score = model.Float(Publish(raw))

	payload, err := s.components(row)
	if err != nil {
		return err
	}
	row.ComponentsJSON = payload
	return nil
}

// ScoreAll scores every row.
func (s *ContributionScorer) ScoreAll(rows []model.EnrichedWindowRow) error {
	for i := range rows {
		if err := s.Score(&rows[i]); err != nil {
			return fmt.Errorf("score player %d %s %s: %w", rows[i].PlayerID, rows[i].WindowType, rows[i].GameDate.Format("2006-01-02"), err)
		}
	}
	return nil
}

// Guard maps p into [lower, upper] and clamps to [0, 1].
func (s *ContributionScorer) Guard(p float64) float64 {
	return clamp(s.lower+(s.upper-s.lower)*p, 0, 1)
}

// Contribution returns weight·r·z, preferring the clipped z. A zero
// reliability nullifies the metric even when a z-score exists. Nil means the
// metric has no contribution.
func Contribution(weight, r, z, zClipped *float64) *float64 {
	if weight == nil || r == nil {
		return nil
	}
	if *r == 0 {
		return model.Float(0)
	}
	src := zClipped
	if src == nil {
		src = z
	}
	if src == nil {
		return nil
	}
	return model.Float(*weight * *r * *src)
}

// Logistic is 1/(1+e^-x), branching on the sign of x so exp never overflows.
func Logistic(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Publish rounds a guarded probability to the published 0-100 score.
func Publish(raw float64) float64 {
	return clamp(math.RoundToEven(maxScoreValue*raw), 0, maxScoreValue)
}

type component struct {
	Metric       model.Metric `json:"metric"`
	Observed     *float64     `json:"observed"`
	Expected     *float64     `json:"expected"`
	Z            *float64     `json:"z"`
	ZClipped     *float64     `json:"z_clipped"`
	Reliability  *float64     `json:"reliability"`
	Weight       *float64     `json:"weight"`
	Contribution *float64     `json:"contribution"`
}

func (s *ContributionScorer) components(row *model.EnrichedWindowRow) ([]byte, error) {
	out := make([]component, 0, model.NumMetrics)
	for _, m := range model.AllMetrics {
		st := row.Stat(m)
		if st.Contribution == nil && !s.includeMissing {
			continue
		}
		out = append(out, component{
			Metric:       m,
			Observed:     st.Observed,
			Expected:     st.Expected,
			Z:            st.Z,
			ZClipped:     st.ZClipped,
			Reliability:  st.Reliability,
			Weight:       st.Weight,
			Contribution: st.Contribution,
		})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrComponents, err)
	}
	return b, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
