// Package scoringconfig loads, validates and fingerprints the scoring
// configuration that drives every stage of the sustainability pipeline.
//
// A configuration is immutable once loaded: a changed value requires a new
// model version row in the backing source.
package scoringconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
)

// Config sources.
const (
	SourceStore   = "store"
	SourceDefault = "default"
	SourceFile    = "file"
)

// Standard deviation modes.
const (
	SDModeFixed     = "fixed"
	SDModeEmpirical = "empirical"
)

// Toggle names.
const (
	ToggleSoftClip          = "soft_clip"
	ToggleFinishingResidual = "finishing_residual"
)

// QuintileNearestRank is the only supported quintile strategy.
const QuintileNearestRank = "nearest_rank"

// Guardrails compress the logistic output into (LowerRaw, UpperRaw).
type Guardrails struct {
	LowerRaw float64 `json:"lower_raw"`
	UpperRaw float64 `json:"upper_raw"`
}

// Validate checks 0 < lower < upper < 1.
func (g Guardrails) Validate() error {
	if !(g.LowerRaw > 0 && g.LowerRaw < g.UpperRaw && g.UpperRaw < 1) {
		return fmt.Errorf("%w: guardrails must satisfy 0 < lower_raw < upper_raw < 1, got (%v, %v)",
			model.ErrBadConfigValue, g.LowerRaw, g.UpperRaw)
	}
	return nil
}

// Constants groups the numeric tuning constants.
type Constants struct {
	// C is the soft-clip scale in tanh(z/C).
	C float64 `json:"c"`
	// KR is the reliability pseudo sample size per rate metric; it doubles as
	// the league prior strength.
	KR               map[string]float64            `json:"k_r"`
	Guardrails       Guardrails                    `json:"guardrails"`
	QuintileStrategy string                        `json:"quintile_strategy"`
	SD               map[string]map[string]float64 `json:"sd"`
}

// ScoringConfig is the active scoring configuration.
type ScoringConfig struct {
	ModelVersion  int                `json:"model_version"`
	Weights       map[string]float64 `json:"weights"`
	Toggles       map[string]bool    `json:"toggles"`
	Constants     Constants          `json:"constants"`
	SDMode        string             `json:"sd_mode"`
	FreshnessDays int                `json:"freshness_days"`

	ConfigHash string `json:"config_hash"`
	Source     string `json:"source"`
}

// Row is one versioned configuration as stored by a Source. Payload holds the
// loosely typed document (weights, toggles, constants, sd_mode, freshness_days).
type Row struct {
	ModelVersion int
	Payload      map[string]any
	Active       bool
	CreatedAt    time.Time
}

// Weight returns the configured weight of m.
func (c *ScoringConfig) Weight(m model.Metric) (float64, bool) {
	w, ok := c.Weights[m.String()]
	return w, ok
}

// KR returns the reliability constant of m.
func (c *ScoringConfig) KR(m model.Metric) (float64, bool) {
	k, ok := c.Constants.KR[m.String()]
	return k, ok
}

// SD returns the fixed standard deviation constant of m for a position group.
func (c *ScoringConfig) SD(position string, m model.Metric) (float64, bool) {
	byMetric, ok := c.Constants.SD[model.PositionGroup(position)]
	if !ok {
		return 0, false
	}
	sd, ok := byMetric[m.String()]
	return sd, ok
}

// Toggle reports whether a named toggle is on.
func (c *ScoringConfig) Toggle(name string) bool {
	return c.Toggles[name]
}

// SoftClip reports whether z-scores are soft clipped.
func (c *ScoringConfig) SoftClip() bool { return c.Toggle(ToggleSoftClip) }

// FinishingResidual reports whether the finishing residual metrics are scored.
func (c *ScoringConfig) FinishingResidual() bool { return c.Toggle(ToggleFinishingResidual) }

// requiredWeights lists the metrics every config must weight.
func requiredWeights() []string {
	out := make([]string, 0, model.NumMetrics)
	for _, m := range model.AllMetrics {
		out = append(out, m.String())
	}
	return out
}

// requiredKR lists the metrics every config must give a reliability constant.
func requiredKR() []string {
	out := make([]string, 0, len(model.RateMetrics))
	for _, m := range model.RateMetrics {
		out = append(out, m.String())
	}
	return out
}

var (
	requiredSections  = []string{"weights", "toggles", "constants"}                        //nolint:gochecknoglobals // fixed table
	requiredToggles   = []string{ToggleSoftClip, ToggleFinishingResidual}                  //nolint:gochecknoglobals // fixed table
	requiredConstants = []string{"c", "k_r", "guardrails", "quintile_strategy", "sd"}      //nolint:gochecknoglobals // fixed table
	mappingConstants  = map[string]bool{"k_r": true, "guardrails": true, "sd": true}       //nolint:gochecknoglobals // fixed table
	validSDModes      = map[string]bool{SDModeFixed: true, SDModeEmpirical: true}          //nolint:gochecknoglobals // fixed table
)

// ValidateDocument checks the structure of a loosely typed configuration
// document before it is decoded.
func ValidateDocument(doc map[string]any) error {
	if doc == nil {
		return fmt.Errorf("%w: empty document", ErrInvalidConfig)
	}
	var errs []error
	sections := make(map[string]map[string]any, len(requiredSections))
	for _, name := range requiredSections {
		sec, ok := doc[name].(map[string]any)
		if !ok {
			errs = append(errs, fmt.Errorf("section %q missing or not a mapping", name))
			continue
		}
		sections[name] = sec
	}
	if w, ok := sections["weights"]; ok {
		for _, key := range requiredWeights() {
			if _, ok := w[key]; !ok {
				errs = append(errs, fmt.Errorf("weights.%s missing", key))
			}
		}
	}
	if t, ok := sections["toggles"]; ok {
		for _, key := range requiredToggles {
			if _, ok := t[key]; !ok {
				errs = append(errs, fmt.Errorf("toggles.%s missing", key))
			}
		}
	}
	if c, ok := sections["constants"]; ok {
		for _, key := range requiredConstants {
			v, ok := c[key]
			if !ok {
				errs = append(errs, fmt.Errorf("constants.%s missing", key))
				continue
			}
			if mappingConstants[key] {
				if _, isMap := v.(map[string]any); !isMap {
					errs = append(errs, fmt.Errorf("constants.%s is not a mapping", key))
				}
			}
		}
		if kr, ok := c["k_r"].(map[string]any); ok {
			for _, key := range requiredKR() {
				if _, ok := kr[key]; !ok {
					errs = append(errs, fmt.Errorf("constants.k_r.%s missing", key))
				}
			}
		}
	}
	if mode, _ := doc["sd_mode"].(string); !validSDModes[mode] {
		errs = append(errs, fmt.Errorf("sd_mode %v not in {fixed, empirical}", doc["sd_mode"]))
	}
	if n, ok := positiveInt(doc["freshness_days"]); !ok || n <= 0 {
		errs = append(errs, fmt.Errorf("freshness_days %v is not a positive integer", doc["freshness_days"]))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// positiveInt accepts integral numbers of any decoded numeric type.
func positiveInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// ValidateStructure checks the key coverage, modes and counters of a typed
// configuration. Numeric tuning constants are checked where they are used.
func (c *ScoringConfig) ValidateStructure() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	var errs []error
	if c.ModelVersion <= 0 {
		errs = append(errs, fmt.Errorf("model_version %d must be positive", c.ModelVersion))
	}
	for _, key := range requiredWeights() {
		if _, ok := c.Weights[key]; !ok {
			errs = append(errs, fmt.Errorf("weights.%s missing", key))
		}
	}
	for _, key := range requiredToggles {
		if _, ok := c.Toggles[key]; !ok {
			errs = append(errs, fmt.Errorf("toggles.%s missing", key))
		}
	}
	for _, key := range requiredKR() {
		if _, ok := c.Constants.KR[key]; !ok {
			errs = append(errs, fmt.Errorf("constants.k_r.%s missing", key))
		}
	}
	if !validSDModes[c.SDMode] {
		errs = append(errs, fmt.Errorf("sd_mode %q not in {fixed, empirical}", c.SDMode))
	}
	if c.FreshnessDays <= 0 {
		errs = append(errs, fmt.Errorf("freshness_days %d must be positive", c.FreshnessDays))
	}
	if s := c.Constants.QuintileStrategy; s != "" && s != QuintileNearestRank {
		errs = append(errs, fmt.Errorf("quintile_strategy %q unsupported", s))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Validate runs ValidateStructure and the guardrail bounds check.
func (c *ScoringConfig) Validate() error {
	if err := c.ValidateStructure(); err != nil {
		return err
	}
	if err := c.Constants.Guardrails.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Parse validates a document, decodes it and stamps its hash and source.
func Parse(doc map[string]any, source string) (*ScoringConfig, error) {
	if err := ValidateDocument(doc); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode document: %w", ErrInvalidConfig, err)
	}
	var cfg ScoringConfig
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode document: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hash, err := ComputeHash(&cfg)
	if err != nil {
		return nil, err
	}
	cfg.ConfigHash = hash
	cfg.Source = source
	return &cfg, nil
}

// ParseRow parses a stored row. The row's version wins over any version in
// the payload.
func ParseRow(row *Row, source string) (*ScoringConfig, error) {
	if row == nil {
		return nil, ErrNoActiveRow
	}
	doc := make(map[string]any, len(row.Payload)+1)
	for k, v := range row.Payload {
		doc[k] = v
	}
	if row.ModelVersion > 0 {
		doc["model_version"] = row.ModelVersion
	}
	return Parse(doc, source)
}
