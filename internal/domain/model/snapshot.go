package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DistributionSnapshot holds the quintile thresholds of a score population.
type DistributionSnapshot struct {
	WindowType   WindowType `json:"window_type"`
	ModelVersion int        `json:"model_version"`
	ConfigHash   string     `json:"config_hash"`
	N            int        `json:"n"`
	T20          float64    `json:"t20"`
	T40          float64    `json:"t40"`
	T60          float64    `json:"t60"`
	T80          float64    `json:"t80"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Validate checks the threshold ordering invariant.
func (s DistributionSnapshot) Validate() error {
	if s.N < 0 {
		return fmt.Errorf("%w: negative n %d", ErrInvalidSnapshot, s.N)
	}
	if !(s.T20 <= s.T40 && s.T40 <= s.T60 && s.T60 <= s.T80) {
		return fmt.Errorf("%w: thresholds not ascending (%v, %v, %v, %v)", ErrInvalidSnapshot, s.T20, s.T40, s.T60, s.T80)
	}
	if s.WindowType.Ordinal() < 0 {
		return fmt.Errorf("%w: window type %q", ErrInvalidSnapshot, s.WindowType)
	}
	return nil
}

// NewDistributionSnapshot builds a snapshot from a loosely typed mapping, such
// as a decoded JSON document or a database row scanned into a map.
func NewDistributionSnapshot(m map[string]any) (*DistributionSnapshot, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil mapping", ErrInvalidSnapshot)
	}
	var (
		s   DistributionSnapshot
		err error
	)
	wt, ok := m["window_type"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: window_type missing", ErrInvalidSnapshot)
	}
	s.WindowType = WindowType(wt)
	if s.ConfigHash, ok = m["config_hash"].(string); !ok {
		return nil, fmt.Errorf("%w: config_hash missing", ErrInvalidSnapshot)
	}
	var mv float64
	if mv, err = numberField(m, "model_version"); err != nil {
		return nil, err
	}
	s.ModelVersion = int(mv)
	var n float64
	if n, err = numberField(m, "n"); err != nil {
		return nil, err
	}
	s.N = int(n)
	for key, dst := range map[string]*float64{"t20": &s.T20, "t40": &s.T40, "t60": &s.T60, "t80": &s.T80} {
		if *dst, err = numberField(m, key); err != nil {
			return nil, err
		}
	}
	switch v := m["created_at"].(type) {
	case time.Time:
		s.CreatedAt = v
	case string:
		if s.CreatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("%w: created_at: %v", ErrInvalidSnapshot, err)
		}
	case nil:
	default:
		return nil, fmt.Errorf("%w: created_at has type %T", ErrInvalidSnapshot, v)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func numberField(m map[string]any, key string) (float64, error) {
	switch v := m[key].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidSnapshot, key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrInvalidSnapshot, key, v)
	}
}
