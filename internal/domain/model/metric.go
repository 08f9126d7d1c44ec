// Package model contains the record types passed between pipeline stages.
package model

import "fmt"

// Metric identifies one scored component. The numeric order is the fold order
// used everywhere a per-metric sum or payload is produced.
type Metric int

// Scored metrics.
const (
	MetricShPct Metric = iota
	MetricOnIceShPct
	MetricIPP
	MetricFinishingResCount
	MetricFinishingResRate
)

// NumMetrics is the size of per-metric arrays.
const NumMetrics = 5

// AllMetrics lists every metric in fold order.
var AllMetrics = [NumMetrics]Metric{ //nolint:gochecknoglobals // fixed ordering table
	MetricShPct,
	MetricOnIceShPct,
	MetricIPP,
	MetricFinishingResCount,
	MetricFinishingResRate,
}

// RateMetrics lists the ratio metrics that carry a league prior, a player
// posterior and a sample-size reliability.
var RateMetrics = [3]Metric{MetricShPct, MetricOnIceShPct, MetricIPP} //nolint:gochecknoglobals // fixed ordering table

// ResidualMetrics lists the zero-baseline finishing residual metrics.
var ResidualMetrics = [2]Metric{MetricFinishingResCount, MetricFinishingResRate} //nolint:gochecknoglobals // fixed ordering table

var metricCodes = [NumMetrics]string{ //nolint:gochecknoglobals // fixed lookup table
	"sh_pct",
	"oish_pct",
	"ipp",
	"finishing_res_cnt",
	"finishing_res_rate",
}

// String returns the metric code used in configuration and payloads.
func (m Metric) String() string {
	if m < 0 || int(m) >= NumMetrics {
		return fmt.Sprintf("metric(%d)", int(m))
	}
	return metricCodes[m]
}

// IsRate reports whether m is a rate metric.
func (m Metric) IsRate() bool {
	return m == MetricShPct || m == MetricOnIceShPct || m == MetricIPP
}

// ParseMetric maps a metric code back to its Metric.
func ParseMetric(code string) (Metric, bool) {
	for i, c := range metricCodes {
		if c == code {
			return Metric(i), true
		}
	}
	return 0, false
}

// MarshalText encodes the metric as its code.
func (m Metric) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a metric code.
func (m *Metric) UnmarshalText(b []byte) error {
	parsed, ok := ParseMetric(string(b))
	if !ok {
		return fmt.Errorf("unknown metric %q", string(b))
	}
	*m = parsed
	return nil
}
