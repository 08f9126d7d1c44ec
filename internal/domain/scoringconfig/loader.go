package scoringconfig

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/pkg/logger"
)

//go:embed default_config.yaml
var defaultDocument []byte

// Source fetches the highest-version active configuration row. A nil row with
// a nil error means no active row exists.
type Source interface {
	FetchActive(ctx context.Context) (*Row, error)
}

// VersionWriter stores a new configuration version.
type VersionWriter interface {
	UpsertVersion(ctx context.Context, row Row) error
}

// Option applies a configuration option to the Loader.
type Option func(*Loader)

// WithFallbackDisabled makes an invalid or missing active row fatal.
func WithFallbackDisabled() Option {
	return func(l *Loader) {
		l.fallback = false
	}
}

// WithDefaultDocument replaces the embedded default YAML document.
func WithDefaultDocument(doc []byte) Option {
	return func(l *Loader) {
		l.defaultDoc = doc
	}
}

// WithLogger sets the loader's logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.logger = log
		}
	}
}

// Loader resolves the active scoring configuration.
type Loader struct {
	source     Source
	fallback   bool
	defaultDoc []byte
	logger     logger.Logger
}

// NewLoader creates a loader reading from source. A nil source always yields
// the default configuration.
func NewLoader(source Source, opts ...Option) *Loader {
	l := &Loader{
		source:     source,
		fallback:   true,
		defaultDoc: defaultDocument,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the active configuration, falling back to the default when the
// source has no valid active row.
func (l *Loader) Load(ctx context.Context) (*ScoringConfig, error) {
	activeErr := ErrNoActiveRow
	if l.source != nil {
		row, err := l.source.FetchActive(ctx)
		switch {
		case err != nil:
			activeErr = fmt.Errorf("fetch active row: %w", err)
		case row != nil:
			cfg, perr := ParseRow(row, sourceName(l.source))
			if perr == nil {
				return cfg, nil
			}
			activeErr = perr
		}
	}

	if !l.fallback {
		return nil, &ConfigLoadError{ActiveErr: activeErr}
	}

	cfg, err := parseDefault(l.defaultDoc)
	if err != nil {
		return nil, &ConfigLoadError{ActiveErr: activeErr, FallbackErr: err}
	}
	l.logger.Warn(ctx, "using default scoring config",
		logger.String("reason", activeErr.Error()),
		logger.Int("model_version", cfg.ModelVersion),
		logger.String("config_hash", cfg.ConfigHash),
	)
	return cfg, nil
}

// sourceName labels configs from sources that name themselves.
func sourceName(s Source) string {
	if n, ok := s.(interface{ SourceName() string }); ok {
		return n.SourceName()
	}
	return SourceStore
}

// Default parses the embedded default configuration.
func Default() (*ScoringConfig, error) {
	return parseDefault(defaultDocument)
}

func parseDefault(doc []byte) (*ScoringConfig, error) {
	m, err := yaml.Parser().Unmarshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: parse default: %w", ErrInvalidConfig, err)
	}
	return Parse(m, SourceDefault)
}
