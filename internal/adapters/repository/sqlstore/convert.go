package sqlstore

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/model"
	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/domain/scoringconfig"
)

var emptyArray = datatypes.JSON("[]") //nolint:gochecknoglobals // constant payload

func toScoreRow(r model.EnrichedWindowRow, now time.Time) (scoreRow, error) {
	stats, err := json.Marshal(r.Metrics)
	if err != nil {
		return scoreRow{}, fmt.Errorf("encode metrics: %w", err)
	}
	components := emptyArray
	if len(r.ComponentsJSON) > 0 {
		components = datatypes.JSON(r.ComponentsJSON)
	}
	return scoreRow{
		PlayerID:               r.PlayerID,
		GameDate:               model.DateOnly(r.GameDate),
		WindowCode:             string(r.WindowType),
		ModelVersion:           r.ModelVersion,
		SeasonID:               r.SeasonID,
		PositionCode:           r.PositionCode,
		GameID:                 r.GameID,
		NGames:                 r.NGames,
		FreshnessApplied:       r.FreshnessApplied,
		Shots:                  r.Shots,
		Goals:                  r.Goals,
		OnIceGoalsFor:          r.OnIceGoalsFor,
		OnIceShotsFor:          r.OnIceShotsFor,
		Points:                 r.Points,
		ExpectedGoals:          r.ExpectedGoals,
		ShotAttempts:           r.ShotAttempts,
		HighDangerShotAttempts: r.HighDangerShotAttempts,
		ShPct:                  r.ShPct,
		OnIceShPct:             r.OnIceShPct,
		IPP:                    r.IPP,
		Metrics:                datatypes.JSON(stats),
		ContribTotal:           r.ContribTotal,
		ScoreRaw:               r.ScoreRaw,
		Score:                  r.Score,
		Quintile:               r.Quintile,
		ProvisionalTier:        r.ProvisionalTier,
		Components:             components,
		ConfigHash:             r.ConfigHash,
		UpdatedAt:              now,
	}, nil
}

func (s scoreRow) toModel() (model.EnrichedWindowRow, error) {
	out := model.EnrichedWindowRow{
		WindowRow: model.WindowRow{
			PlayerID:         s.PlayerID,
			SeasonID:         s.SeasonID,
			PositionCode:     s.PositionCode,
			GameID:           s.GameID,
			GameDate:         s.GameDate.UTC(),
			WindowType:       model.WindowType(s.WindowCode),
			ShPct:            s.ShPct,
			OnIceShPct:       s.OnIceShPct,
			IPP:              s.IPP,
			NGames:           s.NGames,
			FreshnessApplied: s.FreshnessApplied,
			Counters: model.Counters{
				Shots:                  s.Shots,
				Goals:                  s.Goals,
				OnIceGoalsFor:          s.OnIceGoalsFor,
				OnIceShotsFor:          s.OnIceShotsFor,
				Points:                 s.Points,
				ExpectedGoals:          s.ExpectedGoals,
				ShotAttempts:           s.ShotAttempts,
				HighDangerShotAttempts: s.HighDangerShotAttempts,
			},
		},
		ContribTotal:    s.ContribTotal,
		ScoreRaw:        s.ScoreRaw,
		Score:           s.Score,
		Quintile:        s.Quintile,
		ProvisionalTier: s.ProvisionalTier,
		ComponentsJSON:  []byte(s.Components),
		ModelVersion:    s.ModelVersion,
		ConfigHash:      s.ConfigHash,
	}
	if len(s.Metrics) > 0 {
		if err := json.Unmarshal(s.Metrics, &out.Metrics); err != nil {
			return out, fmt.Errorf("decode metrics: %w", err)
		}
	}
	return out, nil
}

func toSnapshotRow(s model.DistributionSnapshot) snapshotRow {
	return snapshotRow{
		WindowCode:   string(s.WindowType),
		ModelVersion: s.ModelVersion,
		ConfigHash:   s.ConfigHash,
		N:            s.N,
		T20:          s.T20,
		T40:          s.T40,
		T60:          s.T60,
		T80:          s.T80,
		CreatedAt:    s.CreatedAt.UTC(),
	}
}

// toModel goes through the mapping constructor so stored rows are validated
// the same way as any other snapshot source.
func (s snapshotRow) toModel() (*model.DistributionSnapshot, error) {
	return model.NewDistributionSnapshot(map[string]any{
		"window_type":   s.WindowCode,
		"model_version": s.ModelVersion,
		"config_hash":   s.ConfigHash,
		"n":             s.N,
		"t20":           s.T20,
		"t40":           s.T40,
		"t60":           s.T60,
		"t80":           s.T80,
		"created_at":    s.CreatedAt.UTC(),
	})
}

func toRunLogRow(rec model.RunRecord) (runLogRow, error) {
	diag, err := json.Marshal(rec.Diagnostics)
	if err != nil {
		return runLogRow{}, fmt.Errorf("encode diagnostics: %w", err)
	}
	return runLogRow{
		RunID:         rec.RunID,
		SeasonID:      rec.SeasonID,
		ModelVersion:  rec.ModelVersion,
		ConfigHash:    rec.ConfigHash,
		ConfigSource:  rec.ConfigSource,
		StartedAt:     rec.StartedAt.UTC(),
		FinishedAt:    rec.FinishedAt.UTC(),
		RowsIn:        rec.RowsIn,
		RowsScored:    rec.RowsScored,
		RowsPersisted: rec.RowsPersisted,
		Status:        rec.Status,
		Diagnostics:   datatypes.JSON(diag),
	}, nil
}

func (r runLogRow) toModel() (model.RunRecord, error) {
	out := model.RunRecord{
		RunID:         r.RunID,
		SeasonID:      r.SeasonID,
		ModelVersion:  r.ModelVersion,
		ConfigHash:    r.ConfigHash,
		ConfigSource:  r.ConfigSource,
		StartedAt:     r.StartedAt.UTC(),
		FinishedAt:    r.FinishedAt.UTC(),
		RowsIn:        r.RowsIn,
		RowsScored:    r.RowsScored,
		RowsPersisted: r.RowsPersisted,
		Status:        r.Status,
	}
	if len(r.Diagnostics) > 0 {
		if err := json.Unmarshal(r.Diagnostics, &out.Diagnostics); err != nil {
			return out, fmt.Errorf("decode diagnostics: %w", err)
		}
	}
	return out, nil
}

func toConfigRow(r scoringconfig.Row) (configRow, error) {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return configRow{}, fmt.Errorf("encode config payload: %w", err)
	}
	return configRow{ModelVersion: r.ModelVersion, Payload: datatypes.JSON(payload), Active: r.Active, CreatedAt: r.CreatedAt.UTC()}, nil
}

func (c configRow) toModel() (*scoringconfig.Row, error) {
	out := &scoringconfig.Row{ModelVersion: c.ModelVersion, Active: c.Active, CreatedAt: c.CreatedAt.UTC()}
	if len(c.Payload) > 0 {
		if err := json.Unmarshal(c.Payload, &out.Payload); err != nil {
			return nil, fmt.Errorf("decode config payload: %w", err)
		}
	}
	return out, nil
}

func toSeasonTotalsRow(t model.PlayerSeasonTotals, now time.Time) seasonTotalsRow {
	return seasonTotalsRow{
		PlayerID:      t.PlayerID,
		SeasonID:      t.SeasonID,
		PositionCode:  t.PositionCode,
		ShSuccesses:   t.Successes[model.MetricShPct],
		ShTrials:      t.Trials[model.MetricShPct],
		OishSuccesses: t.Successes[model.MetricOnIceShPct],
		OishTrials:    t.Trials[model.MetricOnIceShPct],
		IPPSuccesses:  t.Successes[model.MetricIPP],
		IPPTrials:     t.Trials[model.MetricIPP],
		UpdatedAt:     now,
	}
}

func (r seasonTotalsRow) toModel() model.PlayerSeasonTotals {
	out := model.PlayerSeasonTotals{PlayerID: r.PlayerID, SeasonID: r.SeasonID, PositionCode: r.PositionCode}
	out.Successes[model.MetricShPct] = r.ShSuccesses
	out.Trials[model.MetricShPct] = r.ShTrials
	out.Successes[model.MetricOnIceShPct] = r.OishSuccesses
	out.Trials[model.MetricOnIceShPct] = r.OishTrials
	out.Successes[model.MetricIPP] = r.IPPSuccesses
	out.Trials[model.MetricIPP] = r.IPPTrials
	return out
}
