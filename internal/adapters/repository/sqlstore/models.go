package sqlstore

import (
	"time"

	"gorm.io/datatypes"
)

type scoreRow struct {
	PlayerID     int64     `gorm:"primaryKey;autoIncrement:false"`
	GameDate     time.Time `gorm:"primaryKey"`
	WindowCode   string    `gorm:"primaryKey;size:8"`
	ModelVersion int       `gorm:"primaryKey;autoIncrement:false"`

	SeasonID         int    `gorm:"index"`
	PositionCode     string `gorm:"size:4"`
	GameID           int64
	NGames           int
	FreshnessApplied bool

	Shots                  float64
	Goals                  float64
	OnIceGoalsFor          float64
	OnIceShotsFor          float64
	Points                 float64
	ExpectedGoals          float64
	ShotAttempts           float64
	HighDangerShotAttempts float64

	ShPct      *float64
	OnIceShPct *float64
	IPP        *float64 `gorm:"column:ipp"`

	Metrics         datatypes.JSON
	ContribTotal    *float64
	ScoreRaw        *float64
	Score           *float64
	Quintile        *int
	ProvisionalTier bool
	Components      datatypes.JSON
	ConfigHash      string `gorm:"size:64;index"`
	UpdatedAt       time.Time
}

func (scoreRow) TableName() string { return "sustainability_scores" }

type snapshotRow struct {
	ID           uint   `gorm:"primaryKey"`
	WindowCode   string `gorm:"size:8;index:idx_snapshot_key"`
	ModelVersion int    `gorm:"index:idx_snapshot_key"`
	ConfigHash   string `gorm:"size:64;index:idx_snapshot_key"`
	N            int
	T20          float64
	T40          float64
	T60          float64
	T80          float64
	CreatedAt    time.Time
}

func (snapshotRow) TableName() string { return "sustainability_distribution_snapshots" }

type runLogRow struct {
	RunID         string `gorm:"primaryKey;size:36"`
	SeasonID      int    `gorm:"index"`
	ModelVersion  int
	ConfigHash    string `gorm:"size:64"`
	ConfigSource  string `gorm:"size:16"`
	StartedAt     time.Time
	FinishedAt    time.Time
	RowsIn        int
	RowsScored    int
	RowsPersisted int
	Status        string `gorm:"size:16"`
	Diagnostics   datatypes.JSON
}

func (runLogRow) TableName() string { return "sustainability_run_logs" }

type retroTaskRow struct {
	ID             string `gorm:"primaryKey;size:36"`
	Reason         string
	ScopeKey       string `gorm:"index"`
	SeasonID       int
	ModelVersion   int
	WindowCode     string `gorm:"size:8"`
	PrevConfigHash string `gorm:"size:64"`
	ConfigHash     string `gorm:"size:64"`
	Status         string `gorm:"size:16;default:pending"`
	CreatedAt      time.Time
}

func (retroTaskRow) TableName() string { return "sustainability_retro_tasks" }

type configRow struct {
	ModelVersion int `gorm:"primaryKey;autoIncrement:false"`
	Payload      datatypes.JSON
	Active       bool `gorm:"index"`
	CreatedAt    time.Time
}

func (configRow) TableName() string { return "sustainability_model_configs" }

type seasonTotalsRow struct {
	PlayerID      int64  `gorm:"primaryKey;autoIncrement:false"`
	SeasonID      int    `gorm:"primaryKey;autoIncrement:false"`
	PositionCode  string `gorm:"size:4"`
	ShSuccesses   float64
	ShTrials      float64
	OishSuccesses float64
	OishTrials    float64
	IPPSuccesses  float64 `gorm:"column:ipp_successes"`
	IPPTrials     float64 `gorm:"column:ipp_trials"`
	UpdatedAt     time.Time
}

func (seasonTotalsRow) TableName() string { return "player_season_totals" }

type lockRow struct {
	LockKey    int64  `gorm:"primaryKey;autoIncrement:false"`
	Holder     string `gorm:"size:36"`
	AcquiredAt time.Time
}

func (lockRow) TableName() string { return "sustainability_pipeline_locks" }

func allModels() []any {
	return []any{&scoreRow{}, &snapshotRow{}, &runLogRow{}, &retroTaskRow{}, &configRow{}, &seasonTotalsRow{}, &lockRow{}}
}
