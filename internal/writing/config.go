package writing

import (
	"time"

	"github.com/phrazzld/scribe-api/internal/config"
	"github.com/phrazzld/scribe-api/internal/domain"
)

// Config tunes the driver and its workers.
type Config struct {
	MaxRetries    int
	RecoveryDelay time.Duration

	// OutlineDelay and SceneDelay are the pauses a loop takes after running
	// a job of that type.
	OutlineDelay time.Duration
	SceneDelay   time.Duration

	LeaseDuration time.Duration

	// StallTimeout fails a run whose jobs keep failing transiently without
	// progress. Zero disables it.
	StallTimeout time.Duration

	// PlaceholderScenesPerChapter estimates the size of chapters that have
	// no outline yet. It only feeds Progress.EstimatedTotal.
	PlaceholderScenesPerChapter int

	// PrecedingContextChars caps how much of the chapter's prose is sent
	// with a scene request.
	PrecedingContextChars int

	OutlineCreditCost int
	SceneCreditCost   int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:                  10,
		RecoveryDelay:               30 * time.Second,
		OutlineDelay:                2 * time.Second,
		SceneDelay:                  5 * time.Second,
		LeaseDuration:               5 * time.Minute,
		StallTimeout:                30 * time.Minute,
		PlaceholderScenesPerChapter: 5,
		PrecedingContextChars:       4000,
		OutlineCreditCost:           1,
		SceneCreditCost:             2,
	}
}

// ConfigFrom maps the application's writing settings.
func ConfigFrom(c config.WritingConfig) Config {
	return Config{
		MaxRetries:                  c.MaxRetries,
		RecoveryDelay:               c.RecoveryDelay,
		OutlineDelay:                c.OutlineDelay,
		SceneDelay:                  c.SceneDelay,
		LeaseDuration:               c.LeaseDuration,
		StallTimeout:                c.StallTimeout,
		PlaceholderScenesPerChapter: c.PlaceholderScenesPerChapter,
		PrecedingContextChars:       c.PrecedingContextChars,
		OutlineCreditCost:           c.OutlineCreditCost,
		SceneCreditCost:             c.SceneCreditCost,
	}
}

// Policy returns the retry policy described by c.
func (c Config) Policy() Policy {
	return Policy{MaxRetries: c.MaxRetries, RecoveryDelay: c.RecoveryDelay}
}

// phaseDelay is the pause after work of jobType.
func (c Config) phaseDelay(jobType domain.JobType) time.Duration {
	if jobType == domain.JobTypeGenerateOutline {
		return c.OutlineDelay
	}
	return c.SceneDelay
}
