package stores

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/cfgtree/pkg/engine"
)

// ErrNotFound is returned when a resolution record does not exist.
var ErrNotFound = errors.New("resolution not found")

// Outcome summarises how a recorded pass ended.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeFailed      Outcome = "failed"
	OutcomeSchemaError Outcome = "schema_error"
)

// Record is one resolution pass as kept in the history.
type Record struct {
	ID          string              `json:"id"`
	RecordedAt  time.Time           `json:"recorded_at"`
	Command     string              `json:"command"`
	Mode        string              `json:"mode"`
	Features    []string            `json:"features"`
	Outcome     Outcome             `json:"outcome"`
	Options     int                 `json:"options"`
	Errors      int                 `json:"errors"`
	Warnings    int                 `json:"warnings"`
	Duration    time.Duration       `json:"duration"`
	Error       *string             `json:"error,omitempty"`
	Diagnostics []engine.Diagnostic `json:"diagnostics,omitempty"`
	// Values holds the resolved values keyed by path. ListResolutions leaves it empty.
	Values map[string]any `json:"values,omitempty"`
}

// NewRecord captures a finished resolution pass.
func NewRecord(command string, res *engine.Resolution, features engine.FeatureSet, took time.Duration) *Record {
	rec := &Record{
		ID:          uuid.NewString(),
		RecordedAt:  time.Now(),
		Command:     command,
		Mode:        res.Mode.String(),
		Features:    features.Names(),
		Outcome:     OutcomeSuccess,
		Options:     res.Config.Len(),
		Errors:      len(res.Errors()),
		Warnings:    len(res.Warnings()),
		Duration:    took,
		Diagnostics: res.Diagnostics,
		Values:      res.Config.Values(),
	}
	if err := res.Err(); err != nil {
		rec.Outcome = OutcomeFailed
		msg := err.Error()
		rec.Error = &msg
	}
	return rec
}

// NewSchemaErrorRecord captures a pass that stopped before resolving because
// the definitions were rejected.
func NewSchemaErrorRecord(command string, mode engine.Mode, features engine.FeatureSet, err error) *Record {
	msg := err.Error()
	return &Record{
		ID:         uuid.NewString(),
		RecordedAt: time.Now(),
		Command:    command,
		Mode:       mode.String(),
		Features:   features.Names(),
		Outcome:    OutcomeSchemaError,
		Error:      &msg,
	}
}

// Store keeps the resolution history of a project.
type Store interface {
	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
	HealthCheck(ctx context.Context) error

	RecordResolution(ctx context.Context, rec *Record) error
	GetResolution(ctx context.Context, id string) (*Record, error)
	ListResolutions(ctx context.Context, limit, offset int) ([]*Record, error)
	LatestResolution(ctx context.Context) (*Record, error)
	PruneResolutions(ctx context.Context, keep int) (int64, error)
}
