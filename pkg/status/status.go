// Package status pushes run snapshots to external observers. Sinks are
// advisory: a failed push is reported to the caller, which logs it and
// carries on.
package status

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/gameforge/pkg/state"
)

// Snapshot is the externally visible summary of a run after a stage.
type Snapshot struct {
	RunID           string    `json:"run_id"`
	Title           string    `json:"title"`
	Stage           string    `json:"stage"`
	Status          string    `json:"status"`
	DesignIteration int       `json:"design_iteration"`
	CodeIteration   int       `json:"code_iteration"`
	DesignApproved  bool      `json:"design_approved"`
	ShipApproved    bool      `json:"ship_approved"`
	Errors          []string  `json:"errors"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// FromState builds a snapshot of s taken after stage ran.
func FromState(stage string, s state.State) Snapshot {
	return Snapshot{
		RunID:           s.RunID,
		Title:           s.Input.Title(),
		Stage:           stage,
		Status:          string(s.Status),
		DesignIteration: s.DesignIteration,
		CodeIteration:   s.CodeIteration,
		DesignApproved:  s.DesignApproved,
		ShipApproved:    s.ShipApproved,
		Errors:          append([]string{}, s.Errors...),
		UpdatedAt:       time.Now().UTC(),
	}
}

// Sink receives run snapshots.
type Sink interface {
	Push(ctx context.Context, snap Snapshot) error
}

// Nop discards snapshots.
type Nop struct{}

func (Nop) Push(context.Context, Snapshot) error { return nil }

// LogSink writes snapshots to a logger.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Push(_ context.Context, snap Snapshot) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("run status",
		zap.String("run_id", snap.RunID),
		zap.String("stage", snap.Stage),
		zap.String("status", snap.Status),
		zap.Int("design_iteration", snap.DesignIteration),
		zap.Int("code_iteration", snap.CodeIteration),
		zap.Int("errors", len(snap.Errors)),
	)
	return nil
}

// Multi pushes to every sink and joins their errors.
type Multi []Sink

func (m Multi) Push(ctx context.Context, snap Snapshot) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Push(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
