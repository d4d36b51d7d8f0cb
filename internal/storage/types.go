package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentsched/internal/schedule"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSON snapshot
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record modes. Stored as strings so snapshots stay readable and stable
// against enum reordering.
const (
	recordModeAt       = "at"
	recordModePeriodic = "periodic"
)

// TaskRecord is the schema-stable serialized form of a task. Server
// bindings keep their slice order so restored tasks present servers the way
// the operator attached them.
type TaskRecord struct {
	Mode          string                   `json:"mode"`
	Hour          int                      `json:"hour,omitempty"`
	Minute        int                      `json:"minute,omitempty"`
	PeriodSeconds int                      `json:"period_seconds,omitempty"`
	Prompt        string                   `json:"prompt"`
	Dir           string                   `json:"dir,omitempty"`
	Model         string                   `json:"model,omitempty"`
	Servers       []schedule.ServerBinding `json:"servers,omitempty"`
	Allow         []string                 `json:"allow,omitempty"`
}

// FromTask captures a task into its serialized form.
func FromTask(t *schedule.Task) TaskRecord {
	r := TaskRecord{
		Prompt:  t.Prompt,
		Dir:     t.Dir,
		Model:   t.Model,
		Servers: t.Servers,
		Allow:   t.Allow,
	}
	switch t.Mode {
	case schedule.ModePeriodic:
		r.Mode = recordModePeriodic
		r.PeriodSeconds = t.PeriodSeconds
	default:
		r.Mode = recordModeAt
		r.Hour = t.Hour
		r.Minute = t.Minute
	}
	return r
}

// ToTask validates the record and rebuilds the live task. The edge detector
// starts disarmed, so a restart inside a due window fires at most once.
func (r TaskRecord) ToTask() (*schedule.Task, error) {
	spec := schedule.Spec{
		Prompt:  r.Prompt,
		Dir:     r.Dir,
		Model:   r.Model,
		Servers: r.Servers,
		Allow:   r.Allow,
	}
	switch r.Mode {
	case recordModePeriodic:
		return schedule.NewPeriodicTask(r.PeriodSeconds, spec)
	case recordModeAt:
		if r.Hour < 0 || r.Hour > 23 || r.Minute < 0 || r.Minute > 59 {
			return nil, fmt.Errorf("invalid stored time %d:%02d", r.Hour, r.Minute)
		}
		t := &schedule.Task{
			Mode:    schedule.ModeAtTime,
			Hour:    r.Hour,
			Minute:  r.Minute,
			Prompt:  spec.Prompt,
			Dir:     spec.Dir,
			Model:   spec.Model,
			Servers: spec.Servers,
			Allow:   spec.Allow,
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown task mode %q", r.Mode)
	}
}

// Store is the persistence API used by the app. SaveTasks replaces the
// whole stored schedule; partial updates are not supported.
type Store interface {
	SaveTasks(ctx context.Context, tasks []TaskRecord) error
	LoadTasks(ctx context.Context) ([]TaskRecord, error)
	Close() error
}
