package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mode selects how a task's due window is computed.
type Mode int

const (
	// ModeAtTime fires once per day, during the configured wall-clock minute.
	ModeAtTime Mode = iota
	// ModePeriodic fires whenever unix time is a multiple of the period.
	ModePeriodic
)

// MinPeriodSeconds is the smallest accepted period. A 1-second period can
// never establish a false edge between polls at >=1 Hz, so the edge detector
// would fire on every tick; it is rejected at construction.
const MinPeriodSeconds = 2

// clockLayout parses 12-hour clock strings like "2:30PM".
const clockLayout = "3:04PM"

// ErrInvalidPeriod is returned when a periodic task is requested with a
// period below MinPeriodSeconds.
var ErrInvalidPeriod = errors.New("period must be at least 2 seconds")

// ServerBinding names one capability server bound to a task together with
// its opaque, backend-specific connection descriptor. Bindings keep the
// order in which they were attached.
type ServerBinding struct {
	Name string         `json:"name"`
	Spec map[string]any `json:"spec,omitempty"`
}

// Spec carries the non-timing fields shared by both task modes.
type Spec struct {
	Prompt  string
	Dir     string // optional working directory for the agent
	Model   string // optional per-task model override
	Servers []ServerBinding
	Allow   []string // permission patterns; empty = nothing pre-authorized
}

// Task is the schedulable unit. It is owned by the Registry; the only
// mutation after construction is the fired flag, toggled by ShouldActivate
// while the registry lock is held.
//
// A Task carries no handle to a running job: each activation spawns an
// independent, fire-and-forget execution.
type Task struct {
	Mode Mode

	// Hour/Minute are the due minute for ModeAtTime.
	Hour   int
	Minute int

	// PeriodSeconds is the interval for ModePeriodic.
	PeriodSeconds int

	Prompt  string
	Dir     string
	Model   string
	Servers []ServerBinding
	Allow   []string

	// fired is the activation-edge detector: set on the first poll inside a
	// due window, cleared on the first poll outside it.
	fired bool
}

// ParseClock parses a 12-hour clock string with AM/PM suffix ("2:30PM").
func ParseClock(s string) (hour, minute int, err error) {
	tm, err := time.Parse(clockLayout, strings.ToUpper(strings.TrimSpace(s)))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MMAM/PM (e.g. 2:30PM)", s)
	}
	return tm.Hour(), tm.Minute(), nil
}

// NewAtTask builds a task that fires at a fixed wall-clock time each day.
func NewAtTask(clock string, spec Spec) (*Task, error) {
	h, m, err := ParseClock(clock)
	if err != nil {
		return nil, err
	}
	t := newTask(spec)
	t.Mode = ModeAtTime
	t.Hour = h
	t.Minute = m
	return t, nil
}

// NewPeriodicTask builds a task that fires every periodSeconds seconds.
func NewPeriodicTask(periodSeconds int, spec Spec) (*Task, error) {
	if periodSeconds < MinPeriodSeconds {
		return nil, ErrInvalidPeriod
	}
	t := newTask(spec)
	t.Mode = ModePeriodic
	t.PeriodSeconds = periodSeconds
	return t, nil
}

func newTask(spec Spec) *Task {
	return &Task{
		Prompt:  spec.Prompt,
		Dir:     spec.Dir,
		Model:   spec.Model,
		Servers: spec.Servers,
		Allow:   spec.Allow,
	}
}

// ShouldActivate reports whether the task is due right now and has not fired
// in the current window yet. It must be called under the registry lock: it
// flips the edge detector as a side effect.
//
// The predicate stays true for the whole due minute/second; exactly the first
// observation returns true. The detector re-arms only after a poll where the
// predicate is false, so double-polling inside one window never double-fires.
func (t *Task) ShouldActivate(now time.Time) bool {
	if !t.dueAt(now) {
		t.fired = false
		return false
	}
	if t.fired {
		return false
	}
	t.fired = true
	return true
}

func (t *Task) dueAt(now time.Time) bool {
	switch t.Mode {
	case ModeAtTime:
		return now.Hour() == t.Hour && now.Minute() == t.Minute
	case ModePeriodic:
		if t.PeriodSeconds < MinPeriodSeconds {
			// Not constructible via NewPeriodicTask; treat as never due.
			return false
		}
		return now.Unix()%int64(t.PeriodSeconds) == 0
	default:
		return false
	}
}

// Clock formats the due time of an at-time task ("2:30PM").
func (t *Task) Clock() string {
	return time.Date(0, 1, 1, t.Hour, t.Minute, 0, 0, time.UTC).Format(clockLayout)
}

// ServerNames lists bound capability servers in binding order.
func (t *Task) ServerNames() []string {
	if len(t.Servers) == 0 {
		return nil
	}
	names := make([]string, 0, len(t.Servers))
	for _, b := range t.Servers {
		names = append(names, b.Name)
	}
	return names
}

// Describe renders a one-line human summary used by list output and
// activation logs.
func (t *Task) Describe() string {
	preview := t.Prompt
	if len(preview) > 40 {
		preview = preview[:40] + "..."
	}

	var suffix []string
	if names := t.ServerNames(); len(names) > 0 {
		suffix = append(suffix, "mcps=["+strings.Join(names, ", ")+"]")
	}
	if t.Model != "" {
		suffix = append(suffix, "model="+t.Model)
	}
	if t.Dir != "" {
		suffix = append(suffix, "cwd="+t.Dir)
	}
	if len(t.Allow) > 0 {
		if len(t.Allow) == 1 && t.Allow[0] == "*" {
			suffix = append(suffix, "allow=[all tools]")
		} else {
			suffix = append(suffix, "allow=["+strings.Join(t.Allow, ", ")+"]")
		}
	}

	tail := ""
	if len(suffix) > 0 {
		tail = " (" + strings.Join(suffix, ", ") + ")"
	}

	if t.Mode == ModePeriodic {
		return fmt.Sprintf("%q every %ds%s", preview, t.PeriodSeconds, tail)
	}
	return fmt.Sprintf("%q at %s%s", preview, t.Clock(), tail)
}
