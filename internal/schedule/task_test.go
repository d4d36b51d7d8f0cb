package schedule

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{in: "2:30PM", hour: 14, minute: 30},
		{in: "2:30pm", hour: 14, minute: 30},
		{in: " 9:05AM ", hour: 9, minute: 5},
		{in: "12:00AM", hour: 0, minute: 0},
		{in: "12:00PM", hour: 12, minute: 0},
		{in: "11:59PM", hour: 23, minute: 59},
		{in: "14:30", wantErr: true},
		{in: "2:30", wantErr: true},
		{in: "2:70PM", wantErr: true},
		{in: "", wantErr: true},
		{in: "noon", wantErr: true},
	}
	for _, tc := range tests {
		h, m, err := ParseClock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseClock(%q): expected error, got %d:%d", tc.in, h, m)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseClock(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if h != tc.hour || m != tc.minute {
			t.Errorf("ParseClock(%q) = %d:%d, want %d:%d", tc.in, h, m, tc.hour, tc.minute)
		}
	}
}

func TestNewPeriodicTaskRejectsShortPeriod(t *testing.T) {
	t.Parallel()

	if _, err := NewPeriodicTask(1, Spec{Prompt: "x"}); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("period 1: expected ErrInvalidPeriod, got %v", err)
	}
	if _, err := NewPeriodicTask(0, Spec{Prompt: "x"}); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("period 0: expected ErrInvalidPeriod, got %v", err)
	}
	if _, err := NewPeriodicTask(-5, Spec{Prompt: "x"}); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("negative period: expected ErrInvalidPeriod, got %v", err)
	}
	if _, err := NewPeriodicTask(2, Spec{Prompt: "x"}); err != nil {
		t.Fatalf("period 2: unexpected error: %v", err)
	}
}

func at(hour, minute, sec int) time.Time {
	return time.Date(2026, 8, 26, hour, minute, sec, 0, time.UTC)
}

func TestAtTaskFiresOncePerMinute(t *testing.T) {
	t.Parallel()

	task, err := NewAtTask("2:30PM", Spec{Prompt: "report"})
	if err != nil {
		t.Fatalf("NewAtTask: %v", err)
	}

	// Poll sequence around the due minute: the first in-window observation
	// fires, later in-window polls do not, and leaving the window re-arms.
	steps := []struct {
		now  time.Time
		want bool
	}{
		{at(14, 29, 59), false},
		{at(14, 30, 0), true},
		{at(14, 30, 1), false},
		{at(14, 30, 59), false},
		{at(14, 31, 0), false},
	}
	for i, s := range steps {
		if got := task.ShouldActivate(s.now); got != s.want {
			t.Fatalf("step %d at %s: ShouldActivate = %v, want %v", i, s.now, got, s.want)
		}
	}

	// Next day, same minute: fires again.
	next := at(14, 30, 12).Add(24 * time.Hour)
	if !task.ShouldActivate(next) {
		t.Fatalf("expected re-fire on the next day's due minute")
	}
}

func TestAtTaskNoCatchUp(t *testing.T) {
	t.Parallel()

	task, err := NewAtTask("2:30PM", Spec{Prompt: "report"})
	if err != nil {
		t.Fatalf("NewAtTask: %v", err)
	}

	// The whole due minute is skipped (process asleep); polls resume after.
	if task.ShouldActivate(at(14, 29, 30)) {
		t.Fatalf("must not fire before the window")
	}
	if task.ShouldActivate(at(14, 31, 5)) {
		t.Fatalf("missed window must not be made up")
	}
}

func TestPeriodicTaskFiresOnMultiples(t *testing.T) {
	t.Parallel()

	task, err := NewPeriodicTask(60, Spec{Prompt: "tick"})
	if err != nil {
		t.Fatalf("NewPeriodicTask: %v", err)
	}

	base := time.Unix(1767225600, 0) // multiple of 60
	steps := []struct {
		now  time.Time
		want bool
	}{
		{base.Add(-1 * time.Second), false},
		{base, true},
		{base, false}, // double poll inside the same due second
		{base.Add(1 * time.Second), false},
		{base.Add(59 * time.Second), false},
		{base.Add(60 * time.Second), true},
	}
	for i, s := range steps {
		if got := task.ShouldActivate(s.now); got != s.want {
			t.Fatalf("step %d at unix %d: ShouldActivate = %v, want %v", i, s.now.Unix(), got, s.want)
		}
	}
}

func TestPeriodicTaskAlignsToEpochNotCreation(t *testing.T) {
	t.Parallel()

	task, err := NewPeriodicTask(300, Spec{Prompt: "tick"})
	if err != nil {
		t.Fatalf("NewPeriodicTask: %v", err)
	}

	// Firing instants are unix multiples of the period, independent of when
	// the task was created.
	if task.ShouldActivate(time.Unix(1767225601, 0)) {
		t.Fatalf("non-multiple must not fire")
	}
	if !task.ShouldActivate(time.Unix(1767225600, 0)) {
		t.Fatalf("unix multiple of period must fire")
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 50)

	tests := []struct {
		name string
		task func(t *testing.T) *Task
		want []string // substrings
	}{
		{
			name: "at task plain",
			task: func(t *testing.T) *Task {
				tk, err := NewAtTask("2:30PM", Spec{Prompt: "daily report"})
				if err != nil {
					t.Fatalf("NewAtTask: %v", err)
				}
				return tk
			},
			want: []string{`"daily report" at 2:30PM`},
		},
		{
			name: "periodic with bindings and model",
			task: func(t *testing.T) *Task {
				tk, err := NewPeriodicTask(120, Spec{
					Prompt:  "watch the feeds",
					Model:   "opus",
					Dir:     "/srv/jobs",
					Servers: []ServerBinding{{Name: "lookout"}, {Name: "mail"}},
					Allow:   []string{"lookout:", "Bash"},
				})
				if err != nil {
					t.Fatalf("NewPeriodicTask: %v", err)
				}
				return tk
			},
			want: []string{
				`"watch the feeds" every 120s`,
				"mcps=[lookout, mail]",
				"model=opus",
				"cwd=/srv/jobs",
				"allow=[lookout:, Bash]",
			},
		},
		{
			name: "allow star renders as all tools",
			task: func(t *testing.T) *Task {
				tk, err := NewPeriodicTask(60, Spec{Prompt: "p", Allow: []string{"*"}})
				if err != nil {
					t.Fatalf("NewPeriodicTask: %v", err)
				}
				return tk
			},
			want: []string{"allow=[all tools]"},
		},
		{
			name: "long prompt is previewed",
			task: func(t *testing.T) *Task {
				tk, err := NewPeriodicTask(60, Spec{Prompt: long})
				if err != nil {
					t.Fatalf("NewPeriodicTask: %v", err)
				}
				return tk
			},
			want: []string{`"` + long[:40] + `..."`},
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := tc.task(t).Describe()
			for _, sub := range tc.want {
				if !strings.Contains(got, sub) {
					t.Errorf("Describe() = %q, missing %q", got, sub)
				}
			}
		})
	}
}
