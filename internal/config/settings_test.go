package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	logx "agentsched/pkg/logx"
)

func newTestSettings(t *testing.T) *Settings {
	t.Helper()
	return NewSettings(filepath.Join(t.TempDir(), "settings.json"), logx.Logger{})
}

func TestSettingsSetCoercion(t *testing.T) {
	t.Parallel()

	s := newTestSettings(t)

	if err := s.Set("model", "sonnet"); err != nil {
		t.Fatalf("Set model: %v", err)
	}
	if err := s.Set("max_turns", "25"); err != nil {
		t.Fatalf("Set max_turns: %v", err)
	}
	if err := s.Set("max_budget_usd", "1.50"); err != nil {
		t.Fatalf("Set max_budget_usd: %v", err)
	}

	if got := s.GetString("model"); got != "sonnet" {
		t.Errorf("model = %q, want sonnet", got)
	}
	if n, ok := s.GetInt("max_turns"); !ok || n != 25 {
		t.Errorf("max_turns = (%d, %v), want (25, true)", n, ok)
	}
	if f, ok := s.GetFloat("max_budget_usd"); !ok || f != 1.5 {
		t.Errorf("max_budget_usd = (%v, %v), want (1.5, true)", f, ok)
	}
}

func TestSettingsRejectsUnknownKey(t *testing.T) {
	t.Parallel()

	s := newTestSettings(t)

	err := s.Set("temperature", "0.7")
	if err == nil {
		t.Fatalf("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "max_budget_usd") {
		t.Errorf("error should list valid keys: %v", err)
	}
	if err := s.Clear("temperature"); err == nil {
		t.Fatalf("Clear unknown key must fail")
	}
}

func TestSettingsRejectsBadCoercion(t *testing.T) {
	t.Parallel()

	s := newTestSettings(t)

	if err := s.Set("max_turns", "many"); err == nil {
		t.Fatalf("expected coercion error for max_turns=many")
	}
	if err := s.Set("max_budget_usd", "cheap"); err == nil {
		t.Fatalf("expected coercion error for max_budget_usd=cheap")
	}
	// Failed sets leave nothing behind.
	if _, ok := s.Get("max_turns"); ok {
		t.Fatalf("failed Set must not store a value")
	}
}

func TestSettingsClear(t *testing.T) {
	t.Parallel()

	s := newTestSettings(t)
	if err := s.Set("model", "opus"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Clear("model"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := s.Get("model"); ok {
		t.Fatalf("value survived Clear")
	}
	// Clearing an unset schema key is fine.
	if err := s.Clear("model"); err != nil {
		t.Fatalf("Clear unset: %v", err)
	}
}

func TestSettingsPersistAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")

	first := NewSettings(path, logx.Logger{})
	if err := first.Set("permission_mode", "acceptEdits"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := first.Set("max_turns", "10"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	second := NewSettings(path, logx.Logger{})
	if got := second.GetString("permission_mode"); got != "acceptEdits" {
		t.Errorf("permission_mode after reopen = %q", got)
	}
	if n, ok := second.GetInt("max_turns"); !ok || n != 10 {
		t.Errorf("max_turns after reopen = (%d, %v)", n, ok)
	}
}

func TestSettingsDropsUnknownKeysOnLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.json")
	body := `{"model": "sonnet", "legacy_key": true}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := NewSettings(path, logx.Logger{})
	if got := s.GetString("model"); got != "sonnet" {
		t.Errorf("model = %q", got)
	}
	if _, ok := s.Get("legacy_key"); ok {
		t.Errorf("unknown key must be dropped on load")
	}
	all := s.All()
	if len(all) != 1 {
		t.Errorf("All() = %v, want single entry", all)
	}
}
