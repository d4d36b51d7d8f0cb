package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	logx "agentsched/pkg/logx"
)

// DefaultSettingsPath is where runtime settings live unless the daemon
// config points elsewhere.
const DefaultSettingsPath = "claude_scheduler_config.json"

// settingKind is the coercion target for a settings value.
type settingKind int

const (
	kindString settingKind = iota
	kindInt
	kindFloat
)

type settingDef struct {
	kind settingKind
	desc string
}

// settingsSchema enumerates the accepted runtime settings. These are the
// global defaults for task execution; per-task flags override them.
var settingsSchema = map[string]settingDef{
	"model":           {kindString, "Default model (e.g. sonnet, claude-sonnet-4-5)"},
	"fallback_model":  {kindString, "Fallback model if primary fails"},
	"permission_mode": {kindString, "Permission mode (default, acceptEdits, plan, bypassPermissions)"},
	"max_turns":       {kindInt, "Maximum conversation turns per task"},
	"max_budget_usd":  {kindFloat, "Maximum budget in USD per task"},
}

// SettingKeys lists the schema keys in sorted order.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingsSchema))
	for k := range settingsSchema {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DescribeSetting returns the help text for a schema key.
func DescribeSetting(key string) (string, bool) {
	def, ok := settingsSchema[key]
	if !ok {
		return "", false
	}
	return def.desc, true
}

// Settings is the schema-validated key/value store of execution defaults,
// persisted as a flat JSON object. Unknown keys in the file are dropped on
// load; unknown keys in Set/Clear are errors.
type Settings struct {
	mu     sync.Mutex
	path   string
	log    logx.Logger
	values map[string]any
}

func NewSettings(path string, log logx.Logger) *Settings {
	if path == "" {
		path = DefaultSettingsPath
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Settings{path: path, log: log, values: map[string]any{}}
	s.load()
	return s
}

func (s *Settings) load() {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		s.log.Warn("settings load failed", logx.String("path", s.path), logx.Err(err))
		return
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		s.log.Warn("settings file corrupt", logx.String("path", s.path), logx.Err(err))
		return
	}
	for key, value := range data {
		if _, ok := settingsSchema[key]; ok {
			s.values[key] = value
		}
	}
}

func (s *Settings) save() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, append(data, '\n'), 0o600)
}

func unknownKeyError(key string) error {
	return fmt.Errorf("unknown setting: %s (valid: %s)", key, strings.Join(SettingKeys(), ", "))
}

// Get returns the stored value for key, or (nil, false) when unset.
func (s *Settings) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// GetString returns the string value for key when set.
func (s *Settings) GetString(key string) string {
	if v, ok := s.Get(key); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// GetInt returns the int value for key when set. JSON numbers decode as
// float64, so both forms are accepted.
func (s *Settings) GetInt(key string) (int, bool) {
	v, ok := s.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// GetFloat returns the float value for key when set.
func (s *Settings) GetFloat(key string) (float64, bool) {
	v, ok := s.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// Set validates key against the schema, coerces the raw string to the
// schema type, and persists.
func (s *Settings) Set(key, raw string) error {
	def, ok := settingsSchema[key]
	if !ok {
		return unknownKeyError(key)
	}

	var value any
	switch def.kind {
	case kindInt:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected int, got %q", key, raw)
		}
		value = n
	case kindFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected float, got %q", key, raw)
		}
		value = f
	default:
		value = raw
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.save()
}

// Clear removes key so the backend default applies again.
func (s *Settings) Clear(key string) error {
	if _, ok := settingsSchema[key]; !ok {
		return unknownKeyError(key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return s.save()
}

// All returns a copy of the stored settings.
func (s *Settings) All() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
