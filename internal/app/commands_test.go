package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agentsched/internal/agent"
	"agentsched/internal/config"
	"agentsched/internal/eventbus"
	"agentsched/internal/mcpdir"
	"agentsched/internal/runtime/supervisor"
	"agentsched/internal/schedule"
	"agentsched/internal/shell"
	"agentsched/internal/storage"
	logx "agentsched/pkg/logx"
)

const claudeFixture = `{
  "projects": {
    "/home/u/alpha": {
      "mcpServers": {
        "lookout": {"type": "sse", "url": "https://alpha.example/sse"},
        "mail": {"type": "stdio", "command": "mail-mcp"}
      }
    }
  }
}`

type nullBackend struct{}

func (nullBackend) Run(ctx context.Context, req agent.Request) (<-chan agent.Event, error) {
	ch := make(chan agent.Event, 1)
	ch <- agent.Event{Kind: agent.EventResult}
	close(ch)
	return ch, nil
}

// testApp builds an App with in-memory pieces and a captured shell.
func testApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()

	claudePath := filepath.Join(dir, "claude.json")
	if err := os.WriteFile(claudePath, []byte(claudeFixture), 0o600); err != nil {
		t.Fatalf("write claude fixture: %v", err)
	}

	store, err := storage.Open(storage.Config{
		Driver: "file",
		Path:   filepath.Join(dir, "schedule.json"),
	}, logx.Logger{})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}

	var out bytes.Buffer
	a := &App{
		log:      logx.Nop(),
		bus:      eventbus.New(),
		registry: schedule.NewRegistry(),
		dir:      mcpdir.New(claudePath, logx.Logger{}),
		settings: config.NewSettings(filepath.Join(dir, "settings.json"), logx.Logger{}),
		store:    store,
		grace:    time.Second,
	}
	a.sup = supervisor.New(context.Background())
	a.runner = agent.NewRunner(nullBackend{}, a.settings, a.sup, a.bus, logx.Logger{})
	a.sh = shell.New(strings.NewReader(""), &out)
	a.registerCommands()
	t.Cleanup(func() {
		a.sup.Cancel()
		a.sup.Wait(time.Second)
		_ = store.Close()
	})
	return a, &out
}

func TestCmdScheduleBindsServersAndAllow(t *testing.T) {
	t.Parallel()

	a, out := testApp(t)
	ctx := context.Background()

	err := a.cmdSchedule(ctx, []string{"2:30PM", "--mcps", "lookout", "--allow", "Send", "dad", "joke"})
	if err != nil {
		t.Fatalf("cmdSchedule: %v", err)
	}

	if a.registry.Len() != 1 {
		t.Fatalf("registry len = %d", a.registry.Len())
	}
	task, _ := a.registry.Get(0)
	if task.Prompt != "Send dad joke" {
		t.Errorf("prompt = %q", task.Prompt)
	}
	if task.Hour != 14 || task.Minute != 30 {
		t.Errorf("time = %d:%d", task.Hour, task.Minute)
	}
	if len(task.Servers) != 1 || task.Servers[0].Name != "lookout" {
		t.Errorf("servers = %+v", task.Servers)
	}
	// Bare --allow expands to the bound server names.
	if len(task.Allow) != 1 || task.Allow[0] != "lookout" {
		t.Errorf("allow = %v", task.Allow)
	}
	if !strings.Contains(out.String(), "Scheduled:") {
		t.Errorf("no confirmation printed: %q", out.String())
	}
}

func TestCmdScheduleExplicitAllowPatterns(t *testing.T) {
	t.Parallel()

	a, _ := testApp(t)

	err := a.cmdSchedule(context.Background(),
		[]string{"9:00AM", "--mcps", "lookout", "--allow", "lookout:read_inbox,Bash", "Check", "mail"})
	if err != nil {
		t.Fatalf("cmdSchedule: %v", err)
	}
	task, _ := a.registry.Get(0)
	want := []string{"lookout:read_inbox", "Bash"}
	if len(task.Allow) != 2 || task.Allow[0] != want[0] || task.Allow[1] != want[1] {
		t.Errorf("allow = %v, want %v", task.Allow, want)
	}
}

func TestCmdScheduleUnknownServerWarns(t *testing.T) {
	t.Parallel()

	a, out := testApp(t)

	err := a.cmdSchedule(context.Background(), []string{"9:00AM", "--mcps", "ghost", "Hello"})
	if err != nil {
		t.Fatalf("cmdSchedule: %v", err)
	}
	task, _ := a.registry.Get(0)
	if len(task.Servers) != 0 {
		t.Errorf("servers = %+v, want none", task.Servers)
	}
	if !strings.Contains(out.String(), "unknown MCPs: ghost") {
		t.Errorf("missing warning: %q", out.String())
	}
}

func TestCmdScheduleBadTime(t *testing.T) {
	t.Parallel()

	a, _ := testApp(t)
	if err := a.cmdSchedule(context.Background(), []string{"25:00", "Hello"}); err == nil {
		t.Fatalf("expected error for invalid clock")
	}
	if a.registry.Len() != 0 {
		t.Fatalf("task added despite error")
	}
}

func TestCmdSchedulePromptFile(t *testing.T) {
	t.Parallel()

	a, _ := testApp(t)
	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("  Long prompt from file.\n"), 0o600); err != nil {
		t.Fatalf("write prompt: %v", err)
	}

	err := a.cmdSchedule(context.Background(), []string{"10:00AM", "--prompt-file", path})
	if err != nil {
		t.Fatalf("cmdSchedule: %v", err)
	}
	task, _ := a.registry.Get(0)
	if task.Prompt != "Long prompt from file." {
		t.Errorf("prompt = %q", task.Prompt)
	}

	if err := a.cmdSchedule(context.Background(), []string{"10:00AM", "--prompt-file", path + ".nope"}); err == nil {
		t.Fatalf("expected error for missing prompt file")
	}
}

func TestCmdPeriodic(t *testing.T) {
	t.Parallel()

	a, _ := testApp(t)
	ctx := context.Background()

	if err := a.cmdPeriodic(ctx, []string{"300", "Poll", "the", "feeds"}); err != nil {
		t.Fatalf("cmdPeriodic: %v", err)
	}
	task, _ := a.registry.Get(0)
	if task.Mode != schedule.ModePeriodic || task.PeriodSeconds != 300 {
		t.Errorf("task = %+v", task)
	}

	if err := a.cmdPeriodic(ctx, []string{"1", "too", "fast"}); err == nil {
		t.Fatalf("expected error for 1-second period")
	}
	if err := a.cmdPeriodic(ctx, []string{"soon", "x"}); err == nil {
		t.Fatalf("expected error for non-integer period")
	}
}

func TestCmdListAndUnschedule(t *testing.T) {
	t.Parallel()

	a, out := testApp(t)
	ctx := context.Background()

	if err := a.cmdList(ctx, nil); err != nil {
		t.Fatalf("cmdList empty: %v", err)
	}
	if !strings.Contains(out.String(), "No tasks scheduled.") {
		t.Errorf("empty message missing: %q", out.String())
	}

	if err := a.cmdPeriodic(ctx, []string{"60", "first"}); err != nil {
		t.Fatalf("cmdPeriodic: %v", err)
	}
	if err := a.cmdPeriodic(ctx, []string{"120", "second"}); err != nil {
		t.Fatalf("cmdPeriodic: %v", err)
	}

	out.Reset()
	if err := a.cmdList(ctx, nil); err != nil {
		t.Fatalf("cmdList: %v", err)
	}
	if !strings.Contains(out.String(), `0> "first" every 60s`) {
		t.Errorf("list output = %q", out.String())
	}

	out.Reset()
	if err := a.cmdList(ctx, []string{"1"}); err != nil {
		t.Fatalf("cmdList 1: %v", err)
	}
	if !strings.Contains(out.String(), "Schedule: every 120s") {
		t.Errorf("details output = %q", out.String())
	}

	if err := a.cmdUnschedule(ctx, []string{"0"}); err != nil {
		t.Fatalf("cmdUnschedule: %v", err)
	}
	// Indices shifted: former index 1 is now 0.
	task, _ := a.registry.Get(0)
	if task.Prompt != "second" {
		t.Errorf("remaining task = %q", task.Prompt)
	}
	if err := a.cmdUnschedule(ctx, []string{"5"}); err == nil {
		t.Fatalf("expected error for out-of-range index")
	}
}

func TestCmdConfig(t *testing.T) {
	t.Parallel()

	a, out := testApp(t)
	ctx := context.Background()

	if err := a.cmdConfig(ctx, []string{"model", "sonnet"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := a.cmdConfig(ctx, []string{"max_turns", "many"}); err == nil {
		t.Fatalf("expected coercion error")
	}
	if err := a.cmdConfig(ctx, []string{"nope", "x"}); err == nil {
		t.Fatalf("expected unknown-key error")
	}

	out.Reset()
	if err := a.cmdConfig(ctx, nil); err != nil {
		t.Fatalf("show all: %v", err)
	}
	if !strings.Contains(out.String(), "model") || !strings.Contains(out.String(), "Unset (using SDK defaults)") {
		t.Errorf("config output = %q", out.String())
	}

	if err := a.cmdConfig(ctx, []string{"model", "--clear"}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, set := a.settings.Get("model"); set {
		t.Fatalf("model survived clear")
	}
}

func TestCmdSaveReloadRoundTrip(t *testing.T) {
	t.Parallel()

	a, _ := testApp(t)
	ctx := context.Background()

	if err := a.cmdPeriodic(ctx, []string{"60", "persist", "me"}); err != nil {
		t.Fatalf("cmdPeriodic: %v", err)
	}
	if err := a.cmdSave(ctx, nil); err != nil {
		t.Fatalf("cmdSave: %v", err)
	}

	a.registry.Replace(nil)
	if err := a.cmdReload(ctx, nil); err != nil {
		t.Fatalf("cmdReload: %v", err)
	}
	if a.registry.Len() != 1 {
		t.Fatalf("registry len after reload = %d", a.registry.Len())
	}
	task, _ := a.registry.Get(0)
	if task.Prompt != "persist me" {
		t.Errorf("restored prompt = %q", task.Prompt)
	}
}

func TestCmdSavePrompt(t *testing.T) {
	t.Parallel()

	a, out := testApp(t)
	ctx := context.Background()

	if err := a.cmdPeriodic(ctx, []string{"60", "the", "prompt", "text"}); err != nil {
		t.Fatalf("cmdPeriodic: %v", err)
	}
	path := filepath.Join(t.TempDir(), "saved.txt")
	if err := a.cmdSavePrompt(ctx, []string{"0", path}); err != nil {
		t.Fatalf("cmdSavePrompt: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved prompt: %v", err)
	}
	if string(raw) != "the prompt text" {
		t.Errorf("saved prompt = %q", raw)
	}
	if !strings.Contains(out.String(), "Saved prompt to") {
		t.Errorf("confirmation missing: %q", out.String())
	}

	if err := a.cmdSavePrompt(ctx, []string{"7", path}); err == nil {
		t.Fatalf("expected error for bad index")
	}
}

func TestCmdMCPs(t *testing.T) {
	t.Parallel()

	a, out := testApp(t)

	if err := a.cmdMCPs(context.Background(), nil); err != nil {
		t.Fatalf("cmdMCPs: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Available MCP servers (2):", "lookout (sse)", "mail (stdio)", "mcps --verbose"} {
		if !strings.Contains(text, want) {
			t.Errorf("mcps output missing %q:\n%s", want, text)
		}
	}

	out.Reset()
	if err := a.cmdMCPs(context.Background(), []string{"--verbose"}); err != nil {
		t.Fatalf("cmdMCPs verbose: %v", err)
	}
	if !strings.Contains(out.String(), "Source: /home/u/alpha") {
		t.Errorf("verbose output missing source: %q", out.String())
	}
}

func TestResolveServersProjectMerge(t *testing.T) {
	t.Parallel()

	a, _ := testApp(t)

	// Working directory matches the fixture project: its servers are merged
	// in, without overriding explicitly named ones.
	bindings := a.resolveServers([]string{"lookout"}, "/home/u/alpha")
	if len(bindings) != 2 {
		t.Fatalf("bindings = %+v", bindings)
	}
	if bindings[0].Name != "lookout" {
		t.Errorf("named server must come first: %+v", bindings)
	}
	if bindings[1].Name != "mail" {
		t.Errorf("project server missing: %+v", bindings)
	}
	if url, _ := bindings[0].Spec["url"].(string); url != "https://alpha.example/sse" {
		t.Errorf("named binding lost its spec: %+v", bindings[0])
	}
}
