package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	logx "agentsched/pkg/logx"
)

// DefaultBinary is the agent CLI executable looked up on PATH.
const DefaultBinary = "claude"

// CLIBackend drives the claude CLI in non-interactive print mode and
// translates its stream-json output into Events. The CLI owns the agent
// conversation; this side only feeds flags in and reads events out.
type CLIBackend struct {
	Binary string
	Log    logx.Logger
}

func NewCLIBackend(binary string, log logx.Logger) *CLIBackend {
	if binary == "" {
		binary = DefaultBinary
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CLIBackend{Binary: binary, Log: log}
}

func (b *CLIBackend) Run(ctx context.Context, req Request) (<-chan Event, error) {
	args, cleanup, err := buildArgs(req)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, b.Binary, args...)
	cmd.Dir = req.Dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cleanup()
		return nil, err
	}
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("start %s: %w", b.Binary, err)
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer cleanup()

		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		sawResult := false
		for sc.Scan() {
			ev, ok := parseStreamLine(sc.Bytes())
			if !ok {
				continue
			}
			if ev.Kind == EventResult {
				sawResult = true
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				_ = cmd.Wait()
				return
			}
		}

		err := cmd.Wait()
		switch {
		case err != nil:
			events <- Event{Kind: EventError, Text: err.Error()}
		case !sawResult:
			events <- Event{Kind: EventError, Text: "stream ended without result"}
		}
	}()
	return events, nil
}

// buildArgs renders the CLI flags for a request. MCP servers go through a
// temp config file; cleanup removes it after the run.
func buildArgs(req Request) (args []string, cleanup func(), err error) {
	cleanup = func() {}

	args = []string{"-p", req.Prompt, "--output-format", "stream-json", "--verbose"}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.FallbackModel != "" {
		args = append(args, "--fallback-model", req.FallbackModel)
	}
	if req.PermissionMode != "" {
		args = append(args, "--permission-mode", req.PermissionMode)
	}
	if req.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(req.MaxTurns))
	}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(req.AllowedTools, ","))
	}

	if len(req.Servers) > 0 {
		servers := make(map[string]map[string]any, len(req.Servers))
		for _, b := range req.Servers {
			servers[b.Name] = b.Spec
		}
		data, merr := json.Marshal(map[string]any{"mcpServers": servers})
		if merr != nil {
			return nil, cleanup, merr
		}
		f, ferr := os.CreateTemp("", "agentsched-mcp-*.json")
		if ferr != nil {
			return nil, cleanup, ferr
		}
		path := f.Name()
		if _, werr := f.Write(data); werr != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return nil, cleanup, werr
		}
		if cerr := f.Close(); cerr != nil {
			_ = os.Remove(path)
			return nil, cleanup, cerr
		}
		cleanup = func() { _ = os.Remove(path) }
		args = append(args, "--mcp-config", path)
	}
	return args, cleanup, nil
}

// streamLine is the subset of the CLI's stream-json schema we care about.
type streamLine struct {
	Type    string `json:"type"`
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
	Result       string  `json:"result"`
	IsError      bool    `json:"is_error"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

func parseStreamLine(line []byte) (Event, bool) {
	if len(line) == 0 {
		return Event{}, false
	}
	var sl streamLine
	if err := json.Unmarshal(line, &sl); err != nil {
		return Event{}, false
	}
	switch sl.Type {
	case "assistant":
		var parts []string
		for _, c := range sl.Message.Content {
			if c.Type == "text" && c.Text != "" {
				parts = append(parts, c.Text)
			}
		}
		if len(parts) == 0 {
			return Event{}, false
		}
		return Event{Kind: EventText, Text: strings.Join(parts, "\n")}, true
	case "result":
		if sl.IsError {
			return Event{Kind: EventError, Text: sl.Result, CostUSD: sl.TotalCostUSD}, true
		}
		return Event{Kind: EventResult, Text: sl.Result, CostUSD: sl.TotalCostUSD}, true
	default:
		return Event{}, false
	}
}
