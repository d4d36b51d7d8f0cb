package agent

import (
	"context"

	"agentsched/internal/schedule"
)

// EventKind classifies backend stream events.
type EventKind int

const (
	// EventText is a chunk of assistant output.
	EventText EventKind = iota
	// EventResult is the terminal event carrying the run cost.
	EventResult
	// EventError reports a backend-side failure.
	EventError
)

// Event is one item of a backend's output stream.
type Event struct {
	Kind    EventKind
	Text    string
	CostUSD float64
}

// Request describes a single agent run.
type Request struct {
	Prompt string
	Dir    string
	Model  string

	// Servers are the MCP servers handed to the agent, in binding order.
	Servers []schedule.ServerBinding

	// AllowedTools restricts which tools the agent may use without asking.
	// Nil means unrestricted.
	AllowedTools []string

	// Execution defaults from the settings store.
	FallbackModel  string
	PermissionMode string
	MaxTurns       int
	MaxBudgetUSD   float64
}

// Backend runs one agent conversation. The returned channel is closed when
// the run ends; the terminal Event (result or error) arrives before close.
type Backend interface {
	Run(ctx context.Context, req Request) (<-chan Event, error)
}
