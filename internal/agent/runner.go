package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"agentsched/internal/config"
	"agentsched/internal/eventbus"
	"agentsched/internal/permit"
	"agentsched/internal/runtime/supervisor"
	"agentsched/internal/schedule"
	logx "agentsched/pkg/logx"
)

// contextTimeLayout mirrors a human-readable timestamp with weekday, e.g.
// "Tuesday, August 26, 2025, 02:30 PM".
const contextTimeLayout = "Monday, January 02, 2006, 03:04 PM"

const defaultChunkLogPerSec = 2

// Runner turns scheduler activations into agent runs. Every activation gets
// its own supervised goroutine, so a slow or wedged run never blocks the
// poll loop, and a failed run only logs; the task stays eligible for its
// next due window.
type Runner struct {
	backend  Backend
	settings *config.Settings
	sup      *supervisor.Supervisor
	bus      eventbus.Bus
	log      logx.Logger

	// chunkLogPerSec caps log lines produced from streamed output per run.
	chunkLogPerSec rate.Limit

	nowFn func() time.Time
}

type RunnerOption func(*Runner)

// WithChunkLogRate overrides how many output chunks per second are logged.
func WithChunkLogRate(perSec int) RunnerOption {
	return func(r *Runner) {
		if perSec > 0 {
			r.chunkLogPerSec = rate.Limit(perSec)
		}
	}
}

func WithRunnerNow(fn func() time.Time) RunnerOption {
	return func(r *Runner) {
		if fn != nil {
			r.nowFn = fn
		}
	}
}

func NewRunner(backend Backend, settings *config.Settings, sup *supervisor.Supervisor, bus eventbus.Bus, log logx.Logger, opts ...RunnerOption) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Runner{
		backend:        backend,
		settings:       settings,
		sup:            sup,
		bus:            bus,
		log:            log,
		chunkLogPerSec: defaultChunkLogPerSec,
		nowFn:          time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Dispatch starts an agent run for the task and returns immediately.
func (r *Runner) Dispatch(t *schedule.Task) {
	desc := t.Describe()
	r.sup.Go("agent-run", func(ctx context.Context) error {
		r.run(ctx, t, desc)
		return nil
	})
}

// RunNow executes the task synchronously. Used by the run command.
func (r *Runner) RunNow(ctx context.Context, t *schedule.Task) error {
	return r.runOnce(ctx, t, t.Describe())
}

func (r *Runner) run(ctx context.Context, t *schedule.Task, desc string) {
	if err := r.runOnce(ctx, t, desc); err != nil {
		r.log.Error("task run failed", logx.String("task", desc), logx.Err(err))
		if r.bus != nil {
			r.bus.Publish(eventbus.Event{
				Type: eventbus.TypeTaskFailed,
				Data: eventbus.FinishData{Desc: desc, Err: err.Error()},
			})
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, t *schedule.Task, desc string) error {
	req := r.buildRequest(t)

	r.log.Info("task starting", logx.String("task", desc))
	if len(req.AllowedTools) > 0 {
		r.log.Info("pre-authorized tools", logx.Strings("tools", req.AllowedTools))
	} else if len(t.Allow) > 0 {
		r.log.Info("pre-authorized tools", logx.String("tools", "unrestricted"))
	}

	events, err := r.backend.Run(ctx, req)
	if err != nil {
		return err
	}

	limiter := rate.NewLimiter(r.chunkLogPerSec, 1)
	var (
		finished bool
		cost     float64
		runErr   error
		dropped  int
	)
	for ev := range events {
		switch ev.Kind {
		case EventText:
			if limiter.Allow() {
				r.log.Info("agent output", logx.String("text", ev.Text))
			} else {
				dropped++
			}
		case EventResult:
			finished = true
			cost = ev.CostUSD
		case EventError:
			runErr = fmt.Errorf("backend: %s", ev.Text)
		}
	}
	if dropped > 0 {
		r.log.Debug("agent output chunks not logged", logx.Int("dropped", dropped))
	}
	if runErr != nil {
		return runErr
	}
	if !finished {
		return fmt.Errorf("backend: run ended without result")
	}

	r.log.Info("task completed",
		logx.String("task", desc),
		logx.String("cost_usd", fmt.Sprintf("%.4f", cost)))
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{
			Type: eventbus.TypeTaskFinished,
			Data: eventbus.FinishData{Desc: desc, CostUSD: cost},
		})
	}
	return nil
}

// buildRequest merges the task's own options with settings defaults and
// prepends the runtime context to the prompt.
func (r *Runner) buildRequest(t *schedule.Task) Request {
	req := Request{
		Prompt:       r.runtimeContext(t) + t.Prompt,
		Dir:          t.Dir,
		Model:        t.Model,
		Servers:      t.Servers,
		AllowedTools: permit.SDKTools(t.Allow),
	}
	if r.settings != nil {
		if req.Model == "" {
			req.Model = r.settings.GetString("model")
		}
		req.FallbackModel = r.settings.GetString("fallback_model")
		req.PermissionMode = r.settings.GetString("permission_mode")
		if n, ok := r.settings.GetInt("max_turns"); ok {
			req.MaxTurns = n
		}
		if f, ok := r.settings.GetFloat("max_budget_usd"); ok {
			req.MaxBudgetUSD = f
		}
	}
	return req
}

// runtimeContext renders the preamble injected before every prompt so the
// agent knows when and where it is running.
func (r *Runner) runtimeContext(t *schedule.Task) string {
	var b strings.Builder
	b.WriteString("[Context]\n")
	b.WriteString("Current time: " + r.nowFn().Format(contextTimeLayout) + "\n")
	if t.Dir != "" {
		b.WriteString("Working directory: " + t.Dir + "\n")
	}
	if names := t.ServerNames(); len(names) > 0 {
		b.WriteString("Available MCPs: " + strings.Join(names, ", ") + "\n")
	}
	b.WriteString("\n[Task]\n")
	return b.String()
}
