package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"agentsched/internal/config"
	"agentsched/internal/permit"
	"agentsched/internal/schedule"
	"agentsched/internal/shell"
)

func (a *App) registerCommands() {
	a.sh.SetBanner(
		"Claude Scheduler",
		"========================================",
		"Commands: schedule, periodic, list, run, unschedule, config, save-prompt, save, reload, mcps, help, exit",
		"Options:  --mcps name1,name2  --model <name>  --cwd /path  --allow [patterns]",
		"",
	)

	a.sh.Register(shell.Command{
		Name:    "schedule",
		Summary: "Schedule a task at a daily time",
		Usage: strings.Join([]string{
			"Usage: schedule <HH:MMAM/PM> [options] <prompt...>",
			"       schedule <HH:MMAM/PM> [options] --prompt-file <path>",
			"",
			"Options:",
			"  --mcps name1,name2     Load named MCP servers",
			"  --model <name>         Model override (e.g. sonnet, opus)",
			"  --cwd /path            Working directory for the agent",
			"  --prompt-file <path>   Read the prompt from a file",
			"  --allow                Pre-authorize all loaded MCPs",
			"  --allow patterns       Pre-authorize specific tools",
			"",
			"Patterns:",
			"  lookout:               All tools from the lookout MCP",
			"  lookout:send_mail      One specific MCP tool",
			"  lookout:mail_*         MCP tool wildcard",
			"  Bash,Edit,Write,Read   Built-in tools",
			"",
			"Examples:",
			"  schedule 2:30PM --mcps lookout --allow Send dad joke to Alice",
			"  schedule 9:00AM --mcps lookout --allow lookout:read_inbox Check mail",
			"  schedule 10:00AM --prompt-file ~/prompts/daily_report.txt",
		}, "\n"),
		Run: a.cmdSchedule,
	})
	a.sh.Register(shell.Command{
		Name:    "periodic",
		Summary: "Schedule a recurring task",
		Usage: strings.Join([]string{
			"Usage: periodic <seconds> [options] <prompt...>",
			"       periodic <seconds> [options] --prompt-file <path>",
			"",
			"Takes the same options as schedule. The period must be at least",
			"2 seconds; the task fires whenever unix time is a multiple of it.",
			"",
			"Examples:",
			"  periodic 3600 --mcps lookout --allow lookout: Check the inbox",
			"  periodic 300 Report disk usage",
		}, "\n"),
		Run: a.cmdPeriodic,
	})
	a.sh.Register(shell.Command{
		Name:    "list",
		Summary: "List tasks, or show details for one",
		Usage:   "Usage: list [index]",
		Run:     a.cmdList,
	})
	a.sh.Register(shell.Command{
		Name:    "run",
		Summary: "Run a task immediately",
		Usage:   "Usage: run <index>",
		Run:     a.cmdRun,
	})
	a.sh.Register(shell.Command{
		Name:    "unschedule",
		Summary: "Remove a task by index",
		Usage:   "Usage: unschedule <index>",
		Run:     a.cmdUnschedule,
	})
	a.sh.Register(shell.Command{
		Name:    "config",
		Summary: "View or change execution defaults",
		Usage: strings.Join([]string{
			"Usage: config                       Show all settings",
			"       config <key>                 Show one setting",
			"       config <key> <value>         Set a setting",
			"       config <key> --clear         Clear a setting",
			"",
			"Examples:",
			"  config model sonnet",
			"  config max_budget_usd 0.50",
			"  config model --clear",
		}, "\n"),
		Run: a.cmdConfig,
	})
	a.sh.Register(shell.Command{
		Name:    "save-prompt",
		Summary: "Write a task's prompt to a file",
		Usage:   "Usage: save-prompt <index> <filepath>",
		Run:     a.cmdSavePrompt,
	})
	a.sh.Register(shell.Command{
		Name:    "save",
		Summary: "Persist the schedule now",
		Usage:   "Usage: save",
		Run:     a.cmdSave,
	})
	a.sh.Register(shell.Command{
		Name:    "reload",
		Summary: "Reload the schedule from disk",
		Usage:   "Usage: reload",
		Run:     a.cmdReload,
	})
	a.sh.Register(shell.Command{
		Name:    "mcps",
		Summary: "List available MCP servers",
		Usage:   "Usage: mcps [--verbose]",
		Run:     a.cmdMCPs,
	})
	a.sh.Register(shell.Command{
		Name:    "exit",
		Summary: "Save state and quit",
		Usage:   "Usage: exit",
		Run: func(ctx context.Context, args []string) error {
			a.sh.Printf("Saving schedule state...")
			return shell.ErrExit
		},
	})
}

// buildSpec turns parsed task options plus prompt tokens into a task spec.
// Shared by schedule and periodic.
func (a *App) buildSpec(opts permit.Options, promptTokens []string) (schedule.Spec, error) {
	var prompt string
	switch {
	case opts.PromptFile != "":
		path := expandUser(opts.PromptFile)
		raw, err := os.ReadFile(path)
		if err != nil {
			return schedule.Spec{}, fmt.Errorf("prompt file: %w", err)
		}
		prompt = strings.TrimSpace(string(raw))
	case len(promptTokens) > 0:
		prompt = strings.Join(promptTokens, " ")
	default:
		return schedule.Spec{}, fmt.Errorf("no prompt provided (use inline text or --prompt-file)")
	}

	servers := a.resolveServers(opts.Servers, opts.Dir)
	allow := a.resolveAllow(opts, servers)

	return schedule.Spec{
		Prompt:  prompt,
		Dir:     opts.Dir,
		Model:   opts.Model,
		Servers: servers,
		Allow:   allow,
	}, nil
}

// resolveServers looks the named servers up in the directory and, when a
// working directory is set, merges in that project's own servers without
// overriding the explicitly named ones.
func (a *App) resolveServers(names []string, dir string) []schedule.ServerBinding {
	var out []schedule.ServerBinding
	seen := map[string]bool{}

	if len(names) > 0 {
		found, missing := a.dir.Resolve(names)
		for _, s := range found {
			out = append(out, schedule.ServerBinding{Name: s.Name, Spec: s.Spec})
			seen[s.Name] = true
		}
		if len(missing) > 0 {
			a.sh.Errorf("unknown MCPs: %s", strings.Join(missing, ", "))
			a.sh.Printf("Use 'mcps' to see available MCPs")
		}
	}

	if dir != "" {
		project := a.dir.ProjectServers(dir)
		projectNames := make([]string, 0, len(project))
		for name := range project {
			projectNames = append(projectNames, name)
		}
		sort.Strings(projectNames)
		for _, name := range projectNames {
			if !seen[name] {
				out = append(out, schedule.ServerBinding{Name: name, Spec: project[name]})
			}
		}
	}
	return out
}

// resolveAllow expands a bare --allow into the names of every bound server.
func (a *App) resolveAllow(opts permit.Options, servers []schedule.ServerBinding) []string {
	if opts.AllowAll {
		if len(servers) == 0 {
			a.sh.Errorf("--allow specified but no MCPs loaded")
			return nil
		}
		allow := make([]string, 0, len(servers))
		for _, s := range servers {
			allow = append(allow, s.Name)
		}
		return allow
	}
	return opts.Allow
}

func (a *App) printScheduled(verb string, t *schedule.Task) {
	msg := fmt.Sprintf("%s: %s", verb, t.Describe())
	if t.Model != "" {
		msg += "\n  Model: " + t.Model
	}
	if names := t.ServerNames(); len(names) > 0 {
		msg += "\n  MCPs: " + strings.Join(names, ", ")
	}
	if len(t.Allow) > 0 {
		msg += "\n  Pre-authorized: " + strings.Join(t.Allow, ", ")
	}
	if t.Dir != "" {
		msg += "\n  Working dir: " + t.Dir
	}
	a.sh.Printf("%s", msg)
}

func (a *App) cmdSchedule(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: schedule <HH:MMAM/PM> [--mcps ...] [--allow ...] <prompt>")
	}
	clock := args[0]
	opts, promptTokens := permit.ParseTaskArgs(args[1:])

	spec, err := a.buildSpec(opts, promptTokens)
	if err != nil {
		return err
	}
	task, err := schedule.NewAtTask(clock, spec)
	if err != nil {
		return err
	}
	a.registry.Add(task)
	a.printScheduled("Scheduled", task)
	return nil
}

func (a *App) cmdPeriodic(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: periodic <seconds> [--mcps ...] [--allow ...] <prompt>")
	}
	period, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("period must be an integer number of seconds")
	}
	opts, promptTokens := permit.ParseTaskArgs(args[1:])

	spec, err := a.buildSpec(opts, promptTokens)
	if err != nil {
		return err
	}
	task, err := schedule.NewPeriodicTask(period, spec)
	if err != nil {
		return err
	}
	a.registry.Add(task)
	a.printScheduled("Scheduled", task)
	return nil
}

func (a *App) cmdList(ctx context.Context, args []string) error {
	tasks := a.registry.List()
	if len(tasks) == 0 {
		a.sh.Printf("No tasks scheduled.")
		return nil
	}

	if len(args) > 0 {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("index must be an integer")
		}
		if index < 0 || index >= len(tasks) {
			return fmt.Errorf("invalid task index: %d", index)
		}
		a.printTaskDetails(index, tasks[index])
		return nil
	}

	a.sh.Printf("Scheduled tasks:")
	for i, t := range tasks {
		a.sh.Printf("  %d> %s", i, t.Describe())
	}
	return nil
}

func (a *App) printTaskDetails(index int, t *schedule.Task) {
	a.sh.Printf("Task %d details:", index)
	if t.Mode == schedule.ModePeriodic {
		a.sh.Printf("  Schedule: every %ds", t.PeriodSeconds)
	} else {
		a.sh.Printf("  Schedule: at %s", t.Clock())
	}
	switch {
	case t.Model != "":
		a.sh.Printf("  Model: %s", t.Model)
	case a.settings.GetString("model") != "":
		a.sh.Printf("  Model: %s (from config)", a.settings.GetString("model"))
	}
	if t.Dir != "" {
		a.sh.Printf("  Working dir: %s", t.Dir)
	}
	if names := t.ServerNames(); len(names) > 0 {
		a.sh.Printf("  MCPs: %s", strings.Join(names, ", "))
	}
	if len(t.Allow) > 0 {
		a.sh.Printf("  Allowed tools: %s", strings.Join(t.Allow, ", "))
	}
	divider := strings.Repeat("-", 40)
	a.sh.Printf("\n  Prompt:\n  %s", divider)
	for _, line := range strings.Split(t.Prompt, "\n") {
		a.sh.Printf("  %s", line)
	}
	a.sh.Printf("  %s", divider)
}

func (a *App) cmdRun(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: run <index>")
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("index must be an integer")
	}
	task, ok := a.registry.Get(index)
	if !ok {
		return fmt.Errorf("invalid task index: %d", index)
	}
	a.sh.Printf("Running task %d: %s", index, task.Describe())
	a.runner.Dispatch(task)
	return nil
}

func (a *App) cmdUnschedule(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: unschedule <index>")
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("index must be an integer")
	}
	if !a.registry.Remove(index) {
		return fmt.Errorf("invalid task index: %d", index)
	}
	a.sh.Printf("Removed task %d", index)
	return nil
}

func (a *App) cmdConfig(ctx context.Context, args []string) error {
	if len(args) == 0 {
		all := a.settings.All()
		if len(all) == 0 {
			a.sh.Printf("No settings configured. Using SDK defaults.")
			a.sh.Printf("\n  Available settings:")
			for _, key := range config.SettingKeys() {
				desc, _ := config.DescribeSetting(key)
				a.sh.Printf("    %-20s %s", key, desc)
			}
			return nil
		}
		a.sh.Printf("Current settings:")
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			a.sh.Printf("  %-20s = %v", k, all[k])
		}
		var unset []string
		for _, k := range config.SettingKeys() {
			if _, ok := all[k]; !ok {
				unset = append(unset, k)
			}
		}
		if len(unset) > 0 {
			a.sh.Printf("\n  Unset (using SDK defaults): %s", strings.Join(unset, ", "))
		}
		return nil
	}

	key := args[0]
	if len(args) == 1 {
		desc, ok := config.DescribeSetting(key)
		if !ok {
			return fmt.Errorf("unknown setting: %s (valid: %s)", key, strings.Join(config.SettingKeys(), ", "))
		}
		if v, set := a.settings.Get(key); set {
			a.sh.Printf("%s = %v", key, v)
		} else {
			a.sh.Printf("%s is not set (SDK default)", key)
		}
		a.sh.Printf("  %s", desc)
		return nil
	}

	value := args[1]
	if value == "--clear" {
		if err := a.settings.Clear(key); err != nil {
			return err
		}
		a.sh.Printf("Cleared: %s", key)
		return nil
	}

	if err := a.settings.Set(key, value); err != nil {
		return err
	}
	v, _ := a.settings.Get(key)
	a.sh.Printf("Set: %s = %v", key, v)
	return nil
}

func (a *App) cmdSavePrompt(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: save-prompt <index> <filepath>")
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("index must be an integer")
	}
	task, ok := a.registry.Get(index)
	if !ok {
		return fmt.Errorf("invalid task index: %d", index)
	}
	path := expandUser(args[1])
	if err := os.WriteFile(path, []byte(task.Prompt), 0o600); err != nil {
		return fmt.Errorf("save prompt: %w", err)
	}
	a.sh.Printf("Saved prompt to %s (%d chars)", path, len(task.Prompt))
	return nil
}

func (a *App) cmdSave(ctx context.Context, args []string) error {
	if a.store == nil {
		return fmt.Errorf("storage is disabled")
	}
	if err := a.saveSchedule(ctx); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	a.sh.Printf("Schedule saved.")
	return nil
}

func (a *App) cmdReload(ctx context.Context, args []string) error {
	if a.store == nil {
		return fmt.Errorf("storage is disabled")
	}
	if err := a.loadSchedule(ctx); err != nil {
		return fmt.Errorf("reload schedule: %w", err)
	}
	a.sh.Printf("Schedule reloaded from disk. %d task(s).", a.registry.Len())
	return nil
}

func (a *App) cmdMCPs(ctx context.Context, args []string) error {
	verbose := false
	refresh := false
	for _, arg := range args {
		switch arg {
		case "--verbose", "-v":
			verbose = true
		case "--reload":
			refresh = true
		}
	}
	if refresh {
		a.dir.Reload()
	}

	lines := a.dir.List(verbose)
	if len(lines) == 0 {
		a.sh.Printf("No MCP servers found in ~/.claude.json")
		a.sh.Printf("Configure MCPs in Claude Code first, then restart the scheduler.")
		return nil
	}
	a.sh.Printf("Available MCP servers (%d):", len(lines))
	a.sh.Printf("  (from ~/.claude.json)\n")
	for _, line := range lines {
		a.sh.Printf("%s\n", line)
	}
	if !verbose {
		a.sh.Printf("  Use 'mcps --verbose' for details")
	}
	return nil
}

// expandUser resolves a leading ~ to the home directory.
func expandUser(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
