// Package shell is the line-oriented operator console. It owns stdin/stdout;
// everything else in the daemon logs to stderr or a file so command output
// stays readable.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ErrExit signals that the operator asked to quit; the shell loop returns
// cleanly and the caller runs shutdown.
var ErrExit = errors.New("exit requested")

// Command is one console command. Usage is static help text printed by the
// help command; Run receives the tokens after the command name.
type Command struct {
	Name    string
	Summary string
	Usage   string
	Run     func(ctx context.Context, args []string) error
}

// Shell reads lines, tokenizes them, and dispatches to registered commands.
type Shell struct {
	in       io.Reader
	out      io.Writer
	prompt   string
	banner   []string
	commands map[string]Command
	order    []string
}

func New(in io.Reader, out io.Writer) *Shell {
	return &Shell{
		in:       in,
		out:      out,
		prompt:   "> ",
		commands: map[string]Command{},
	}
}

func (s *Shell) SetPrompt(p string)        { s.prompt = p }
func (s *Shell) SetBanner(lines ...string) { s.banner = lines }

// Register adds a command. Registration order is the help listing order.
func (s *Shell) Register(cmd Command) {
	if cmd.Name == "" || cmd.Run == nil {
		return
	}
	if _, dup := s.commands[cmd.Name]; !dup {
		s.order = append(s.order, cmd.Name)
	}
	s.commands[cmd.Name] = cmd
}

// Printf writes command output.
func (s *Shell) Printf(format string, args ...any) {
	fmt.Fprintf(s.out, format+"\n", args...)
}

// Errorf writes an error line.
func (s *Shell) Errorf(format string, args ...any) {
	fmt.Fprintf(s.out, "Error: "+format+"\n", args...)
}

// Run processes lines until EOF, ErrExit, or context cancellation. Command
// errors are printed, never fatal.
func (s *Shell) Run(ctx context.Context) error {
	for _, line := range s.banner {
		fmt.Fprintln(s.out, line)
	}

	sc := bufio.NewScanner(s.in)
	sc.Buffer(make([]byte, 0, 4096), 1024*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprint(s.out, s.prompt)
		if !sc.Scan() {
			return sc.Err()
		}
		tokens := Tokenize(sc.Text())
		if len(tokens) == 0 {
			continue
		}

		name := strings.ToLower(tokens[0])
		if name == "help" {
			s.help(tokens[1:])
			continue
		}
		cmd, ok := s.commands[name]
		if !ok {
			s.Errorf("unknown command: %s (try 'help')", name)
			continue
		}
		if err := cmd.Run(ctx, tokens[1:]); err != nil {
			if errors.Is(err, ErrExit) {
				return nil
			}
			s.Errorf("%v", err)
		}
	}
}

func (s *Shell) help(args []string) {
	if len(args) > 0 {
		name := strings.ToLower(args[0])
		cmd, ok := s.commands[name]
		if !ok {
			s.Errorf("unknown command: %s", name)
			return
		}
		s.Printf("%s - %s", cmd.Name, cmd.Summary)
		if cmd.Usage != "" {
			s.Printf("%s", cmd.Usage)
		}
		return
	}

	s.Printf("Commands:")
	width := 0
	for _, name := range s.order {
		if len(name) > width {
			width = len(name)
		}
	}
	names := append([]string(nil), s.order...)
	sort.Strings(names)
	for _, name := range names {
		s.Printf("  %-*s  %s", width, name, s.commands[name].Summary)
	}
	s.Printf("  %-*s  %s", width, "help", "Show this list, or 'help <command>' for usage")
}
