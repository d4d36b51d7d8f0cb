package permit

import "strings"

// Options are the task flags recognized in a schedule/periodic command line.
type Options struct {
	Servers    []string // --mcps name1,name2
	Model      string   // --model <name>
	Dir        string   // --cwd /path
	PromptFile string   // --prompt-file <path>

	// Allow holds explicit --allow patterns. AllowAll is set instead when
	// --allow appears without a recognizable pattern list, meaning
	// "pre-authorize every server currently bound to the task".
	Allow    []string
	AllowAll bool
}

// ParseTaskArgs extracts task flags from the tokens following a schedule
// command's time/period argument. Unconsumed tokens (the prompt text) are
// returned in order.
//
// The --allow argument is classified heuristically, without lookahead: the
// next token is consumed as a pattern list only when it does not start with
// "--" and every comma-separated segment either contains a colon or equals a
// built-in tool name. Otherwise --allow is the bare "allow everything bound"
// form and the token stays part of the prompt. A prompt that happens to start
// with a colon-containing word is therefore misread as a pattern list; this
// ambiguity is deliberate, documented behavior.
func ParseTaskArgs(tokens []string) (Options, []string) {
	var (
		opts      Options
		remaining []string
	)

	for i := 0; i < len(tokens); {
		tok := tokens[i]

		switch {
		case tok == "--mcps" && i+1 < len(tokens):
			opts.Servers = splitList(tokens[i+1])
			i += 2

		case tok == "--model" && i+1 < len(tokens):
			opts.Model = tokens[i+1]
			i += 2

		case tok == "--cwd" && i+1 < len(tokens):
			opts.Dir = tokens[i+1]
			i += 2

		case tok == "--prompt-file" && i+1 < len(tokens):
			opts.PromptFile = tokens[i+1]
			i += 2

		case tok == "--allow":
			if i+1 < len(tokens) {
				next := tokens[i+1]
				segments := splitList(next)
				if looksLikePatternList(next, segments) {
					opts.Allow = segments
					opts.AllowAll = false
					i += 2
					break
				}
			}
			opts.Allow = nil
			opts.AllowAll = true
			i++

		default:
			remaining = append(remaining, tok)
			i++
		}
	}

	return opts, remaining
}

func looksLikePatternList(token string, segments []string) bool {
	if strings.HasPrefix(token, "--") || len(segments) == 0 {
		return false
	}
	for _, seg := range segments {
		if !strings.Contains(seg, ":") && !IsBuiltinTool(seg) {
			return false
		}
	}
	return true
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
