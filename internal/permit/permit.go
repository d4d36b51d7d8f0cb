package permit

import (
	"path"
	"strings"
)

// BuiltinTools are the backend's built-in tool names that may appear in an
// allow-list without a server prefix. Matching is case-sensitive.
var BuiltinTools = map[string]struct{}{
	"Bash":  {},
	"Edit":  {},
	"Write": {},
	"Read":  {},
}

// IsBuiltinTool reports whether name is one of the fixed built-in tool names.
func IsBuiltinTool(name string) bool {
	_, ok := BuiltinTools[name]
	return ok
}

// Allowed reports whether the (server, tool) pair is pre-authorized by the
// allow-list. Patterns are tested in list order and the first match wins;
// an empty list authorizes nothing.
func Allowed(allow []string, server, tool string) bool {
	if len(allow) == 0 {
		return false
	}

	full := server + ":" + tool

	for _, pat := range allow {
		// "*" = everything.
		if pat == "*" {
			return true
		}

		// "lookout:" = every tool from that server (trailing colon).
		if strings.HasSuffix(pat, ":") && strings.TrimSuffix(pat, ":") == server {
			return true
		}

		// "lookout:*", "lookout:send_mail", "lookout:mail_*", ...
		if strings.Contains(pat, ":") {
			if ok, err := path.Match(pat, full); err == nil && ok {
				return true
			}
			continue
		}

		// Bare name: a built-in tool, compared exactly (not server-qualified).
		if pat == tool {
			return true
		}
	}

	return false
}

// SDKTools converts allow-list patterns to the backend's tool-name dialect.
//
//	lookout:              mcp__lookout__*
//	lookout:send_mail     mcp__lookout__send_mail
//	lookout:mail_*        mcp__lookout__mail_*
//	Bash                  Bash
//
// A nil result means "unrestricted": the backend's all-tools sentinel is the
// absence of a restriction list, not a list. That is the translation both for
// an empty allow-list and for any list containing the literal "*".
// Order is preserved and duplicates are kept.
func SDKTools(allow []string) []string {
	if len(allow) == 0 {
		return nil
	}

	out := make([]string, 0, len(allow))
	for _, pat := range allow {
		if pat == "*" {
			return nil
		}

		if idx := strings.IndexByte(pat, ':'); idx >= 0 {
			server := pat[:idx]
			tool := pat[idx+1:]
			if tool == "" {
				tool = "*"
			}
			out = append(out, "mcp__"+server+"__"+tool)
			continue
		}

		out = append(out, pat)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
