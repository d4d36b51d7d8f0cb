package mcpdir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	logx "agentsched/pkg/logx"
)

const fixture = `{
  "someTopLevelKey": true,
  "projects": {
    "/home/u/alpha": {
      "allowedTools": [],
      "mcpServers": {
        "lookout": {"type": "sse", "url": "https://alpha.example/sse"},
        "mail": {"type": "stdio", "command": "mail-mcp", "args": ["--serve"]}
      }
    },
    "/home/u/beta": {
      "mcpServers": {
        "lookout": {"type": "sse", "url": "https://beta.example/sse"},
        "tracker": {"type": "stdio", "command": "tracker-mcp"},
        "empty": {},
        "broken": "not-an-object"
      }
    },
    "/home/u/noservers": {"allowedTools": []}
  }
}`

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claude.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestDirectoryFirstDefinitionWins(t *testing.T) {
	t.Parallel()

	d := New(writeFixture(t, fixture), logx.Logger{})

	if d.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 (lookout, mail, tracker)", d.Len())
	}

	spec, ok := d.Lookup("lookout")
	if !ok {
		t.Fatalf("lookout not found")
	}
	if url, _ := spec["url"].(string); url != "https://alpha.example/sse" {
		t.Fatalf("lookout url = %q, want the alpha definition", url)
	}

	if _, ok := d.Lookup("empty"); ok {
		t.Fatalf("empty spec must not be registered")
	}
	if _, ok := d.Lookup("broken"); ok {
		t.Fatalf("non-object spec must not be registered")
	}
}

func TestDirectoryResolve(t *testing.T) {
	t.Parallel()

	d := New(writeFixture(t, fixture), logx.Logger{})

	found, missing := d.Resolve([]string{"tracker", "ghost", "mail", "phantom"})
	if len(found) != 2 {
		t.Fatalf("found %d entries, want 2", len(found))
	}
	if found[0].Name != "tracker" || found[1].Name != "mail" {
		t.Fatalf("found order = [%s %s], want request order [tracker mail]", found[0].Name, found[1].Name)
	}
	if len(missing) != 2 || missing[0] != "ghost" || missing[1] != "phantom" {
		t.Fatalf("missing = %v, want [ghost phantom]", missing)
	}
}

func TestDirectoryList(t *testing.T) {
	t.Parallel()

	d := New(writeFixture(t, fixture), logx.Logger{})

	lines := d.List(false)
	if len(lines) != 3 {
		t.Fatalf("List returned %d lines, want 3", len(lines))
	}
	// Sorted by name.
	if !strings.Contains(lines[0], "lookout (sse)") {
		t.Errorf("lines[0] = %q, want lookout first", lines[0])
	}
	if !strings.Contains(lines[1], "mail (stdio)") {
		t.Errorf("lines[1] = %q, want mail", lines[1])
	}

	verbose := d.List(true)
	if !strings.Contains(verbose[0], "Source: /home/u/alpha") {
		t.Errorf("verbose lines[0] = %q, want alpha source", verbose[0])
	}
	if !strings.Contains(verbose[0], "https://alpha.example/sse") {
		t.Errorf("verbose lines[0] = %q, want sse url detail", verbose[0])
	}
}

func TestDirectoryProjectServers(t *testing.T) {
	t.Parallel()

	d := New(writeFixture(t, fixture), logx.Logger{})

	beta := d.ProjectServers("/home/u/beta")
	if len(beta) != 3 {
		t.Fatalf("beta project servers = %d, want 3 (lookout, tracker, empty)", len(beta))
	}
	if url, _ := beta["lookout"]["url"].(string); url != "https://beta.example/sse" {
		t.Fatalf("per-project lookup must not apply first-wins: url = %q", url)
	}
	if d.ProjectServers("/home/u/noservers") != nil {
		t.Fatalf("project without mcpServers must return nil")
	}
	if d.ProjectServers("/nope") != nil {
		t.Fatalf("unknown project must return nil")
	}
}

func TestDirectoryMissingOrCorruptConfig(t *testing.T) {
	t.Parallel()

	d := New(filepath.Join(t.TempDir(), "absent.json"), logx.Logger{})
	if d.Len() != 0 {
		t.Fatalf("missing config: Len() = %d, want 0", d.Len())
	}
	found, missing := d.Resolve([]string{"anything"})
	if len(found) != 0 || len(missing) != 1 {
		t.Fatalf("Resolve on empty directory = (%v, %v)", found, missing)
	}

	corrupt := New(writeFixture(t, "{not json"), logx.Logger{})
	if corrupt.Len() != 0 {
		t.Fatalf("corrupt config: Len() = %d, want 0", corrupt.Len())
	}
}

func TestDirectoryReload(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, `{"projects": {}}`)
	d := New(path, logx.Logger{})
	if d.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", d.Len())
	}

	if err := os.WriteFile(path, []byte(fixture), 0o600); err != nil {
		t.Fatalf("rewrite fixture: %v", err)
	}
	d.Reload()
	if d.Len() != 3 {
		t.Fatalf("Len() after reload = %d, want 3", d.Len())
	}
}
