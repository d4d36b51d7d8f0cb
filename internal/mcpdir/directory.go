package mcpdir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	logx "agentsched/pkg/logx"
)

// DefaultConfigPath returns the conventional location of the Claude Code
// user config.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claude.json"
	}
	return filepath.Join(home, ".claude.json")
}

// Server pairs a directory entry's name with its opaque spec.
type Server struct {
	Name string
	Spec map[string]any
}

// Directory indexes MCP servers found under projects.*.mcpServers in the
// Claude config. When the same server name appears under several projects,
// the first definition in file order wins; the winning project path is
// recorded as the server's source.
//
// A missing or unreadable config yields an empty directory, never an error:
// the daemon must come up even on hosts that never ran Claude Code.
type Directory struct {
	mu      sync.RWMutex
	path    string
	log     logx.Logger
	servers map[string]map[string]any
	sources map[string]string
}

func New(path string, log logx.Logger) *Directory {
	if path == "" {
		path = DefaultConfigPath()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Directory{path: path, log: log}
	d.Reload()
	return d
}

// Reload re-scrapes the config file, replacing the directory contents.
// Problems are logged and leave the directory empty.
func (d *Directory) Reload() {
	servers := map[string]map[string]any{}
	sources := map[string]string{}

	raw, err := os.ReadFile(d.path)
	switch {
	case os.IsNotExist(err):
		d.log.Warn("claude config not found", logx.String("path", d.path))
	case err != nil:
		d.log.Warn("claude config unreadable", logx.String("path", d.path), logx.Err(err))
	default:
		if err := scrape(raw, servers, sources); err != nil {
			d.log.Warn("claude config parse failed", logx.String("path", d.path), logx.Err(err))
			servers = map[string]map[string]any{}
			sources = map[string]string{}
		}
	}

	d.mu.Lock()
	d.servers = servers
	d.sources = sources
	d.mu.Unlock()
	d.log.Info("mcp directory loaded",
		logx.String("path", d.path),
		logx.Int("servers", len(servers)))
}

// scrape walks the JSON with a token decoder so that object key order is
// preserved; plain map decoding would randomize which duplicate wins.
func scrape(raw []byte, servers map[string]map[string]any, sources map[string]string) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		key, err := objectKey(dec)
		if err != nil {
			return err
		}
		if key != "projects" {
			if err := skipValue(dec); err != nil {
				return err
			}
			continue
		}
		if err := scrapeProjects(dec, servers, sources); err != nil {
			return err
		}
	}
	return nil
}

func scrapeProjects(dec *json.Decoder, servers map[string]map[string]any, sources map[string]string) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		// projects is not an object; nothing to scrape.
		return skipRest(dec, tok)
	}
	for dec.More() {
		projectPath, err := objectKey(dec)
		if err != nil {
			return err
		}
		var project rawProject
		if err := dec.Decode(&project); err != nil {
			return err
		}
		if err := project.collect(projectPath, servers, sources); err != nil {
			return err
		}
	}
	_, err = dec.Token() // closing '}'
	return err
}

// rawProject keeps the mcpServers block raw so its key order survives.
type rawProject struct {
	MCPServers json.RawMessage `json:"mcpServers"`
}

func (p rawProject) collect(projectPath string, servers map[string]map[string]any, sources map[string]string) error {
	if len(p.MCPServers) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(p.MCPServers))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}
	for dec.More() {
		name, err := objectKey(dec)
		if err != nil {
			return err
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		var spec map[string]any
		if json.Unmarshal(value, &spec) != nil {
			// Not an object (string, list, null); skip the entry.
			continue
		}
		if _, taken := servers[name]; taken || len(spec) == 0 {
			continue
		}
		servers[name] = spec
		sources[name] = projectPath
	}
	return nil
}

func objectKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("unexpected token %v, want object key", tok)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != want {
		return fmt.Errorf("unexpected token %v, want %q", tok, want)
	}
	return nil
}

// skipValue consumes the next full JSON value from the stream.
func skipValue(dec *json.Decoder) error {
	var raw json.RawMessage
	return dec.Decode(&raw)
}

// skipRest is called after a value's first token was already consumed; it
// drains the remainder when that token opened a composite value.
func skipRest(dec *json.Decoder, opened json.Token) error {
	delim, ok := opened.(json.Delim)
	if !ok || (delim != '{' && delim != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

// Lookup returns the spec registered under name.
func (d *Directory) Lookup(name string) (map[string]any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	spec, ok := d.servers[name]
	return spec, ok
}

// Resolve maps the requested names to directory entries. Found entries keep
// the request order; missing collects the names with no definition.
func (d *Directory) Resolve(names []string) (found []Server, missing []string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, name := range names {
		if spec, ok := d.servers[name]; ok {
			found = append(found, Server{Name: name, Spec: spec})
		} else {
			missing = append(missing, name)
		}
	}
	return found, missing
}

// Len reports the number of registered servers.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.servers)
}

// List renders one line per server, sorted by name. With verbose the source
// project path is appended on a continuation line.
func (d *Directory) List(verbose bool) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.servers))
	for name := range d.servers {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		spec := d.servers[name]
		kind, _ := spec["type"].(string)
		if kind == "" {
			kind = "unknown"
		}
		var detail string
		switch kind {
		case "sse":
			detail, _ = spec["url"].(string)
		case "stdio":
			detail, _ = spec["command"].(string)
		default:
			detail = fmt.Sprint(spec)
		}
		if verbose {
			source := d.sources[name]
			if source == "" {
				source = "unknown"
			}
			lines = append(lines, fmt.Sprintf("  %s (%s): %s\n    Source: %s", name, kind, detail, source))
		} else {
			lines = append(lines, fmt.Sprintf("  %s (%s)", name, kind))
		}
	}
	return lines
}

// ProjectServers returns the mcpServers block configured for one project
// path, reading the config fresh. The exact path is tried first, then the
// absolute cleaned form. Returns nil when the project has no servers.
func (d *Directory) ProjectServers(projectPath string) map[string]map[string]any {
	raw, err := os.ReadFile(d.path)
	if err != nil {
		return nil
	}
	var cfg struct {
		Projects map[string]struct {
			MCPServers map[string]json.RawMessage `json:"mcpServers"`
		} `json:"projects"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil
	}
	block, ok := cfg.Projects[projectPath]
	if !ok {
		abs, err := filepath.Abs(projectPath)
		if err != nil {
			return nil
		}
		if block, ok = cfg.Projects[abs]; !ok {
			return nil
		}
	}
	if len(block.MCPServers) == 0 {
		return nil
	}
	out := make(map[string]map[string]any, len(block.MCPServers))
	for name, raw := range block.MCPServers {
		var spec map[string]any
		if json.Unmarshal(raw, &spec) != nil || spec == nil {
			continue
		}
		out[name] = spec
	}
	return out
}
