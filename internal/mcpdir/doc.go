// Package mcpdir builds a directory of MCP server definitions by scraping
// the Claude Code user config (~/.claude.json). Server specs are treated as
// opaque JSON objects and handed through to the agent backend unchanged.
package mcpdir
