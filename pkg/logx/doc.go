// Package logx configures agentsched's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Stdout free for the interactive shell (all logs go to stderr/file)
package logx
