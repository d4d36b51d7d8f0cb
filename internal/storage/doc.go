// Package storage persists the task schedule across restarts.
//
// Two drivers exist: "file" writes a single JSON snapshot with an atomic
// rename, "sqlite" keeps one row per task (built with -tags sqlite). An
// empty or "none" driver disables persistence entirely.
package storage
