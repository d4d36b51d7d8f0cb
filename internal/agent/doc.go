// Package agent executes scheduled prompts against a Claude agent backend.
//
// The Runner is the bridge between the scheduler loop and the backend: it
// detaches each activation onto its own supervised goroutine, decorates the
// prompt with runtime context, and streams backend output into the log.
package agent
