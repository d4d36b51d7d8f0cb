// Package schedule is the scheduling engine: the Task entity with its
// due-time edge detector, the mutex-guarded task registry, and the polling
// loop that activates due tasks once per qualifying time window.
//
// Timing model:
//   - At-time tasks are due during one wall-clock minute (hour+minute match).
//   - Periodic tasks are due during the one second where unix time is an
//     exact multiple of the period.
//
// The clock is level-triggered; each task turns it into a single pulse per
// window via an internal fired flag that re-arms only after the predicate has
// been observed false. If the process sleeps through a whole window, that
// activation is lost; there is no catch-up.
package schedule
