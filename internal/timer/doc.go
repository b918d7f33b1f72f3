// Package timer arms named one-shot wake-ups at absolute times and runs
// recurring maintenance jobs on cron schedules.
//
// Timers are runtime-only. Callers that need them to survive a restart must
// re-arm from their own persisted state.
package timer
