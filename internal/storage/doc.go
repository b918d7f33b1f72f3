// Package storage persists alert records.
//
// Every driver implements the same contract (Store):
//   - ids are assigned by the store, are monotonic and never reused
//   - List returns records in insertion order, optionally filtered by owner
//   - Update is one atomic read-modify-write for a single id, so timer and
//     notification callbacks racing with API commands never interleave
//
// Drivers: "sqlite" (default), "postgres", "redis" and "file" (jsonl journal
// plus periodic snapshot).
package storage
