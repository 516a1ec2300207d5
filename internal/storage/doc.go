// Package storage persists the last successful dispatch time of every job.
//
// Drivers:
//   - file:   a flat JSON object {"key": unix seconds}, rewritten atomically
//   - sqlite: a single job_runs table (modernc.org/sqlite, no cgo)
//   - memory: process-local, used when persistence is disabled and in tests
package storage
