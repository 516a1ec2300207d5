// Package tasks is the catalogue of task kinds a job can run.
//
// A job names a kind in its config (stub, command, profile_fetch) and the
// catalogue turns it into a schedule.Func. The scheduler never looks inside.
package tasks
