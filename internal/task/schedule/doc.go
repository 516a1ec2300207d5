// Package schedule holds the static job registry and its timer model.
//
// Jobs are declared once at startup. Each job fires on a fixed interval
// anchored at its dispatch time, so a slow run never shifts the cadence and a
// missed run is never replayed more than once.
package schedule
