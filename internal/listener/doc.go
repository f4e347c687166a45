// Package listener is the entry point the orchestrator's task lifecycle hook
// calls into. It turns a task context into a lineage event and hands it to
// the configured transport.
//
// Lineage is strictly auxiliary: a Listener never returns an error and never
// lets a panic escape. Every failure, from invalid task identifiers to a
// backend outage, is logged with the event type, run and task identifiers
// and the error kind, and then dropped.
package listener
