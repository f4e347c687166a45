// Package hook exposes the task lifecycle hook over HTTP so an orchestrator
// side shim can report task start, success and failure without linking this
// module. Requests are acknowledged as soon as they are decoded; emission
// happens in the background through the listener.
package hook
