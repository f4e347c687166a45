// Package transport provides the pluggable delivery backends for lineage
// events. A backend is selected by the transport type named in configuration
// and resolved once at startup through a registry of factories.
//
// Two backends are built in:
//   - "correlator" posts array-wrapped events to {url}/api/v1/lineage/events.
//   - "console" writes the same payload to a writer, for local debugging.
package transport
