// Package lineage defines the OpenLineage run event emitted for every task
// lifecycle transition and the builder that constructs it.
//
// Events are plain immutable values. Identity fields (run ID and job name) are
// pure functions of the orchestrator identifiers, so the START, COMPLETE and
// FAIL events of one task execution always share a run ID and can be
// correlated by the backend. Dataset descriptors produced by extractors are
// carried as opaque JSON and serialized verbatim.
package lineage
