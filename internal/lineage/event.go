package lineage

import (
	"encoding/json"
	"time"
)

// EventType is the lifecycle state reported by a run event.
type EventType string

// Supported event types.
const (
	EventTypeStart    EventType = "START"
	EventTypeComplete EventType = "COMPLETE"
	EventTypeFail     EventType = "FAIL"
)

// SchemaURL identifies the OpenLineage wire schema version.
const SchemaURL = "https://openlineage.io/spec/1-0-0/OpenLineage.json"

// ErrorMessageFacetSchemaURL is the schema of the errorMessage run facet.
const ErrorMessageFacetSchemaURL = "https://openlineage.io/spec/facets/1-0-1/ErrorMessageRunFacet.json#/$defs/ErrorMessageRunFacet"

// IsValid reports whether t is one of the supported event types.
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeStart, EventTypeComplete, EventTypeFail:
		return true
	default:
		return false
	}
}

func (t EventType) String() string {
	return string(t)
}

// Dataset is an input or output dataset descriptor. Its schema belongs to
// the extractor that produced it; it is passed through untouched.
type Dataset = json.RawMessage

// Run identifies one execution of a job.
type Run struct {
	RunID  string                     `json:"runId"`
	Facets map[string]json.RawMessage `json:"facets,omitempty"`
}

// Job identifies the task being executed.
type Job struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// RunEvent is one observation of a task's lifecycle state.
type RunEvent struct {
	EventTime time.Time `json:"eventTime"`
	EventType EventType `json:"eventType"`
	Producer  string    `json:"producer"`
	SchemaURL string    `json:"schemaURL"`
	Run       Run       `json:"run"`
	Job       Job       `json:"job"`
	Inputs    []Dataset `json:"inputs"`
	Outputs   []Dataset `json:"outputs"`
}

// ErrorMessageFacet is the OpenLineage errorMessage run facet attached to
// FAIL events when the orchestrator reports an error.
type ErrorMessageFacet struct {
	Producer            string `json:"_producer"`
	SchemaURL           string `json:"_schemaURL"`
	Message             string `json:"message"`
	ProgrammingLanguage string `json:"programmingLanguage"`
}
