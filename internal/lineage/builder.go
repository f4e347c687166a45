package lineage

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
)

// validate is shared by every builder call; validator caches struct metadata
// and is safe for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// EventParams holds the inputs needed to build a run event.
type EventParams struct {
	EventType      EventType `json:"event_type" validate:"oneof=START COMPLETE FAIL"`
	RunIdentifier  string    `json:"run_identifier" validate:"required"`
	TaskIdentifier string    `json:"task_identifier" validate:"required"`
	PipelineID     string    `json:"pipeline_id" validate:"required"`
	Namespace      string    `json:"namespace" validate:"required"`
	Producer       string    `json:"producer" validate:"required"`
	Inputs         []Dataset `json:"inputs"`
	Outputs        []Dataset `json:"outputs"`

	// ErrorMessage is attached as an errorMessage facet on FAIL events.
	ErrorMessage string `json:"error_message"`
}

// RunID derives the run identifier shared by all events of one task
// execution.
func RunID(runIdentifier, taskIdentifier string) string {
	return runIdentifier + "." + taskIdentifier
}

// JobName derives the job name of a task within its pipeline.
func JobName(pipelineID, taskIdentifier string) string {
	return pipelineID + "." + taskIdentifier
}

// NewRunEvent validates p and builds a run event stamped with the current
// UTC time. It returns an *InvalidEventError when any field is missing or
// the event type is unknown.
func NewRunEvent(p EventParams) (RunEvent, error) {
	if err := p.Validate(); err != nil {
		return RunEvent{}, err
	}

	event := RunEvent{
		EventTime: time.Now().UTC(),
		EventType: p.EventType,
		Producer:  p.Producer,
		SchemaURL: SchemaURL,
		Run:       Run{RunID: RunID(p.RunIdentifier, p.TaskIdentifier)},
		Job: Job{
			Namespace: p.Namespace,
			Name:      JobName(p.PipelineID, p.TaskIdentifier),
		},
		Inputs:  cloneDatasets(p.Inputs),
		Outputs: cloneDatasets(p.Outputs),
	}

	if p.EventType == EventTypeFail && p.ErrorMessage != "" {
		facet, err := sonic.ConfigStd.Marshal(ErrorMessageFacet{
			Producer:            p.Producer,
			SchemaURL:           ErrorMessageFacetSchemaURL,
			Message:             p.ErrorMessage,
			ProgrammingLanguage: "python",
		})
		if err != nil {
			return RunEvent{}, fmt.Errorf("failed to encode error message facet: %w", err)
		}
		event.Run.Facets = map[string]json.RawMessage{"errorMessage": facet}
	}

	return event, nil
}

// Validate checks p without building an event.
func (p EventParams) Validate() error {
	var fields []string

	if err := validate.Struct(p); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		for _, fe := range validationErrors {
			fields = append(fields, fe.Field())
		}
	}

	fields = append(fields, invalidDatasets("inputs", p.Inputs)...)
	fields = append(fields, invalidDatasets("outputs", p.Outputs)...)

	if len(fields) > 0 {
		return &InvalidEventError{Fields: fields}
	}
	return nil
}

func invalidDatasets(name string, datasets []Dataset) []string {
	var fields []string
	for i, ds := range datasets {
		if !sonic.Valid(ds) {
			fields = append(fields, fmt.Sprintf("%s[%d]", name, i))
		}
	}
	return fields
}

// cloneDatasets copies the slice so later mutation by the caller cannot leak
// into the event, and never returns nil so the wire form is always an array.
func cloneDatasets(in []Dataset) []Dataset {
	out := make([]Dataset, len(in))
	for i, ds := range in {
		out[i] = append(Dataset(nil), ds...)
	}
	return out
}
