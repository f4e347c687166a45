package lineage

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProducer = "https://github.com/correlator-io/correlator-airflow/0.0.0+dev"

func validParams(eventType EventType) EventParams {
	return EventParams{
		EventType:      eventType,
		RunIdentifier:  "run-abc",
		TaskIdentifier: "task1",
		PipelineID:     "dag1",
		Namespace:      "airflow",
		Producer:       testProducer,
	}
}

func TestNewRunEvent(t *testing.T) {
	before := time.Now().UTC()
	event, err := NewRunEvent(validParams(EventTypeStart))
	require.NoError(t, err)

	assert.Equal(t, EventTypeStart, event.EventType)
	assert.Equal(t, "run-abc.task1", event.Run.RunID)
	assert.Equal(t, "dag1.task1", event.Job.Name)
	assert.Equal(t, "airflow", event.Job.Namespace)
	assert.Equal(t, testProducer, event.Producer)
	assert.Equal(t, SchemaURL, event.SchemaURL)
	assert.Equal(t, time.UTC, event.EventTime.Location())
	assert.False(t, event.EventTime.Before(before))
	assert.NotNil(t, event.Inputs, "inputs must serialize as an array")
	assert.NotNil(t, event.Outputs, "outputs must serialize as an array")
	assert.Nil(t, event.Run.Facets)
}

func TestNewRunEventDeterministicIdentity(t *testing.T) {
	start, err := NewRunEvent(validParams(EventTypeStart))
	require.NoError(t, err)
	complete, err := NewRunEvent(validParams(EventTypeComplete))
	require.NoError(t, err)

	assert.Equal(t, start.Run.RunID, complete.Run.RunID)
	assert.Equal(t, start.Job, complete.Job)
	assert.False(t, complete.EventTime.Before(start.EventTime))
}

func TestNewRunEventEventTypes(t *testing.T) {
	testCases := []struct {
		eventType EventType
		valid     bool
	}{
		{EventTypeStart, true},
		{EventTypeComplete, true},
		{EventTypeFail, true},
		{"RUNNING", false},
		{"start", false},
		{"ABORT", false},
		{"", false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.eventType), func(t *testing.T) {
			assert.Equal(t, tc.valid, tc.eventType.IsValid())

			_, err := NewRunEvent(validParams(tc.eventType))
			if tc.valid {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidEvent))
			var invalid *InvalidEventError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, []string{"event_type"}, invalid.Fields)
		})
	}
}

func TestNewRunEventMissingFields(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*EventParams)
		fields []string
	}{
		{"run identifier", func(p *EventParams) { p.RunIdentifier = "" }, []string{"run_identifier"}},
		{"task identifier", func(p *EventParams) { p.TaskIdentifier = "" }, []string{"task_identifier"}},
		{"pipeline", func(p *EventParams) { p.PipelineID = "" }, []string{"pipeline_id"}},
		{"namespace", func(p *EventParams) { p.Namespace = "" }, []string{"namespace"}},
		{"producer", func(p *EventParams) { p.Producer = "" }, []string{"producer"}},
		{
			"several",
			func(p *EventParams) {
				p.EventType = "BOGUS"
				p.RunIdentifier = ""
				p.PipelineID = ""
			},
			[]string{"event_type", "run_identifier", "pipeline_id"},
		},
		{
			"malformed dataset",
			func(p *EventParams) { p.Outputs = []Dataset{Dataset(`{"name":`)} },
			[]string{"outputs[0]"},
		},
		{
			"malformed input among valid ones",
			func(p *EventParams) {
				p.Inputs = []Dataset{Dataset(`{"name":"ok"}`), Dataset(`[1,2`), Dataset(`not json`)}
			},
			[]string{"inputs[1]", "inputs[2]"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams(EventTypeStart)
			tc.mutate(&p)

			_, err := NewRunEvent(p)
			var invalid *InvalidEventError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tc.fields, invalid.Fields)
			for _, field := range tc.fields {
				assert.Contains(t, err.Error(), field)
			}
		})
	}
}

func TestNewRunEventPassesDatasetsThrough(t *testing.T) {
	p := validParams(EventTypeComplete)
	p.Inputs = []Dataset{
		Dataset(`{"namespace":"postgres://db:5432","name":"public.orders"}`),
		Dataset(`{"namespace":"s3://bucket","name":"raw/orders.csv","facets":{"x":1}}`),
	}
	p.Outputs = []Dataset{Dataset(`{"namespace":"bigquery","name":"mart.orders"}`)}

	event, err := NewRunEvent(p)
	require.NoError(t, err)

	require.Len(t, event.Inputs, 2)
	assert.JSONEq(t, string(p.Inputs[0]), string(event.Inputs[0]))
	assert.JSONEq(t, string(p.Inputs[1]), string(event.Inputs[1]))
	require.Len(t, event.Outputs, 1)

	// Mutating the caller's slice must not change the built event.
	p.Inputs[0][2] = 'X'
	assert.JSONEq(t, `{"namespace":"postgres://db:5432","name":"public.orders"}`, string(event.Inputs[0]))
}

func TestNewRunEventErrorFacet(t *testing.T) {
	p := validParams(EventTypeFail)
	p.ErrorMessage = "division by zero"

	event, err := NewRunEvent(p)
	require.NoError(t, err)
	require.Contains(t, event.Run.Facets, "errorMessage")

	var facet ErrorMessageFacet
	require.NoError(t, json.Unmarshal(event.Run.Facets["errorMessage"], &facet))
	assert.Equal(t, "division by zero", facet.Message)
	assert.Equal(t, testProducer, facet.Producer)
	assert.Equal(t, ErrorMessageFacetSchemaURL, facet.SchemaURL)

	// Only FAIL events carry the facet.
	p.EventType = EventTypeComplete
	event, err = NewRunEvent(p)
	require.NoError(t, err)
	assert.Empty(t, event.Run.Facets)
}

func TestRunEventWireRoundTrip(t *testing.T) {
	event, err := NewRunEvent(validParams(EventTypeStart))
	require.NoError(t, err)

	data, err := json.Marshal([]RunEvent{event})
	require.NoError(t, err)

	// Decode by the receiving contract rather than into RunEvent.
	var decoded []struct {
		EventTime string `json:"eventTime"`
		EventType string `json:"eventType"`
		SchemaURL string `json:"schemaURL"`
		Run       struct {
			RunID string `json:"runId"`
		} `json:"run"`
		Job struct {
			Namespace string `json:"namespace"`
			Name      string `json:"name"`
		} `json:"job"`
		Inputs  []json.RawMessage `json:"inputs"`
		Outputs []json.RawMessage `json:"outputs"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)

	assert.Equal(t, "START", decoded[0].EventType)
	assert.Equal(t, "run-abc.task1", decoded[0].Run.RunID)
	assert.Equal(t, "dag1.task1", decoded[0].Job.Name)
	assert.Equal(t, "airflow", decoded[0].Job.Namespace)
	assert.Equal(t, SchemaURL, decoded[0].SchemaURL)
	assert.NotNil(t, decoded[0].Inputs)

	parsed, err := time.Parse(time.RFC3339Nano, decoded[0].EventTime)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(event.EventTime))
	assert.NotContains(t, string(data), `"facets"`)
}

func TestNewRunEventConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			event, err := NewRunEvent(validParams(EventTypeStart))
			if err != nil {
				errs <- err
				return
			}
			if event.Run.RunID != "run-abc.task1" {
				errs <- errors.New("unexpected run id " + event.Run.RunID)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
