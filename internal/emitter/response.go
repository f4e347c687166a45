package emitter

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/correlator-io/correlator-airflow/internal/redact"
)

// Outcome is the classification of one backend response.
type Outcome string

// Delivery outcomes.
const (
	OutcomeSuccess         Outcome = "success"
	OutcomePartialSuccess  Outcome = "partial_success"
	OutcomeValidationError Outcome = "validation_error"
	OutcomeRateLimited     Outcome = "rate_limited"
	OutcomeServerError     Outcome = "server_error"
	OutcomeTransportError  Outcome = "transport_error"
)

// Classify maps an HTTP status code to a delivery outcome. Client errors
// other than 429 count as validation failures; anything unrecognized
// counts as a server error.
func Classify(status int) Outcome {
	switch {
	case status == http.StatusOK, status == http.StatusNoContent:
		return OutcomeSuccess
	case status == http.StatusMultiStatus:
		return OutcomePartialSuccess
	case status == http.StatusTooManyRequests:
		return OutcomeRateLimited
	case status >= 400 && status < 500:
		return OutcomeValidationError
	default:
		return OutcomeServerError
	}
}

func (o Outcome) kind() Kind {
	switch o {
	case OutcomeValidationError:
		return KindValidation
	case OutcomeRateLimited:
		return KindRateLimited
	case OutcomeTransportError:
		return KindTransport
	default:
		return KindServerError
	}
}

// batchSummary is the optional summary block of a backend response.
type batchSummary struct {
	Received   *int `json:"received"`
	Successful int  `json:"successful"`
	Failed     int  `json:"failed"`
}

// failedEvent is one rejected item of a partially accepted batch.
type failedEvent struct {
	Index  *int   `json:"index"`
	Reason string `json:"reason"`
}

type batchResponse struct {
	Summary      *batchSummary `json:"summary"`
	FailedEvents []failedEvent `json:"failed_events"`
}

func handleResponse(
	ctx context.Context,
	log *slog.Logger,
	status int,
	body []byte,
	eventCount int,
	endpoint string,
	apiKey string,
) error {
	outcome := Classify(status)
	log = log.With("status", status, "outcome", string(outcome))

	switch outcome {
	case OutcomeSuccess:
		log.InfoContext(ctx, "lineage events emitted")
		if status == http.StatusOK && len(body) > 0 {
			logSummary(ctx, log, body)
		}
		return nil

	case OutcomePartialSuccess:
		logPartialSuccess(ctx, log, body, eventCount, apiKey)
		return nil

	default:
		return &DeliveryError{
			Kind:       outcome.kind(),
			StatusCode: status,
			Body:       redact.Secrets(excerpt(body), apiKey),
			Endpoint:   endpoint,
		}
	}
}

// logSummary reports the counters of a 200 response body. Parsing is best
// effort; an unexpected body is ignored.
func logSummary(ctx context.Context, log *slog.Logger, body []byte) {
	var resp batchResponse
	if err := sonic.ConfigStd.Unmarshal(body, &resp); err != nil || resp.Summary == nil {
		return
	}
	log.InfoContext(ctx, "backend accepted lineage events",
		"successful", resp.Summary.Successful,
		"failed", resp.Summary.Failed)
}

// logPartialSuccess emits one warning per rejected item. The summary goes
// out at info so the warning count matches the number of rejected events.
func logPartialSuccess(ctx context.Context, log *slog.Logger, body []byte, eventCount int, apiKey string) {
	var resp batchResponse
	if err := sonic.ConfigStd.Unmarshal(body, &resp); err != nil {
		log.WarnContext(ctx, "partial lineage delivery, response could not be parsed",
			"error", err.Error(),
			"body", redact.Secrets(excerpt(body), apiKey))
		return
	}

	received := eventCount
	successful := eventCount - len(resp.FailedEvents)
	if resp.Summary != nil {
		successful = resp.Summary.Successful
		if resp.Summary.Received != nil {
			received = *resp.Summary.Received
		}
	}
	log.InfoContext(ctx, "partial lineage delivery",
		"successful", successful,
		"received", received,
		"failed", len(resp.FailedEvents))

	if len(resp.FailedEvents) == 0 {
		log.WarnContext(ctx, "partial lineage delivery reported without failed event details")
		return
	}

	for _, failed := range resp.FailedEvents {
		reason := failed.Reason
		if reason == "" {
			reason = "unknown error"
		}
		attrs := []any{"reason", reason}
		if failed.Index != nil {
			attrs = append(attrs, "index", *failed.Index)
		}
		log.WarnContext(ctx, "lineage event rejected by backend", attrs...)
	}
}
