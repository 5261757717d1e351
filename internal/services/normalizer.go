package services

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/callloop/postcall-gateway/internal/model"
)

// NormalizedCall is the provider-independent view of a call-ended event.
type NormalizedCall struct {
	CallSid         string
	CallerPhone     string
	ReceiverPhone   string
	Status          string
	DurationSeconds *int
	Provider        string
}

// ParseWebhookBody flattens the webhook body into string fields. Telephony
// providers post either form-encoded or JSON bodies; nested JSON values are
// ignored, scalars are stringified.
func ParseWebhookBody(body []byte, contentType string) (map[string]string, error) {
	fields := make(map[string]string)

	if strings.Contains(contentType, "application/json") {
		var raw map[string]interface{}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse JSON body: %w", err)
		}
		for k, v := range raw {
			switch val := v.(type) {
			case string:
				fields[k] = val
			case float64:
				if val == float64(int64(val)) {
					fields[k] = strconv.FormatInt(int64(val), 10)
				} else {
					fields[k] = strconv.FormatFloat(val, 'f', -1, 64)
				}
			case bool:
				fields[k] = strconv.FormatBool(val)
			}
		}
		return fields, nil
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse form body: %w", err)
	}
	for k, vs := range values {
		if len(vs) > 0 {
			fields[k] = vs[0]
		}
	}
	return fields, nil
}

type callParser func(fields map[string]string) (*NormalizedCall, bool)

// Ordered most-specific first; the generic parser always matches.
var callParsers = []callParser{
	parseTwilioPayload,
	parseExotelPayload,
	parseGenericPayload,
}

// NormalizeCall detects the provider shape and maps the fields into the
// canonical form. The generic parser guarantees a non-nil result.
func NormalizeCall(fields map[string]string) *NormalizedCall {
	for _, parse := range callParsers {
		if call, ok := parse(fields); ok {
			call.Status = NormalizeCallStatus(call.Status)
			return call
		}
	}
	return nil
}

func parseTwilioPayload(fields map[string]string) (*NormalizedCall, bool) {
	if fields["CallSid"] == "" || fields["AccountSid"] == "" {
		return nil, false
	}
	return &NormalizedCall{
		CallSid:         fields["CallSid"],
		CallerPhone:     fields["From"],
		ReceiverPhone:   fields["To"],
		Status:          fields["CallStatus"],
		DurationSeconds: parseDuration(fields["CallDuration"]),
		Provider:        model.ProviderTwilio,
	}, true
}

func parseExotelPayload(fields map[string]string) (*NormalizedCall, bool) {
	if fields["CallSid"] == "" || fields["Status"] == "" {
		return nil, false
	}
	caller := fields["From"]
	if caller == "" {
		caller = fields["CallFrom"]
	}
	receiver := fields["To"]
	if receiver == "" {
		receiver = fields["CallTo"]
	}
	return &NormalizedCall{
		CallSid:         fields["CallSid"],
		CallerPhone:     caller,
		ReceiverPhone:   receiver,
		Status:          fields["Status"],
		DurationSeconds: parseDuration(fields["DialCallDuration"]),
		Provider:        model.ProviderExotel,
	}, true
}

func parseGenericPayload(fields map[string]string) (*NormalizedCall, bool) {
	caller := firstNonEmpty(fields, "caller", "from", "caller_phone")
	receiver := firstNonEmpty(fields, "receiver", "to", "receiver_phone")

	sid := firstNonEmpty(fields, "call_sid", "call_id")
	if sid == "" {
		sid = fmt.Sprintf("call_%d", time.Now().UnixNano())
	}

	status := firstNonEmpty(fields, "status", "call_status")
	if status == "" {
		status = model.CallStatusCompleted
	}

	return &NormalizedCall{
		CallSid:         sid,
		CallerPhone:     caller,
		ReceiverPhone:   receiver,
		Status:          status,
		DurationSeconds: parseDuration(firstNonEmpty(fields, "duration", "duration_seconds", "call_duration")),
		Provider:        model.ProviderGeneric,
	}, true
}

var statusAliases = map[string]string{
	"completed": model.CallStatusCompleted,
	"complete":  model.CallStatusCompleted,
	"answered":  model.CallStatusCompleted,
	"busy":      model.CallStatusBusy,
	"no-answer": model.CallStatusNoAnswer,
	"no_answer": model.CallStatusNoAnswer,
	"noanswer":  model.CallStatusNoAnswer,
	"failed":    model.CallStatusFailed,
	"canceled":  model.CallStatusCanceled,
	"cancelled": model.CallStatusCanceled,
}

// NormalizeCallStatus maps provider status vocabularies onto the canonical
// set. Unknown statuses pass through lowercased so nothing gets lost.
func NormalizeCallStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return model.CallStatusCompleted
	}
	if canonical, ok := statusAliases[s]; ok {
		return canonical
	}
	return s
}

func parseDuration(raw string) *int {
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

func firstNonEmpty(fields map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := fields[k]; v != "" {
			return v
		}
	}
	return ""
}
