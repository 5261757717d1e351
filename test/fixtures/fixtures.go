package fixtures

import (
	"fmt"
	"net/url"

	"github.com/callloop/postcall-gateway/internal/model"
)

var (
	TestTenant1 = model.Tenant{
		ID:       1,
		Name:     "Acme Jewellers",
		Slug:     "acme",
		IsActive: true,
	}

	TestTenant2 = model.Tenant{
		ID:       2,
		Name:     "Lotus Gems",
		Slug:     "lotus",
		IsActive: true,
	}

	TestTenantInactive = model.Tenant{
		ID:       3,
		Name:     "Closed Shop",
		Slug:     "closed",
		IsActive: false,
	}
)

// TwilioCallEndedForm renders a form-encoded Twilio status callback body.
func TwilioCallEndedForm(callSid, from, status string, durationSeconds int) []byte {
	values := url.Values{}
	values.Set("CallSid", callSid)
	values.Set("AccountSid", "AC00000000000000000000000000000000")
	values.Set("From", from)
	values.Set("To", "+15550000000")
	values.Set("CallStatus", status)
	values.Set("CallDuration", fmt.Sprintf("%d", durationSeconds))
	return []byte(values.Encode())
}

// ExotelCallEndedForm renders a form-encoded Exotel passthru body.
func ExotelCallEndedForm(callSid, from, status string) []byte {
	values := url.Values{}
	values.Set("CallSid", callSid)
	values.Set("CallFrom", from)
	values.Set("CallTo", "09513886363")
	values.Set("Status", status)
	return []byte(values.Encode())
}

// GenericCallEndedJSON renders a JSON call-ended body in the generic shape.
func GenericCallEndedJSON(callID, callerPhone, status string) []byte {
	return []byte(fmt.Sprintf(
		`{"call_id":%q,"caller_phone":%q,"status":%q}`, callID, callerPhone, status))
}

var (
	ValidCallerPhones = []string{
		"+15551234567",
		"+919876543210",
		"+4412345678",
		"09312345678",
	}

	CompletedCallStatuses = []string{
		"completed",
		"Completed",
		"answered",
	}

	SkippedCallStatuses = []string{
		"busy",
		"no-answer",
		"failed",
		"canceled",
	}
)

func CallFilterByTenant(tenantID int64) model.CallFilter {
	return model.CallFilter{
		TenantID: &tenantID,
		Limit:    50,
		Offset:   0,
	}
}

func MessageLogFilterByCall(tenantID, callID int64) model.MessageLogFilter {
	return model.MessageLogFilter{
		TenantID: &tenantID,
		CallID:   &callID,
		Limit:    50,
		Offset:   0,
	}
}
