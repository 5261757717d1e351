package services

import (
	"github.com/callloop/postcall-gateway/internal/model"
)

// PolicyDecision is the outcome of evaluating automation policy for a call.
// Reason is set only when the call is skipped.
type PolicyDecision struct {
	Eligible     bool
	Reason       string
	DelaySeconds int
}

const (
	SkipReasonNotCompleted     = "call not completed"
	SkipReasonNoCaller         = "caller phone missing"
	SkipReasonTenantInactive   = "tenant settings inactive"
	SkipReasonNotConfigured    = "whatsapp not configured"
	SkipReasonDisabled         = "automation disabled"
	SkipReasonBelowMinDuration = "call below minimum duration"
)

// EvaluateAutomationPolicy decides whether a call should trigger the
// follow-up flow and with what delay. A nil automation settings row means the
// tenant never customized the policy; only tenant-level flags apply then.
func EvaluateAutomationPolicy(ts *model.TenantSettings, as *model.AutomationSettings, call *model.Call) PolicyDecision {
	if call.Status != model.CallStatusCompleted {
		return PolicyDecision{Reason: SkipReasonNotCompleted}
	}
	if call.CallerPhone == "" {
		return PolicyDecision{Reason: SkipReasonNoCaller}
	}
	if ts == nil || !ts.IsActive {
		return PolicyDecision{Reason: SkipReasonTenantInactive}
	}
	if !ts.IsWhatsAppConfigured {
		return PolicyDecision{Reason: SkipReasonNotConfigured}
	}
	if as != nil && !as.Enabled {
		return PolicyDecision{Reason: SkipReasonDisabled}
	}

	if as != nil && as.MinCallDurationSeconds > 0 {
		// An unknown duration cannot prove the floor was met.
		if call.DurationSeconds == nil || *call.DurationSeconds < as.MinCallDurationSeconds {
			return PolicyDecision{Reason: SkipReasonBelowMinDuration}
		}
	}

	delay := model.DefaultMessageDelaySeconds
	if ts.MessageDelaySeconds > 0 {
		delay = ts.MessageDelaySeconds
	}
	if as != nil && as.DelaySeconds > 0 {
		delay = as.DelaySeconds
	}

	return PolicyDecision{
		Eligible:     true,
		DelaySeconds: delay,
	}
}
