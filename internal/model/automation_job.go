package model

// AutomationJob is the payload enqueued for asynchronous post-call automation.
// Attempt counts executions of this job; the worker re-enqueues with
// Attempt+1 on failure until the retry cap is reached. Retry jobs resend only
// the failed message logs of the call instead of running the full flow.
type AutomationJob struct {
	TenantID    int64  `json:"tenant_id"`
	CallID      int64  `json:"call_id"`
	CallerPhone string `json:"caller_phone"`
	Attempt     int    `json:"attempt"`
	Retry       bool   `json:"retry,omitempty"`
}
