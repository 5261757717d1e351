package model

import "time"

// Normalized call statuses. Unknown provider codes pass through unchanged.
const (
	CallStatusCompleted = "completed"
	CallStatusBusy      = "busy"
	CallStatusNoAnswer  = "no-answer"
	CallStatusFailed    = "failed"
	CallStatusCanceled  = "canceled"
)

const (
	ProviderTwilio  = "twilio"
	ProviderExotel  = "exotel"
	ProviderGeneric = "generic"
)

// Call is the canonical call-ended event, one row per webhook delivery.
// The only mutation after creation is the automation stamp, set at most once.
type Call struct {
	ID       int64 `json:"id"        db:"id"        gorm:"primaryKey;autoIncrement;column:id"`
	TenantID int64 `json:"tenant_id" db:"tenant_id" gorm:"column:tenant_id;not null;index"`

	CallSid       string `json:"call_sid"       db:"call_sid"       gorm:"column:call_sid;index"`
	CallerPhone   string `json:"caller_phone"   db:"caller_phone"   gorm:"column:caller_phone;not null;index"`
	ReceiverPhone string `json:"receiver_phone" db:"receiver_phone" gorm:"column:receiver_phone"`

	Status          string `json:"status"           db:"status"           gorm:"column:status;default:completed"`
	DurationSeconds *int   `json:"duration_seconds" db:"duration_seconds" gorm:"column:duration_seconds"`

	Provider string `json:"provider" db:"provider" gorm:"column:provider;default:generic"`

	AutomationTriggered   bool       `json:"automation_triggered"    db:"automation_triggered"    gorm:"column:automation_triggered;default:false"`
	AutomationTriggeredAt *time.Time `json:"automation_triggered_at" db:"automation_triggered_at" gorm:"column:automation_triggered_at"`
	AutomationStatus      string     `json:"automation_status"       db:"automation_status"       gorm:"column:automation_status"`

	StartedAt *time.Time `json:"started_at" db:"started_at" gorm:"column:started_at"`
	EndedAt   *time.Time `json:"ended_at"   db:"ended_at"   gorm:"column:ended_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (Call) TableName() string { return "calls" }

// CallFilter controls List queries.
type CallFilter struct {
	TenantID    *int64
	CallerPhone *string
	Statuses    []string
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
	Desc        bool
}
