package model

import "time"

// WebhookCall is the raw audit row persisted for every webhook delivery,
// alongside the canonical Call row.
type WebhookCall struct {
	ID       int64 `json:"id"        db:"id"        gorm:"primaryKey;autoIncrement;column:id"`
	TenantID int64 `json:"tenant_id" db:"tenant_id" gorm:"column:tenant_id;not null;index"`

	Provider      string `json:"provider"       db:"provider"       gorm:"column:provider;not null"`
	CallSid       string `json:"call_sid"       db:"call_sid"       gorm:"column:call_sid;index"`
	CallerPhone   string `json:"caller_phone"   db:"caller_phone"   gorm:"column:caller_phone"`
	ReceiverPhone string `json:"receiver_phone" db:"receiver_phone" gorm:"column:receiver_phone"`
	Status        string `json:"status"         db:"status"         gorm:"column:status"`
	RawPayload    string `json:"raw_payload"    db:"raw_payload"    gorm:"column:raw_payload"`

	CreatedAt time.Time `json:"created_at" db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (WebhookCall) TableName() string { return "webhook_calls" }
