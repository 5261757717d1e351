package repository

import (
	"time"

	"github.com/callloop/postcall-gateway/internal/model"
)

type WebhookCallEntity struct {
	ID       int64 `db:"id"        gorm:"primaryKey;autoIncrement;column:id"`
	TenantID int64 `db:"tenant_id" gorm:"column:tenant_id;not null;index"`

	Provider      string `db:"provider"       gorm:"column:provider"`
	CallSid       string `db:"call_sid"       gorm:"column:call_sid;index"`
	CallerPhone   string `db:"caller_phone"   gorm:"column:caller_phone"`
	ReceiverPhone string `db:"receiver_phone" gorm:"column:receiver_phone"`
	Status        string `db:"status"         gorm:"column:status"`
	RawPayload    string `db:"raw_payload"    gorm:"column:raw_payload"`

	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (WebhookCallEntity) TableName() string { return "webhook_calls" }

func toWebhookCallModel(e *WebhookCallEntity) *model.WebhookCall {
	if e == nil {
		return nil
	}
	return &model.WebhookCall{
		ID:            e.ID,
		TenantID:      e.TenantID,
		Provider:      e.Provider,
		CallSid:       e.CallSid,
		CallerPhone:   e.CallerPhone,
		ReceiverPhone: e.ReceiverPhone,
		Status:        e.Status,
		RawPayload:    e.RawPayload,
		CreatedAt:     e.CreatedAt,
	}
}
