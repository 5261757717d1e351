package repository

import (
	"time"

	"github.com/callloop/postcall-gateway/internal/model"
)

type CallEntity struct {
	ID       int64 `db:"id"        gorm:"primaryKey;autoIncrement;column:id"`
	TenantID int64 `db:"tenant_id" gorm:"column:tenant_id;not null;index;uniqueIndex:idx_calls_dedup,priority:1"`

	CallSid       string `db:"call_sid"       gorm:"column:call_sid;uniqueIndex:idx_calls_dedup,priority:3"`
	CallerPhone   string `db:"caller_phone"   gorm:"column:caller_phone;not null;index"`
	ReceiverPhone string `db:"receiver_phone" gorm:"column:receiver_phone"`

	Status          string `db:"status"           gorm:"column:status;default:completed"`
	DurationSeconds *int   `db:"duration_seconds" gorm:"column:duration_seconds"`

	Provider string `db:"provider" gorm:"column:provider;default:generic;uniqueIndex:idx_calls_dedup,priority:2"`

	AutomationTriggered   bool       `db:"automation_triggered"    gorm:"column:automation_triggered;default:false"`
	AutomationTriggeredAt *time.Time `db:"automation_triggered_at" gorm:"column:automation_triggered_at"`
	AutomationStatus      string     `db:"automation_status"       gorm:"column:automation_status"`

	StartedAt *time.Time `db:"started_at" gorm:"column:started_at"`
	EndedAt   *time.Time `db:"ended_at"   gorm:"column:ended_at"`
	CreatedAt time.Time  `db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (CallEntity) TableName() string { return "calls" }

func toCallEntity(m *model.Call) *CallEntity {
	if m == nil {
		return nil
	}
	return &CallEntity{
		ID:                    m.ID,
		TenantID:              m.TenantID,
		CallSid:               m.CallSid,
		CallerPhone:           m.CallerPhone,
		ReceiverPhone:         m.ReceiverPhone,
		Status:                m.Status,
		DurationSeconds:       m.DurationSeconds,
		Provider:              m.Provider,
		AutomationTriggered:   m.AutomationTriggered,
		AutomationTriggeredAt: m.AutomationTriggeredAt,
		AutomationStatus:      m.AutomationStatus,
		StartedAt:             m.StartedAt,
		EndedAt:               m.EndedAt,
		CreatedAt:             m.CreatedAt,
	}
}

func toCallModel(e *CallEntity) *model.Call {
	if e == nil {
		return nil
	}
	return &model.Call{
		ID:                    e.ID,
		TenantID:              e.TenantID,
		CallSid:               e.CallSid,
		CallerPhone:           e.CallerPhone,
		ReceiverPhone:         e.ReceiverPhone,
		Status:                e.Status,
		DurationSeconds:       e.DurationSeconds,
		Provider:              e.Provider,
		AutomationTriggered:   e.AutomationTriggered,
		AutomationTriggeredAt: e.AutomationTriggeredAt,
		AutomationStatus:      e.AutomationStatus,
		StartedAt:             e.StartedAt,
		EndedAt:               e.EndedAt,
		CreatedAt:             e.CreatedAt,
	}
}

func toCallModels(entities []*CallEntity) []*model.Call {
	if entities == nil {
		return nil
	}
	models := make([]*model.Call, len(entities))
	for i, e := range entities {
		models[i] = toCallModel(e)
	}
	return models
}
