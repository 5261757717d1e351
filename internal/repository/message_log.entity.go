package repository

import (
	"time"

	"github.com/callloop/postcall-gateway/internal/model"
)

type MessageLogEntity struct {
	ID       int64  `db:"id"        gorm:"primaryKey;autoIncrement;column:id"`
	TenantID int64  `db:"tenant_id" gorm:"column:tenant_id;not null;index"`
	CallID   *int64 `db:"call_id"   gorm:"column:call_id;index"`

	RecipientPhone string `db:"recipient_phone" gorm:"column:recipient_phone;not null"`

	MessageType    string `db:"message_type"    gorm:"column:message_type;not null"`
	MessageContent string `db:"message_content" gorm:"column:message_content"`
	MediaURL       string `db:"media_url"       gorm:"column:media_url"`

	WhatsAppMessageID string `db:"whatsapp_message_id" gorm:"column:whatsapp_message_id"`
	Status            string `db:"status"              gorm:"column:status;default:pending;index"`
	ErrorMessage      string `db:"error_message"       gorm:"column:error_message"`
	APIResponse       string `db:"api_response"        gorm:"column:api_response"`

	RetryCount int `db:"retry_count" gorm:"column:retry_count;default:0"`
	MaxRetries int `db:"max_retries" gorm:"column:max_retries;default:3"`

	CreatedAt   time.Time  `db:"created_at"   gorm:"column:created_at;autoCreateTime"`
	SentAt      *time.Time `db:"sent_at"      gorm:"column:sent_at"`
	DeliveredAt *time.Time `db:"delivered_at" gorm:"column:delivered_at"`
}

func (MessageLogEntity) TableName() string { return "message_logs" }

func toMessageLogEntity(m *model.MessageLog) *MessageLogEntity {
	if m == nil {
		return nil
	}
	return &MessageLogEntity{
		ID:                m.ID,
		TenantID:          m.TenantID,
		CallID:            m.CallID,
		RecipientPhone:    m.RecipientPhone,
		MessageType:       m.MessageType,
		MessageContent:    m.MessageContent,
		MediaURL:          m.MediaURL,
		WhatsAppMessageID: m.WhatsAppMessageID,
		Status:            string(m.Status),
		ErrorMessage:      m.ErrorMessage,
		APIResponse:       m.APIResponse,
		RetryCount:        m.RetryCount,
		MaxRetries:        m.MaxRetries,
		CreatedAt:         m.CreatedAt,
		SentAt:            m.SentAt,
		DeliveredAt:       m.DeliveredAt,
	}
}

func toMessageLogModel(e *MessageLogEntity) *model.MessageLog {
	if e == nil {
		return nil
	}
	return &model.MessageLog{
		ID:                e.ID,
		TenantID:          e.TenantID,
		CallID:            e.CallID,
		RecipientPhone:    e.RecipientPhone,
		MessageType:       e.MessageType,
		MessageContent:    e.MessageContent,
		MediaURL:          e.MediaURL,
		WhatsAppMessageID: e.WhatsAppMessageID,
		Status:            model.MessageLogStatus(e.Status),
		ErrorMessage:      e.ErrorMessage,
		APIResponse:       e.APIResponse,
		RetryCount:        e.RetryCount,
		MaxRetries:        e.MaxRetries,
		CreatedAt:         e.CreatedAt,
		SentAt:            e.SentAt,
		DeliveredAt:       e.DeliveredAt,
	}
}

func toMessageLogModels(entities []*MessageLogEntity) []*model.MessageLog {
	if entities == nil {
		return nil
	}
	models := make([]*model.MessageLog, len(entities))
	for i, e := range entities {
		models[i] = toMessageLogModel(e)
	}
	return models
}
