package model

import (
	"errors"
	"time"
)

// MessageLogStatus is the lifecycle state of an outbound message attempt.
//
//	pending -> sent    provider accepted the message (all items, for a batch)
//	pending -> failed  provider rejected, or no send was attempted
//	pending -> partial catalog batch where some but not all items succeeded
type MessageLogStatus string

const (
	MessageLogStatusPending MessageLogStatus = "pending"
	MessageLogStatusSent    MessageLogStatus = "sent"
	MessageLogStatusFailed  MessageLogStatus = "failed"
	MessageLogStatusPartial MessageLogStatus = "partial"
)

const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeDocument = "document"
	MessageTypeCatalog  = "catalog"
)

const DefaultMaxRetries = 3

// MessageLog is the audit record of one outbound message attempt.
// Rows are never deleted; status transitions are the only mutation.
type MessageLog struct {
	ID       int64  `json:"id"        db:"id"        gorm:"primaryKey;autoIncrement;column:id"`
	TenantID int64  `json:"tenant_id" db:"tenant_id" gorm:"column:tenant_id;not null;index"`
	CallID   *int64 `json:"call_id"   db:"call_id"   gorm:"column:call_id;index"`

	RecipientPhone string `json:"recipient_phone" db:"recipient_phone" gorm:"column:recipient_phone;not null"`

	MessageType    string `json:"message_type"    db:"message_type"    gorm:"column:message_type;not null"`
	MessageContent string `json:"message_content" db:"message_content" gorm:"column:message_content"`
	MediaURL       string `json:"media_url"       db:"media_url"       gorm:"column:media_url"`

	WhatsAppMessageID string           `json:"whatsapp_message_id" db:"whatsapp_message_id" gorm:"column:whatsapp_message_id"`
	Status            MessageLogStatus `json:"status"              db:"status"              gorm:"column:status;default:pending"`
	ErrorMessage      string           `json:"error_message"       db:"error_message"       gorm:"column:error_message"`
	APIResponse       string           `json:"api_response"        db:"api_response"        gorm:"column:api_response"`

	RetryCount int `json:"retry_count" db:"retry_count" gorm:"column:retry_count;default:0"`
	MaxRetries int `json:"max_retries" db:"max_retries" gorm:"column:max_retries;default:3"`

	CreatedAt   time.Time  `json:"created_at"   db:"created_at"   gorm:"column:created_at;autoCreateTime"`
	SentAt      *time.Time `json:"sent_at"      db:"sent_at"      gorm:"column:sent_at"`
	DeliveredAt *time.Time `json:"delivered_at" db:"delivered_at" gorm:"column:delivered_at"`
}

func (MessageLog) TableName() string { return "message_logs" }

var ErrInvalidLogTransition = errors.New("invalid message log transition")

// CanTransition reports whether a log in the current status may move to next.
// Terminal states only change through a retry attempt, which resets to pending
// while incrementing retry_count.
func (m *MessageLog) CanTransition(next MessageLogStatus) bool {
	if m.Status == MessageLogStatusPending {
		return next == MessageLogStatusSent || next == MessageLogStatusFailed || next == MessageLogStatusPartial
	}
	return next == MessageLogStatusPending && m.RetryCount < m.MaxRetries
}

// MessageLogFilter controls List queries.
type MessageLogFilter struct {
	TenantID       *int64
	CallID         *int64
	RecipientPhone *string
	Statuses       []MessageLogStatus
	From           *time.Time
	To             *time.Time
	Limit          int
	Offset         int
	Desc           bool
}
