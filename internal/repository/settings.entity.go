package repository

import (
	"time"

	"github.com/callloop/postcall-gateway/internal/model"
)

type TenantSettingsEntity struct {
	ID       int64 `db:"id"        gorm:"primaryKey;autoIncrement;column:id"`
	TenantID int64 `db:"tenant_id" gorm:"column:tenant_id;not null;uniqueIndex"`

	WhatsAppPhoneNumberID     string `db:"whatsapp_phone_number_id"      gorm:"column:whatsapp_phone_number_id"`
	WhatsAppBusinessAccountID string `db:"whatsapp_business_account_id"  gorm:"column:whatsapp_business_account_id"`
	WhatsAppAccessToken       string `db:"whatsapp_access_token"         gorm:"column:whatsapp_access_token"`
	WhatsAppVerifyToken       string `db:"whatsapp_webhook_verify_token" gorm:"column:whatsapp_webhook_verify_token"`

	WebhookSecretKey string `db:"webhook_secret_key" gorm:"column:webhook_secret_key"`

	ThankYouMessage      string `db:"thank_you_message"      gorm:"column:thank_you_message"`
	IncludeCatalog       bool   `db:"include_catalog"        gorm:"column:include_catalog;default:true"`
	CatalogHeaderMessage string `db:"catalog_header_message" gorm:"column:catalog_header_message"`
	CatalogFooterMessage string `db:"catalog_footer_message" gorm:"column:catalog_footer_message"`

	MessageDelaySeconds int `db:"message_delay_seconds" gorm:"column:message_delay_seconds;default:5"`

	IsWhatsAppConfigured bool `db:"is_whatsapp_configured" gorm:"column:is_whatsapp_configured;default:false"`
	IsActive             bool `db:"is_active"              gorm:"column:is_active;default:true"`

	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `db:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (TenantSettingsEntity) TableName() string { return "tenant_settings" }

type AutomationSettingsEntity struct {
	ID       int64 `db:"id"        gorm:"primaryKey;autoIncrement;column:id"`
	TenantID int64 `db:"tenant_id" gorm:"column:tenant_id;not null;uniqueIndex"`

	Enabled                bool   `db:"enabled"                   gorm:"column:enabled;default:false"`
	DelaySeconds           int    `db:"delay_seconds"             gorm:"column:delay_seconds;default:60"`
	MinCallDurationSeconds int    `db:"min_call_duration_seconds" gorm:"column:min_call_duration_seconds;default:0"`
	SendMode               string `db:"send_mode"                 gorm:"column:send_mode;default:thank_you_and_full_catalog"`

	IncludeCategories string `db:"include_categories" gorm:"column:include_categories"`
	ExcludeCategories string `db:"exclude_categories" gorm:"column:exclude_categories"`

	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `db:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (AutomationSettingsEntity) TableName() string { return "automation_settings" }

func toTenantSettingsEntity(m *model.TenantSettings) *TenantSettingsEntity {
	if m == nil {
		return nil
	}
	return &TenantSettingsEntity{
		ID:                        m.ID,
		TenantID:                  m.TenantID,
		WhatsAppPhoneNumberID:     m.WhatsAppPhoneNumberID,
		WhatsAppBusinessAccountID: m.WhatsAppBusinessAccountID,
		WhatsAppAccessToken:       m.WhatsAppAccessToken,
		WhatsAppVerifyToken:       m.WhatsAppVerifyToken,
		WebhookSecretKey:          m.WebhookSecretKey,
		ThankYouMessage:           m.ThankYouMessage,
		IncludeCatalog:            m.IncludeCatalog,
		CatalogHeaderMessage:      m.CatalogHeaderMessage,
		CatalogFooterMessage:      m.CatalogFooterMessage,
		MessageDelaySeconds:       m.MessageDelaySeconds,
		IsWhatsAppConfigured:      m.IsWhatsAppConfigured,
		IsActive:                  m.IsActive,
		CreatedAt:                 m.CreatedAt,
		UpdatedAt:                 m.UpdatedAt,
	}
}

func toTenantSettingsModel(e *TenantSettingsEntity) *model.TenantSettings {
	if e == nil {
		return nil
	}
	return &model.TenantSettings{
		ID:                        e.ID,
		TenantID:                  e.TenantID,
		WhatsAppPhoneNumberID:     e.WhatsAppPhoneNumberID,
		WhatsAppBusinessAccountID: e.WhatsAppBusinessAccountID,
		WhatsAppAccessToken:       e.WhatsAppAccessToken,
		WhatsAppVerifyToken:       e.WhatsAppVerifyToken,
		WebhookSecretKey:          e.WebhookSecretKey,
		ThankYouMessage:           e.ThankYouMessage,
		IncludeCatalog:            e.IncludeCatalog,
		CatalogHeaderMessage:      e.CatalogHeaderMessage,
		CatalogFooterMessage:      e.CatalogFooterMessage,
		MessageDelaySeconds:       e.MessageDelaySeconds,
		IsWhatsAppConfigured:      e.IsWhatsAppConfigured,
		IsActive:                  e.IsActive,
		CreatedAt:                 e.CreatedAt,
		UpdatedAt:                 e.UpdatedAt,
	}
}

func toAutomationSettingsEntity(m *model.AutomationSettings) *AutomationSettingsEntity {
	if m == nil {
		return nil
	}
	return &AutomationSettingsEntity{
		ID:                     m.ID,
		TenantID:               m.TenantID,
		Enabled:                m.Enabled,
		DelaySeconds:           m.DelaySeconds,
		MinCallDurationSeconds: m.MinCallDurationSeconds,
		SendMode:               m.SendMode,
		IncludeCategories:      m.IncludeCategories,
		ExcludeCategories:      m.ExcludeCategories,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

func toAutomationSettingsModel(e *AutomationSettingsEntity) *model.AutomationSettings {
	if e == nil {
		return nil
	}
	return &model.AutomationSettings{
		ID:                     e.ID,
		TenantID:               e.TenantID,
		Enabled:                e.Enabled,
		DelaySeconds:           e.DelaySeconds,
		MinCallDurationSeconds: e.MinCallDurationSeconds,
		SendMode:               e.SendMode,
		IncludeCategories:      e.IncludeCategories,
		ExcludeCategories:      e.ExcludeCategories,
		CreatedAt:              e.CreatedAt,
		UpdatedAt:              e.UpdatedAt,
	}
}
