package model

import (
	"strings"
	"time"
)

const (
	SendModeThankYouOnly    = "thank_you_only"
	SendModeFullCatalog     = "thank_you_and_full_catalog"
	SendModeFilteredCatalog = "thank_you_and_filtered_catalog"
)

const DefaultMessageDelaySeconds = 5

// TenantSettings holds per-tenant WhatsApp credentials and message templates.
// At most one row per tenant; created lazily with defaults on first access.
type TenantSettings struct {
	ID       int64 `json:"id"        db:"id"        gorm:"primaryKey;autoIncrement;column:id"`
	TenantID int64 `json:"tenant_id" db:"tenant_id" gorm:"column:tenant_id;not null;uniqueIndex"`

	WhatsAppPhoneNumberID     string `json:"-" db:"whatsapp_phone_number_id"      gorm:"column:whatsapp_phone_number_id"`
	WhatsAppBusinessAccountID string `json:"-" db:"whatsapp_business_account_id"  gorm:"column:whatsapp_business_account_id"`
	WhatsAppAccessToken       string `json:"-" db:"whatsapp_access_token"         gorm:"column:whatsapp_access_token"`
	WhatsAppVerifyToken       string `json:"-" db:"whatsapp_webhook_verify_token" gorm:"column:whatsapp_webhook_verify_token"`

	// Secret used to authenticate incoming telephony webhooks (query param or HMAC key).
	WebhookSecretKey string `json:"-" db:"webhook_secret_key" gorm:"column:webhook_secret_key"`

	ThankYouMessage      string `json:"thank_you_message"      db:"thank_you_message"      gorm:"column:thank_you_message"`
	IncludeCatalog       bool   `json:"include_catalog"        db:"include_catalog"        gorm:"column:include_catalog;default:true"`
	CatalogHeaderMessage string `json:"catalog_header_message" db:"catalog_header_message" gorm:"column:catalog_header_message"`
	CatalogFooterMessage string `json:"catalog_footer_message" db:"catalog_footer_message" gorm:"column:catalog_footer_message"`

	MessageDelaySeconds int `json:"message_delay_seconds" db:"message_delay_seconds" gorm:"column:message_delay_seconds;default:5"`

	IsWhatsAppConfigured bool `json:"is_whatsapp_configured" db:"is_whatsapp_configured" gorm:"column:is_whatsapp_configured;default:false"`
	IsActive             bool `json:"is_active"              db:"is_active"              gorm:"column:is_active;default:true"`

	CreatedAt time.Time `json:"created_at" db:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (TenantSettings) TableName() string { return "tenant_settings" }

func DefaultTenantSettings(tenantID int64) *TenantSettings {
	return &TenantSettings{
		TenantID:             tenantID,
		ThankYouMessage:      "Thank you for calling! Here's our latest catalog:",
		IncludeCatalog:       true,
		CatalogHeaderMessage: "Browse our exclusive collection:",
		CatalogFooterMessage: "Reply with product number to inquire!",
		MessageDelaySeconds:  DefaultMessageDelaySeconds,
		IsActive:             true,
	}
}

// AutomationSettings carries the policy knobs for the post-call automation.
// Absence of a row means "use the tenant-level flags only".
type AutomationSettings struct {
	ID       int64 `json:"id"        db:"id"        gorm:"primaryKey;autoIncrement;column:id"`
	TenantID int64 `json:"tenant_id" db:"tenant_id" gorm:"column:tenant_id;not null;uniqueIndex"`

	Enabled                bool   `json:"enabled"                   db:"enabled"                   gorm:"column:enabled;default:false"`
	DelaySeconds           int    `json:"delay_seconds"             db:"delay_seconds"             gorm:"column:delay_seconds;default:60"`
	MinCallDurationSeconds int    `json:"min_call_duration_seconds" db:"min_call_duration_seconds" gorm:"column:min_call_duration_seconds;default:0"`
	SendMode               string `json:"send_mode"                 db:"send_mode"                 gorm:"column:send_mode;default:thank_you_and_full_catalog"`

	// CSV lists of category names.
	IncludeCategories string `json:"include_categories" db:"include_categories" gorm:"column:include_categories"`
	ExcludeCategories string `json:"exclude_categories" db:"exclude_categories" gorm:"column:exclude_categories"`

	CreatedAt time.Time `json:"created_at" db:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (AutomationSettings) TableName() string { return "automation_settings" }

func (s *AutomationSettings) IncludeCategoryList() []string {
	return splitCategories(s.IncludeCategories)
}

func (s *AutomationSettings) ExcludeCategoryList() []string {
	return splitCategories(s.ExcludeCategories)
}

func splitCategories(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
