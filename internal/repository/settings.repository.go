package repository

import (
	"context"
	"errors"

	"github.com/callloop/postcall-gateway/internal/model"
	"github.com/callloop/postcall-gateway/pkg/pg"
	"gorm.io/gorm"
)

type SettingsRepository struct {
	*pg.DB
}

func NewSettingsRepository(db *pg.DB) *SettingsRepository {
	return &SettingsRepository{
		db,
	}
}

func (r *SettingsRepository) GetTenantSettings(ctx context.Context, tenantID int64) (*model.TenantSettings, error) {
	var entity TenantSettingsEntity
	err := r.Read(ctx).WithContext(ctx).Where("tenant_id = ?", tenantID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toTenantSettingsModel(&entity), nil
}

// GetOrCreateTenantSettings returns the settings row for the tenant, creating
// one with safe defaults if none exists yet.
func (r *SettingsRepository) GetOrCreateTenantSettings(ctx context.Context, tenantID int64) (*model.TenantSettings, error) {
	settings, err := r.GetTenantSettings(ctx, tenantID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	entity := toTenantSettingsEntity(model.DefaultTenantSettings(tenantID))
	if err := r.Write(ctx).WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		FirstOrCreate(entity).Error; err != nil {
		return nil, err
	}
	return toTenantSettingsModel(entity), nil
}

func (r *SettingsRepository) SaveTenantSettings(ctx context.Context, settings *model.TenantSettings) (*model.TenantSettings, error) {
	entity := toTenantSettingsEntity(settings)
	if err := r.Write(ctx).WithContext(ctx).Save(entity).Error; err != nil {
		return nil, err
	}
	return toTenantSettingsModel(entity), nil
}

// SetWhatsAppCredentials persists verified credentials and flips the
// configured flag in one single-row update.
func (r *SettingsRepository) SetWhatsAppCredentials(ctx context.Context, tenantID int64, phoneNumberID, businessAccountID, accessToken, verifyToken string) error {
	return r.Write(ctx).WithContext(ctx).Model(&TenantSettingsEntity{}).
		Where("tenant_id = ?", tenantID).
		Updates(map[string]interface{}{
			"whatsapp_phone_number_id":      phoneNumberID,
			"whatsapp_business_account_id":  businessAccountID,
			"whatsapp_access_token":         accessToken,
			"whatsapp_webhook_verify_token": verifyToken,
			"is_whatsapp_configured":        true,
		}).Error
}

func (r *SettingsRepository) SetWebhookSecret(ctx context.Context, tenantID int64, secret string) error {
	return r.Write(ctx).WithContext(ctx).Model(&TenantSettingsEntity{}).
		Where("tenant_id = ?", tenantID).
		Update("webhook_secret_key", secret).Error
}

// SaveAutomationSettings upserts the tenant's policy row.
func (r *SettingsRepository) SaveAutomationSettings(ctx context.Context, settings *model.AutomationSettings) (*model.AutomationSettings, error) {
	entity := toAutomationSettingsEntity(settings)

	var existing AutomationSettingsEntity
	err := r.Write(ctx).WithContext(ctx).
		Where("tenant_id = ?", settings.TenantID).
		First(&existing).Error
	if err == nil {
		entity.ID = existing.ID
		entity.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if err := r.Write(ctx).WithContext(ctx).Save(entity).Error; err != nil {
		return nil, err
	}
	return toAutomationSettingsModel(entity), nil
}

// GetAutomationSettings returns ErrNotFound when the tenant has no policy
// row; callers treat absence as "tenant-level flags only".
func (r *SettingsRepository) GetAutomationSettings(ctx context.Context, tenantID int64) (*model.AutomationSettings, error) {
	var entity AutomationSettingsEntity
	err := r.Read(ctx).WithContext(ctx).Where("tenant_id = ?", tenantID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toAutomationSettingsModel(&entity), nil
}
