package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	gateway "github.com/callloop/postcall-gateway/internal/gateways"
	"github.com/callloop/postcall-gateway/internal/model"
	"github.com/callloop/postcall-gateway/internal/repository"
	"github.com/callloop/postcall-gateway/pkg/logger"
)

var (
	ErrCredentialCheckFailed = errors.New("whatsapp credential verification failed")
	ErrWhatsAppNotConfigured = errors.New("whatsapp is not configured for this tenant")
)

type SettingsRepository interface {
	GetTenantSettings(ctx context.Context, tenantID int64) (*model.TenantSettings, error)
	GetOrCreateTenantSettings(ctx context.Context, tenantID int64) (*model.TenantSettings, error)
	SaveTenantSettings(ctx context.Context, settings *model.TenantSettings) (*model.TenantSettings, error)
	SetWhatsAppCredentials(ctx context.Context, tenantID int64, phoneNumberID, businessAccountID, accessToken, verifyToken string) error
	SetWebhookSecret(ctx context.Context, tenantID int64, secret string) error
	GetAutomationSettings(ctx context.Context, tenantID int64) (*model.AutomationSettings, error)
	SaveAutomationSettings(ctx context.Context, settings *model.AutomationSettings) (*model.AutomationSettings, error)
}

type MessageLogWriter interface {
	Create(ctx context.Context, log *model.MessageLog) (*model.MessageLog, error)
	UpdateResult(ctx context.Context, id int64, status model.MessageLogStatus, whatsappMessageID, errorMessage, apiResponse string) error
}

// MessagingClient is the outbound messaging surface the services depend on.
type MessagingClient interface {
	SendText(ctx context.Context, creds gateway.Credentials, to, body string) (*gateway.SendResult, error)
	SendImage(ctx context.Context, creds gateway.Credentials, to, imageURL, caption string) (*gateway.SendResult, error)
	SendCatalogCarousel(ctx context.Context, creds gateway.Credentials, to, header, footer string, items []gateway.CatalogItem) ([]*gateway.SendResult, error)
	CheckHealth(ctx context.Context, creds gateway.Credentials) error
}

// TenantSettingsUpdate carries a partial settings update; nil fields are left
// untouched.
type TenantSettingsUpdate struct {
	ThankYouMessage      *string `json:"thank_you_message"`
	IncludeCatalog       *bool   `json:"include_catalog"`
	CatalogHeaderMessage *string `json:"catalog_header_message"`
	CatalogFooterMessage *string `json:"catalog_footer_message"`
	MessageDelaySeconds  *int    `json:"message_delay_seconds"`
	IsActive             *bool   `json:"is_active"`
}

type AutomationSettingsUpdate struct {
	Enabled                *bool   `json:"enabled"`
	DelaySeconds           *int    `json:"delay_seconds"`
	MinCallDurationSeconds *int    `json:"min_call_duration_seconds"`
	SendMode               *string `json:"send_mode"`
	IncludeCategories      *string `json:"include_categories"`
	ExcludeCategories      *string `json:"exclude_categories"`
}

type WhatsAppCredentialsRequest struct {
	PhoneNumberID     string `json:"phone_number_id"`
	BusinessAccountID string `json:"business_account_id"`
	AccessToken       string `json:"access_token"`
	VerifyToken       string `json:"verify_token"`
}

type SettingsService struct {
	tenantRepo   TenantRepository
	settingsRepo SettingsRepository
	logRepo      MessageLogWriter
	client       MessagingClient
}

func NewSettingsService(tenantRepo TenantRepository, settingsRepo SettingsRepository, logRepo MessageLogWriter, client MessagingClient) *SettingsService {
	return &SettingsService{
		tenantRepo:   tenantRepo,
		settingsRepo: settingsRepo,
		logRepo:      logRepo,
		client:       client,
	}
}

func (s *SettingsService) resolveTenant(ctx context.Context, slug string) (*model.Tenant, error) {
	tenant, err := s.tenantRepo.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return tenant, nil
}

func (s *SettingsService) GetSettings(ctx context.Context, slug string) (*model.TenantSettings, error) {
	tenant, err := s.resolveTenant(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.settingsRepo.GetOrCreateTenantSettings(ctx, tenant.ID)
}

func (s *SettingsService) UpdateSettings(ctx context.Context, slug string, update TenantSettingsUpdate) (*model.TenantSettings, error) {
	tenant, err := s.resolveTenant(ctx, slug)
	if err != nil {
		return nil, err
	}

	settings, err := s.settingsRepo.GetOrCreateTenantSettings(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}

	if update.ThankYouMessage != nil {
		settings.ThankYouMessage = *update.ThankYouMessage
	}
	if update.IncludeCatalog != nil {
		settings.IncludeCatalog = *update.IncludeCatalog
	}
	if update.CatalogHeaderMessage != nil {
		settings.CatalogHeaderMessage = *update.CatalogHeaderMessage
	}
	if update.CatalogFooterMessage != nil {
		settings.CatalogFooterMessage = *update.CatalogFooterMessage
	}
	if update.MessageDelaySeconds != nil && *update.MessageDelaySeconds >= 0 {
		settings.MessageDelaySeconds = *update.MessageDelaySeconds
	}
	if update.IsActive != nil {
		settings.IsActive = *update.IsActive
	}

	return s.settingsRepo.SaveTenantSettings(ctx, settings)
}

func (s *SettingsService) GetAutomationSettings(ctx context.Context, slug string) (*model.AutomationSettings, error) {
	tenant, err := s.resolveTenant(ctx, slug)
	if err != nil {
		return nil, err
	}

	settings, err := s.settingsRepo.GetAutomationSettings(ctx, tenant.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &model.AutomationSettings{
				TenantID:     tenant.ID,
				DelaySeconds: 60,
				SendMode:     model.SendModeFullCatalog,
			}, nil
		}
		return nil, err
	}
	return settings, nil
}

func (s *SettingsService) UpdateAutomationSettings(ctx context.Context, slug string, update AutomationSettingsUpdate) (*model.AutomationSettings, error) {
	settings, err := s.GetAutomationSettings(ctx, slug)
	if err != nil {
		return nil, err
	}

	if update.Enabled != nil {
		settings.Enabled = *update.Enabled
	}
	if update.DelaySeconds != nil && *update.DelaySeconds >= 0 {
		settings.DelaySeconds = *update.DelaySeconds
	}
	if update.MinCallDurationSeconds != nil && *update.MinCallDurationSeconds >= 0 {
		settings.MinCallDurationSeconds = *update.MinCallDurationSeconds
	}
	if update.SendMode != nil {
		switch *update.SendMode {
		case model.SendModeThankYouOnly, model.SendModeFullCatalog, model.SendModeFilteredCatalog:
			settings.SendMode = *update.SendMode
		default:
			return nil, fmt.Errorf("invalid send mode: %q", *update.SendMode)
		}
	}
	if update.IncludeCategories != nil {
		settings.IncludeCategories = *update.IncludeCategories
	}
	if update.ExcludeCategories != nil {
		settings.ExcludeCategories = *update.ExcludeCategories
	}

	return s.settingsRepo.SaveAutomationSettings(ctx, settings)
}

// ConfigureWhatsApp verifies the credentials against the API before saving
// them. Only verified credentials flip the configured flag.
func (s *SettingsService) ConfigureWhatsApp(ctx context.Context, slug string, req WhatsAppCredentialsRequest) error {
	tenant, err := s.resolveTenant(ctx, slug)
	if err != nil {
		return err
	}

	if _, err := s.settingsRepo.GetOrCreateTenantSettings(ctx, tenant.ID); err != nil {
		return err
	}

	creds := gateway.Credentials{
		PhoneNumberID:     req.PhoneNumberID,
		AccessToken:       req.AccessToken,
		BusinessAccountID: req.BusinessAccountID,
	}
	if err := s.client.CheckHealth(ctx, creds); err != nil {
		logger.Warn("WhatsApp credential check failed", "tenant", slug, "error", err)
		return ErrCredentialCheckFailed
	}

	if err := s.settingsRepo.SetWhatsAppCredentials(ctx, tenant.ID,
		req.PhoneNumberID, req.BusinessAccountID, req.AccessToken, req.VerifyToken); err != nil {
		return err
	}

	logger.Info("WhatsApp credentials configured", "tenant", slug)
	return nil
}

// GenerateWebhookSecret rotates the tenant's webhook secret and returns the
// new value. The secret is only shown at generation time.
func (s *SettingsService) GenerateWebhookSecret(ctx context.Context, slug string) (string, error) {
	tenant, err := s.resolveTenant(ctx, slug)
	if err != nil {
		return "", err
	}

	if _, err := s.settingsRepo.GetOrCreateTenantSettings(ctx, tenant.ID); err != nil {
		return "", err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)

	if err := s.settingsRepo.SetWebhookSecret(ctx, tenant.ID, secret); err != nil {
		return "", err
	}

	logger.Info("Webhook secret rotated", "tenant", slug)
	return secret, nil
}

// SendTestMessage sends a one-off text through the tenant's configured
// number and logs the attempt like any automated send.
func (s *SettingsService) SendTestMessage(ctx context.Context, slug, to, body string) (*model.MessageLog, error) {
	tenant, err := s.resolveTenant(ctx, slug)
	if err != nil {
		return nil, err
	}

	settings, err := s.settingsRepo.GetTenantSettings(ctx, tenant.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWhatsAppNotConfigured
		}
		return nil, err
	}
	if !settings.IsWhatsAppConfigured {
		return nil, ErrWhatsAppNotConfigured
	}

	if body == "" {
		body = "This is a test message from " + tenant.Name
	}

	log, err := s.logRepo.Create(ctx, &model.MessageLog{
		TenantID:       tenant.ID,
		RecipientPhone: gateway.NormalizePhone(to),
		MessageType:    model.MessageTypeText,
		MessageContent: body,
	})
	if err != nil {
		return nil, err
	}

	creds := gateway.Credentials{
		PhoneNumberID:     settings.WhatsAppPhoneNumberID,
		AccessToken:       settings.WhatsAppAccessToken,
		BusinessAccountID: settings.WhatsAppBusinessAccountID,
	}

	res, err := s.client.SendText(ctx, creds, to, body)
	if err != nil {
		_ = s.logRepo.UpdateResult(ctx, log.ID, model.MessageLogStatusFailed, "", err.Error(), "")
		return nil, err
	}

	status := model.MessageLogStatusSent
	if !res.Success {
		status = model.MessageLogStatusFailed
	}
	if err := s.logRepo.UpdateResult(ctx, log.ID, status, res.MessageID, res.ErrorMessage, string(res.RawResponse)); err != nil {
		return nil, err
	}

	log.Status = status
	log.WhatsAppMessageID = res.MessageID
	log.ErrorMessage = res.ErrorMessage
	return log, nil
}
