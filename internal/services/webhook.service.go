package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/callloop/postcall-gateway/internal/model"
	"github.com/callloop/postcall-gateway/internal/queue"
	"github.com/callloop/postcall-gateway/internal/repository"
	"github.com/callloop/postcall-gateway/pkg/logger"
)

var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrSettingsMissing = errors.New("tenant settings not configured")
	ErrUnauthorized    = errors.New("webhook authentication failed")
	ErrInvalidPayload  = errors.New("webhook payload could not be parsed")
)

type TenantRepository interface {
	GetBySlug(ctx context.Context, slug string) (*model.Tenant, error)
	GetByID(ctx context.Context, id int64) (*model.Tenant, error)
}

type SettingsReader interface {
	GetTenantSettings(ctx context.Context, tenantID int64) (*model.TenantSettings, error)
	GetAutomationSettings(ctx context.Context, tenantID int64) (*model.AutomationSettings, error)
}

type CallWriter interface {
	Create(ctx context.Context, c *model.Call) (*model.Call, bool, error)
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type WebhookCallWriter interface {
	Create(ctx context.Context, wc *model.WebhookCall) (*model.WebhookCall, error)
}

// WebhookRequest carries everything the handler extracted from the HTTP
// request. Body is the raw bytes the signature was computed over.
type WebhookRequest struct {
	TenantSlug        string
	Body              []byte
	ContentType       string
	Signature         string
	SignatureProvider string
	Secret            string
}

type WebhookResult struct {
	Success             bool   `json:"success"`
	Message             string `json:"message"`
	CallID              int64  `json:"call_id"`
	Provider            string `json:"provider"`
	AutomationTriggered bool   `json:"automation_triggered"`
}

// WebhookInfo describes the state of a tenant's webhook endpoint. Used by the
// test endpoint so integrators can verify their configuration.
type WebhookInfo struct {
	TenantSlug           string `json:"tenant_slug"`
	TenantName           string `json:"tenant_name"`
	SecretConfigured     bool   `json:"secret_configured"`
	IsWhatsAppConfigured bool   `json:"is_whatsapp_configured"`
	AutomationEnabled    bool   `json:"automation_enabled"`
}

type WebhookService struct {
	tenantRepo      TenantRepository
	settingsRepo    SettingsReader
	callRepo        CallWriter
	webhookCallRepo WebhookCallWriter
	queue           *queue.Queue
}

func NewWebhookService(tenantRepo TenantRepository, settingsRepo SettingsReader, callRepo CallWriter, webhookCallRepo WebhookCallWriter, q *queue.Queue) *WebhookService {
	return &WebhookService{
		tenantRepo:      tenantRepo,
		settingsRepo:    settingsRepo,
		callRepo:        callRepo,
		webhookCallRepo: webhookCallRepo,
		queue:           q,
	}
}

// HandleCallEnded ingests one call-ended webhook: authenticate, normalize,
// persist and, when policy allows, schedule the follow-up job.
func (s *WebhookService) HandleCallEnded(ctx context.Context, req WebhookRequest) (*WebhookResult, error) {
	tenant, err := s.tenantRepo.GetBySlug(ctx, req.TenantSlug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	// Inactive tenants are indistinguishable from unknown ones.
	if !tenant.IsActive {
		return nil, ErrTenantNotFound
	}

	settings, err := s.settingsRepo.GetTenantSettings(ctx, tenant.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSettingsMissing
		}
		return nil, err
	}

	if err := s.authenticate(req, settings); err != nil {
		return nil, err
	}

	fields, err := ParseWebhookBody(req.Body, req.ContentType)
	if err != nil {
		return nil, ErrInvalidPayload
	}
	normalized := NormalizeCall(fields)

	automation, err := s.settingsRepo.GetAutomationSettings(ctx, tenant.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	call := &model.Call{
		TenantID:        tenant.ID,
		CallSid:         normalized.CallSid,
		CallerPhone:     normalized.CallerPhone,
		ReceiverPhone:   normalized.ReceiverPhone,
		Status:          normalized.Status,
		DurationSeconds: normalized.DurationSeconds,
		Provider:        normalized.Provider,
	}

	decision := EvaluateAutomationPolicy(settings, automation, call)
	if decision.Eligible {
		call.AutomationStatus = "scheduled"
	} else {
		call.AutomationStatus = "skipped: " + decision.Reason
	}

	var created *model.Call
	var isNew bool
	err = s.callRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.webhookCallRepo.Create(ctx, &model.WebhookCall{
			TenantID:      tenant.ID,
			Provider:      normalized.Provider,
			CallSid:       normalized.CallSid,
			CallerPhone:   normalized.CallerPhone,
			ReceiverPhone: normalized.ReceiverPhone,
			Status:        normalized.Status,
			RawPayload:    string(req.Body),
		}); err != nil {
			return fmt.Errorf("create webhook audit row: %w", err)
		}

		var err error
		created, isNew, err = s.callRepo.Create(ctx, call)
		if err != nil {
			return fmt.Errorf("create call: %w", err)
		}

		if !isNew || !decision.Eligible {
			return nil
		}

		job := model.AutomationJob{
			TenantID:    tenant.ID,
			CallID:      created.ID,
			CallerPhone: created.CallerPhone,
		}
		delay := time.Duration(decision.DelaySeconds) * time.Second
		if err := s.queue.PublishJSONDelayed(ctx, job, nil, delay); err != nil {
			return fmt.Errorf("schedule automation job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !isNew {
		logger.Info("Duplicate webhook ignored",
			"tenant", tenant.Slug, "provider", normalized.Provider, "call_sid", normalized.CallSid)
		return &WebhookResult{
			Success:  true,
			Message:  "duplicate webhook ignored",
			CallID:   created.ID,
			Provider: normalized.Provider,
		}, nil
	}

	logger.Info("Webhook processed",
		"tenant", tenant.Slug, "provider", normalized.Provider, "call_sid", normalized.CallSid,
		"status", normalized.Status, "automation_triggered", decision.Eligible)

	msg := "call recorded"
	if decision.Eligible {
		msg = "call recorded, automation scheduled"
	}
	return &WebhookResult{
		Success:             true,
		Message:             msg,
		CallID:              created.ID,
		Provider:            normalized.Provider,
		AutomationTriggered: decision.Eligible,
	}, nil
}

// authenticate enforces webhook auth: no configured secret skips the check,
// otherwise either the shared secret parameter or a valid HMAC signature is
// required. A supplied secret is authoritative; a mismatch fails even when a
// signature is also present.
func (s *WebhookService) authenticate(req WebhookRequest, settings *model.TenantSettings) error {
	if settings.WebhookSecretKey == "" {
		return nil
	}
	if req.Secret != "" {
		if VerifyWebhookSecret(req.Secret, settings.WebhookSecretKey) {
			return nil
		}
		return ErrUnauthorized
	}
	if VerifyWebhookSignature(req.Body, req.Signature, settings.WebhookSecretKey, req.SignatureProvider) {
		return nil
	}
	return ErrUnauthorized
}

// DescribeWebhook backs the test endpoint integrators hit while wiring up
// their telephony provider.
func (s *WebhookService) DescribeWebhook(ctx context.Context, slug string) (*WebhookInfo, error) {
	tenant, err := s.tenantRepo.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	if !tenant.IsActive {
		return nil, ErrTenantNotFound
	}

	settings, err := s.settingsRepo.GetTenantSettings(ctx, tenant.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSettingsMissing
		}
		return nil, err
	}

	automationEnabled := true
	if automation, err := s.settingsRepo.GetAutomationSettings(ctx, tenant.ID); err == nil {
		automationEnabled = automation.Enabled
	}

	return &WebhookInfo{
		TenantSlug:           tenant.Slug,
		TenantName:           tenant.Name,
		SecretConfigured:     settings.WebhookSecretKey != "",
		IsWhatsAppConfigured: settings.IsWhatsAppConfigured,
		AutomationEnabled:    automationEnabled,
	}, nil
}
