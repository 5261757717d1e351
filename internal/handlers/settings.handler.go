package handlers

import (
	"context"
	"errors"

	"github.com/fasthttp/router"
	"github.com/callloop/postcall-gateway/internal/model"
	"github.com/callloop/postcall-gateway/internal/services"
	xhttp "github.com/callloop/postcall-gateway/pkg/http"
)

type SettingsService interface {
	GetSettings(ctx context.Context, slug string) (*model.TenantSettings, error)
	UpdateSettings(ctx context.Context, slug string, update services.TenantSettingsUpdate) (*model.TenantSettings, error)
	GetAutomationSettings(ctx context.Context, slug string) (*model.AutomationSettings, error)
	UpdateAutomationSettings(ctx context.Context, slug string, update services.AutomationSettingsUpdate) (*model.AutomationSettings, error)
	ConfigureWhatsApp(ctx context.Context, slug string, req services.WhatsAppCredentialsRequest) error
	GenerateWebhookSecret(ctx context.Context, slug string) (string, error)
	SendTestMessage(ctx context.Context, slug, to, body string) (*model.MessageLog, error)
}

type SettingsHandler struct {
	svc SettingsService
}

func RegisterSettingsRoutes(e *router.Group, h *SettingsHandler) {
	e.GET("/tenants/{tenant_slug}/settings", h.GetSettings)
	e.PUT("/tenants/{tenant_slug}/settings", h.UpdateSettings)
	e.GET("/tenants/{tenant_slug}/settings/automation", h.GetAutomationSettings)
	e.PUT("/tenants/{tenant_slug}/settings/automation", h.UpdateAutomationSettings)
	e.POST("/tenants/{tenant_slug}/settings/whatsapp-credentials", h.ConfigureWhatsApp)
	e.POST("/tenants/{tenant_slug}/settings/webhook-secret", h.GenerateWebhookSecret)
	e.POST("/tenants/{tenant_slug}/settings/test-message", h.SendTestMessage)
}

func NewSettingsHandler(svc SettingsService) *SettingsHandler {
	return &SettingsHandler{
		svc: svc,
	}
}

func (h *SettingsHandler) GetSettings(ctx *xhttp.RequestCtx) {
	settings, err := h.svc.GetSettings(ctx, param(ctx, "tenant_slug"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, settings)
}

func (h *SettingsHandler) UpdateSettings(ctx *xhttp.RequestCtx) {
	var update services.TenantSettingsUpdate
	if err := readJSON(ctx, &update); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	settings, err := h.svc.UpdateSettings(ctx, param(ctx, "tenant_slug"), update)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, settings)
}

func (h *SettingsHandler) GetAutomationSettings(ctx *xhttp.RequestCtx) {
	settings, err := h.svc.GetAutomationSettings(ctx, param(ctx, "tenant_slug"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, settings)
}

func (h *SettingsHandler) UpdateAutomationSettings(ctx *xhttp.RequestCtx) {
	var update services.AutomationSettingsUpdate
	if err := readJSON(ctx, &update); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	settings, err := h.svc.UpdateAutomationSettings(ctx, param(ctx, "tenant_slug"), update)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, settings)
}

func (h *SettingsHandler) ConfigureWhatsApp(ctx *xhttp.RequestCtx) {
	var req services.WhatsAppCredentialsRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	if req.PhoneNumberID == "" || req.AccessToken == "" {
		writeError(ctx, 400, "phone_number_id and access_token are required")
		return
	}

	if err := h.svc.ConfigureWhatsApp(ctx, param(ctx, "tenant_slug"), req); err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, map[string]any{"success": true, "is_whatsapp_configured": true})
}

func (h *SettingsHandler) GenerateWebhookSecret(ctx *xhttp.RequestCtx) {
	secret, err := h.svc.GenerateWebhookSecret(ctx, param(ctx, "tenant_slug"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, map[string]string{"webhook_secret_key": secret})
}

type testMessageRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (h *SettingsHandler) SendTestMessage(ctx *xhttp.RequestCtx) {
	var req testMessageRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	if req.To == "" {
		writeError(ctx, 400, "to is required")
		return
	}

	log, err := h.svc.SendTestMessage(ctx, param(ctx, "tenant_slug"), req.To, req.Message)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, log)
}

func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, services.ErrTenantNotFound):
		writeError(ctx, 404, err.Error())
	case errors.Is(err, services.ErrWhatsAppNotConfigured),
		errors.Is(err, services.ErrSettingsMissing):
		writeError(ctx, 400, err.Error())
	case errors.Is(err, services.ErrCredentialCheckFailed):
		writeError(ctx, 422, err.Error())
	default:
		writeError(ctx, 500, err.Error())
	}
}
