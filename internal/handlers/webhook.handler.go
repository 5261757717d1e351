package handlers

import (
	"context"
	"errors"

	"github.com/fasthttp/router"
	"github.com/callloop/postcall-gateway/internal/model"
	"github.com/callloop/postcall-gateway/internal/services"
	xhttp "github.com/callloop/postcall-gateway/pkg/http"
	"github.com/callloop/postcall-gateway/pkg/prom"
)

type WebhookService interface {
	HandleCallEnded(ctx context.Context, req services.WebhookRequest) (*services.WebhookResult, error)
	DescribeWebhook(ctx context.Context, slug string) (*services.WebhookInfo, error)
}

type WebhookHandler struct {
	svc WebhookService
}

func RegisterWebhookRoutes(e *router.Group, h *WebhookHandler) {
	e.POST("/webhooks/call-ended/{tenant_slug}", h.CallEnded)
	e.GET("/webhooks/test/{tenant_slug}", h.Test)
}

func NewWebhookHandler(svc WebhookService) *WebhookHandler {
	return &WebhookHandler{
		svc: svc,
	}
}

func (h *WebhookHandler) CallEnded(ctx *xhttp.RequestCtx) {
	slug := param(ctx, "tenant_slug")

	req := services.WebhookRequest{
		TenantSlug:  slug,
		Body:        ctx.PostBody(),
		ContentType: string(ctx.Request.Header.ContentType()),
		Secret:      query(ctx, "secret"),
	}

	// Twilio puts its signature in a vendor header; everything else uses
	// X-Webhook-Signature.
	if sig := string(ctx.Request.Header.Peek("X-Twilio-Signature")); sig != "" {
		req.Signature = sig
		req.SignatureProvider = model.ProviderTwilio
	} else if sig := string(ctx.Request.Header.Peek("X-Webhook-Signature")); sig != "" {
		req.Signature = sig
		req.SignatureProvider = model.ProviderGeneric
	}

	result, err := h.svc.HandleCallEnded(ctx, req)
	if err != nil {
		status, reason := webhookErrorStatus(err)
		prom.IncWebhookRejected(reason)
		writeError(ctx, status, err.Error())
		return
	}

	prom.IncWebhookReceived(result.Provider)
	writeJSON(ctx, 200, result)
}

func (h *WebhookHandler) Test(ctx *xhttp.RequestCtx) {
	info, err := h.svc.DescribeWebhook(ctx, param(ctx, "tenant_slug"))
	if err != nil {
		status, _ := webhookErrorStatus(err)
		writeError(ctx, status, err.Error())
		return
	}
	writeJSON(ctx, 200, info)
}

func webhookErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrTenantNotFound):
		return 404, "tenant_not_found"
	case errors.Is(err, services.ErrSettingsMissing):
		return 400, "settings_missing"
	case errors.Is(err, services.ErrInvalidPayload):
		return 400, "invalid_payload"
	case errors.Is(err, services.ErrUnauthorized):
		return 401, "unauthorized"
	default:
		return 500, "internal_error"
	}
}
