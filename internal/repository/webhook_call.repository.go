package repository

import (
	"context"

	"github.com/callloop/postcall-gateway/internal/model"
	"github.com/callloop/postcall-gateway/pkg/pg"
)

type WebhookCallRepository struct {
	*pg.DB
}

func NewWebhookCallRepository(db *pg.DB) *WebhookCallRepository {
	return &WebhookCallRepository{
		db,
	}
}

// Create writes the raw webhook audit row. Audit rows are append-only and are
// written even when the canonical call turns out to be a duplicate.
func (r *WebhookCallRepository) Create(ctx context.Context, wc *model.WebhookCall) (*model.WebhookCall, error) {
	entity := &WebhookCallEntity{
		TenantID:      wc.TenantID,
		Provider:      wc.Provider,
		CallSid:       wc.CallSid,
		CallerPhone:   wc.CallerPhone,
		ReceiverPhone: wc.ReceiverPhone,
		Status:        wc.Status,
		RawPayload:    wc.RawPayload,
	}
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toWebhookCallModel(entity), nil
}
