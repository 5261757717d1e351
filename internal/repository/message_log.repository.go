package repository

import (
	"context"
	"errors"
	"time"

	"github.com/callloop/postcall-gateway/internal/model"
	"github.com/callloop/postcall-gateway/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrRetriesExhausted is returned when a retry increment would exceed max_retries.
	ErrRetriesExhausted = errors.New("message log retries exhausted")
)

type MessageLogRepository struct {
	*pg.DB
}

func NewMessageLogRepository(db *pg.DB) *MessageLogRepository {
	return &MessageLogRepository{
		db,
	}
}

func (r *MessageLogRepository) Create(ctx context.Context, log *model.MessageLog) (*model.MessageLog, error) {
	if log.Status == "" {
		log.Status = model.MessageLogStatusPending
	}
	if log.MaxRetries == 0 {
		log.MaxRetries = model.DefaultMaxRetries
	}
	entity := toMessageLogEntity(log)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toMessageLogModel(entity), nil
}

func (r *MessageLogRepository) GetByID(ctx context.Context, id int64) (*model.MessageLog, error) {
	var entity MessageLogEntity
	err := r.Read(ctx).WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toMessageLogModel(&entity), nil
}

// UpdateResult resolves a pending log with the send outcome. sent_at is only
// stamped on the sent transition.
func (r *MessageLogRepository) UpdateResult(ctx context.Context, id int64, status model.MessageLogStatus, whatsappMessageID, errorMessage, apiResponse string) error {
	updates := map[string]interface{}{
		"status":        string(status),
		"error_message": errorMessage,
		"api_response":  apiResponse,
	}
	if whatsappMessageID != "" {
		updates["whatsapp_message_id"] = whatsappMessageID
	}
	if status == model.MessageLogStatusSent {
		updates["sent_at"] = time.Now().UTC()
	}

	return r.Write(ctx).WithContext(ctx).Model(&MessageLogEntity{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// IncrementRetry bumps retry_count and resets the row to pending for a fresh
// attempt. The guard keeps retry_count from ever exceeding max_retries.
func (r *MessageLogRepository) IncrementRetry(ctx context.Context, id int64) error {
	res := r.Write(ctx).WithContext(ctx).Model(&MessageLogEntity{}).
		Where("id = ? AND retry_count < max_retries", id).
		Updates(map[string]interface{}{
			"retry_count": gorm.Expr("retry_count + 1"),
			"status":      string(model.MessageLogStatusPending),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRetriesExhausted
	}
	return nil
}

// ListFailedRetryable returns failed logs still under their retry budget.
// Logs without a call reference are excluded; the automation job cannot be
// rebuilt for them. Catalog batch rows are aggregates, not sendable
// messages, so they are excluded too.
func (r *MessageLogRepository) ListFailedRetryable(ctx context.Context, tenantID *int64, limit int) ([]*model.MessageLog, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&MessageLogEntity{}).
		Where("status = ?", string(model.MessageLogStatusFailed)).
		Where("retry_count < max_retries").
		Where("call_id IS NOT NULL").
		Where("message_type <> ?", string(model.MessageTypeCatalog))

	if tenantID != nil {
		q = q.Where("tenant_id = ?", *tenantID)
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var entities []*MessageLogEntity
	if err := q.Order("id ASC").Limit(limit).Find(&entities).Error; err != nil {
		return nil, err
	}
	return toMessageLogModels(entities), nil
}

func (r *MessageLogRepository) List(ctx context.Context, f model.MessageLogFilter) ([]*model.MessageLog, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&MessageLogEntity{})

	if f.TenantID != nil {
		q = q.Where("tenant_id = ?", *f.TenantID)
	}
	if f.CallID != nil {
		q = q.Where("call_id = ?", *f.CallID)
	}
	if f.RecipientPhone != nil && *f.RecipientPhone != "" {
		q = q.Where("recipient_phone = ?", *f.RecipientPhone)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at"
	if f.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*MessageLogEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toMessageLogModels(entities), total, nil
}
