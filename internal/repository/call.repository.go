package repository

import (
	"context"
	"errors"
	"time"

	"github.com/callloop/postcall-gateway/internal/model"
	"github.com/callloop/postcall-gateway/pkg/pg"
	"gorm.io/gorm"
)

type CallRepository struct {
	*pg.DB
}

func NewCallRepository(db *pg.DB) *CallRepository {
	return &CallRepository{
		db,
	}
}

// Create inserts the canonical call row. Providers redeliver webhooks, so a
// row with the same (tenant_id, provider, call_sid) is returned as-is instead
// of being duplicated; the bool reports whether a new row was created.
func (r *CallRepository) Create(ctx context.Context, c *model.Call) (*model.Call, bool, error) {
	if c.CallSid != "" {
		var existing CallEntity
		err := r.Write(ctx).WithContext(ctx).
			Where("tenant_id = ? AND provider = ? AND call_sid = ?", c.TenantID, c.Provider, c.CallSid).
			First(&existing).Error
		if err == nil {
			return toCallModel(&existing), false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, err
		}
	}

	entity := toCallEntity(c)
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, false, err
	}
	return toCallModel(entity), true, nil
}

func (r *CallRepository) GetByID(ctx context.Context, id int64) (*model.Call, error) {
	var entity CallEntity
	err := r.Read(ctx).WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toCallModel(&entity), nil
}

// StampAutomation records the automation outcome on the call. The triggered
// flag and timestamp are write-once; the status may still move on a retry.
func (r *CallRepository) StampAutomation(ctx context.Context, id int64, status string) error {
	now := time.Now().UTC()
	tx := r.Write(ctx).WithContext(ctx)

	if err := tx.Model(&CallEntity{}).
		Where("id = ? AND automation_triggered = ?", id, false).
		Updates(map[string]interface{}{
			"automation_triggered":    true,
			"automation_triggered_at": now,
		}).Error; err != nil {
		return err
	}

	return tx.Model(&CallEntity{}).
		Where("id = ?", id).
		Update("automation_status", status).Error
}

func (r *CallRepository) List(ctx context.Context, f model.CallFilter) ([]*model.Call, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&CallEntity{})

	if f.TenantID != nil {
		q = q.Where("tenant_id = ?", *f.TenantID)
	}
	if f.CallerPhone != nil && *f.CallerPhone != "" {
		q = q.Where("caller_phone = ?", *f.CallerPhone)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
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

	var entities []*CallEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toCallModels(entities), total, nil
}
