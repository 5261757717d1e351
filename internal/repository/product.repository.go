package repository

import (
	"context"

	"github.com/callloop/postcall-gateway/internal/model"
	"github.com/callloop/postcall-gateway/pkg/pg"
)

type ProductRepository struct {
	*pg.DB
}

func NewProductRepository(db *pg.DB) *ProductRepository {
	return &ProductRepository{
		db,
	}
}

// ListActive returns active catalog products for the tenant, filtered by the
// category allow/deny lists. Ordering is stable by id so catalog messages go
// out in a deterministic sequence.
func (r *ProductRepository) ListActive(ctx context.Context, tenantID int64, includeCategories, excludeCategories []string, limit int) ([]*model.Product, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&ProductEntity{}).
		Where("tenant_id = ?", tenantID).
		Where("is_active = ?", true)

	if len(includeCategories) > 0 {
		q = q.Where("category IN ?", includeCategories)
	}
	if len(excludeCategories) > 0 {
		q = q.Where("category NOT IN ?", excludeCategories)
	}
	if limit <= 0 || limit > 100 {
		limit = 30
	}

	var entities []*ProductEntity
	if err := q.Order("id ASC").Limit(limit).Find(&entities).Error; err != nil {
		return nil, err
	}
	return toProductModels(entities), nil
}
