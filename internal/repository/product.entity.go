package repository

import (
	"time"

	"github.com/callloop/postcall-gateway/internal/model"
)

type ProductEntity struct {
	ID       int64 `db:"id"        gorm:"primaryKey;autoIncrement;column:id"`
	TenantID int64 `db:"tenant_id" gorm:"column:tenant_id;not null;index"`

	Name        string  `db:"name"        gorm:"column:name;not null"`
	Category    string  `db:"category"    gorm:"column:category;index"`
	Price       float64 `db:"price"       gorm:"column:price"`
	Description string  `db:"description" gorm:"column:description"`
	ImageURL    string  `db:"image_url"   gorm:"column:image_url"`
	SKU         string  `db:"sku"         gorm:"column:sku"`
	IsActive    bool    `db:"is_active"   gorm:"column:is_active;default:true"`

	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `db:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (ProductEntity) TableName() string { return "products" }

func toProductModel(e *ProductEntity) *model.Product {
	if e == nil {
		return nil
	}
	return &model.Product{
		ID:          e.ID,
		TenantID:    e.TenantID,
		Name:        e.Name,
		Category:    e.Category,
		Price:       e.Price,
		Description: e.Description,
		ImageURL:    e.ImageURL,
		SKU:         e.SKU,
		IsActive:    e.IsActive,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func toProductModels(entities []*ProductEntity) []*model.Product {
	if entities == nil {
		return nil
	}
	models := make([]*model.Product, len(entities))
	for i, e := range entities {
		models[i] = toProductModel(e)
	}
	return models
}
