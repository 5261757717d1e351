package repository

import (
	"time"

	"github.com/callloop/postcall-gateway/internal/model"
)

type TenantEntity struct {
	ID            int64     `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	Name          string    `db:"name"           gorm:"column:name;not null"`
	Slug          string    `db:"slug"           gorm:"column:slug;not null;uniqueIndex"`
	BusinessName  string    `db:"business_name"  gorm:"column:business_name"`
	BusinessPhone string    `db:"business_phone" gorm:"column:business_phone"`
	IsActive      bool      `db:"is_active"      gorm:"column:is_active;default:true"`
	CreatedAt     time.Time `db:"created_at"     gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `db:"updated_at"     gorm:"column:updated_at;autoUpdateTime"`
}

func (TenantEntity) TableName() string { return "tenants" }

func toTenantModel(e *TenantEntity) *model.Tenant {
	if e == nil {
		return nil
	}
	return &model.Tenant{
		ID:            e.ID,
		Name:          e.Name,
		Slug:          e.Slug,
		BusinessName:  e.BusinessName,
		BusinessPhone: e.BusinessPhone,
		IsActive:      e.IsActive,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}
