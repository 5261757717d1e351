package model

import "time"

type Tenant struct {
	ID            int64     `json:"id"             db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	Name          string    `json:"name"           db:"name"            gorm:"column:name;not null"`
	Slug          string    `json:"slug"           db:"slug"            gorm:"column:slug;not null;uniqueIndex"` // URL-safe, used in webhook paths
	BusinessName  string    `json:"business_name"  db:"business_name"   gorm:"column:business_name"`
	BusinessPhone string    `json:"business_phone" db:"business_phone"  gorm:"column:business_phone"`
	IsActive      bool      `json:"is_active"      db:"is_active"       gorm:"column:is_active;default:true"`
	CreatedAt     time.Time `json:"created_at"     db:"created_at"      gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at"     db:"updated_at"      gorm:"column:updated_at;autoUpdateTime"`
}

func (Tenant) TableName() string { return "tenants" }
