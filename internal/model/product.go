package model

import "time"

// Product is read-only for the automation core; consumed only for catalog selection.
type Product struct {
	ID       int64 `json:"id"        db:"id"        gorm:"primaryKey;autoIncrement;column:id"`
	TenantID int64 `json:"tenant_id" db:"tenant_id" gorm:"column:tenant_id;not null;index"`

	Name        string  `json:"name"        db:"name"        gorm:"column:name;not null;index"`
	Category    string  `json:"category"    db:"category"    gorm:"column:category;index"`
	Price       float64 `json:"price"       db:"price"       gorm:"column:price"`
	Description string  `json:"description" db:"description" gorm:"column:description"`
	ImageURL    string  `json:"image_url"   db:"image_url"   gorm:"column:image_url"`
	SKU         string  `json:"sku"         db:"sku"         gorm:"column:sku"`

	IsActive bool `json:"is_active" db:"is_active" gorm:"column:is_active;default:true"`

	CreatedAt time.Time `json:"created_at" db:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }
