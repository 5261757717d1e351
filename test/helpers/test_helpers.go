package helpers

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/callloop/postcall-gateway/internal/repository"
	"github.com/callloop/postcall-gateway/pkg/pg"
	"github.com/callloop/postcall-gateway/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func SetupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&repository.TenantEntity{},
		&repository.TenantSettingsEntity{},
		&repository.AutomationSettingsEntity{},
		&repository.CallEntity{},
		&repository.MessageLogEntity{},
		&repository.ProductEntity{},
		&repository.WebhookCallEntity{},
	)
	require.NoError(t, err)

	pgDB := &pg.DB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	return pgDB
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	// Unique connection name per test to avoid global adapter caching issues
	connName := fmt.Sprintf("test-%d", time.Now().UnixNano())
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func CreateTestTenant(t *testing.T, db *pg.DB, id int64, slug string) *repository.TenantEntity {
	ctx := context.Background()
	tenant := &repository.TenantEntity{
		ID:       id,
		Name:     slug,
		Slug:     slug,
		IsActive: true,
	}
	err := db.Write(ctx).Create(tenant).Error
	require.NoError(t, err)
	return tenant
}

func CreateTestSettings(t *testing.T, db *pg.DB, tenantID int64, mutate func(*repository.TenantSettingsEntity)) *repository.TenantSettingsEntity {
	ctx := context.Background()
	settings := &repository.TenantSettingsEntity{
		TenantID:             tenantID,
		ThankYouMessage:      "Thank you for calling!",
		IncludeCatalog:       true,
		MessageDelaySeconds:  5,
		IsWhatsAppConfigured: true,
		WhatsAppAccessToken:  "test-token",
		IsActive:             true,
	}
	if mutate != nil {
		mutate(settings)
	}
	err := db.Write(ctx).Create(settings).Error
	require.NoError(t, err)
	return settings
}

func CreateTestAutomationSettings(t *testing.T, db *pg.DB, tenantID int64, mutate func(*repository.AutomationSettingsEntity)) *repository.AutomationSettingsEntity {
	ctx := context.Background()
	automation := &repository.AutomationSettingsEntity{
		TenantID:     tenantID,
		Enabled:      true,
		DelaySeconds: 1,
		SendMode:     "thank_you_and_full_catalog",
	}
	if mutate != nil {
		mutate(automation)
	}
	err := db.Write(ctx).Create(automation).Error
	require.NoError(t, err)
	return automation
}

func CreateTestProduct(t *testing.T, db *pg.DB, tenantID int64, name, category string, price float64) *repository.ProductEntity {
	ctx := context.Background()
	product := &repository.ProductEntity{
		TenantID: tenantID,
		Name:     name,
		Category: category,
		Price:    price,
		IsActive: true,
	}
	err := db.Write(ctx).Create(product).Error
	require.NoError(t, err)
	return product
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
