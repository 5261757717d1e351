package repository

import (
	"context"
	"testing"
	"time"

	"github.com/callloop/postcall-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestCallRepository_Create(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewCallRepository(db)
	ctx := context.Background()

	t.Run("create call successfully", func(t *testing.T) {
		call := &model.Call{
			TenantID:        1,
			CallSid:         "CA001",
			CallerPhone:     "+919876543210",
			ReceiverPhone:   "+911234567890",
			Status:          model.CallStatusCompleted,
			DurationSeconds: intPtr(42),
			Provider:        model.ProviderTwilio,
		}

		created, isNew, err := repo.Create(ctx, call)
		require.NoError(t, err)
		assert.True(t, isNew)
		assert.NotZero(t, created.ID)
		assert.Equal(t, "CA001", created.CallSid)
		assert.Equal(t, "+919876543210", created.CallerPhone)
	})

	t.Run("duplicate sid returns existing row", func(t *testing.T) {
		first := &model.Call{
			TenantID:    2,
			CallSid:     "CA002",
			CallerPhone: "+919876543210",
			Status:      model.CallStatusCompleted,
			Provider:    model.ProviderTwilio,
		}
		created, isNew, err := repo.Create(ctx, first)
		require.NoError(t, err)
		require.True(t, isNew)

		redelivered := &model.Call{
			TenantID:    2,
			CallSid:     "CA002",
			CallerPhone: "+919876543210",
			Status:      model.CallStatusBusy, // changed payload must not overwrite
			Provider:    model.ProviderTwilio,
		}
		existing, isNew, err := repo.Create(ctx, redelivered)
		require.NoError(t, err)
		assert.False(t, isNew)
		assert.Equal(t, created.ID, existing.ID)
		assert.Equal(t, model.CallStatusCompleted, existing.Status)
	})

	t.Run("same sid different provider is a new call", func(t *testing.T) {
		_, isNew, err := repo.Create(ctx, &model.Call{
			TenantID:    3,
			CallSid:     "CA003",
			CallerPhone: "+1000",
			Status:      model.CallStatusCompleted,
			Provider:    model.ProviderTwilio,
		})
		require.NoError(t, err)
		require.True(t, isNew)

		_, isNew, err = repo.Create(ctx, &model.Call{
			TenantID:    3,
			CallSid:     "CA003",
			CallerPhone: "+1000",
			Status:      model.CallStatusCompleted,
			Provider:    model.ProviderExotel,
		})
		require.NoError(t, err)
		assert.True(t, isNew)
	})

	t.Run("same sid different tenant is a new call", func(t *testing.T) {
		_, isNew, err := repo.Create(ctx, &model.Call{
			TenantID:    4,
			CallSid:     "CA004",
			CallerPhone: "+1000",
			Provider:    model.ProviderGeneric,
		})
		require.NoError(t, err)
		require.True(t, isNew)

		_, isNew, err = repo.Create(ctx, &model.Call{
			TenantID:    5,
			CallSid:     "CA004",
			CallerPhone: "+1000",
			Provider:    model.ProviderGeneric,
		})
		require.NoError(t, err)
		assert.True(t, isNew)
	})
}

func TestCallRepository_GetByID(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewCallRepository(db)
	ctx := context.Background()

	created, _, err := repo.Create(ctx, &model.Call{
		TenantID:    1,
		CallSid:     "CA100",
		CallerPhone: "+1000",
		Provider:    model.ProviderGeneric,
	})
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "CA100", got.CallSid)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, 99999)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCallRepository_StampAutomation(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewCallRepository(db)
	ctx := context.Background()

	created, _, err := repo.Create(ctx, &model.Call{
		TenantID:    1,
		CallSid:     "CA200",
		CallerPhone: "+1000",
		Provider:    model.ProviderGeneric,
	})
	require.NoError(t, err)

	t.Run("first stamp sets triggered and timestamp", func(t *testing.T) {
		err := repo.StampAutomation(ctx, created.ID, "sent")
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, got.AutomationTriggered)
		require.NotNil(t, got.AutomationTriggeredAt)
		assert.Equal(t, "sent", got.AutomationStatus)
	})

	t.Run("second stamp keeps original timestamp but moves status", func(t *testing.T) {
		before, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)
		err = repo.StampAutomation(ctx, created.ID, "partial: 1 of 3 messages failed")
		require.NoError(t, err)

		after, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, after.AutomationTriggered)
		assert.Equal(t, "partial: 1 of 3 messages failed", after.AutomationStatus)
		assert.True(t, after.AutomationTriggeredAt.Equal(*before.AutomationTriggeredAt))
	})
}

func TestCallRepository_List(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewCallRepository(db)
	ctx := context.Background()

	tenantID := int64(42)
	statuses := []string{
		model.CallStatusCompleted,
		model.CallStatusCompleted,
		model.CallStatusBusy,
		model.CallStatusNoAnswer,
		model.CallStatusFailed,
	}
	for i, status := range statuses {
		_, _, err := repo.Create(ctx, &model.Call{
			TenantID:    tenantID,
			CallSid:     "CA" + string(rune('a'+i)),
			CallerPhone: "+1000",
			Status:      status,
			Provider:    model.ProviderGeneric,
		})
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	t.Run("list all for tenant", func(t *testing.T) {
		calls, total, err := repo.List(ctx, model.CallFilter{TenantID: &tenantID, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, calls, 5)
	})

	t.Run("status filter", func(t *testing.T) {
		calls, total, err := repo.List(ctx, model.CallFilter{
			TenantID: &tenantID,
			Statuses: []string{model.CallStatusCompleted},
			Limit:    10,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, calls, 2)
	})

	t.Run("pagination", func(t *testing.T) {
		calls, total, err := repo.List(ctx, model.CallFilter{TenantID: &tenantID, Limit: 2, Offset: 4})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, calls, 1)
	})

	t.Run("desc order", func(t *testing.T) {
		calls, _, err := repo.List(ctx, model.CallFilter{TenantID: &tenantID, Limit: 10, Desc: true})
		require.NoError(t, err)
		for i := 0; i < len(calls)-1; i++ {
			assert.True(t, calls[i].CreatedAt.After(calls[i+1].CreatedAt) || calls[i].CreatedAt.Equal(calls[i+1].CreatedAt))
		}
	})

	t.Run("other tenant sees nothing", func(t *testing.T) {
		otherTenant := int64(43)
		calls, total, err := repo.List(ctx, model.CallFilter{TenantID: &otherTenant, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(0), total)
		assert.Len(t, calls, 0)
	})
}
