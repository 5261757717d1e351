package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/callloop/postcall-gateway/internal/model"
	"github.com/callloop/postcall-gateway/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockHistoryService struct {
	mock.Mock
}

func (m *MockHistoryService) ListCalls(ctx context.Context, slug string, f model.CallFilter) ([]*model.Call, int64, error) {
	args := m.Called(ctx, slug, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Call), args.Get(1).(int64), args.Error(2)
}

func (m *MockHistoryService) GetCall(ctx context.Context, slug string, id int64) (*model.Call, error) {
	args := m.Called(ctx, slug, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Call), args.Error(1)
}

func (m *MockHistoryService) ListMessageLogs(ctx context.Context, slug string, f model.MessageLogFilter) ([]*model.MessageLog, int64, error) {
	args := m.Called(ctx, slug, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.MessageLog), args.Get(1).(int64), args.Error(2)
}

func TestHistoryHandler_ListCalls(t *testing.T) {
	t.Run("filters parsed from query", func(t *testing.T) {
		svc := new(MockHistoryService)
		handler := NewHistoryHandler(svc)

		svc.On("ListCalls", mock.Anything, "acme", mock.MatchedBy(func(f model.CallFilter) bool {
			return f.CallerPhone != nil && *f.CallerPhone == "+1555" &&
				len(f.Statuses) == 2 && f.Statuses[0] == "completed" && f.Statuses[1] == "busy" &&
				f.Limit == 20 && f.Offset == 40 && f.Desc
		})).Return([]*model.Call{{ID: 1, TenantID: 1}}, int64(1), nil)

		ctx := setupTestContext("GET", "/tenants/acme/calls?caller_phone=%2B1555&status=completed,%20busy&limit=20&offset=40&order=desc", nil)
		ctx.SetUserValue("tenant_slug", "acme")
		handler.ListCalls(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var response callListResponse
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
		assert.Equal(t, int64(1), response.Total)
		assert.Len(t, response.Items, 1)
		svc.AssertExpectations(t)
	})

	t.Run("time range parsed", func(t *testing.T) {
		svc := new(MockHistoryService)
		handler := NewHistoryHandler(svc)

		svc.On("ListCalls", mock.Anything, "acme", mock.MatchedBy(func(f model.CallFilter) bool {
			return f.From != nil && f.To != nil && f.From.Year() == 2026
		})).Return([]*model.Call{}, int64(0), nil)

		ctx := setupTestContext("GET", "/tenants/acme/calls?from=2026-01-01&to=2026-12-31", nil)
		ctx.SetUserValue("tenant_slug", "acme")
		handler.ListCalls(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		svc := new(MockHistoryService)
		handler := NewHistoryHandler(svc)

		svc.On("ListCalls", mock.Anything, "ghost", mock.Anything).
			Return(nil, int64(0), services.ErrTenantNotFound)

		ctx := setupTestContext("GET", "/tenants/ghost/calls", nil)
		ctx.SetUserValue("tenant_slug", "ghost")
		handler.ListCalls(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})
}

func TestHistoryHandler_GetCall(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := new(MockHistoryService)
		handler := NewHistoryHandler(svc)

		svc.On("GetCall", mock.Anything, "acme", int64(42)).Return(&model.Call{ID: 42, TenantID: 1}, nil)

		ctx := setupTestContext("GET", "/tenants/acme/calls/42", nil)
		ctx.SetUserValue("tenant_slug", "acme")
		ctx.SetUserValue("id", "42")
		handler.GetCall(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var response model.Call
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
		assert.Equal(t, int64(42), response.ID)
	})

	t.Run("invalid id", func(t *testing.T) {
		svc := new(MockHistoryService)
		handler := NewHistoryHandler(svc)

		ctx := setupTestContext("GET", "/tenants/acme/calls/abc", nil)
		ctx.SetUserValue("tenant_slug", "acme")
		ctx.SetUserValue("id", "abc")
		handler.GetCall(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		svc.AssertNotCalled(t, "GetCall", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestHistoryHandler_ListMessageLogs(t *testing.T) {
	svc := new(MockHistoryService)
	handler := NewHistoryHandler(svc)

	svc.On("ListMessageLogs", mock.Anything, "acme", mock.MatchedBy(func(f model.MessageLogFilter) bool {
		return f.CallID != nil && *f.CallID == 42 &&
			f.RecipientPhone != nil && *f.RecipientPhone == "1555" &&
			len(f.Statuses) == 1 && f.Statuses[0] == model.MessageLogStatusFailed
	})).Return([]*model.MessageLog{{ID: 7}}, int64(1), nil)

	ctx := setupTestContext("GET", "/tenants/acme/message-logs?call_id=42&recipient_phone=1555&status=failed", nil)
	ctx.SetUserValue("tenant_slug", "acme")
	handler.ListMessageLogs(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())

	var response messageLogListResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
	assert.Equal(t, int64(1), response.Total)
	svc.AssertExpectations(t)
}

func TestHandlerHelpers(t *testing.T) {
	t.Run("readJSON", func(t *testing.T) {
		ctx := setupTestContext("POST", "/", []byte(`{"key":"value"}`))

		var result map[string]string
		require.NoError(t, readJSON(ctx, &result))
		assert.Equal(t, "value", result["key"])
	})

	t.Run("writeJSON", func(t *testing.T) {
		ctx := setupTestContext("GET", "/", nil)
		writeJSON(ctx, 200, map[string]string{"message": "test"})

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.Contains(t, string(ctx.Response.Header.Peek("Content-Type")), "application/json")
	})

	t.Run("writeError", func(t *testing.T) {
		ctx := setupTestContext("GET", "/", nil)
		writeError(ctx, 404, "not found")

		assert.Equal(t, 404, ctx.Response.StatusCode())

		var result map[string]string
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &result))
		assert.Equal(t, "not found", result["error"])
	})

	t.Run("parseTime RFC3339", func(t *testing.T) {
		parsed, err := parseTime("2026-01-01T12:00:00Z")
		require.NoError(t, err)
		assert.Equal(t, 2026, parsed.Year())
	})

	t.Run("parseTime date only", func(t *testing.T) {
		parsed, err := parseTime("2026-01-01")
		require.NoError(t, err)
		assert.Equal(t, time.Month(1), parsed.Month())
		assert.Equal(t, 1, parsed.Day())
	})

	t.Run("parseTime invalid", func(t *testing.T) {
		_, err := parseTime("invalid")
		assert.Error(t, err)
	})
}
