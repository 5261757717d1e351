package services

import (
	"context"
	"testing"

	gateway "github.com/callloop/postcall-gateway/internal/gateways"
	"github.com/callloop/postcall-gateway/internal/model"
	"github.com/callloop/postcall-gateway/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSettingsRepository struct {
	mock.Mock
}

func (m *MockSettingsRepository) GetTenantSettings(ctx context.Context, tenantID int64) (*model.TenantSettings, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TenantSettings), args.Error(1)
}

func (m *MockSettingsRepository) GetOrCreateTenantSettings(ctx context.Context, tenantID int64) (*model.TenantSettings, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TenantSettings), args.Error(1)
}

func (m *MockSettingsRepository) SaveTenantSettings(ctx context.Context, settings *model.TenantSettings) (*model.TenantSettings, error) {
	args := m.Called(ctx, settings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TenantSettings), args.Error(1)
}

func (m *MockSettingsRepository) SetWhatsAppCredentials(ctx context.Context, tenantID int64, phoneNumberID, businessAccountID, accessToken, verifyToken string) error {
	args := m.Called(ctx, tenantID, phoneNumberID, businessAccountID, accessToken, verifyToken)
	return args.Error(0)
}

func (m *MockSettingsRepository) SetWebhookSecret(ctx context.Context, tenantID int64, secret string) error {
	args := m.Called(ctx, tenantID, secret)
	return args.Error(0)
}

func (m *MockSettingsRepository) GetAutomationSettings(ctx context.Context, tenantID int64) (*model.AutomationSettings, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AutomationSettings), args.Error(1)
}

func (m *MockSettingsRepository) SaveAutomationSettings(ctx context.Context, settings *model.AutomationSettings) (*model.AutomationSettings, error) {
	args := m.Called(ctx, settings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AutomationSettings), args.Error(1)
}

type MockMessageLogWriter struct {
	mock.Mock
}

func (m *MockMessageLogWriter) Create(ctx context.Context, log *model.MessageLog) (*model.MessageLog, error) {
	args := m.Called(ctx, log)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MessageLog), args.Error(1)
}

func (m *MockMessageLogWriter) UpdateResult(ctx context.Context, id int64, status model.MessageLogStatus, whatsappMessageID, errorMessage, apiResponse string) error {
	args := m.Called(ctx, id, status, whatsappMessageID, errorMessage, apiResponse)
	return args.Error(0)
}

type MockMessagingClient struct {
	mock.Mock
}

func (m *MockMessagingClient) SendText(ctx context.Context, creds gateway.Credentials, to, body string) (*gateway.SendResult, error) {
	args := m.Called(ctx, creds, to, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.SendResult), args.Error(1)
}

func (m *MockMessagingClient) SendImage(ctx context.Context, creds gateway.Credentials, to, imageURL, caption string) (*gateway.SendResult, error) {
	args := m.Called(ctx, creds, to, imageURL, caption)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.SendResult), args.Error(1)
}

func (m *MockMessagingClient) SendCatalogCarousel(ctx context.Context, creds gateway.Credentials, to, header, footer string, items []gateway.CatalogItem) ([]*gateway.SendResult, error) {
	args := m.Called(ctx, creds, to, header, footer, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*gateway.SendResult), args.Error(1)
}

func (m *MockMessagingClient) CheckHealth(ctx context.Context, creds gateway.Credentials) error {
	args := m.Called(ctx, creds)
	return args.Error(0)
}

func TestSettingsService_GetSettings(t *testing.T) {
	tenantRepo := new(MockTenantRepository)
	settingsRepo := new(MockSettingsRepository)
	ctx := context.Background()

	svc := NewSettingsService(tenantRepo, settingsRepo, nil, nil)

	t.Run("unknown tenant", func(t *testing.T) {
		tenantRepo.On("GetBySlug", ctx, "ghost").Return(nil, repository.ErrNotFound)
		_, err := svc.GetSettings(ctx, "ghost")
		assert.ErrorIs(t, err, ErrTenantNotFound)
	})

	t.Run("creates lazily", func(t *testing.T) {
		tenantRepo.On("GetBySlug", ctx, "acme").Return(activeTenant(), nil)
		settingsRepo.On("GetOrCreateTenantSettings", ctx, int64(1)).
			Return(model.DefaultTenantSettings(1), nil)

		settings, err := svc.GetSettings(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, int64(1), settings.TenantID)
	})
}

func TestSettingsService_UpdateAutomationSettings(t *testing.T) {
	ctx := context.Background()
	boolPtr := func(b bool) *bool { return &b }
	strPtr := func(s string) *string { return &s }

	t.Run("invalid send mode rejected", func(t *testing.T) {
		tenantRepo := new(MockTenantRepository)
		settingsRepo := new(MockSettingsRepository)
		svc := NewSettingsService(tenantRepo, settingsRepo, nil, nil)

		tenantRepo.On("GetBySlug", ctx, "acme").Return(activeTenant(), nil)
		settingsRepo.On("GetAutomationSettings", ctx, int64(1)).Return(nil, repository.ErrNotFound)

		_, err := svc.UpdateAutomationSettings(ctx, "acme", AutomationSettingsUpdate{
			SendMode: strPtr("everything_at_once"),
		})
		assert.Error(t, err)
		settingsRepo.AssertNotCalled(t, "SaveAutomationSettings", mock.Anything, mock.Anything)
	})

	t.Run("partial update persists", func(t *testing.T) {
		tenantRepo := new(MockTenantRepository)
		settingsRepo := new(MockSettingsRepository)
		svc := NewSettingsService(tenantRepo, settingsRepo, nil, nil)

		tenantRepo.On("GetBySlug", ctx, "acme").Return(activeTenant(), nil)
		settingsRepo.On("GetAutomationSettings", ctx, int64(1)).
			Return(&model.AutomationSettings{TenantID: 1, Enabled: false, DelaySeconds: 60, SendMode: model.SendModeFullCatalog}, nil)
		settingsRepo.On("SaveAutomationSettings", ctx, mock.MatchedBy(func(s *model.AutomationSettings) bool {
			return s.Enabled && s.DelaySeconds == 60
		})).Return(&model.AutomationSettings{TenantID: 1, Enabled: true, DelaySeconds: 60}, nil)

		settings, err := svc.UpdateAutomationSettings(ctx, "acme", AutomationSettingsUpdate{
			Enabled: boolPtr(true),
		})
		require.NoError(t, err)
		assert.True(t, settings.Enabled)
		settingsRepo.AssertExpectations(t)
	})

	t.Run("defaults used when no row exists yet", func(t *testing.T) {
		tenantRepo := new(MockTenantRepository)
		settingsRepo := new(MockSettingsRepository)
		svc := NewSettingsService(tenantRepo, settingsRepo, nil, nil)

		tenantRepo.On("GetBySlug", ctx, "acme").Return(activeTenant(), nil)
		settingsRepo.On("GetAutomationSettings", ctx, int64(1)).Return(nil, repository.ErrNotFound)

		settings, err := svc.GetAutomationSettings(ctx, "acme")
		require.NoError(t, err)
		assert.False(t, settings.Enabled)
		assert.Equal(t, 60, settings.DelaySeconds)
		assert.Equal(t, model.SendModeFullCatalog, settings.SendMode)
	})
}

func TestSettingsService_ConfigureWhatsApp(t *testing.T) {
	ctx := context.Background()
	req := WhatsAppCredentialsRequest{
		PhoneNumberID:     "pn-1",
		BusinessAccountID: "waba-1",
		AccessToken:       "token-1",
		VerifyToken:       "verify-1",
	}

	t.Run("failed health check blocks save", func(t *testing.T) {
		tenantRepo := new(MockTenantRepository)
		settingsRepo := new(MockSettingsRepository)
		client := new(MockMessagingClient)
		svc := NewSettingsService(tenantRepo, settingsRepo, nil, client)

		tenantRepo.On("GetBySlug", ctx, "acme").Return(activeTenant(), nil)
		settingsRepo.On("GetOrCreateTenantSettings", ctx, int64(1)).
			Return(model.DefaultTenantSettings(1), nil)
		client.On("CheckHealth", ctx, mock.AnythingOfType("gateway.Credentials")).Return(assert.AnError)

		err := svc.ConfigureWhatsApp(ctx, "acme", req)
		assert.ErrorIs(t, err, ErrCredentialCheckFailed)
		settingsRepo.AssertNotCalled(t, "SetWhatsAppCredentials",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("verified credentials are saved", func(t *testing.T) {
		tenantRepo := new(MockTenantRepository)
		settingsRepo := new(MockSettingsRepository)
		client := new(MockMessagingClient)
		svc := NewSettingsService(tenantRepo, settingsRepo, nil, client)

		tenantRepo.On("GetBySlug", ctx, "acme").Return(activeTenant(), nil)
		settingsRepo.On("GetOrCreateTenantSettings", ctx, int64(1)).
			Return(model.DefaultTenantSettings(1), nil)
		client.On("CheckHealth", ctx, mock.AnythingOfType("gateway.Credentials")).Return(nil)
		settingsRepo.On("SetWhatsAppCredentials", ctx, int64(1), "pn-1", "waba-1", "token-1", "verify-1").Return(nil)

		err := svc.ConfigureWhatsApp(ctx, "acme", req)
		require.NoError(t, err)
		settingsRepo.AssertExpectations(t)
	})
}

func TestSettingsService_GenerateWebhookSecret(t *testing.T) {
	tenantRepo := new(MockTenantRepository)
	settingsRepo := new(MockSettingsRepository)
	ctx := context.Background()

	svc := NewSettingsService(tenantRepo, settingsRepo, nil, nil)

	tenantRepo.On("GetBySlug", ctx, "acme").Return(activeTenant(), nil)
	settingsRepo.On("GetOrCreateTenantSettings", ctx, int64(1)).
		Return(model.DefaultTenantSettings(1), nil)

	var saved string
	settingsRepo.On("SetWebhookSecret", ctx, int64(1), mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { saved = args.String(2) }).
		Return(nil)

	secret, err := svc.GenerateWebhookSecret(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, saved, secret)
	assert.GreaterOrEqual(t, len(secret), 40) // 32 random bytes, base64url

	second, err := svc.GenerateWebhookSecret(ctx, "acme")
	require.NoError(t, err)
	assert.NotEqual(t, secret, second)
}

func TestSettingsService_SendTestMessage(t *testing.T) {
	ctx := context.Background()

	configured := func() *model.TenantSettings {
		s := model.DefaultTenantSettings(1)
		s.IsWhatsAppConfigured = true
		s.WhatsAppPhoneNumberID = "pn-1"
		s.WhatsAppAccessToken = "token-1"
		return s
	}

	t.Run("unconfigured tenant rejected", func(t *testing.T) {
		tenantRepo := new(MockTenantRepository)
		settingsRepo := new(MockSettingsRepository)
		svc := NewSettingsService(tenantRepo, settingsRepo, nil, nil)

		tenantRepo.On("GetBySlug", ctx, "acme").Return(activeTenant(), nil)
		settingsRepo.On("GetTenantSettings", ctx, int64(1)).
			Return(model.DefaultTenantSettings(1), nil)

		_, err := svc.SendTestMessage(ctx, "acme", "+1555", "hi")
		assert.ErrorIs(t, err, ErrWhatsAppNotConfigured)
	})

	t.Run("successful send logs the attempt", func(t *testing.T) {
		tenantRepo := new(MockTenantRepository)
		settingsRepo := new(MockSettingsRepository)
		logRepo := new(MockMessageLogWriter)
		client := new(MockMessagingClient)
		svc := NewSettingsService(tenantRepo, settingsRepo, logRepo, client)

		tenantRepo.On("GetBySlug", ctx, "acme").Return(activeTenant(), nil)
		settingsRepo.On("GetTenantSettings", ctx, int64(1)).Return(configured(), nil)
		logRepo.On("Create", ctx, mock.MatchedBy(func(l *model.MessageLog) bool {
			return l.MessageType == model.MessageTypeText && l.RecipientPhone == "1555"
		})).Return(&model.MessageLog{ID: 5, TenantID: 1}, nil)
		client.On("SendText", ctx, mock.AnythingOfType("gateway.Credentials"), "+1555", "hi").
			Return(&gateway.SendResult{Success: true, MessageID: "wamid.x"}, nil)
		logRepo.On("UpdateResult", ctx, int64(5), model.MessageLogStatusSent, "wamid.x", "", "").Return(nil)

		log, err := svc.SendTestMessage(ctx, "acme", "+1555", "hi")
		require.NoError(t, err)
		assert.Equal(t, model.MessageLogStatusSent, log.Status)
		assert.Equal(t, "wamid.x", log.WhatsAppMessageID)
		logRepo.AssertExpectations(t)
	})

	t.Run("transport failure marks the log failed", func(t *testing.T) {
		tenantRepo := new(MockTenantRepository)
		settingsRepo := new(MockSettingsRepository)
		logRepo := new(MockMessageLogWriter)
		client := new(MockMessagingClient)
		svc := NewSettingsService(tenantRepo, settingsRepo, logRepo, client)

		tenantRepo.On("GetBySlug", ctx, "acme").Return(activeTenant(), nil)
		settingsRepo.On("GetTenantSettings", ctx, int64(1)).Return(configured(), nil)
		logRepo.On("Create", ctx, mock.AnythingOfType("*model.MessageLog")).
			Return(&model.MessageLog{ID: 6, TenantID: 1}, nil)
		client.On("SendText", ctx, mock.AnythingOfType("gateway.Credentials"), "+1555", "hi").
			Return(nil, assert.AnError)
		logRepo.On("UpdateResult", ctx, int64(6), model.MessageLogStatusFailed, "", assert.AnError.Error(), "").Return(nil)

		_, err := svc.SendTestMessage(ctx, "acme", "+1555", "hi")
		assert.Error(t, err)
		logRepo.AssertExpectations(t)
	})
}
