package automation

import (
	"context"
	"strings"
	"testing"

	gateway "github.com/callloop/postcall-gateway/internal/gateways"
	"github.com/callloop/postcall-gateway/internal/model"
	"github.com/callloop/postcall-gateway/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCallRepo struct {
	mock.Mock
}

func (m *MockCallRepo) GetByID(ctx context.Context, id int64) (*model.Call, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Call), args.Error(1)
}

func (m *MockCallRepo) StampAutomation(ctx context.Context, id int64, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

type MockSettingsRepo struct {
	mock.Mock
}

func (m *MockSettingsRepo) GetTenantSettings(ctx context.Context, tenantID int64) (*model.TenantSettings, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TenantSettings), args.Error(1)
}

func (m *MockSettingsRepo) GetAutomationSettings(ctx context.Context, tenantID int64) (*model.AutomationSettings, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AutomationSettings), args.Error(1)
}

// MockLogRepo echoes created logs back with an assigned ID so the send path
// has a row to resolve, unless the expectation injects an error.
type MockLogRepo struct {
	mock.Mock
	seq int64
}

func (m *MockLogRepo) Create(ctx context.Context, log *model.MessageLog) (*model.MessageLog, error) {
	args := m.Called(ctx, log)
	if args.Error(1) != nil {
		return nil, args.Error(1)
	}
	m.seq++
	log.ID = m.seq
	return log, nil
}

func (m *MockLogRepo) UpdateResult(ctx context.Context, id int64, status model.MessageLogStatus, whatsappMessageID, errorMessage, apiResponse string) error {
	args := m.Called(ctx, id, status, whatsappMessageID, errorMessage, apiResponse)
	return args.Error(0)
}

func (m *MockLogRepo) IncrementRetry(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockLogRepo) List(ctx context.Context, f model.MessageLogFilter) ([]*model.MessageLog, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.MessageLog), args.Get(1).(int64), args.Error(2)
}

type MockProductRepo struct {
	mock.Mock
}

func (m *MockProductRepo) ListActive(ctx context.Context, tenantID int64, includeCategories, excludeCategories []string, limit int) ([]*model.Product, error) {
	args := m.Called(ctx, tenantID, includeCategories, excludeCategories, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Product), args.Error(1)
}

type MockClient struct {
	mock.Mock
}

func (m *MockClient) SendText(ctx context.Context, creds gateway.Credentials, to, body string) (*gateway.SendResult, error) {
	args := m.Called(ctx, creds, to, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.SendResult), args.Error(1)
}

func (m *MockClient) SendImage(ctx context.Context, creds gateway.Credentials, to, imageURL, caption string) (*gateway.SendResult, error) {
	args := m.Called(ctx, creds, to, imageURL, caption)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.SendResult), args.Error(1)
}

type runnerFixture struct {
	callRepo     *MockCallRepo
	settingsRepo *MockSettingsRepo
	logRepo      *MockLogRepo
	productRepo  *MockProductRepo
	client       *MockClient
	runner       *Runner
}

func newRunnerFixture() *runnerFixture {
	f := &runnerFixture{
		callRepo:     new(MockCallRepo),
		settingsRepo: new(MockSettingsRepo),
		logRepo:      new(MockLogRepo),
		productRepo:  new(MockProductRepo),
		client:       new(MockClient),
	}
	f.runner = NewRunner(f.callRepo, f.settingsRepo, f.logRepo, f.productRepo, f.client, 5)
	return f
}

func readyTenantSettings() *model.TenantSettings {
	return &model.TenantSettings{
		ID:                    1,
		TenantID:              1,
		WhatsAppPhoneNumberID: "pn-1",
		WhatsAppAccessToken:   "token-1",
		ThankYouMessage:       "Thanks for calling!",
		IncludeCatalog:        true,
		CatalogHeaderMessage:  "Our collection:",
		CatalogFooterMessage:  "Reply to inquire!",
		IsWhatsAppConfigured:  true,
		IsActive:              true,
	}
}

func enabledAutomation() *model.AutomationSettings {
	return &model.AutomationSettings{
		ID:       1,
		TenantID: 1,
		Enabled:  true,
		SendMode: model.SendModeFullCatalog,
	}
}

func freshCall() *model.Call {
	return &model.Call{ID: 42, TenantID: 1, CallerPhone: "+1555"}
}

func automationJob() model.AutomationJob {
	return model.AutomationJob{TenantID: 1, CallID: 42, CallerPhone: "+1555"}
}

func okSend(id string) *gateway.SendResult {
	return &gateway.SendResult{Success: true, MessageID: id, RawResponse: []byte(`{"messages":[{"id":"` + id + `"}]}`)}
}

func TestRunner_Run_AlreadyHandled(t *testing.T) {
	f := newRunnerFixture()
	ctx := context.Background()

	f.callRepo.On("GetByID", ctx, int64(42)).Return(&model.Call{
		ID:                  42,
		TenantID:            1,
		AutomationTriggered: true,
		AutomationStatus:    "sent",
	}, nil)

	res, err := f.runner.Run(ctx, automationJob())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, "already handled", res.SkipReason)

	// No settings lookup, no sends, no re-stamp.
	f.settingsRepo.AssertExpectations(t)
	f.client.AssertExpectations(t)
	f.callRepo.AssertNotCalled(t, "StampAutomation", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunner_Run_PolicySkips(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name       string
		settings   *model.TenantSettings
		settingsOK bool
		automation *model.AutomationSettings
		wantReason string
	}{
		{
			name:       "tenant settings missing",
			wantReason: ErrClassNotEnabled,
		},
		{
			name: "tenant inactive",
			settings: func() *model.TenantSettings {
				s := readyTenantSettings()
				s.IsActive = false
				return s
			}(),
			settingsOK: true,
			wantReason: ErrClassNotEnabled,
		},
		{
			name: "whatsapp not configured",
			settings: func() *model.TenantSettings {
				s := readyTenantSettings()
				s.IsWhatsAppConfigured = false
				return s
			}(),
			settingsOK: true,
			wantReason: ErrClassClientUnavailable,
		},
		{
			name: "empty access token",
			settings: func() *model.TenantSettings {
				s := readyTenantSettings()
				s.WhatsAppAccessToken = ""
				return s
			}(),
			settingsOK: true,
			wantReason: ErrClassClientUnavailable,
		},
		{
			name:       "automation disabled",
			settings:   readyTenantSettings(),
			settingsOK: true,
			automation: func() *model.AutomationSettings {
				a := enabledAutomation()
				a.Enabled = false
				return a
			}(),
			wantReason: ErrClassNotEnabled,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newRunnerFixture()
			f.callRepo.On("GetByID", ctx, int64(42)).Return(freshCall(), nil)

			if tc.settingsOK {
				f.settingsRepo.On("GetTenantSettings", ctx, int64(1)).Return(tc.settings, nil)
			} else {
				f.settingsRepo.On("GetTenantSettings", ctx, int64(1)).Return(nil, repository.ErrNotFound)
			}
			if tc.automation != nil {
				f.settingsRepo.On("GetAutomationSettings", ctx, int64(1)).Return(tc.automation, nil)
			}
			f.callRepo.On("StampAutomation", ctx, int64(42), "skipped: "+tc.wantReason).Return(nil)

			res, err := f.runner.Run(ctx, automationJob())
			require.NoError(t, err)
			assert.True(t, res.Skipped)
			assert.Equal(t, tc.wantReason, res.SkipReason)
			f.callRepo.AssertExpectations(t)
			f.client.AssertExpectations(t)
		})
	}
}

func TestRunner_Run_ThankYouOnly(t *testing.T) {
	ctx := context.Background()

	run := func(t *testing.T, settings *model.TenantSettings, automation *model.AutomationSettings) {
		f := newRunnerFixture()
		f.callRepo.On("GetByID", ctx, int64(42)).Return(freshCall(), nil)
		f.settingsRepo.On("GetTenantSettings", ctx, int64(1)).Return(settings, nil)
		if automation != nil {
			f.settingsRepo.On("GetAutomationSettings", ctx, int64(1)).Return(automation, nil)
		} else {
			f.settingsRepo.On("GetAutomationSettings", ctx, int64(1)).Return(nil, repository.ErrNotFound)
		}

		f.logRepo.On("Create", ctx, mock.AnythingOfType("*model.MessageLog")).Return(nil, nil)
		f.client.On("SendText", ctx, mock.Anything, "1555", settings.ThankYouMessage).Return(okSend("wamid.1"), nil)
		f.logRepo.On("UpdateResult", ctx, int64(1), model.MessageLogStatusSent, "wamid.1", "", mock.Anything).Return(nil)
		f.callRepo.On("StampAutomation", ctx, int64(42), "sent").Return(nil)

		res, err := f.runner.Run(ctx, automationJob())
		require.NoError(t, err)
		assert.True(t, res.Success())
		assert.Equal(t, 1, res.MessagesSent)
		f.client.AssertNumberOfCalls(t, "SendText", 1)
		f.productRepo.AssertNotCalled(t, "ListActive", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.callRepo.AssertExpectations(t)
	}

	t.Run("catalog disabled on tenant", func(t *testing.T) {
		settings := readyTenantSettings()
		settings.IncludeCatalog = false
		run(t, settings, nil)
	})

	t.Run("send mode thank_you_only", func(t *testing.T) {
		automation := enabledAutomation()
		automation.SendMode = model.SendModeThankYouOnly
		run(t, readyTenantSettings(), automation)
	})
}

func TestRunner_Run_FullCatalog(t *testing.T) {
	f := newRunnerFixture()
	ctx := context.Background()
	settings := readyTenantSettings()

	f.callRepo.On("GetByID", ctx, int64(42)).Return(freshCall(), nil)
	f.settingsRepo.On("GetTenantSettings", ctx, int64(1)).Return(settings, nil)
	f.settingsRepo.On("GetAutomationSettings", ctx, int64(1)).Return(enabledAutomation(), nil)

	f.productRepo.On("ListActive", ctx, int64(1), []string(nil), []string(nil), 5).Return([]*model.Product{
		{Name: "Gold Ring", Price: 12000, SKU: "GR-1", ImageURL: "https://cdn.example.com/gr1.jpg"},
		{Name: "Silver Chain"},
	}, nil)

	f.logRepo.On("Create", ctx, mock.AnythingOfType("*model.MessageLog")).Return(nil, nil)
	f.logRepo.On("UpdateResult", ctx, mock.Anything, model.MessageLogStatusSent, "wamid.ok", "", mock.Anything).Return(nil)
	// The batch log created before the carousel resolves to sent once every
	// item lands.
	f.logRepo.On("UpdateResult", ctx, int64(2), model.MessageLogStatusSent, "", "", "").Return(nil)

	var texts []string
	f.client.On("SendText", ctx, mock.Anything, "1555", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { texts = append(texts, args.String(3)) }).
		Return(okSend("wamid.ok"), nil)
	f.client.On("SendImage", ctx, mock.Anything, "1555", "https://cdn.example.com/gr1.jpg", mock.MatchedBy(func(caption string) bool {
		return strings.Contains(caption, "*1. Gold Ring*") && strings.Contains(caption, "SKU: GR-1")
	})).Return(okSend("wamid.ok"), nil)

	f.callRepo.On("StampAutomation", ctx, int64(42), "sent").Return(nil)

	res, err := f.runner.Run(ctx, automationJob())
	require.NoError(t, err)
	assert.Equal(t, 5, res.MessagesSent)
	assert.Zero(t, res.MessagesFailed)

	// Thank-you, header, imageless product, footer — the image product goes
	// through SendImage.
	require.Len(t, texts, 4)
	assert.Equal(t, settings.ThankYouMessage, texts[0])
	assert.Equal(t, settings.CatalogHeaderMessage, texts[1])
	assert.Contains(t, texts[2], "*2. Silver Chain*")
	assert.Contains(t, texts[2], "Contact for price")
	assert.Equal(t, settings.CatalogFooterMessage, texts[3])

	f.client.AssertNumberOfCalls(t, "SendImage", 1)
	f.callRepo.AssertExpectations(t)
}

func TestRunner_Run_EmptyCatalog(t *testing.T) {
	f := newRunnerFixture()
	ctx := context.Background()
	settings := readyTenantSettings()

	f.callRepo.On("GetByID", ctx, int64(42)).Return(freshCall(), nil)
	f.settingsRepo.On("GetTenantSettings", ctx, int64(1)).Return(settings, nil)
	f.settingsRepo.On("GetAutomationSettings", ctx, int64(1)).Return(enabledAutomation(), nil)
	f.productRepo.On("ListActive", ctx, int64(1), []string(nil), []string(nil), 5).Return([]*model.Product{}, nil)

	f.logRepo.On("Create", ctx, mock.AnythingOfType("*model.MessageLog")).Return(nil, nil)
	f.client.On("SendText", ctx, mock.Anything, "1555", settings.ThankYouMessage).Return(okSend("wamid.1"), nil)
	f.logRepo.On("UpdateResult", ctx, int64(1), model.MessageLogStatusSent, "wamid.1", "", mock.Anything).Return(nil)
	f.callRepo.On("StampAutomation", ctx, int64(42), "sent").Return(nil)

	res, err := f.runner.Run(ctx, automationJob())
	require.NoError(t, err)
	assert.Equal(t, 1, res.MessagesSent)

	// No header or footer around an empty catalog.
	f.client.AssertNumberOfCalls(t, "SendText", 1)
}

func TestRunner_Run_FilteredCatalog(t *testing.T) {
	f := newRunnerFixture()
	ctx := context.Background()
	settings := readyTenantSettings()
	settings.CatalogHeaderMessage = ""
	settings.CatalogFooterMessage = ""

	automation := enabledAutomation()
	automation.SendMode = model.SendModeFilteredCatalog
	automation.IncludeCategories = "rings, chains"
	automation.ExcludeCategories = "clearance"

	f.callRepo.On("GetByID", ctx, int64(42)).Return(freshCall(), nil)
	f.settingsRepo.On("GetTenantSettings", ctx, int64(1)).Return(settings, nil)
	f.settingsRepo.On("GetAutomationSettings", ctx, int64(1)).Return(automation, nil)

	f.productRepo.On("ListActive", ctx, int64(1), []string{"rings", "chains"}, []string{"clearance"}, 5).
		Return([]*model.Product{{Name: "Gold Ring"}}, nil)

	f.logRepo.On("Create", ctx, mock.AnythingOfType("*model.MessageLog")).Return(nil, nil)
	f.client.On("SendText", ctx, mock.Anything, "1555", mock.AnythingOfType("string")).Return(okSend("wamid.ok"), nil)
	f.logRepo.On("UpdateResult", ctx, mock.Anything, model.MessageLogStatusSent, "wamid.ok", "", mock.Anything).Return(nil)
	f.logRepo.On("UpdateResult", ctx, int64(2), model.MessageLogStatusSent, "", "", "").Return(nil)
	f.callRepo.On("StampAutomation", ctx, int64(42), "sent").Return(nil)

	res, err := f.runner.Run(ctx, automationJob())
	require.NoError(t, err)
	assert.Equal(t, 2, res.MessagesSent)
	f.productRepo.AssertExpectations(t)
}

func TestRunner_Run_PartialFailure(t *testing.T) {
	f := newRunnerFixture()
	ctx := context.Background()
	settings := readyTenantSettings()
	settings.CatalogHeaderMessage = ""
	settings.CatalogFooterMessage = ""

	f.callRepo.On("GetByID", ctx, int64(42)).Return(freshCall(), nil)
	f.settingsRepo.On("GetTenantSettings", ctx, int64(1)).Return(settings, nil)
	f.settingsRepo.On("GetAutomationSettings", ctx, int64(1)).Return(enabledAutomation(), nil)
	f.productRepo.On("ListActive", ctx, int64(1), []string(nil), []string(nil), 5).Return([]*model.Product{
		{Name: "Gold Ring"},
		{Name: "Silver Chain"},
	}, nil)

	f.logRepo.On("Create", ctx, mock.AnythingOfType("*model.MessageLog")).Return(nil, nil)

	f.client.On("SendText", ctx, mock.Anything, "1555", settings.ThankYouMessage).Return(okSend("wamid.1"), nil).Once()
	f.client.On("SendText", ctx, mock.Anything, "1555", mock.MatchedBy(func(body string) bool {
		return strings.Contains(body, "*1. Gold Ring*")
	})).Return(okSend("wamid.2"), nil).Once()
	f.client.On("SendText", ctx, mock.Anything, "1555", mock.MatchedBy(func(body string) bool {
		return strings.Contains(body, "*2. Silver Chain*")
	})).Return(&gateway.SendResult{
		Success:      false,
		ErrorCode:    "131026",
		ErrorMessage: "Message undeliverable",
		RawResponse:  []byte(`{"error":{"code":131026}}`),
	}, nil).Once()

	f.logRepo.On("UpdateResult", ctx, mock.Anything, model.MessageLogStatusSent, mock.Anything, "", mock.Anything).Return(nil)
	f.logRepo.On("UpdateResult", ctx, int64(4), model.MessageLogStatusFailed, "",
		ErrClassSendFailed+": Message undeliverable (131026)", `{"error":{"code":131026}}`).Return(nil)
	f.logRepo.On("UpdateResult", ctx, int64(2), model.MessageLogStatusPartial, "",
		"1 of 2 messages failed", "").Return(nil)

	f.callRepo.On("StampAutomation", ctx, int64(42), "partial: 1 of 3 messages failed").Return(nil)

	res, err := f.runner.Run(ctx, automationJob())
	require.NoError(t, err)
	assert.Equal(t, 2, res.MessagesSent)
	assert.Equal(t, 1, res.MessagesFailed)
	assert.Equal(t, "partial: 1 of 3 messages failed", res.CallStatus())
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], ErrClassSendFailed)
	f.callRepo.AssertExpectations(t)
	f.logRepo.AssertExpectations(t)
}

func TestRunner_Run_CatalogBatchLog(t *testing.T) {
	f := newRunnerFixture()
	ctx := context.Background()
	settings := readyTenantSettings()
	settings.CatalogHeaderMessage = ""
	settings.CatalogFooterMessage = ""

	f.callRepo.On("GetByID", ctx, int64(42)).Return(freshCall(), nil)
	f.settingsRepo.On("GetTenantSettings", ctx, int64(1)).Return(settings, nil)
	f.settingsRepo.On("GetAutomationSettings", ctx, int64(1)).Return(enabledAutomation(), nil)
	f.productRepo.On("ListActive", ctx, int64(1), []string(nil), []string(nil), 5).Return([]*model.Product{
		{Name: "Gold Ring", ImageURL: "https://cdn.example.com/gr1.jpg"},
		{Name: "Silver Chain"},
		{Name: "Pearl Set"},
	}, nil)

	var created []*model.MessageLog
	f.logRepo.On("Create", ctx, mock.AnythingOfType("*model.MessageLog")).
		Run(func(args mock.Arguments) { created = append(created, args.Get(1).(*model.MessageLog)) }).
		Return(nil, nil)

	f.client.On("SendText", ctx, mock.Anything, "1555", mock.AnythingOfType("string")).Return(okSend("wamid.ok"), nil)
	f.client.On("SendImage", ctx, mock.Anything, "1555", "https://cdn.example.com/gr1.jpg", mock.Anything).
		Return(&gateway.SendResult{
			Success:      false,
			ErrorCode:    "131053",
			ErrorMessage: "Media upload error",
			RawResponse:  []byte(`{"error":{"code":131053}}`),
		}, nil)

	f.logRepo.On("UpdateResult", ctx, mock.Anything, model.MessageLogStatusSent, "wamid.ok", "", mock.Anything).Return(nil)
	f.logRepo.On("UpdateResult", ctx, int64(3), model.MessageLogStatusFailed, "",
		ErrClassSendFailed+": Media upload error (131053)", `{"error":{"code":131053}}`).Return(nil)
	// The batch row aggregates the carousel outcome.
	f.logRepo.On("UpdateResult", ctx, int64(2), model.MessageLogStatusPartial, "",
		"1 of 3 messages failed", "").Return(nil)
	f.callRepo.On("StampAutomation", ctx, int64(42), "partial: 1 of 4 messages failed").Return(nil)

	res, err := f.runner.Run(ctx, automationJob())
	require.NoError(t, err)
	assert.Equal(t, 3, res.MessagesSent)
	assert.Equal(t, 1, res.MessagesFailed)

	// Thank-you, batch, three items. The batch row is not a send of its own.
	require.Len(t, created, 5)
	assert.Equal(t, model.MessageTypeCatalog, created[1].MessageType)
	assert.Equal(t, "catalog carousel: 3 products", created[1].MessageContent)
	f.logRepo.AssertExpectations(t)
}

func TestRunner_Run_AllFailed(t *testing.T) {
	ctx := context.Background()

	t.Run("transport error", func(t *testing.T) {
		f := newRunnerFixture()
		settings := readyTenantSettings()
		settings.IncludeCatalog = false

		f.callRepo.On("GetByID", ctx, int64(42)).Return(freshCall(), nil)
		f.settingsRepo.On("GetTenantSettings", ctx, int64(1)).Return(settings, nil)
		f.settingsRepo.On("GetAutomationSettings", ctx, int64(1)).Return(nil, repository.ErrNotFound)

		f.logRepo.On("Create", ctx, mock.AnythingOfType("*model.MessageLog")).Return(nil, nil)
		f.client.On("SendText", ctx, mock.Anything, "1555", settings.ThankYouMessage).Return(nil, assert.AnError)
		f.logRepo.On("UpdateResult", ctx, int64(1), model.MessageLogStatusFailed, "",
			ErrClassSendFailed+": "+assert.AnError.Error(), "").Return(nil)
		f.callRepo.On("StampAutomation", ctx, int64(42), "failed").Return(nil)

		res, err := f.runner.Run(ctx, automationJob())
		require.NoError(t, err)
		assert.False(t, res.Success())
		assert.Equal(t, 1, res.MessagesFailed)
		assert.Equal(t, "failed", res.CallStatus())
		f.logRepo.AssertExpectations(t)
	})

	t.Run("missing credentials classed as client unavailable", func(t *testing.T) {
		f := newRunnerFixture()
		settings := readyTenantSettings()
		settings.IncludeCatalog = false

		f.callRepo.On("GetByID", ctx, int64(42)).Return(freshCall(), nil)
		f.settingsRepo.On("GetTenantSettings", ctx, int64(1)).Return(settings, nil)
		f.settingsRepo.On("GetAutomationSettings", ctx, int64(1)).Return(nil, repository.ErrNotFound)

		f.logRepo.On("Create", ctx, mock.AnythingOfType("*model.MessageLog")).Return(nil, nil)
		f.client.On("SendText", ctx, mock.Anything, "1555", settings.ThankYouMessage).Return(nil, gateway.ErrMissingCredentials)
		f.logRepo.On("UpdateResult", ctx, int64(1), model.MessageLogStatusFailed, "",
			ErrClassClientUnavailable+": "+gateway.ErrMissingCredentials.Error(), "").Return(nil)
		f.callRepo.On("StampAutomation", ctx, int64(42), "failed").Return(nil)

		res, err := f.runner.Run(ctx, automationJob())
		require.NoError(t, err)
		require.Len(t, res.Errors, 1)
		assert.Contains(t, res.Errors[0], ErrClassClientUnavailable)
		f.logRepo.AssertExpectations(t)
	})
}

func TestRunner_RunRetry(t *testing.T) {
	ctx := context.Background()
	retryJob := model.AutomationJob{TenantID: 1, CallID: 42, CallerPhone: "+1555", Attempt: 1, Retry: true}

	t.Run("resends only failed logs and folds in sent count", func(t *testing.T) {
		f := newRunnerFixture()
		f.callRepo.On("GetByID", ctx, int64(42)).Return(freshCall(), nil)
		f.settingsRepo.On("GetTenantSettings", ctx, int64(1)).Return(readyTenantSettings(), nil)
		f.settingsRepo.On("GetAutomationSettings", ctx, int64(1)).Return(enabledAutomation(), nil)

		callID := int64(42)
		failedLog := &model.MessageLog{
			ID:             7,
			TenantID:       1,
			CallID:         &callID,
			RecipientPhone: "1555",
			MessageType:    model.MessageTypeText,
			MessageContent: "Thanks for calling!",
			Status:         model.MessageLogStatusFailed,
		}

		f.logRepo.On("List", ctx, mock.MatchedBy(func(fl model.MessageLogFilter) bool {
			return len(fl.Statuses) == 2 && fl.Statuses[0] == model.MessageLogStatusFailed
		})).Return([]*model.MessageLog{failedLog}, int64(1), nil)

		f.logRepo.On("IncrementRetry", ctx, int64(7)).Return(nil)
		f.client.On("SendText", ctx, mock.Anything, "1555", "Thanks for calling!").Return(okSend("wamid.retry"), nil)
		f.logRepo.On("UpdateResult", ctx, int64(7), model.MessageLogStatusSent, "wamid.retry", "", mock.Anything).Return(nil)

		// After the resend, three logs total are in sent state.
		f.logRepo.On("List", ctx, mock.MatchedBy(func(fl model.MessageLogFilter) bool {
			return len(fl.Statuses) == 1 && fl.Statuses[0] == model.MessageLogStatusSent
		})).Return([]*model.MessageLog{{ID: 5}, {ID: 6}, {ID: 7}}, int64(3), nil)

		f.callRepo.On("StampAutomation", ctx, int64(42), "sent").Return(nil)

		res, err := f.runner.RunRetry(ctx, retryJob)
		require.NoError(t, err)
		assert.Equal(t, 3, res.MessagesSent)
		assert.Zero(t, res.MessagesFailed)
		f.callRepo.AssertExpectations(t)
		f.logRepo.AssertExpectations(t)
		f.productRepo.AssertNotCalled(t, "ListActive", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("exhausted retry budget fails without a send", func(t *testing.T) {
		f := newRunnerFixture()
		f.callRepo.On("GetByID", ctx, int64(42)).Return(freshCall(), nil)
		f.settingsRepo.On("GetTenantSettings", ctx, int64(1)).Return(readyTenantSettings(), nil)
		f.settingsRepo.On("GetAutomationSettings", ctx, int64(1)).Return(enabledAutomation(), nil)

		callID := int64(42)
		spent := &model.MessageLog{
			ID:             9,
			TenantID:       1,
			CallID:         &callID,
			RecipientPhone: "1555",
			MessageType:    model.MessageTypeText,
			Status:         model.MessageLogStatusFailed,
		}
		f.logRepo.On("List", ctx, mock.MatchedBy(func(fl model.MessageLogFilter) bool {
			return len(fl.Statuses) == 2
		})).Return([]*model.MessageLog{spent}, int64(1), nil)
		f.logRepo.On("IncrementRetry", ctx, int64(9)).Return(repository.ErrRetriesExhausted)
		f.logRepo.On("List", ctx, mock.MatchedBy(func(fl model.MessageLogFilter) bool {
			return len(fl.Statuses) == 1
		})).Return([]*model.MessageLog{}, int64(0), nil)
		f.callRepo.On("StampAutomation", ctx, int64(42), "failed").Return(nil)

		res, err := f.runner.RunRetry(ctx, retryJob)
		require.NoError(t, err)
		assert.Equal(t, 1, res.MessagesFailed)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, ErrClassSendFailed+": retries exhausted", res.Errors[0])
		f.client.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("catalog batch rows are not resent", func(t *testing.T) {
		f := newRunnerFixture()
		f.callRepo.On("GetByID", ctx, int64(42)).Return(freshCall(), nil)
		f.settingsRepo.On("GetTenantSettings", ctx, int64(1)).Return(readyTenantSettings(), nil)
		f.settingsRepo.On("GetAutomationSettings", ctx, int64(1)).Return(enabledAutomation(), nil)

		callID := int64(42)
		batch := &model.MessageLog{
			ID:             8,
			TenantID:       1,
			CallID:         &callID,
			RecipientPhone: "1555",
			MessageType:    model.MessageTypeCatalog,
			MessageContent: "catalog carousel: 3 products",
			Status:         model.MessageLogStatusFailed,
		}
		f.logRepo.On("List", ctx, mock.Anything).Return([]*model.MessageLog{batch}, int64(1), nil)

		res, err := f.runner.RunRetry(ctx, retryJob)
		require.NoError(t, err)
		assert.True(t, res.Skipped)
		assert.Equal(t, "nothing to retry", res.SkipReason)
		f.logRepo.AssertNotCalled(t, "IncrementRetry", mock.Anything, mock.Anything)
		f.client.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("nothing to retry", func(t *testing.T) {
		f := newRunnerFixture()
		f.callRepo.On("GetByID", ctx, int64(42)).Return(freshCall(), nil)
		f.settingsRepo.On("GetTenantSettings", ctx, int64(1)).Return(readyTenantSettings(), nil)
		f.settingsRepo.On("GetAutomationSettings", ctx, int64(1)).Return(enabledAutomation(), nil)
		f.logRepo.On("List", ctx, mock.Anything).Return([]*model.MessageLog{}, int64(0), nil)

		res, err := f.runner.RunRetry(ctx, retryJob)
		require.NoError(t, err)
		assert.True(t, res.Skipped)
		assert.Equal(t, "nothing to retry", res.SkipReason)
		f.callRepo.AssertNotCalled(t, "StampAutomation", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("policy re-checked on retry", func(t *testing.T) {
		f := newRunnerFixture()
		settings := readyTenantSettings()
		settings.IsActive = false

		f.callRepo.On("GetByID", ctx, int64(42)).Return(freshCall(), nil)
		f.settingsRepo.On("GetTenantSettings", ctx, int64(1)).Return(settings, nil)

		res, err := f.runner.RunRetry(ctx, retryJob)
		require.NoError(t, err)
		assert.True(t, res.Skipped)
		assert.Equal(t, ErrClassNotEnabled, res.SkipReason)
		f.logRepo.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	})
}
