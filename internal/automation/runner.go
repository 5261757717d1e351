package automation

import (
	"context"
	"errors"
	"fmt"

	gateway "github.com/callloop/postcall-gateway/internal/gateways"
	"github.com/callloop/postcall-gateway/internal/model"
	"github.com/callloop/postcall-gateway/internal/repository"
	"github.com/callloop/postcall-gateway/pkg/logger"
	"github.com/callloop/postcall-gateway/pkg/prom"
)

// Error classes recorded on message logs so operators can filter failures.
const (
	ErrClassNotEnabled        = "AUTOMATION_NOT_ENABLED"
	ErrClassClientUnavailable = "WHATSAPP_CLIENT_UNAVAILABLE"
	ErrClassSendFailed        = "SEND_FAILED"
	ErrClassInternal          = "INTERNAL_ERROR"
)

type CallRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Call, error)
	StampAutomation(ctx context.Context, id int64, status string) error
}

type SettingsRepository interface {
	GetTenantSettings(ctx context.Context, tenantID int64) (*model.TenantSettings, error)
	GetAutomationSettings(ctx context.Context, tenantID int64) (*model.AutomationSettings, error)
}

type MessageLogRepository interface {
	Create(ctx context.Context, log *model.MessageLog) (*model.MessageLog, error)
	UpdateResult(ctx context.Context, id int64, status model.MessageLogStatus, whatsappMessageID, errorMessage, apiResponse string) error
	IncrementRetry(ctx context.Context, id int64) error
	List(ctx context.Context, f model.MessageLogFilter) ([]*model.MessageLog, int64, error)
}

type ProductRepository interface {
	ListActive(ctx context.Context, tenantID int64, includeCategories, excludeCategories []string, limit int) ([]*model.Product, error)
}

type MessagingClient interface {
	SendText(ctx context.Context, creds gateway.Credentials, to, body string) (*gateway.SendResult, error)
	SendImage(ctx context.Context, creds gateway.Credentials, to, imageURL, caption string) (*gateway.SendResult, error)
}

// Result summarizes one automation run over a call.
type Result struct {
	MessagesSent   int
	MessagesFailed int
	Skipped        bool
	SkipReason     string
	Errors         []string
}

func (r *Result) Success() bool {
	return !r.Skipped && r.MessagesFailed == 0
}

// CallStatus renders the value stamped onto the call row.
func (r *Result) CallStatus() string {
	switch {
	case r.Skipped:
		return "skipped: " + r.SkipReason
	case r.MessagesFailed == 0:
		return "sent"
	case r.MessagesSent == 0:
		return "failed"
	default:
		total := r.MessagesSent + r.MessagesFailed
		return fmt.Sprintf("partial: %d of %d messages failed", r.MessagesFailed, total)
	}
}

// Runner executes the post-call follow-up flow: a thank-you text plus an
// optional catalog carousel, with every attempt recorded as a message log.
type Runner struct {
	callRepo     CallRepository
	settingsRepo SettingsRepository
	logRepo      MessageLogRepository
	productRepo  ProductRepository
	client       MessagingClient
	catalogLimit int
}

func NewRunner(callRepo CallRepository, settingsRepo SettingsRepository, logRepo MessageLogRepository, productRepo ProductRepository, client MessagingClient, catalogLimit int) *Runner {
	if catalogLimit <= 0 {
		catalogLimit = 10
	}
	return &Runner{
		callRepo:     callRepo,
		settingsRepo: settingsRepo,
		logRepo:      logRepo,
		productRepo:  productRepo,
		client:       client,
		catalogLimit: catalogLimit,
	}
}

// Run executes the full flow for a freshly ingested call.
func (r *Runner) Run(ctx context.Context, job model.AutomationJob) (*Result, error) {
	call, err := r.callRepo.GetByID(ctx, job.CallID)
	if err != nil {
		return nil, fmt.Errorf("load call %d: %w", job.CallID, err)
	}

	// A crash after sends but before the processed marker can redeliver the
	// job; the stamped call is the durable line of defense.
	if call.AutomationTriggered && call.AutomationStatus == "sent" {
		logger.Info("Call already handled, skipping", "call_id", call.ID)
		return &Result{Skipped: true, SkipReason: "already handled"}, nil
	}

	settings, automation, skipReason, err := r.loadPolicy(ctx, job.TenantID)
	if err != nil {
		return nil, err
	}
	if skipReason != "" {
		res := &Result{Skipped: true, SkipReason: skipReason}
		r.stamp(ctx, call.ID, res)
		return res, nil
	}

	creds := gateway.Credentials{
		PhoneNumberID:     settings.WhatsAppPhoneNumberID,
		AccessToken:       settings.WhatsAppAccessToken,
		BusinessAccountID: settings.WhatsAppBusinessAccountID,
	}

	recipient := gateway.NormalizePhone(job.CallerPhone)
	res := &Result{}

	// Thank-you message first, always.
	r.sendLogged(ctx, res, creds, &model.MessageLog{
		TenantID:       job.TenantID,
		CallID:         &call.ID,
		RecipientPhone: recipient,
		MessageType:    model.MessageTypeText,
		MessageContent: settings.ThankYouMessage,
	})

	if r.shouldSendCatalog(settings, automation) {
		r.sendCatalog(ctx, res, creds, job, settings, automation, recipient)
	}

	r.stamp(ctx, call.ID, res)
	return res, nil
}

// RunRetry resends only the failed message logs of the call.
func (r *Runner) RunRetry(ctx context.Context, job model.AutomationJob) (*Result, error) {
	call, err := r.callRepo.GetByID(ctx, job.CallID)
	if err != nil {
		return nil, fmt.Errorf("load call %d: %w", job.CallID, err)
	}

	settings, _, skipReason, err := r.loadPolicy(ctx, job.TenantID)
	if err != nil {
		return nil, err
	}
	if skipReason != "" {
		return &Result{Skipped: true, SkipReason: skipReason}, nil
	}

	statuses := []model.MessageLogStatus{model.MessageLogStatusFailed, model.MessageLogStatusPending}
	logs, _, err := r.logRepo.List(ctx, model.MessageLogFilter{
		TenantID: &job.TenantID,
		CallID:   &job.CallID,
		Statuses: statuses,
	})
	if err != nil {
		return nil, fmt.Errorf("load logs for call %d: %w", job.CallID, err)
	}
	if len(logs) == 0 {
		return &Result{Skipped: true, SkipReason: "nothing to retry"}, nil
	}

	creds := gateway.Credentials{
		PhoneNumberID:     settings.WhatsAppPhoneNumberID,
		AccessToken:       settings.WhatsAppAccessToken,
		BusinessAccountID: settings.WhatsAppBusinessAccountID,
	}

	res := &Result{}
	resent := 0
	for _, log := range logs {
		// Batch rows aggregate a carousel; their item rows carry the retries.
		if log.MessageType == model.MessageTypeCatalog {
			continue
		}
		resent++
		r.resend(ctx, res, creds, log)
	}
	if resent == 0 {
		return &Result{Skipped: true, SkipReason: "nothing to retry"}, nil
	}

	// Sent counts from the original run are folded in so the stamped status
	// reflects the whole call, not just this retry batch.
	sentStatus := model.MessageLogStatusSent
	sentLogs, _, err := r.logRepo.List(ctx, model.MessageLogFilter{
		TenantID: &job.TenantID,
		CallID:   &job.CallID,
		Statuses: []model.MessageLogStatus{sentStatus},
	})
	if err == nil {
		res.MessagesSent = len(sentLogs)
	}

	r.stamp(ctx, call.ID, res)
	return res, nil
}

// loadPolicy fetches settings and re-checks the gates that can change between
// scheduling and execution. Returns a skip reason instead of an error for
// policy denials.
func (r *Runner) loadPolicy(ctx context.Context, tenantID int64) (*model.TenantSettings, *model.AutomationSettings, string, error) {
	settings, err := r.settingsRepo.GetTenantSettings(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrClassNotEnabled, nil
		}
		return nil, nil, "", fmt.Errorf("load tenant settings: %w", err)
	}
	if !settings.IsActive {
		return nil, nil, ErrClassNotEnabled, nil
	}
	if !settings.IsWhatsAppConfigured || settings.WhatsAppAccessToken == "" {
		return nil, nil, ErrClassClientUnavailable, nil
	}

	automation, err := r.settingsRepo.GetAutomationSettings(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return settings, nil, "", nil
		}
		return nil, nil, "", fmt.Errorf("load automation settings: %w", err)
	}
	if !automation.Enabled {
		return nil, nil, ErrClassNotEnabled, nil
	}
	return settings, automation, "", nil
}

func (r *Runner) shouldSendCatalog(settings *model.TenantSettings, automation *model.AutomationSettings) bool {
	if !settings.IncludeCatalog {
		return false
	}
	if automation != nil && automation.SendMode == model.SendModeThankYouOnly {
		return false
	}
	return true
}

func (r *Runner) sendCatalog(ctx context.Context, res *Result, creds gateway.Credentials, job model.AutomationJob, settings *model.TenantSettings, automation *model.AutomationSettings, recipient string) {
	var include, exclude []string
	if automation != nil && automation.SendMode == model.SendModeFilteredCatalog {
		include = automation.IncludeCategoryList()
		exclude = automation.ExcludeCategoryList()
	}

	products, err := r.productRepo.ListActive(ctx, job.TenantID, include, exclude, r.catalogLimit)
	if err != nil {
		logger.Error("Failed to load products", "tenant_id", job.TenantID, "error", err)
		res.Errors = append(res.Errors, ErrClassInternal+": "+err.Error())
		return
	}
	if len(products) == 0 {
		return
	}

	// One batch log tracks the carousel as a whole; the per-message logs
	// below remain the item-level audit trail.
	batch, err := r.logRepo.Create(ctx, &model.MessageLog{
		TenantID:       job.TenantID,
		CallID:         &job.CallID,
		RecipientPhone: recipient,
		MessageType:    model.MessageTypeCatalog,
		MessageContent: fmt.Sprintf("catalog carousel: %d products", len(products)),
	})
	if err != nil {
		logger.Error("Failed to create catalog batch log", "tenant_id", job.TenantID, "error", err)
		res.Errors = append(res.Errors, ErrClassInternal+": "+err.Error())
		batch = nil
	}
	sentBefore, failedBefore := res.MessagesSent, res.MessagesFailed

	if settings.CatalogHeaderMessage != "" {
		r.sendLogged(ctx, res, creds, &model.MessageLog{
			TenantID:       job.TenantID,
			CallID:         &job.CallID,
			RecipientPhone: recipient,
			MessageType:    model.MessageTypeText,
			MessageContent: settings.CatalogHeaderMessage,
		})
	}

	for i, p := range products {
		caption := gateway.FormatCatalogCaption(i+1, gateway.CatalogItem{
			Name:        p.Name,
			Price:       p.Price,
			Description: p.Description,
			ImageURL:    p.ImageURL,
			SKU:         p.SKU,
		})

		log := &model.MessageLog{
			TenantID:       job.TenantID,
			CallID:         &job.CallID,
			RecipientPhone: recipient,
			MessageType:    model.MessageTypeText,
			MessageContent: caption,
		}
		if p.ImageURL != "" {
			log.MessageType = model.MessageTypeImage
			log.MediaURL = p.ImageURL
		}
		r.sendLogged(ctx, res, creds, log)
	}

	if settings.CatalogFooterMessage != "" {
		r.sendLogged(ctx, res, creds, &model.MessageLog{
			TenantID:       job.TenantID,
			CallID:         &job.CallID,
			RecipientPhone: recipient,
			MessageType:    model.MessageTypeText,
			MessageContent: settings.CatalogFooterMessage,
		})
	}

	if batch != nil {
		sent := res.MessagesSent - sentBefore
		failed := res.MessagesFailed - failedBefore
		r.resolveCatalogBatch(ctx, batch.ID, sent, failed)
	}
}

// resolveCatalogBatch stamps the batch log from the aggregated item results.
func (r *Runner) resolveCatalogBatch(ctx context.Context, id int64, sent, failed int) {
	switch {
	case failed == 0:
		_ = r.logRepo.UpdateResult(ctx, id, model.MessageLogStatusSent, "", "", "")
	case sent == 0:
		errMsg := fmt.Sprintf("%d of %d messages failed", failed, sent+failed)
		_ = r.logRepo.UpdateResult(ctx, id, model.MessageLogStatusFailed, "", errMsg, "")
	default:
		errMsg := fmt.Sprintf("%d of %d messages failed", failed, sent+failed)
		_ = r.logRepo.UpdateResult(ctx, id, model.MessageLogStatusPartial, "", errMsg, "")
	}
}

// sendLogged creates a pending log, sends, then resolves the log with the
// outcome. Send failures are accumulated on the result, never returned.
func (r *Runner) sendLogged(ctx context.Context, res *Result, creds gateway.Credentials, log *model.MessageLog) {
	created, err := r.logRepo.Create(ctx, log)
	if err != nil {
		logger.Error("Failed to create message log", "tenant_id", log.TenantID, "error", err)
		res.MessagesFailed++
		res.Errors = append(res.Errors, ErrClassInternal+": "+err.Error())
		return
	}
	r.deliver(ctx, res, creds, created)
}

// resend pushes an existing log through the send path again. Every attempt
// is counted on the row first, so retry_count reflects real send attempts.
func (r *Runner) resend(ctx context.Context, res *Result, creds gateway.Credentials, log *model.MessageLog) {
	if err := r.logRepo.IncrementRetry(ctx, log.ID); err != nil {
		if errors.Is(err, repository.ErrRetriesExhausted) {
			logger.Info("Retry budget exhausted", "log_id", log.ID)
			res.MessagesFailed++
			res.Errors = append(res.Errors, ErrClassSendFailed+": retries exhausted")
			return
		}
		res.MessagesFailed++
		res.Errors = append(res.Errors, ErrClassInternal+": "+err.Error())
		return
	}
	r.deliver(ctx, res, creds, log)
}

func (r *Runner) deliver(ctx context.Context, res *Result, creds gateway.Credentials, log *model.MessageLog) {
	var sendRes *gateway.SendResult
	var err error

	switch log.MessageType {
	case model.MessageTypeImage:
		sendRes, err = r.client.SendImage(ctx, creds, log.RecipientPhone, log.MediaURL, log.MessageContent)
	default:
		sendRes, err = r.client.SendText(ctx, creds, log.RecipientPhone, log.MessageContent)
	}

	if err != nil {
		errMsg := ErrClassSendFailed + ": " + err.Error()
		if errors.Is(err, gateway.ErrMissingCredentials) {
			errMsg = ErrClassClientUnavailable + ": " + err.Error()
		}
		_ = r.logRepo.UpdateResult(ctx, log.ID, model.MessageLogStatusFailed, "", errMsg, "")
		prom.IncMessageSent(log.MessageType, string(model.MessageLogStatusFailed))
		res.MessagesFailed++
		res.Errors = append(res.Errors, errMsg)
		return
	}

	if !sendRes.Success {
		errMsg := fmt.Sprintf("%s: %s (%s)", ErrClassSendFailed, sendRes.ErrorMessage, sendRes.ErrorCode)
		_ = r.logRepo.UpdateResult(ctx, log.ID, model.MessageLogStatusFailed, "", errMsg, string(sendRes.RawResponse))
		prom.IncMessageSent(log.MessageType, string(model.MessageLogStatusFailed))
		res.MessagesFailed++
		res.Errors = append(res.Errors, errMsg)
		return
	}

	_ = r.logRepo.UpdateResult(ctx, log.ID, model.MessageLogStatusSent, sendRes.MessageID, "", string(sendRes.RawResponse))
	prom.IncMessageSent(log.MessageType, string(model.MessageLogStatusSent))
	res.MessagesSent++
}

func (r *Runner) stamp(ctx context.Context, callID int64, res *Result) {
	if err := r.callRepo.StampAutomation(ctx, callID, res.CallStatus()); err != nil {
		logger.Error("Failed to stamp call", "call_id", callID, "error", err)
	}
}
