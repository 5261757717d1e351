package services

import (
	"context"

	"github.com/callloop/postcall-gateway/internal/model"
)

type CallReader interface {
	GetByID(ctx context.Context, id int64) (*model.Call, error)
	List(ctx context.Context, f model.CallFilter) ([]*model.Call, int64, error)
}

type MessageLogReader interface {
	List(ctx context.Context, f model.MessageLogFilter) ([]*model.MessageLog, int64, error)
}

// HistoryService serves the read-only call and message log listings.
type HistoryService struct {
	tenantRepo TenantRepository
	callRepo   CallReader
	logRepo    MessageLogReader
}

func NewHistoryService(tenantRepo TenantRepository, callRepo CallReader, logRepo MessageLogReader) *HistoryService {
	return &HistoryService{
		tenantRepo: tenantRepo,
		callRepo:   callRepo,
		logRepo:    logRepo,
	}
}

func (s *HistoryService) scopeToTenant(ctx context.Context, slug string) (int64, error) {
	tenant, err := s.tenantRepo.GetBySlug(ctx, slug)
	if err != nil {
		return 0, ErrTenantNotFound
	}
	return tenant.ID, nil
}

func (s *HistoryService) ListCalls(ctx context.Context, slug string, f model.CallFilter) ([]*model.Call, int64, error) {
	tenantID, err := s.scopeToTenant(ctx, slug)
	if err != nil {
		return nil, 0, err
	}
	f.TenantID = &tenantID
	return s.callRepo.List(ctx, f)
}

func (s *HistoryService) GetCall(ctx context.Context, slug string, id int64) (*model.Call, error) {
	tenantID, err := s.scopeToTenant(ctx, slug)
	if err != nil {
		return nil, err
	}
	call, err := s.callRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if call.TenantID != tenantID {
		return nil, ErrTenantNotFound
	}
	return call, nil
}

func (s *HistoryService) ListMessageLogs(ctx context.Context, slug string, f model.MessageLogFilter) ([]*model.MessageLog, int64, error) {
	tenantID, err := s.scopeToTenant(ctx, slug)
	if err != nil {
		return nil, 0, err
	}
	f.TenantID = &tenantID
	return s.logRepo.List(ctx, f)
}
