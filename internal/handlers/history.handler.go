package handlers

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/callloop/postcall-gateway/internal/model"
	xhttp "github.com/callloop/postcall-gateway/pkg/http"
)

type HistoryService interface {
	ListCalls(ctx context.Context, slug string, f model.CallFilter) ([]*model.Call, int64, error)
	GetCall(ctx context.Context, slug string, id int64) (*model.Call, error)
	ListMessageLogs(ctx context.Context, slug string, f model.MessageLogFilter) ([]*model.MessageLog, int64, error)
}

type HistoryHandler struct {
	svc HistoryService
}

func RegisterHistoryRoutes(e *router.Group, h *HistoryHandler) {
	e.GET("/tenants/{tenant_slug}/calls", h.ListCalls)
	e.GET("/tenants/{tenant_slug}/calls/{id}", h.GetCall)
	e.GET("/tenants/{tenant_slug}/message-logs", h.ListMessageLogs)
}

func NewHistoryHandler(svc HistoryService) *HistoryHandler {
	return &HistoryHandler{
		svc: svc,
	}
}

type callListResponse struct {
	Items []*model.Call `json:"items"`
	Total int64         `json:"total"`
}

type messageLogListResponse struct {
	Items []*model.MessageLog `json:"items"`
	Total int64               `json:"total"`
}

func (h *HistoryHandler) ListCalls(ctx *xhttp.RequestCtx) {
	var f model.CallFilter

	if v := query(ctx, "caller_phone"); v != "" {
		f.CallerPhone = &v
	}
	if v := query(ctx, "status"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
			if parts[i] != "" {
				f.Statuses = append(f.Statuses, parts[i])
			}
		}
	}
	parseRangeAndPaging(ctx, &f.From, &f.To, &f.Limit, &f.Offset, &f.Desc)

	items, total, err := h.svc.ListCalls(ctx, param(ctx, "tenant_slug"), f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, callListResponse{Items: items, Total: total})
}

func (h *HistoryHandler) GetCall(ctx *xhttp.RequestCtx) {
	id, err := strconv.ParseInt(param(ctx, "id"), 10, 64)
	if err != nil {
		writeError(ctx, 400, "invalid call id")
		return
	}

	call, err := h.svc.GetCall(ctx, param(ctx, "tenant_slug"), id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, call)
}

func (h *HistoryHandler) ListMessageLogs(ctx *xhttp.RequestCtx) {
	var f model.MessageLogFilter

	if v := query(ctx, "call_id"); v != "" {
		if id, e := strconv.ParseInt(v, 10, 64); e == nil {
			f.CallID = &id
		}
	}
	if v := query(ctx, "recipient_phone"); v != "" {
		f.RecipientPhone = &v
	}
	if v := query(ctx, "status"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
			if parts[i] != "" {
				f.Statuses = append(f.Statuses, model.MessageLogStatus(parts[i]))
			}
		}
	}
	parseRangeAndPaging(ctx, &f.From, &f.To, &f.Limit, &f.Offset, &f.Desc)

	items, total, err := h.svc.ListMessageLogs(ctx, param(ctx, "tenant_slug"), f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, messageLogListResponse{Items: items, Total: total})
}

func parseRangeAndPaging(ctx *xhttp.RequestCtx, from, to **time.Time, limit, offset *int, desc *bool) {
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			*from = &t
		}
	}
	if v := query(ctx, "to"); v != "" {
		if t, e := parseTime(v); e == nil {
			*to = &t
		}
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			*limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			*offset = n
		}
	}
	if strings.EqualFold(query(ctx, "order"), "desc") {
		*desc = true
	}
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func param(ctx *xhttp.RequestCtx, key string) string {
	if v, ok := ctx.UserValue(key).(string); ok {
		return v
	}
	return ""
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
