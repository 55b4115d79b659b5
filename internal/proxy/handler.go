package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vnmchuo/hub-assistant/internal/auth"
	"github.com/vnmchuo/hub-assistant/internal/provider"
	"github.com/vnmchuo/hub-assistant/internal/usage"
	"github.com/vnmchuo/hub-assistant/pkg/ratelimit"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxBodyBytes      = 1 << 20
	usageLogTimeout   = 5 * time.Second
	defaultRetryAfter = 60
)

type Handler struct {
	router  *Router
	usage   usage.Store
	limiter *ratelimit.Limiter
	tracer  trace.Tracer
	logger  zerolog.Logger
	now     func() time.Time

	pending sync.WaitGroup
}

func NewHandler(router *Router, store usage.Store, limiter *ratelimit.Limiter, tracer trace.Tracer, logger zerolog.Logger) *Handler {
	return &Handler{
		router:  router,
		usage:   store,
		limiter: limiter,
		tracer:  tracer,
		logger:  logger.With().Str("component", "handler").Logger(),
		now:     time.Now,
	}
}

// Routes mounts the assistant endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/v1/assistant/chat", h.HandleChat)
	r.Get("/v1/assistant/status", h.HandleStatus)
	r.Get("/v1/assistant/usage", h.HandleUsage)
	r.Post("/v1/assistant/actions/{id}/execute", h.HandleExecuteAction)
}

// Wait blocks until every pending usage write has finished.
func (h *Handler) Wait() {
	h.pending.Wait()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.GetTenantID(ctx)
	if tenantID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req provider.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, ErrEmptyMessage.Error())
		return
	}
	req.TenantID = tenantID
	req.UserID = auth.GetUserID(ctx)
	req.RequestID = auth.GetRequestID(ctx)

	ctx, span := h.tracer.Start(ctx, "assistant.chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("request_id", req.RequestID),
		attribute.String("module", req.Module()),
	)

	estimated := provider.EstimateTokens(req.Message) + provider.DefaultGeneration.MaxOutputTokens
	budget, err := h.limiter.Allow(ctx, tenantID, estimated)
	if err != nil {
		h.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("rate limiter unavailable")
	}
	if err != nil || !budget.Allowed {
		retry := budget.RetryAfterSeconds(defaultRetryAfter)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error":       "rate limit exceeded",
			"retry_after": strconv.Itoa(retry) + "s",
		})
		return
	}

	resp, err := h.router.Route(ctx, &req)
	switch {
	case errors.Is(err, ErrNoProviders):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrNilRequest):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logUsage(ctx, &req, resp)

	h.logger.Info().
		Str("tenant_id", tenantID).
		Str("user_id", req.UserID).
		Str("request_id", req.RequestID).
		Str("provider", resp.Metadata.Provider).
		Bool("cached", resp.Metadata.Cached).
		Int("actions", len(resp.Actions)).
		Int64("latency_ms", resp.Metadata.ProcessingTimeMs).
		Msg("assistant reply")

	writeJSON(w, http.StatusOK, resp)
}

// logUsage records the reply without delaying the response. Local replies
// are not recorded.
func (h *Handler) logUsage(ctx context.Context, req *provider.Request, resp *provider.Response) {
	if h.usage == nil || resp.Metadata.Provider == provider.LocalProviderName {
		return
	}

	entry := &usage.UsageLog{
		TenantID:     req.TenantID,
		UserID:       req.UserID,
		RequestID:    req.RequestID,
		Provider:     resp.Metadata.Provider,
		Module:       req.Module(),
		TaskType:     resp.Metadata.TaskType,
		TokensUsed:   resp.Metadata.TokensUsed,
		CostUSD:      resp.Metadata.Cost,
		LatencyMs:    resp.Metadata.ProcessingTimeMs,
		FallbackFrom: resp.Metadata.FallbackFrom,
		Cached:       resp.Metadata.Cached,
	}
	if entry.Cached {
		entry.TokensUsed = 0
		entry.CostUSD = 0
	}

	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), usageLogTimeout)
		defer cancel()
		if err := h.usage.LogUsage(ctx, entry); err != nil {
			h.logger.Error().Err(err).Str("request_id", entry.RequestID).Msg("failed to log usage")
		}
	}()
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": h.router.Status(),
	})
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.GetTenantID(ctx)
	if tenantID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	now := h.now()
	from := now.AddDate(0, 0, -30) // Default: last 30 days
	to := now

	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid 'from' date format (use RFC3339)")
			return
		}
		from = t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid 'to' date format (use RFC3339)")
			return
		}
		to = t
	}

	logs, err := h.usage.GetUsageByTenant(ctx, tenantID, from, to)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("usage query failed")
		writeError(w, http.StatusInternalServerError, "failed to load usage")
		return
	}
	totalCost, err := h.usage.GetTotalCostByTenant(ctx, tenantID, from, to)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("usage total failed")
		writeError(w, http.StatusInternalServerError, "failed to load usage")
		return
	}

	var tokens int
	for _, l := range logs {
		tokens += l.TokensUsed
	}
	if logs == nil {
		logs = []*usage.UsageLog{}
	}

	body := map[string]any{
		"tenant_id":      tenantID,
		"total_requests": len(logs),
		"total_tokens":   tokens,
		"total_cost_usd": totalCost,
		"logs":           logs,
		"from":           from,
		"to":             to,
	}
	if h.limiter.Enabled() {
		// The budget is informational; a limiter outage does not fail the report.
		if budget, err := h.limiter.Status(ctx, tenantID); err != nil {
			h.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("rate limit status failed")
		} else {
			body["rate_limit"] = map[string]any{
				"remaining":           budget.Remaining,
				"limit":               budget.Limit,
				"reset_after_seconds": budget.RetryAfterSeconds(0),
			}
		}
	}

	writeJSON(w, http.StatusOK, body)
}

// HandleExecuteAction is a placeholder: suggested actions are executed by the
// hub modules, not by the assistant.
func (h *Handler) HandleExecuteAction(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotImplemented, map[string]string{
		"error":     "action execution is not available",
		"action_id": chi.URLParam(r, "id"),
	})
}
