package proxy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/vnmchuo/hub-assistant/internal/metrics"
	"github.com/vnmchuo/hub-assistant/internal/provider"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	DefaultQuotaWindow    = 24 * time.Hour
	DefaultHealthInterval = 30 * time.Minute
	DefaultMinCheckGap    = 10 * time.Minute
)

var (
	ErrNilRequest          = errors.New("nil request")
	ErrEmptyMessage        = errors.New("message is required")
	ErrNoProviders         = errors.New("no providers registered")
	ErrUnknownProviderKind = errors.New("unknown provider kind")
)

// Registration is the router's view of one provider.
type Registration struct {
	Provider        provider.Provider
	Priority        int // lower is preferred
	Healthy         bool
	QuotaExhausted  bool
	QuotaResetAt    time.Time
	LastErrorAt     time.Time
	LastError       string
	LastHealthCheck time.Time
}

// Eligible reports whether the registration may be selected at now.
func (r *Registration) Eligible(now time.Time) bool {
	return r.Healthy && (!r.QuotaExhausted || !now.Before(r.QuotaResetAt))
}

type ProviderStatus struct {
	Name         string     `json:"name"`
	Available    bool       `json:"available"`
	Healthy      bool       `json:"healthy"`
	Eligible     bool       `json:"eligible"`
	Priority     int        `json:"priority"`
	LastError    string     `json:"last_error,omitempty"`
	QuotaResetAt *time.Time `json:"quota_reset_at,omitempty"`
}

type candidate struct {
	name     string
	provider provider.Provider
	priority int
}

type Router struct {
	mu        sync.RWMutex
	regs      map[string]*Registration
	factories map[string]Factory

	logger  zerolog.Logger
	tracer  trace.Tracer
	metrics *metrics.Registry
	now     func() time.Time

	quotaWindow    time.Duration
	healthInterval time.Duration
	minCheckGap    time.Duration

	schedMu     sync.Mutex
	sched       *cron.Cron
	cancelSweep context.CancelFunc
}

type Option func(*Router)

func WithLogger(l zerolog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Router) { r.tracer = t }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(r *Router) { r.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

func WithFactories(f map[string]Factory) Option {
	return func(r *Router) { r.factories = f }
}

func WithQuotaWindow(d time.Duration) Option {
	return func(r *Router) { r.quotaWindow = d }
}

func WithHealthInterval(d time.Duration) Option {
	return func(r *Router) { r.healthInterval = d }
}

func WithMinCheckGap(d time.Duration) Option {
	return func(r *Router) { r.minCheckGap = d }
}

// NewRouter builds an empty router. Health checks are not scheduled until
// StartHealthChecks is called.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		regs:           make(map[string]*Registration),
		logger:         zerolog.Nop(),
		tracer:         noop.NewTracerProvider().Tracer("proxy"),
		now:            time.Now,
		quotaWindow:    DefaultQuotaWindow,
		healthInterval: DefaultHealthInterval,
		minCheckGap:    DefaultMinCheckGap,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.factories == nil {
		r.factories = DefaultFactories()
	}
	r.logger = r.logger.With().Str("component", "router").Logger()
	return r
}

// Register adds p under its name, replacing any earlier registration of that name.
func (r *Router) Register(p provider.Provider, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.regs[p.Name()] = &Registration{
		Provider: p,
		Priority: priority,
		Healthy:  p.Available(),
	}
	r.setEligibleGauge(p.Name(), r.regs[p.Name()])
	r.logger.Info().
		Str("provider", p.Name()).
		Int("priority", priority).
		Bool("available", p.Available()).
		Msg("provider registered")
}

// AddProvider builds a provider of a known kind and registers it.
func (r *Router) AddProvider(kind string, cfg provider.Config, priority int) error {
	factory, ok := r.factories[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProviderKind, kind)
	}
	r.Register(factory(cfg), priority)
	return nil
}

// Route answers req with the best eligible provider, falling back through the
// remaining ones. It only errors for requests that cannot be routed at all.
func (r *Router) Route(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	start := r.now()
	task := ClassifyTask(req)

	ctx, span := r.tracer.Start(ctx, "router.route")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", req.TenantID),
		attribute.String("request_id", req.RequestID),
		attribute.String("module", req.Module()),
		attribute.String("task_type", string(task)),
	)

	candidates, total := r.candidates()
	if total == 0 {
		return nil, ErrNoProviders
	}
	if len(candidates) == 0 {
		r.logger.Warn().Str("tenant_id", req.TenantID).Msg("no eligible provider")
		resp := noProviderResponse(task)
		r.observe(span, resp, start)
		return resp, nil
	}

	first := r.selectProvider(task, candidates)
	ordered := append([]candidate{candidates[first]}, candidates[:first]...)
	ordered = append(ordered, candidates[first+1:]...)

	var failedFrom string
	for _, c := range ordered {
		resp, err := c.provider.Respond(ctx, req)
		if err == nil {
			r.markSuccess(c.name)
			if failedFrom != "" {
				resp.Metadata.FallbackFrom = failedFrom
				if r.metrics != nil {
					r.metrics.FallbacksTotal.WithLabelValues(failedFrom, c.name).Inc()
				}
			}
			resp.Metadata.TaskType = string(task)
			r.observe(span, resp, start)
			return resp, nil
		}

		if ctx.Err() != nil {
			r.logger.Debug().Str("provider", c.name).Err(ctx.Err()).Msg("caller gone, not counting failure")
			break
		}

		r.markFailure(c.name, err)
		if failedFrom == "" {
			failedFrom = c.name
		}
	}

	resp := heuristicResponse(req, failedFrom, task)
	span.SetStatus(codes.Error, "all providers failed")
	r.observe(span, resp, start)
	return resp, nil
}

// selectProvider returns the index of the candidate to try first. Selection is
// by priority for every task type.
func (r *Router) selectProvider(_ TaskType, _ []candidate) int {
	return 0
}

// candidates returns the eligible registrations in priority order plus the
// number of registrations overall.
func (r *Router) candidates() ([]candidate, int) {
	now := r.now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]candidate, 0, len(r.regs))
	for name, reg := range r.regs {
		if reg.Eligible(now) {
			out = append(out, candidate{name: name, provider: reg.Provider, priority: reg.Priority})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority < out[j].priority
		}
		return out[i].name < out[j].name
	})
	return out, len(r.regs)
}

func (r *Router) markSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.regs[name]
	if !ok {
		return
	}
	reg.Healthy = true
	reg.QuotaExhausted = false
	reg.QuotaResetAt = time.Time{}
	reg.LastError = ""
	r.setEligibleGauge(name, reg)
}

func (r *Router) markFailure(name string, err error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.regs[name]
	if !ok {
		return
	}
	reg.LastError = err.Error()
	reg.LastErrorAt = now

	if provider.IsQuotaError(err) {
		reg.QuotaExhausted = true
		reg.QuotaResetAt = now.Add(r.quotaWindow)
		r.logger.Warn().Str("provider", name).Time("reset_at", reg.QuotaResetAt).Msg("provider quota exhausted")
	} else {
		reg.Healthy = false
		r.logger.Warn().Str("provider", name).Err(err).Msg("provider marked unhealthy")
	}
	r.setEligibleGauge(name, reg)
}

// setEligibleGauge must be called with mu held.
func (r *Router) setEligibleGauge(name string, reg *Registration) {
	if r.metrics == nil {
		return
	}
	v := 0.0
	if reg.Eligible(r.now()) {
		v = 1
	}
	r.metrics.ProviderHealthy.WithLabelValues(name).Set(v)
}

func (r *Router) observe(span trace.Span, resp *provider.Response, start time.Time) {
	if resp.Metadata.ProcessingTimeMs == 0 {
		resp.Metadata.ProcessingTimeMs = r.now().Sub(start).Milliseconds()
	}
	span.SetAttributes(
		attribute.String("provider", resp.Metadata.Provider),
		attribute.Bool("cached", resp.Metadata.Cached),
		attribute.Int("tokens_used", resp.Metadata.TokensUsed),
	)
	if r.metrics == nil {
		return
	}
	r.metrics.RequestsTotal.WithLabelValues(resp.Metadata.Provider, source(resp)).Inc()
	r.metrics.RequestLatency.WithLabelValues(resp.Metadata.Provider).Observe(float64(r.now().Sub(start).Milliseconds()))
	if resp.Metadata.TokensUsed > 0 && !resp.Metadata.Cached {
		r.metrics.TokensTotal.WithLabelValues(resp.Metadata.Provider).Add(float64(resp.Metadata.TokensUsed))
	}
}

func source(resp *provider.Response) string {
	switch {
	case resp.Metadata.Provider == provider.LocalProviderName:
		return "local"
	case resp.Metadata.Provider == provider.FallbackProviderName:
		return "fallback"
	case resp.Metadata.Cached:
		return "cache"
	default:
		return "remote"
	}
}

// Status returns a snapshot of every registration.
func (r *Router) Status() map[string]ProviderStatus {
	now := r.now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ProviderStatus, len(r.regs))
	for name, reg := range r.regs {
		st := ProviderStatus{
			Name:      name,
			Available: reg.Provider.Available(),
			Healthy:   reg.Healthy,
			Eligible:  reg.Eligible(now),
			Priority:  reg.Priority,
			LastError: reg.LastError,
		}
		if reg.QuotaExhausted {
			reset := reg.QuotaResetAt
			st.QuotaResetAt = &reset
		}
		out[name] = st
	}
	return out
}

// Len returns the number of registered providers.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.regs)
}
