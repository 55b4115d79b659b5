package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultHealthTTL = 10 * time.Minute

	unexpectedReplyMessage = "Recebi uma resposta inesperada da IA. Pode reformular a pergunta?"

	charsPerToken = 3.5

	maxAttachmentRunes = 1000

	promptTemplate = `Você é a assistente do hub de negócios. Seja direta e cordial.
Módulo atual: %s
Usuário: %s
Responda em no máximo 2 frases. Se uma ação ajudar, termine com uma linha "AÇÃO_SUGERIDA: <código>" usando um destes códigos: %s.`
)

// ResponseCache memoizes adapter replies. Implementations live in internal/cache.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*Response, bool)
	Set(ctx context.Context, key string, resp *Response)
}

// Adapter turns a chat request into a reply from one Completer, answering from
// the local responder or the cache first when it can.
type Adapter struct {
	backend   Completer
	cache     ResponseCache
	local     *LocalResponder
	extractor Extractor
	logger    zerolog.Logger
	now       func() time.Time
	newID     func() string
	healthTTL time.Duration

	mu        sync.Mutex
	available bool
	healthOK  bool
	healthAt  time.Time
}

type Option func(*Adapter)

func WithCache(c ResponseCache) Option {
	return func(a *Adapter) { a.cache = c }
}

func WithLocalResponder(l *LocalResponder) Option {
	return func(a *Adapter) { a.local = l }
}

// WithExtractor adds extracted attachment text to the prompt. Requests with
// attachments then bypass the cache.
func WithExtractor(e Extractor) Option {
	return func(a *Adapter) { a.extractor = e }
}

func WithLogger(l zerolog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(a *Adapter) { a.newID = fn }
}

func WithHealthTTL(d time.Duration) Option {
	return func(a *Adapter) { a.healthTTL = d }
}

func NewAdapter(backend Completer, opts ...Option) *Adapter {
	a := &Adapter{
		backend:   backend,
		local:     NewLocalResponder(),
		logger:    zerolog.Nop(),
		now:       time.Now,
		newID:     uuid.NewString,
		healthTTL: DefaultHealthTTL,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With().Str("provider", backend.Name()).Logger()
	a.available = backend.Configured()
	if !a.available {
		a.logger.Warn().Msg("no api key configured, provider will reject requests")
	}
	return a
}

func (a *Adapter) Name() string {
	return a.backend.Name()
}

// Available reports the permanent availability flag. Quota exhaustion does not clear it.
func (a *Adapter) Available() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.available
}

func (a *Adapter) Respond(ctx context.Context, req *Request) (*Response, error) {
	start := a.now()
	module := req.Module()
	key := CacheKey(req.Message, module)

	if msg, ok := a.local.Match(req.Message); ok {
		return &Response{
			Message:  msg,
			Actions:  []SuggestedAction{},
			Metadata: Metadata{Provider: LocalProviderName},
		}, nil
	}

	withFiles := a.extractor != nil && len(req.Attachments) > 0
	if withFiles {
		key = ""
	}

	if a.cache != nil && key != "" {
		if cached, ok := a.cache.Get(ctx, key); ok {
			cached.Metadata.Cached = true
			cached.Metadata.ProcessingTimeMs = a.now().Sub(start).Milliseconds()
			return cached, nil
		}
	}

	if !a.backend.Configured() {
		return nil, fmt.Errorf("%s: %w", a.backend.Name(), ErrMissingAPIKey)
	}

	prompt := BuildPrompt(SanitizeRequest(req))
	if withFiles {
		prompt += a.attachmentText(ctx, req.Attachments)
	}

	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)

	// The remote call outlives an abandoned caller so the cache still gets filled.
	go func() {
		resp, err := a.complete(context.WithoutCancel(ctx), key, prompt, module, start)
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Adapter) complete(ctx context.Context, key, prompt, module string, start time.Time) (*Response, error) {
	raw, err := a.backend.Complete(ctx, prompt, DefaultGeneration)
	if err != nil {
		if errors.Is(err, ErrMalformedReply) {
			a.logger.Warn().Err(err).Msg("degraded reply")
			return &Response{
				Message: unexpectedReplyMessage,
				Actions: []SuggestedAction{},
				Metadata: Metadata{
					Provider:         a.backend.Name(),
					ProcessingTimeMs: a.now().Sub(start).Milliseconds(),
				},
			}, nil
		}
		return nil, err
	}

	message, actions := ParseReply(raw, module, a.newID)
	tokens := EstimateTokens(prompt + raw)

	resp := &Response{
		Message: message,
		Actions: actions,
		Metadata: Metadata{
			Provider:         a.backend.Name(),
			TokensUsed:       tokens,
			Cost:             float64(tokens) * a.backend.CostPerToken(),
			ProcessingTimeMs: a.now().Sub(start).Milliseconds(),
		},
	}

	if a.cache != nil && key != "" {
		a.cache.Set(ctx, key, resp)
	}

	a.mu.Lock()
	a.available = true
	a.mu.Unlock()

	a.logger.Debug().
		Int("tokens", tokens).
		Int("actions", len(actions)).
		Msg("remote reply")

	return resp, nil
}

func (a *Adapter) attachmentText(ctx context.Context, files []Attachment) string {
	var b strings.Builder
	for _, f := range files {
		text, err := a.extractor.Extract(ctx, f)
		if err != nil {
			a.logger.Warn().Err(err).Str("mime_type", f.MimeType).Msg("attachment extraction failed")
			continue
		}
		text = Sanitize(strings.TrimSpace(text))
		if text == "" {
			continue
		}
		if r := []rune(text); len(r) > maxAttachmentRunes {
			text = string(r[:maxAttachmentRunes])
		}
		fmt.Fprintf(&b, "\nAnexo %s: %s", Sanitize(f.Name), text)
	}
	return b.String()
}

// CheckHealth issues a minimal call and caches the verdict for the health TTL.
func (a *Adapter) CheckHealth(ctx context.Context) bool {
	a.mu.Lock()
	if !a.healthAt.IsZero() && a.now().Sub(a.healthAt) < a.healthTTL {
		ok := a.healthOK
		a.mu.Unlock()
		return ok
	}
	a.mu.Unlock()

	var err error
	if a.backend.Configured() {
		_, err = a.backend.Complete(ctx, "OK", HealthGeneration)
	} else {
		err = ErrMissingAPIKey
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.healthAt = a.now()

	switch {
	case err == nil, errors.Is(err, ErrMalformedReply):
		a.healthOK = true
		a.available = true
	case IsQuotaError(err):
		a.logger.Warn().Err(err).Msg("health check hit quota")
		a.healthOK = false
	default:
		a.logger.Warn().Err(err).Msg("health check failed")
		a.healthOK = false
		a.available = false
	}
	return a.healthOK
}

// CacheKey normalizes message and tags it with the hub module.
func CacheKey(message, module string) string {
	if module == "" {
		module = DefaultModule
	}
	return strings.Join(strings.Fields(strings.ToLower(message)), " ") + ":" + module
}

// EstimateTokens approximates token usage from character count.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / charsPerToken))
}

// ModuleLabel maps a hub module id to the name shown to the model.
func ModuleLabel(module string) string {
	switch module {
	case "crm":
		return "CRM"
	case "multifins":
		return "Financeiro"
	case "agenda":
		return "Agenda"
	default:
		return "Principal"
	}
}

func BuildPrompt(req *Request) string {
	codes := make([]string, len(ActionCodes))
	for i, c := range ActionCodes {
		codes[i] = string(c)
	}
	return fmt.Sprintf(promptTemplate, ModuleLabel(req.Module()), req.Message, strings.Join(codes, ", "))
}
