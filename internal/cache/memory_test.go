package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnmchuo/hub-assistant/internal/provider"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func sampleResponse(msg string) *provider.Response {
	return &provider.Response{
		Message: msg,
		Actions: []provider.SuggestedAction{
			{ID: "a1", Type: provider.ActionCreate, Module: "crm", Payload: map[string]any{"k": "v"}},
		},
		Metadata: provider.Metadata{Provider: "gemini", TokensUsed: 12},
	}
}

func TestMemoryStore_GetSet(t *testing.T) {
	s, err := NewMemoryStore(10, time.Minute)
	require.NoError(t, err)

	_, ok := s.Get(context.Background(), "missing")
	assert.False(t, ok)

	s.Set(context.Background(), "k", sampleResponse("hello"))
	got, ok := s.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, "hello", got.Message)
	assert.Equal(t, "gemini", got.Metadata.Provider)
	require.Len(t, got.Actions, 1)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s, err := NewMemoryStore(10, time.Minute)
	require.NoError(t, err)

	orig := sampleResponse("hello")
	s.Set(context.Background(), "k", orig)
	orig.Message = "mutated"
	orig.Actions[0].Payload["k"] = "mutated"

	got, ok := s.Get(context.Background(), "k")
	require.True(t, ok)
	got.Metadata.Cached = true

	again, ok := s.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, "hello", again.Message)
	assert.Equal(t, "v", again.Actions[0].Payload["k"])
	assert.False(t, again.Metadata.Cached)
}

func TestMemoryStore_Expiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s, err := NewMemoryStore(10, 5*time.Minute, WithClock(clock.now))
	require.NoError(t, err)

	s.Set(context.Background(), "k", sampleResponse("hello"))

	clock.advance(4 * time.Minute)
	_, ok := s.Get(context.Background(), "k")
	assert.True(t, ok, "entry should survive inside the TTL")

	clock.advance(2 * time.Minute)
	_, ok = s.Get(context.Background(), "k")
	assert.False(t, ok, "entry should expire after the TTL")
	assert.Equal(t, 0, s.Len(), "expired entry should be evicted on lookup")
}

func TestMemoryStore_Capacity(t *testing.T) {
	s, err := NewMemoryStore(2, time.Minute)
	require.NoError(t, err)

	ctx := context.Background()
	s.Set(ctx, "a", sampleResponse("a"))
	s.Set(ctx, "b", sampleResponse("b"))
	s.Set(ctx, "c", sampleResponse("c"))

	assert.Equal(t, 2, s.Len())
	_, ok := s.Get(ctx, "a")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = s.Get(ctx, "c")
	assert.True(t, ok)
}

func TestNewMemoryStore_Defaults(t *testing.T) {
	s, err := NewMemoryStore(0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, s.ttl)
}
