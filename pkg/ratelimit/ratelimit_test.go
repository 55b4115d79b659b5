package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	extratelimit "github.com/vnmchuo/ratelimiter"
)

type mockStore struct {
	result  extratelimit.Result
	err     error
	lastKey string
	lastN   int
}

func (m *mockStore) AllowN(_ context.Context, key string, n int) (*extratelimit.Result, error) {
	m.lastKey, m.lastN = key, n
	res := m.result
	return &res, m.err
}

func (m *mockStore) Allow(ctx context.Context, key string) (*extratelimit.Result, error) {
	return m.AllowN(ctx, key, 1)
}

func (m *mockStore) Status(_ context.Context, key string) (*extratelimit.Result, error) {
	m.lastKey = key
	res := m.result
	return &res, m.err
}

func TestAllow_UsesTenantKey(t *testing.T) {
	store := &mockStore{result: extratelimit.Result{Allowed: true, Remaining: 750, Limit: 1000}}
	l := NewWithStore(store)

	b, err := l.Allow(context.Background(), "tenant-1", 250)
	require.NoError(t, err)
	assert.True(t, b.Allowed)
	assert.Equal(t, int64(750), b.Remaining)
	assert.Equal(t, 1000, b.Limit)
	assert.Equal(t, "assistant:ratelimit:tenant:tenant-1", store.lastKey)
	assert.Equal(t, 250, store.lastN)
}

func TestAllow_MinimumOneToken(t *testing.T) {
	store := &mockStore{result: extratelimit.Result{Allowed: true}}
	_, err := NewWithStore(store).Allow(context.Background(), "t", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, store.lastN)
}

func TestAllow_Denied(t *testing.T) {
	store := &mockStore{result: extratelimit.Result{Allowed: false, ResetAfter: 12 * time.Second}}
	b, err := NewWithStore(store).Allow(context.Background(), "t", 10)
	require.NoError(t, err)
	assert.False(t, b.Allowed)
	assert.Equal(t, 12, b.RetryAfterSeconds(60))
}

func TestAllow_StoreError(t *testing.T) {
	boom := errors.New("redis down")
	b, err := NewWithStore(&mockStore{err: boom}).Allow(context.Background(), "t", 10)
	assert.ErrorIs(t, err, boom)
	assert.False(t, b.Allowed)
}

func TestStatus(t *testing.T) {
	store := &mockStore{result: extratelimit.Result{Allowed: true, Remaining: 40, Limit: 100, ResetAfter: 30 * time.Second}}
	b, err := NewWithStore(store).Status(context.Background(), "tenant-2")
	require.NoError(t, err)
	assert.Equal(t, "assistant:ratelimit:tenant:tenant-2", store.lastKey)
	assert.Equal(t, Budget{Allowed: true, Remaining: 40, Limit: 100, ResetAfter: 30 * time.Second}, b)

	_, err = NewWithStore(&mockStore{err: errors.New("redis down")}).Status(context.Background(), "t")
	assert.ErrorContains(t, err, "rate limit status")
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		reset time.Duration
		want  int
	}{
		{0, 60},
		{-time.Second, 60},
		{time.Millisecond, 1},
		{1500 * time.Millisecond, 2},
		{45 * time.Second, 45},
	}
	for _, tt := range tests {
		t.Run(tt.reset.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Budget{ResetAfter: tt.reset}.RetryAfterSeconds(60))
		})
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	assert.False(t, l.Enabled())

	b, err := l.Allow(context.Background(), "t", 10)
	require.NoError(t, err)
	assert.True(t, b.Allowed)

	b, err = l.Status(context.Background(), "t")
	require.NoError(t, err)
	assert.True(t, b.Allowed)
}
