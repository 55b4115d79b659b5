package usage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UsageLog is one assistant reply as recorded for per-tenant reporting.
type UsageLog struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	UserID       string    `json:"user_id,omitempty"`
	RequestID    string    `json:"request_id"`
	Provider     string    `json:"provider"`
	Module       string    `json:"module"`
	TaskType     string    `json:"task_type"`
	TokensUsed   int       `json:"tokens_used"`
	CostUSD      float64   `json:"cost_usd"`
	LatencyMs    int64     `json:"latency_ms"`
	FallbackFrom string    `json:"fallback_from,omitempty"`
	Cached       bool      `json:"cached"`
	CreatedAt    time.Time `json:"created_at"`
}

type Store interface {
	LogUsage(ctx context.Context, log *UsageLog) error
	GetUsageByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*UsageLog, error)
	GetTotalCostByTenant(ctx context.Context, tenantID string, from, to time.Time) (float64, error)
}

const DefaultMemoryCapacity = 10000

// MemoryStore keeps the most recent logs in process. It is used when no
// database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	logs     []*UsageLog
	capacity int
	now      func() time.Time
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity, now: time.Now}
}

func (s *MemoryStore) LogUsage(_ context.Context, log *UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = s.now()
	}
	cp := *log
	s.logs = append(s.logs, &cp)
	if over := len(s.logs) - s.capacity; over > 0 {
		s.logs = s.logs[over:]
	}
	return nil
}

func (s *MemoryStore) GetUsageByTenant(_ context.Context, tenantID string, from, to time.Time) ([]*UsageLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*UsageLog
	for _, l := range s.logs {
		if l.TenantID == tenantID && !l.CreatedAt.Before(from) && !l.CreatedAt.After(to) {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetTotalCostByTenant(ctx context.Context, tenantID string, from, to time.Time) (float64, error) {
	logs, err := s.GetUsageByTenant(ctx, tenantID, from, to)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, l := range logs {
		total += l.CostUSD
	}
	return total, nil
}
