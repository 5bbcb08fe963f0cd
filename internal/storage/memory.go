package storage

import (
	"context"
	"sort"
	"sync"

	"channelPassAPI/internal/types/subscription"
)

// Memory is a mutex-guarded in-memory store. Used by tests and for
// running without a database; it satisfies the same contract as Postgres.
type Memory struct {
	mu   sync.Mutex
	subs map[int64]int64
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[int64]int64)}
}

func (m *Memory) Upsert(ctx context.Context, userID int64, expiresAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[userID] = expiresAt
	return nil
}

func (m *Memory) Remove(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, userID)
	return nil
}

func (m *Memory) GetExpiry(ctx context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiresAt, ok := m.subs[userID]
	if !ok {
		return 0, subscription.ErrNotSubscribed
	}
	return expiresAt, nil
}

func (m *Memory) ListExpired(ctx context.Context, now int64) ([]int64, error) {
	all, _ := m.ListAll(ctx)

	var expired []int64
	for _, sub := range all {
		if sub.Expired(now) {
			expired = append(expired, sub.UserID)
		}
	}
	return expired, nil
}

func (m *Memory) ListAll(ctx context.Context) ([]subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := make([]subscription.Subscription, 0, len(m.subs))
	for userID, expiresAt := range m.subs {
		subs = append(subs, subscription.Subscription{UserID: userID, ExpiresAt: expiresAt})
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].ExpiresAt != subs[j].ExpiresAt {
			return subs[i].ExpiresAt < subs[j].ExpiresAt
		}
		return subs[i].UserID < subs[j].UserID
	})
	return subs, nil
}
