package services

import (
	"context"
	"log"
	"sync"

	"channelPassAPI/internal/types/subscription"
)

// AccessGateway grants and revokes membership in the private channel and
// delivers notifications. Implemented by the Telegram transport; the
// services only depend on this interface.
type AccessGateway interface {
	// GrantAccess issues a single-use invite valid until expiresAt and
	// returns the invite link.
	GrantAccess(ctx context.Context, userID int64, expiresAt int64) (string, error)
	// RevokeAccess removes the user from the channel.
	RevokeAccess(ctx context.Context, userID int64) error
	// NotifyUser delivers a message to a single user.
	NotifyUser(ctx context.Context, userID int64, text string) error
	// NotifyAdmins delivers a message to every configured admin.
	NotifyAdmins(ctx context.Context, text string) error
}

// AdminAlerter pushes out-of-band alerts (e.g. mobile push) to admins.
// Optional: alert failures are logged and never affect subscriptions.
type AdminAlerter interface {
	Alert(ctx context.Context, title, body string) error
}

// Mock implementations for testing

type MockGateway struct {
	mu sync.Mutex

	GrantErr  error
	RevokeErr error
	NotifyErr error

	// RevokeErrFor fails revocation only for specific users.
	RevokeErrFor map[int64]error

	Grants        []int64
	Revokes       []int64
	UserMessages  map[int64][]string
	AdminMessages []string
}

func NewMockGateway() *MockGateway {
	return &MockGateway{UserMessages: make(map[int64][]string)}
}

func (m *MockGateway) GrantAccess(ctx context.Context, userID int64, expiresAt int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GrantErr != nil {
		return "", m.GrantErr
	}
	m.Grants = append(m.Grants, userID)
	return "https://t.me/+mockinvite", nil
}

func (m *MockGateway) RevokeAccess(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.RevokeErrFor[userID]; ok {
		return err
	}
	if m.RevokeErr != nil {
		return m.RevokeErr
	}
	m.Revokes = append(m.Revokes, userID)
	return nil
}

func (m *MockGateway) NotifyUser(ctx context.Context, userID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NotifyErr != nil {
		return m.NotifyErr
	}
	m.UserMessages[userID] = append(m.UserMessages[userID], text)
	return nil
}

func (m *MockGateway) NotifyAdmins(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NotifyErr != nil {
		return m.NotifyErr
	}
	m.AdminMessages = append(m.AdminMessages, text)
	return nil
}

type MockAlerter struct{}

func (m *MockAlerter) Alert(ctx context.Context, title, body string) error {
	log.Printf("MOCK ALERT: %s - %s", title, body)
	return nil
}

// FailingStore wraps a Store and fails selected operations with preset
// errors, delegating everything else. Simulates a storage outage.
type FailingStore struct {
	Inner subscription.Store

	UpsertErr      error
	RemoveErr      error
	GetExpiryErr   error
	ListExpiredErr error
	ListAllErr     error
}

func (f *FailingStore) Upsert(ctx context.Context, userID int64, expiresAt int64) error {
	if f.UpsertErr != nil {
		return f.UpsertErr
	}
	return f.Inner.Upsert(ctx, userID, expiresAt)
}

func (f *FailingStore) Remove(ctx context.Context, userID int64) error {
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	return f.Inner.Remove(ctx, userID)
}

func (f *FailingStore) GetExpiry(ctx context.Context, userID int64) (int64, error) {
	if f.GetExpiryErr != nil {
		return 0, f.GetExpiryErr
	}
	return f.Inner.GetExpiry(ctx, userID)
}

func (f *FailingStore) ListExpired(ctx context.Context, now int64) ([]int64, error) {
	if f.ListExpiredErr != nil {
		return nil, f.ListExpiredErr
	}
	return f.Inner.ListExpired(ctx, now)
}

func (f *FailingStore) ListAll(ctx context.Context) ([]subscription.Subscription, error) {
	if f.ListAllErr != nil {
		return nil, f.ListAllErr
	}
	return f.Inner.ListAll(ctx)
}
