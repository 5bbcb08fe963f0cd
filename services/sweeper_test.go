package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"channelPassAPI/internal/storage"
	"channelPassAPI/internal/types/subscription"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepRemovesExpired(t *testing.T) {
	svc, store, gateway := newTestService(t)
	now := time.Unix(1_700_000_000, 0)
	fixNow(svc, now)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, 1, now.Unix()-100))
	require.NoError(t, store.Upsert(ctx, 2, now.Unix()+100))

	sweeper := NewExpirySweeper(svc, time.Hour)
	sweeper.RunOnce(ctx)

	_, err := store.GetExpiry(ctx, 1)
	assert.ErrorIs(t, err, subscription.ErrNotSubscribed, "expired record must be removed")

	_, err = store.GetExpiry(ctx, 2)
	assert.NoError(t, err, "active record must survive the sweep")

	assert.Equal(t, []int64{1}, gateway.Revokes, "exactly one revoke for the expired user")
	require.Len(t, gateway.UserMessages[1], 1)
	assert.Contains(t, gateway.UserMessages[1][0], "expired")
}

func TestSweepRetainsRecordOnRevokeFailure(t *testing.T) {
	svc, store, gateway := newTestService(t)
	now := time.Unix(1_700_000_000, 0)
	fixNow(svc, now)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, 1, now.Unix()-100))
	gateway.RevokeErrFor = map[int64]error{1: errors.New("channel unreachable")}

	sweeper := NewExpirySweeper(svc, time.Hour)
	sweeper.RunOnce(ctx)

	_, err := store.GetExpiry(ctx, 1)
	assert.NoError(t, err, "record must be retained when revoke fails")

	// The user shows up again on the next tick and succeeds once the
	// gateway recovers.
	expired, err := store.ListExpired(ctx, now.Unix())
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, expired)

	gateway.RevokeErrFor = nil
	sweeper.RunOnce(ctx)

	_, err = store.GetExpiry(ctx, 1)
	assert.ErrorIs(t, err, subscription.ErrNotSubscribed)
}

func TestSweepIsolatesPerUserFailures(t *testing.T) {
	svc, store, gateway := newTestService(t)
	now := time.Unix(1_700_000_000, 0)
	fixNow(svc, now)
	ctx := context.Background()

	// User 1 expired first and its revoke fails; users 2 and 3 must
	// still be processed in the same tick.
	require.NoError(t, store.Upsert(ctx, 1, now.Unix()-300))
	require.NoError(t, store.Upsert(ctx, 2, now.Unix()-200))
	require.NoError(t, store.Upsert(ctx, 3, now.Unix()-100))
	gateway.RevokeErrFor = map[int64]error{1: errors.New("boom")}

	sweeper := NewExpirySweeper(svc, time.Hour)
	sweeper.RunOnce(ctx)

	assert.Equal(t, []int64{2, 3}, gateway.Revokes)

	expired, err := store.ListExpired(ctx, now.Unix())
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, expired, "only the failed user remains")
}

func TestSweepAbortsWhenStorageFails(t *testing.T) {
	store := storage.NewMemory()
	gateway := NewMockGateway()
	failing := &FailingStore{
		Inner:          store,
		ListExpiredErr: errors.Join(subscription.ErrStorageUnavailable, errors.New("connection refused")),
	}
	svc := NewSubscriptionService(testConfig(), failing, gateway)
	now := time.Unix(1_700_000_000, 0)
	fixNow(svc, now)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, 1, now.Unix()-100))

	sweeper := NewExpirySweeper(svc, time.Hour)
	sweeper.RunOnce(ctx)

	assert.Empty(t, gateway.Revokes, "nobody is revoked when the expired list is unavailable")
	_, err := store.GetExpiry(ctx, 1)
	assert.NoError(t, err, "record stays until a later sweep can read the store")
}

func TestSweepStartStop(t *testing.T) {
	svc, _, _ := newTestService(t)

	sweeper := NewExpirySweeper(svc, time.Hour)
	sweeper.Start()
	sweeper.Stop()
}

func TestEndToEndApproveThenExpire(t *testing.T) {
	store := storage.NewMemory()
	gateway := NewMockGateway()
	svc := NewSubscriptionService(testConfig(), store, gateway)

	approvedAt := time.Unix(1_700_000_000, 0)
	fixNow(svc, approvedAt)
	ctx := context.Background()

	// User picks the 1-month plan, admin approves.
	_, err := svc.RecordPlanSelection(userID, 1)
	require.NoError(t, err)

	result, err := svc.Approve(ctx, adminID, userID, 1)
	require.NoError(t, err)
	assert.Equal(t, approvedAt.Unix()+subscription.SecondsPerMonth, result.ExpiresAt)

	// Not expired yet: a sweep leaves the record alone.
	sweeper := NewExpirySweeper(svc, time.Hour)
	sweeper.RunOnce(ctx)
	_, err = store.GetExpiry(ctx, userID)
	require.NoError(t, err)

	// Advance past expiry: one sweep removes the record with exactly
	// one revoke call.
	fixNow(svc, approvedAt.Add(30*24*time.Hour+time.Second))
	sweeper.RunOnce(ctx)

	_, err = store.GetExpiry(ctx, userID)
	assert.ErrorIs(t, err, subscription.ErrNotSubscribed)
	assert.Equal(t, []int64{userID}, gateway.Revokes)

	// A further tick is a no-op.
	sweeper.RunOnce(ctx)
	assert.Equal(t, []int64{userID}, gateway.Revokes)
}
