package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"channelPassAPI/internal/config"
	"channelPassAPI/internal/storage"
	"channelPassAPI/internal/types/subscription"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminID    = int64(1000)
	nonAdminID = int64(2000)
	userID     = int64(5555)
)

func testConfig() *config.Config {
	return &config.Config{
		AdminIDs:         []int64{adminID},
		PriceOneMonth:    700,
		PriceTwoMonths:   1400,
		PriceThreeMonths: 2000,
		PaymentAccount:   "test-account",
	}
}

func newTestService(t *testing.T) (*SubscriptionService, *storage.Memory, *MockGateway) {
	t.Helper()
	store := storage.NewMemory()
	gateway := NewMockGateway()
	svc := NewSubscriptionService(testConfig(), store, gateway)
	return svc, store, gateway
}

// fixNow pins the service clock for deterministic expiry math.
func fixNow(svc *SubscriptionService, at time.Time) {
	svc.now = func() time.Time { return at }
}

func TestApproveSetsExpiry(t *testing.T) {
	svc, store, gateway := newTestService(t)
	now := time.Unix(1_700_000_000, 0)
	fixNow(svc, now)

	ctx := context.Background()
	result, err := svc.Approve(ctx, adminID, userID, 2)
	require.NoError(t, err)

	want := now.Unix() + 2*subscription.SecondsPerMonth
	assert.Equal(t, want, result.ExpiresAt)
	assert.True(t, result.Delivered)
	assert.NotEmpty(t, result.InviteLink)

	expiresAt, err := store.GetExpiry(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, want, expiresAt)

	assert.Equal(t, []int64{userID}, gateway.Grants)
	require.Len(t, gateway.UserMessages[userID], 1)
	assert.Contains(t, gateway.UserMessages[userID][0], result.InviteLink)
}

func TestReApprovalOverwritesExpiry(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	first := time.Unix(1_700_000_000, 0)
	fixNow(svc, first)
	_, err := svc.Approve(ctx, adminID, userID, 1)
	require.NoError(t, err)

	second := first.Add(10 * 24 * time.Hour)
	fixNow(svc, second)
	_, err = svc.Approve(ctx, adminID, userID, 2)
	require.NoError(t, err)

	expiresAt, err := store.GetExpiry(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, second.Unix()+2*subscription.SecondsPerMonth, expiresAt,
		"second approval overwrites, it does not accumulate remaining time")
}

func TestApproveUnauthorized(t *testing.T) {
	svc, store, gateway := newTestService(t)
	ctx := context.Background()

	_, err := svc.Approve(ctx, nonAdminID, userID, 1)
	assert.ErrorIs(t, err, subscription.ErrUnauthorized)

	all, _ := store.ListAll(ctx)
	assert.Empty(t, all, "unauthorized approval must not mutate the store")
	assert.Empty(t, gateway.Grants)
}

func TestApproveInvalidMonths(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	for _, months := range []int{0, -1} {
		_, err := svc.Approve(ctx, adminID, userID, months)
		assert.ErrorIs(t, err, subscription.ErrValidation)
	}

	all, _ := store.ListAll(ctx)
	assert.Empty(t, all)
}

func TestApproveCommitsDespiteGatewayFailure(t *testing.T) {
	svc, store, gateway := newTestService(t)
	gateway.GrantErr = errors.New("telegram is down")

	ctx := context.Background()
	result, err := svc.Approve(ctx, adminID, userID, 1)

	require.Error(t, err)
	assert.ErrorIs(t, err, subscription.ErrGateway)
	require.NotNil(t, result, "committed record must be reported alongside the failure")
	assert.False(t, result.Delivered)

	_, storeErr := store.GetExpiry(ctx, userID)
	assert.NoError(t, storeErr, "payment was accepted, the record must not roll back")
}

func TestApproveAbortsWhenStorageFails(t *testing.T) {
	store := storage.NewMemory()
	gateway := NewMockGateway()
	failing := &FailingStore{
		Inner:     store,
		UpsertErr: errors.Join(subscription.ErrStorageUnavailable, errors.New("connection refused")),
	}
	svc := NewSubscriptionService(testConfig(), failing, gateway)

	_, err := svc.RecordPlanSelection(userID, 2)
	require.NoError(t, err)

	result, err := svc.Approve(context.Background(), adminID, userID, 2)
	assert.ErrorIs(t, err, subscription.ErrStorageUnavailable)
	assert.Nil(t, result, "nothing was committed, nothing to report")

	assert.Empty(t, gateway.Grants, "no invite may be issued for an uncommitted record")
	assert.Empty(t, gateway.UserMessages)

	sel, pending := svc.PlanSelection(userID)
	require.True(t, pending, "pending selection survives an aborted approval")
	assert.Equal(t, 2, sel.Months)
}

func TestDeclineLeavesStoreUntouched(t *testing.T) {
	svc, store, gateway := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordPlanSelection(userID, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Decline(ctx, adminID, userID))

	all, _ := store.ListAll(ctx)
	assert.Empty(t, all)
	assert.Empty(t, gateway.UserMessages[userID], "declined users are not proactively notified")

	_, pending := svc.PlanSelection(userID)
	assert.False(t, pending, "decline clears the pending selection")
}

func TestDeclineUnauthorized(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.Decline(context.Background(), nonAdminID, userID)
	assert.ErrorIs(t, err, subscription.ErrUnauthorized)
}

func TestListSubscribersUnauthorized(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.ListSubscribers(context.Background(), nonAdminID)
	assert.ErrorIs(t, err, subscription.ErrUnauthorized)
}

func TestStatusStates(t *testing.T) {
	svc, store, _ := newTestService(t)
	now := time.Unix(1_700_000_000, 0)
	fixNow(svc, now)
	ctx := context.Background()

	status, err := svc.Status(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StateUnsubscribed, status.State)

	require.NoError(t, store.Upsert(ctx, userID, now.Unix()+3600))
	status, err = svc.Status(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StateActive, status.State)
	assert.Equal(t, time.Hour, status.Remaining)

	require.NoError(t, store.Upsert(ctx, userID, now.Unix()-1))
	status, err = svc.Status(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StateExpired, status.State)
}

func TestPlanSelectionSuperseded(t *testing.T) {
	svc, _, _ := newTestService(t)

	first, err := svc.RecordPlanSelection(userID, 1)
	require.NoError(t, err)

	second, err := svc.RecordPlanSelection(userID, 3)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	sel, ok := svc.PlanSelection(userID)
	require.True(t, ok)
	assert.Equal(t, 3, sel.Months)
	assert.Equal(t, 2000, sel.Price)

	svc.ClearPlanSelection(userID)
	_, ok = svc.PlanSelection(userID)
	assert.False(t, ok)
}

func TestPlanSelectionUnknownTier(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.RecordPlanSelection(userID, 6)
	assert.ErrorIs(t, err, subscription.ErrValidation)
}

func TestRequestRenewalNotifiesAdmins(t *testing.T) {
	svc, _, gateway := newTestService(t)
	svc.SetAdminAlerter(&MockAlerter{})

	require.NoError(t, svc.RequestRenewal(context.Background(), userID, "Test"))
	require.Len(t, gateway.AdminMessages, 1)
	assert.Contains(t, gateway.AdminMessages[0], "5555")
}
