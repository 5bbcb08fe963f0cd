package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"channelPassAPI/internal/config"
	"channelPassAPI/internal/types/subscription"

	"github.com/google/uuid"
)

// SubscriptionService is the lifecycle engine: it decides state
// transitions and drives their side effects through the store and the
// access gateway. Gateway calls are never made while a store operation
// is in flight.
type SubscriptionService struct {
	cfg     *config.Config
	store   subscription.Store
	gateway AccessGateway
	alerter AdminAlerter

	mu         sync.Mutex
	selections map[int64]*subscription.PendingSelection

	now func() time.Time
}

// ApprovalResult reports what an approval committed and whether the
// invite was delivered to the user.
type ApprovalResult struct {
	UserID     int64  `json:"user_id"`
	Months     int    `json:"months"`
	ExpiresAt  int64  `json:"expires_at"`
	InviteLink string `json:"invite_link,omitempty"`
	Delivered  bool   `json:"delivered"`
}

// SubscriberStatus is a user's own view of their subscription.
type SubscriberStatus struct {
	UserID    int64              `json:"user_id"`
	State     subscription.State `json:"state"`
	ExpiresAt int64              `json:"expires_at,omitempty"`
	Remaining time.Duration      `json:"-"`
}

func NewSubscriptionService(cfg *config.Config, store subscription.Store, gateway AccessGateway) *SubscriptionService {
	return &SubscriptionService{
		cfg:        cfg,
		store:      store,
		gateway:    gateway,
		selections: make(map[int64]*subscription.PendingSelection),
		now:        time.Now,
	}
}

// SetAdminAlerter injects the optional push alert provider.
func (s *SubscriptionService) SetAdminAlerter(alerter AdminAlerter) {
	s.alerter = alerter
}

// RecordPlanSelection stores the ephemeral plan pick made before a user
// submits proof of payment. A new selection supersedes the old one.
func (s *SubscriptionService) RecordPlanSelection(userID int64, months int) (*subscription.PendingSelection, error) {
	price, ok := s.cfg.PriceFor(months)
	if !ok {
		return nil, fmt.Errorf("%w: no plan tier for %d month(s)", subscription.ErrValidation, months)
	}

	sel := &subscription.PendingSelection{
		ID:         uuid.New(),
		UserID:     userID,
		Months:     months,
		Price:      price,
		SelectedAt: s.now(),
	}

	s.mu.Lock()
	s.selections[userID] = sel
	s.mu.Unlock()

	return sel, nil
}

// PlanSelection returns the user's pending plan pick, if any.
func (s *SubscriptionService) PlanSelection(userID int64) (*subscription.PendingSelection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel, ok := s.selections[userID]
	return sel, ok
}

// ClearPlanSelection drops the pending pick once a proof has been
// processed or the subscription decided.
func (s *SubscriptionService) ClearPlanSelection(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.selections, userID)
}

// Approve commits a subscription for the user and delivers a single-use
// invite. The store record is committed even when invite delivery fails:
// payment was accepted, so the admin resends manually instead of the
// system rolling back. In that case the returned result is non-nil and
// the error wraps subscription.ErrGateway.
func (s *SubscriptionService) Approve(ctx context.Context, actorID, userID int64, months int) (*ApprovalResult, error) {
	if !s.cfg.IsAdmin(actorID) {
		return nil, fmt.Errorf("%w: user %d may not approve subscriptions", subscription.ErrUnauthorized, actorID)
	}
	if months <= 0 {
		return nil, fmt.Errorf("%w: months must be a positive number", subscription.ErrValidation)
	}

	expiresAt := s.now().Unix() + int64(months)*subscription.SecondsPerMonth

	if err := s.store.Upsert(ctx, userID, expiresAt); err != nil {
		return nil, err
	}
	s.ClearPlanSelection(userID)

	approvalsTotal.WithLabelValues("approved").Inc()
	log.Printf("Approved user %d for %d month(s), expires at %d (by admin %d)", userID, months, expiresAt, actorID)

	result := &ApprovalResult{
		UserID:    userID,
		Months:    months,
		ExpiresAt: expiresAt,
	}

	link, err := s.gateway.GrantAccess(ctx, userID, expiresAt)
	if err != nil {
		grantFailuresTotal.Inc()
		return result, fmt.Errorf("%w: invite creation for user %d failed: %v", subscription.ErrGateway, userID, err)
	}
	result.InviteLink = link

	text := fmt.Sprintf(
		"Your payment has been approved! You have been granted access for %d month(s).\n\nHere is your invite link:\n%s",
		months, link,
	)
	if err := s.gateway.NotifyUser(ctx, userID, text); err != nil {
		grantFailuresTotal.Inc()
		return result, fmt.Errorf("%w: invite delivery to user %d failed: %v", subscription.ErrGateway, userID, err)
	}
	result.Delivered = true

	return result, nil
}

// Decline rejects a pending request. No store mutation; only the admin
// sees a confirmation, the user is not proactively notified.
func (s *SubscriptionService) Decline(ctx context.Context, actorID, userID int64) error {
	if !s.cfg.IsAdmin(actorID) {
		return fmt.Errorf("%w: user %d may not decline subscriptions", subscription.ErrUnauthorized, actorID)
	}

	s.ClearPlanSelection(userID)
	approvalsTotal.WithLabelValues("declined").Inc()
	log.Printf("Declined user %d (by admin %d)", userID, actorID)
	return nil
}

// Status reports the user's current subscription state from a fresh
// store read.
func (s *SubscriptionService) Status(ctx context.Context, userID int64) (*SubscriberStatus, error) {
	expiresAt, err := s.store.GetExpiry(ctx, userID)
	if err != nil {
		if errors.Is(err, subscription.ErrNotSubscribed) {
			return &SubscriberStatus{UserID: userID, State: subscription.StateUnsubscribed}, nil
		}
		return nil, err
	}

	now := s.now().Unix()
	status := &SubscriberStatus{
		UserID:    userID,
		State:     subscription.Subscription{UserID: userID, ExpiresAt: expiresAt}.StateAt(now),
		ExpiresAt: expiresAt,
	}
	if status.State == subscription.StateActive {
		status.Remaining = time.Duration(expiresAt-now) * time.Second
	}
	return status, nil
}

// ListSubscribers returns every record, expiry ascending. Admin only.
func (s *SubscriptionService) ListSubscribers(ctx context.Context, actorID int64) ([]subscription.Subscription, error) {
	if !s.cfg.IsAdmin(actorID) {
		return nil, fmt.Errorf("%w: user %d may not list subscribers", subscription.ErrUnauthorized, actorID)
	}
	return s.store.ListAll(ctx)
}

// RequestRenewal forwards a renewal request to the admins.
func (s *SubscriptionService) RequestRenewal(ctx context.Context, userID int64, displayName string) error {
	text := fmt.Sprintf("Renewal request from %s (ID: %d)", displayName, userID)
	if err := s.gateway.NotifyAdmins(ctx, text); err != nil {
		return fmt.Errorf("%w: renewal request from user %d not delivered: %v", subscription.ErrGateway, userID, err)
	}
	s.alertAdmins(ctx, "Renewal request", text)
	return nil
}

// ExpiredUserIDs lists users eligible for sweeping at the given instant,
// oldest expiry first.
func (s *SubscriptionService) ExpiredUserIDs(ctx context.Context, now int64) ([]int64, error) {
	return s.store.ListExpired(ctx, now)
}

// SweepUser drives the expired -> unsubscribed transition: revoke channel
// access, then delete the record, then notify the user. Revocation is
// always attempted before removal, so a failure leaves the record in
// place and the next sweep retries it.
func (s *SubscriptionService) SweepUser(ctx context.Context, userID int64) error {
	if err := s.gateway.RevokeAccess(ctx, userID); err != nil {
		sweepRevokeFailuresTotal.Inc()
		return fmt.Errorf("%w: revoke for user %d failed, record retained: %v", subscription.ErrGateway, userID, err)
	}

	if err := s.store.Remove(ctx, userID); err != nil {
		// The record stays; revoking again on the next sweep is safe.
		return err
	}

	sweepRemovedTotal.Inc()
	log.Printf("Removed expired user %d", userID)

	text := "Your subscription has expired. To renew, please send a new payment screenshot."
	if err := s.gateway.NotifyUser(ctx, userID, text); err != nil {
		log.Printf("Failed to notify user %d about expiry: %v", userID, err)
	}
	return nil
}

// AlertPaymentProof pushes an out-of-band alert about a new payment
// proof submission, when an alerter is configured.
func (s *SubscriptionService) AlertPaymentProof(ctx context.Context, sel *subscription.PendingSelection) {
	body := fmt.Sprintf("User %d submitted proof for %d month(s) (%d), selection %s",
		sel.UserID, sel.Months, sel.Price, sel.ID)
	s.alertAdmins(ctx, "New payment screenshot", body)
}

func (s *SubscriptionService) alertAdmins(ctx context.Context, title, body string) {
	if s.alerter == nil {
		return
	}
	if err := s.alerter.Alert(ctx, title, body); err != nil {
		log.Printf("Admin push alert failed: %v", err)
	}
}
