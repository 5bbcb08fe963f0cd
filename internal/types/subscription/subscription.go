package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// SecondsPerMonth is the fixed 30-day month used for all expiry math.
// Calendar-aware months are intentionally not used.
const SecondsPerMonth = 30 * 86400

// State of a user's access grant.
type State string

const (
	StateUnsubscribed    State = "unsubscribed"
	StatePendingApproval State = "pending_approval"
	StateActive          State = "active"
	StateExpired         State = "expired"
)

// Transition is a directed edge in the lifecycle state machine.
type Transition struct {
	From State
	To   State
}

var validTransitions = map[Transition]bool{
	{StateUnsubscribed, StatePendingApproval}: true, // plan selected, awaiting payment proof
	{StatePendingApproval, StateActive}:       true, // admin approved
	{StatePendingApproval, StateUnsubscribed}: true, // admin declined
	{StateUnsubscribed, StateActive}:          true, // manual /approve without prior selection
	{StateActive, StateActive}:                true, // re-approval overwrites expiry
	{StateActive, StateExpired}:               true, // expiry timestamp passed
	{StateExpired, StateUnsubscribed}:         true, // sweeper revoked and removed the record
	{StateExpired, StateActive}:               true, // re-approved before the sweep ran
}

// CanTransition reports whether the lifecycle engine allows moving
// from one state to another.
func CanTransition(from, to State) bool {
	return validTransitions[Transition{from, to}]
}

// Subscription is the single durable record per subscribed user.
type Subscription struct {
	UserID    int64 `json:"user_id" db:"user_id"`
	ExpiresAt int64 `json:"expires_at" db:"expiry_date"`
}

// Expired reports whether the record is eligible for sweeping at the
// given instant. Expired-but-not-yet-swept is a valid transient state.
func (s Subscription) Expired(now int64) bool {
	return s.ExpiresAt <= now
}

// StateAt derives the stored record's state at the given instant.
func (s Subscription) StateAt(now int64) State {
	if s.Expired(now) {
		return StateExpired
	}
	return StateActive
}

// PendingSelection records which plan a user picked before submitting
// proof of payment. Ephemeral: never persisted, superseded by a new
// selection, cleared once a proof is processed.
type PendingSelection struct {
	ID         uuid.UUID
	UserID     int64
	Months     int
	Price      int
	SelectedAt time.Time
}

// Store is the durable mapping from user ID to expiry timestamp.
// All operations are linearizable with respect to each other.
type Store interface {
	// Upsert replaces any existing record for the user.
	Upsert(ctx context.Context, userID int64, expiresAt int64) error
	// Remove deletes the record. Removing an absent user is a no-op.
	Remove(ctx context.Context, userID int64) error
	// GetExpiry returns the current expiry, or ErrNotSubscribed.
	GetExpiry(ctx context.Context, userID int64) (int64, error)
	// ListExpired returns user IDs with expiry <= now, oldest expiry first.
	ListExpired(ctx context.Context, now int64) ([]int64, error)
	// ListAll returns every record ordered by expiry ascending.
	ListAll(ctx context.Context) ([]Subscription, error)
}

var (
	// ErrValidation covers malformed command arguments.
	ErrValidation = errors.New("invalid arguments")
	// ErrUnauthorized is returned when the actor is not an admin.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotSubscribed is the explicit "no record" signal from the store.
	ErrNotSubscribed = errors.New("not subscribed")
	// ErrStorageUnavailable wraps storage-layer I/O failures.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrGateway wraps access gateway (Telegram) failures.
	ErrGateway = errors.New("access gateway failure")
)
