package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"channelPassAPI/internal/config"
	"channelPassAPI/internal/types/subscription"
	"channelPassAPI/middleware"
	"channelPassAPI/services"

	"github.com/gorilla/mux"
)

// SubscriptionHandler exposes the admin approval workflow over HTTP for
// dashboard use. Every route requires a Clerk identity linked to one of
// the Telegram admins.
type SubscriptionHandler struct {
	cfg     *config.Config
	service *services.SubscriptionService
}

func NewSubscriptionHandler(cfg *config.Config, service *services.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		cfg:     cfg,
		service: service,
	}
}

type approveRequest struct {
	Months int `json:"months"`
}

type subscriberView struct {
	UserID    int64  `json:"user_id"`
	ExpiresAt int64  `json:"expires_at"`
	State     string `json:"state"`
}

// GET /api/v1/subscriptions - List all subscribers, expiry ascending
func (h *SubscriptionHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	actorID, ok := h.actor(ctx)
	if !ok {
		respondWithError(w, http.StatusForbidden, "Not an admin")
		return
	}

	subs, err := h.service.ListSubscribers(ctx, actorID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	now := time.Now().Unix()
	views := make([]subscriberView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, subscriberView{
			UserID:    sub.UserID,
			ExpiresAt: sub.ExpiresAt,
			State:     string(sub.StateAt(now)),
		})
	}
	respondWithJSON(w, http.StatusOK, views)
}

// GET /api/v1/subscriptions/{userID} - One user's subscription state
func (h *SubscriptionHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := h.actor(ctx); !ok {
		respondWithError(w, http.StatusForbidden, "Not an admin")
		return
	}

	userID, err := pathUserID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	status, err := h.service.Status(ctx, userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// POST /api/v1/subscriptions/{userID}/approve - Approve or renew
func (h *SubscriptionHandler) ApproveSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	actorID, ok := h.actor(ctx)
	if !ok {
		respondWithError(w, http.StatusForbidden, "Not an admin")
		return
	}

	userID, err := pathUserID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	req := approveRequest{Months: 1}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	result, err := h.service.Approve(ctx, actorID, userID, req.Months)
	if err != nil {
		// The record is committed when only invite delivery failed; the
		// admin resends manually instead of the system rolling back.
		if errors.Is(err, subscription.ErrGateway) && result != nil {
			respondWithJSON(w, http.StatusOK, map[string]any{
				"result":  result,
				"warning": err.Error(),
			})
			return
		}
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"result": result})
}

// POST /api/v1/subscriptions/{userID}/decline - Decline a request
func (h *SubscriptionHandler) DeclineSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	actorID, ok := h.actor(ctx)
	if !ok {
		respondWithError(w, http.StatusForbidden, "Not an admin")
		return
	}

	userID, err := pathUserID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	if err := h.service.Decline(ctx, actorID, userID); err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Subscription request declined"})
}

// actor resolves the authenticated Clerk identity to the Telegram admin
// it acts as.
func (h *SubscriptionHandler) actor(ctx context.Context) (int64, bool) {
	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		return 0, false
	}
	return h.cfg.AdminForClerkID(clerkID)
}

func pathUserID(r *http.Request) (int64, error) {
	vars := mux.Vars(r)
	return strconv.ParseInt(vars["userID"], 10, 64)
}

func respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, subscription.ErrUnauthorized):
		respondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, subscription.ErrValidation):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, subscription.ErrStorageUnavailable):
		respondWithError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, subscription.ErrGateway):
		respondWithError(w, http.StatusBadGateway, err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}

// Helper functions
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
