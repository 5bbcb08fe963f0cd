package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"channelPassAPI/internal/config"
	"channelPassAPI/internal/storage"
	"channelPassAPI/middleware"
	"channelPassAPI/services"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminClerkID  = "user_admin"
	strangerClerk = "user_stranger"
	adminID       = int64(1000)
)

func newTestHandler(t *testing.T) (*SubscriptionHandler, *storage.Memory, *services.MockGateway) {
	t.Helper()

	cfg := &config.Config{
		AdminIDs:         []int64{adminID},
		AdminClerkLinks:  map[string]int64{adminClerkID: adminID},
		PriceOneMonth:    700,
		PriceTwoMonths:   1400,
		PriceThreeMonths: 2000,
	}

	store := storage.NewMemory()
	gateway := services.NewMockGateway()
	svc := services.NewSubscriptionService(cfg, store, gateway)
	return NewSubscriptionHandler(cfg, svc), store, gateway
}

func authedRequest(method, target, body, clerkID string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := context.WithValue(req.Context(), middleware.ClerkIDKey, clerkID)
	return req.WithContext(ctx)
}

func TestApproveSubscriptionHTTP(t *testing.T) {
	handler, store, gateway := newTestHandler(t)

	req := authedRequest(http.MethodPost, "/api/v1/subscriptions/5555/approve", `{"months": 2}`, adminClerkID)
	req = mux.SetURLVars(req, map[string]string{"userID": "5555"})
	rr := httptest.NewRecorder()

	handler.ApproveSubscription(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Result services.ApprovalResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, int64(5555), resp.Result.UserID)
	assert.Equal(t, 2, resp.Result.Months)
	assert.True(t, resp.Result.Delivered)

	expiresAt, err := store.GetExpiry(context.Background(), 5555)
	require.NoError(t, err)
	assert.Equal(t, resp.Result.ExpiresAt, expiresAt)
	assert.Equal(t, []int64{5555}, gateway.Grants)
}

func TestApproveSubscriptionDefaultsToOneMonth(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	req := authedRequest(http.MethodPost, "/api/v1/subscriptions/5555/approve", "", adminClerkID)
	req = mux.SetURLVars(req, map[string]string{"userID": "5555"})
	rr := httptest.NewRecorder()

	handler.ApproveSubscription(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Result services.ApprovalResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Result.Months)
}

func TestApproveSubscriptionUnlinkedClerkID(t *testing.T) {
	handler, store, _ := newTestHandler(t)

	req := authedRequest(http.MethodPost, "/api/v1/subscriptions/5555/approve", "", strangerClerk)
	req = mux.SetURLVars(req, map[string]string{"userID": "5555"})
	rr := httptest.NewRecorder()

	handler.ApproveSubscription(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	all, _ := store.ListAll(context.Background())
	assert.Empty(t, all, "unauthorized request must not mutate the store")
}

func TestApproveSubscriptionInvalidUserID(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	req := authedRequest(http.MethodPost, "/api/v1/subscriptions/abc/approve", "", adminClerkID)
	req = mux.SetURLVars(req, map[string]string{"userID": "abc"})
	rr := httptest.NewRecorder()

	handler.ApproveSubscription(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListSubscriptionsHTTP(t *testing.T) {
	handler, store, _ := newTestHandler(t)

	now := time.Now().Unix()
	require.NoError(t, store.Upsert(context.Background(), 1, now-100))
	require.NoError(t, store.Upsert(context.Background(), 2, now+3600))

	req := authedRequest(http.MethodGet, "/api/v1/subscriptions", "", adminClerkID)
	rr := httptest.NewRecorder()

	handler.ListSubscriptions(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var views []subscriberView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, int64(1), views[0].UserID)
	assert.Equal(t, "expired", views[0].State)
	assert.Equal(t, int64(2), views[1].UserID)
	assert.Equal(t, "active", views[1].State)
}

func TestDeclineSubscriptionHTTP(t *testing.T) {
	handler, store, _ := newTestHandler(t)

	req := authedRequest(http.MethodPost, "/api/v1/subscriptions/5555/decline", "", adminClerkID)
	req = mux.SetURLVars(req, map[string]string{"userID": "5555"})
	rr := httptest.NewRecorder()

	handler.DeclineSubscription(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	all, _ := store.ListAll(context.Background())
	assert.Empty(t, all)
}

func TestGetSubscriptionHTTP(t *testing.T) {
	handler, store, _ := newTestHandler(t)

	now := time.Now().Unix()
	require.NoError(t, store.Upsert(context.Background(), 5555, now+3600))

	req := authedRequest(http.MethodGet, "/api/v1/subscriptions/5555", "", adminClerkID)
	req = mux.SetURLVars(req, map[string]string{"userID": "5555"})
	rr := httptest.NewRecorder()

	handler.GetSubscription(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var status services.SubscriberStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, int64(5555), status.UserID)
	assert.Equal(t, "active", string(status.State))
}
