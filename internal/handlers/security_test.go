package handlers_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/McGuireTechnology/truledgr-auth/internal/handlers"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/McGuireTechnology/truledgr-auth/internal/repositories"
)

func TestListEventsPassesFilter(t *testing.T) {
	var gotFilter repositories.EventFilter
	mockSecurity := &handlers.MockSecurityAdmin{
		ListEventsFunc: func(ctx context.Context, filter repositories.EventFilter) ([]*models.SecurityEvent, error) {
			gotFilter = filter
			actor := "user_1"
			return []*models.SecurityEvent{
				{
					ID:        "01J0000000000000000000000A",
					EventType: models.EventLoginFailure,
					Severity:  models.SeverityLow,
					ActorID:   &actor,
					IPAddress: "203.0.113.9",
					CreatedAt: time.Now(),
				},
			}, nil
		},
	}
	h := handlers.NewSecurityHandler(mockSecurity, &handlers.MockLockoutAdmin{}, nil)

	req := handlers.NewTestRequest(t, "GET", "/security/events?type=login_failure&actor_id=user_1&limit=10&offset=20", nil)
	w := httptest.NewRecorder()
	h.ListEvents(w, req)

	var resp struct {
		Events []handlers.SecurityEventResponse `json:"events"`
	}
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Len(t, resp.Events, 1)
	assert.Equal(t, models.EventLoginFailure, resp.Events[0].EventType)
	assert.Equal(t, "login_failure", gotFilter.EventType)
	assert.Equal(t, "user_1", gotFilter.ActorID)
	assert.Equal(t, 10, gotFilter.Limit)
	assert.Equal(t, 20, gotFilter.Offset)
}

func TestListEventsBadSinceTimestamp(t *testing.T) {
	h := handlers.NewSecurityHandler(&handlers.MockSecurityAdmin{}, &handlers.MockLockoutAdmin{}, nil)

	req := handlers.NewTestRequest(t, "GET", "/security/events?since=yesterday", nil)
	w := httptest.NewRecorder()
	h.ListEvents(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestListEventsUnknownType(t *testing.T) {
	mockSecurity := &handlers.MockSecurityAdmin{
		ListEventsFunc: func(ctx context.Context, filter repositories.EventFilter) ([]*models.SecurityEvent, error) {
			return nil, models.ErrBadRequest
		},
	}
	h := handlers.NewSecurityHandler(mockSecurity, &handlers.MockLockoutAdmin{}, nil)

	req := handlers.NewTestRequest(t, "GET", "/security/events?type=bogus", nil)
	w := httptest.NewRecorder()
	h.ListEvents(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestMetricsCustomWindow(t *testing.T) {
	var gotWindow time.Duration
	mockSecurity := &handlers.MockSecurityAdmin{
		MetricsFunc: func(ctx context.Context, window time.Duration) ([]models.EventCount, error) {
			gotWindow = window
			return []models.EventCount{
				{EventType: models.EventLoginFailure, Severity: models.SeverityLow, Count: 42},
			}, nil
		},
	}
	h := handlers.NewSecurityHandler(mockSecurity, &handlers.MockLockoutAdmin{}, nil)

	req := handlers.NewTestRequest(t, "GET", "/security/metrics?window=1h", nil)
	w := httptest.NewRecorder()
	h.Metrics(w, req)

	var resp struct {
		Window string `json:"window"`
	}
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, time.Hour, gotWindow)
	assert.Equal(t, "1h0m0s", resp.Window)
}

func TestMetricsRejectsBadWindow(t *testing.T) {
	h := handlers.NewSecurityHandler(&handlers.MockSecurityAdmin{}, &handlers.MockLockoutAdmin{}, nil)

	req := handlers.NewTestRequest(t, "GET", "/security/metrics?window=-5m", nil)
	w := httptest.NewRecorder()
	h.Metrics(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestListLockouts(t *testing.T) {
	now := time.Now()
	unlockAt := now.Add(15 * time.Minute)
	mockLockouts := &handlers.MockLockoutAdmin{
		ListActiveFunc: func(ctx context.Context) ([]*models.AccountLockout, error) {
			return []*models.AccountLockout{
				{
					ID:             "lock_1",
					AccountKey:     "alice@example.com",
					FailedAttempts: 5,
					LockoutCycles:  1,
					LockedAt:       &now,
					UnlockAt:       &unlockAt,
					IsActive:       true,
				},
			}, nil
		},
	}
	h := handlers.NewSecurityHandler(&handlers.MockSecurityAdmin{}, mockLockouts, nil)

	req := handlers.NewTestRequest(t, "GET", "/security/lockouts", nil)
	w := httptest.NewRecorder()
	h.ListLockouts(w, req)

	var resp struct {
		Lockouts []handlers.LockoutResponse `json:"lockouts"`
	}
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Len(t, resp.Lockouts, 1)
	assert.Equal(t, "alice@example.com", resp.Lockouts[0].AccountKey)
}

func TestUnlockReleasesLockout(t *testing.T) {
	var gotAdmin string
	mockLockouts := &handlers.MockLockoutAdmin{
		UnlockFunc: func(ctx context.Context, lockoutID, adminID, ip string) (*models.AccountLockout, error) {
			gotAdmin = adminID
			return &models.AccountLockout{ID: lockoutID, AccountKey: "alice@example.com"}, nil
		},
	}
	h := handlers.NewSecurityHandler(&handlers.MockSecurityAdmin{}, mockLockouts, nil)

	req := handlers.WithTestClaims(handlers.NewTestRequest(t, "POST", "/security/lockouts/lock_1/unlock", nil), "admin_1", "sess_1")
	req = handlers.WithURLParams(req, map[string]string{"lockoutID": "lock_1"})
	w := httptest.NewRecorder()
	h.Unlock(w, req)

	var resp handlers.LockoutResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "lock_1", resp.ID)
	assert.Equal(t, "admin_1", gotAdmin)
}

func TestUnlockUnknownLockout(t *testing.T) {
	h := handlers.NewSecurityHandler(&handlers.MockSecurityAdmin{}, &handlers.MockLockoutAdmin{}, nil)

	req := handlers.WithTestClaims(handlers.NewTestRequest(t, "POST", "/security/lockouts/missing/unlock", nil), "admin_1", "sess_1")
	req = handlers.WithURLParams(req, map[string]string{"lockoutID": "missing"})
	w := httptest.NewRecorder()
	h.Unlock(w, req)

	handlers.AssertErrorResponse(t, w, 404, "not_found")
}
