package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Security event types recorded in the append-only audit log.
const (
	EventLoginSuccess       = "login_success"
	EventLoginFailure       = "login_failure"
	EventPasswordChange     = "password_change"
	EventAccountLockout     = "account_lockout"
	EventOAuthLogin         = "oauth_login"
	EventSuspiciousActivity = "suspicious_activity"
)

// Severity levels
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// SecurityEvent is an immutable audit record. Rows are only ever inserted;
// normal operation never updates or deletes them.
type SecurityEvent struct {
	ID        string // ULID, lexically ordered by creation time
	EventType string
	Severity  string
	ActorID   *string // nil for anonymous actors
	IPAddress string
	UserAgent string
	Details   EventDetails
	CreatedAt time.Time
}

// EventDetails holds structured context for a security event, stored as JSONB.
type EventDetails map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (d *EventDetails) Scan(value interface{}) error {
	if value == nil {
		*d = make(EventDetails)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*d = EventDetails(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (d EventDetails) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// EventCount is one bucket of the trailing-window metrics aggregation.
type EventCount struct {
	EventType string
	Severity  string
	Count     int64
}

// ValidEventType reports whether the type is one of the enumerated kinds.
func ValidEventType(t string) bool {
	switch t {
	case EventLoginSuccess, EventLoginFailure, EventPasswordChange,
		EventAccountLockout, EventOAuthLogin, EventSuspiciousActivity:
		return true
	}
	return false
}
