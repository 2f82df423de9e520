package threat

import (
	"strings"
	"time"
)

// EventType is the closed set of security event categories.
type EventType string

const (
	EventAuth   EventType = "auth"
	EventAccess EventType = "access"
	EventData   EventType = "data"
	EventAdmin  EventType = "admin"
	EventThreat EventType = "threat"
)

// SecurityEvent is one entry in the event log. RiskScore is supplied by the
// caller; the monitor matches rules against it but never computes it.
type SecurityEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id"`
	UserID    string         `json:"user_id,omitempty"`
	DeviceID  string         `json:"device_id,omitempty"`
	Type      EventType      `json:"event_type"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	RiskScore int            `json:"risk_score"`
	IPAddress string         `json:"ip_address"`
	UserAgent string         `json:"user_agent,omitempty"`
	Location  string         `json:"location,omitempty"`
}

// fieldValue resolves a condition field name against the event, supporting
// dotted paths into Details (e.g. "details.attempts").
func (e SecurityEvent) fieldValue(field string) (any, bool) {
	if rest, ok := strings.CutPrefix(field, "details."); ok {
		return detailValue(e.Details, rest)
	}
	switch field {
	case "eventType":
		return string(e.Type), true
	case "action":
		return e.Action, true
	case "riskScore":
		return e.RiskScore, true
	case "tenantId":
		return e.TenantID, true
	case "userId":
		return e.UserID, true
	case "deviceId":
		return e.DeviceID, true
	case "ipAddress":
		return e.IPAddress, true
	case "userAgent":
		return e.UserAgent, true
	case "location":
		return e.Location, true
	default:
		return nil, false
	}
}

func detailValue(details map[string]any, path string) (any, bool) {
	current := any(details)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, true
}
