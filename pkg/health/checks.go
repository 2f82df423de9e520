// Package health reports readiness of the trust engine's dependencies.
package health

import (
	"fmt"
	"time"
)

// Status summarizes dependency health for the health endpoint.
type Status struct {
	SigningKeys       bool      `json:"signing_keys"`
	Archive           bool      `json:"archive"`
	WebhookConfigured bool      `json:"webhook_configured"`
	Healthy           bool      `json:"healthy"`
	Issues            []string  `json:"issues,omitempty"`
	CheckedAt         time.Time `json:"checked_at"`
}

// Checks are the probes to run. A nil probe passes; probes returning an
// error mark the status unhealthy.
type Checks struct {
	SigningKeys func() error
	Archive     func() error
	WebhookURL  string
}

// Run executes every configured probe.
func Run(c Checks) *Status {
	status := &Status{
		SigningKeys: true,
		Archive:     true,
		Healthy:     true,
		Issues:      []string{},
		CheckedAt:   time.Now().UTC(),
	}

	if c.SigningKeys != nil {
		if err := c.SigningKeys(); err != nil {
			status.SigningKeys = false
			status.Healthy = false
			status.Issues = append(status.Issues, fmt.Sprintf("signing keys unavailable: %v", err))
		}
	}
	if c.Archive != nil {
		if err := c.Archive(); err != nil {
			status.Archive = false
			status.Healthy = false
			status.Issues = append(status.Issues, fmt.Sprintf("event archive unreachable: %v", err))
		}
	}
	status.WebhookConfigured = c.WebhookURL != ""

	return status
}
