package threat

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeRuleFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRules(t *testing.T) {
	path := writeRuleFile(t, `
rules:
  - id: multiple-failed-logins
    name: Multiple Failed Logins
    enabled: true
    risk_threshold: 70
    time_window: 5m
    conditions:
      - field: eventType
        operator: eq
        value: auth
      - field: action
        operator: eq
        value: login_failed
    actions: [alert, block]
  - id: bulk-export
    name: Bulk Export
    enabled: false
    risk_threshold: 80
    conditions:
      - field: details.records
        operator: gt
        value: 1000
    actions: [log]
`)

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	require.Equal(t, "multiple-failed-logins", rules[0].ID)
	require.True(t, rules[0].Enabled)
	require.Equal(t, 70, rules[0].RiskThreshold)
	require.Equal(t, 5*time.Minute, rules[0].TimeWindow)
	require.Len(t, rules[0].Conditions, 2)
	require.Equal(t, []ResponseAction{ActionAlert, ActionBlock}, rules[0].Actions)

	require.False(t, rules[1].Enabled)
	require.Zero(t, rules[1].TimeWindow)
	require.Equal(t, "details.records", rules[1].Conditions[0].Field)
}

func TestLoadRulesRejectsBadWindow(t *testing.T) {
	path := writeRuleFile(t, `
rules:
  - id: bad
    name: Bad Window
    enabled: true
    time_window: five minutes
`)
	_, err := LoadRules(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid time window")
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
