package threat

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Operator is the closed set of condition comparison operators.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
	OpContains Operator = "contains"
	OpRegex    Operator = "regex"
)

// ResponseAction is the closed set of actions a firing rule can trigger.
// Block, revoke and lock are hooks: the monitor invokes them but an
// external collaborator enforces them.
type ResponseAction string

const (
	ActionLog         ResponseAction = "log"
	ActionAlert       ResponseAction = "alert"
	ActionBlock       ResponseAction = "block"
	ActionRevokeToken ResponseAction = "revoke_token"
	ActionLockAccount ResponseAction = "lock_account"
)

// Condition is one static predicate over an event field.
type Condition struct {
	Field    string   `yaml:"field" json:"field"`
	Operator Operator `yaml:"operator" json:"operator"`
	Value    any      `yaml:"value" json:"value"`
}

// Rule is a detection rule evaluated against every incoming event. Rules
// are independent: all matching rules fire, with no ordering between them.
// A zero TimeWindow makes the rule stateless; otherwise at least two
// qualifying events must fall inside the window for the rule to fire.
type Rule struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Enabled       bool             `json:"enabled"`
	RiskThreshold int              `json:"risk_threshold"`
	TimeWindow    time.Duration    `json:"time_window"`
	Conditions    []Condition      `json:"conditions"`
	Actions       []ResponseAction `json:"actions"`
}

// RuleError wraps a failure evaluating one rule. The offending rule is
// skipped; it never aborts evaluation of the others.
type RuleError struct {
	RuleID string
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.RuleID, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// matches reports whether every condition of the rule holds for the event.
func (r Rule) matches(e SecurityEvent) (bool, error) {
	for _, c := range r.Conditions {
		ok, err := c.matches(e)
		if err != nil {
			return false, &RuleError{RuleID: r.ID, Err: err}
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (c Condition) matches(e SecurityEvent) (bool, error) {
	value, ok := e.fieldValue(c.Field)
	if !ok {
		return false, nil
	}
	switch c.Operator {
	case OpEq:
		return asString(value) == asString(c.Value), nil
	case OpNe:
		return asString(value) != asString(c.Value), nil
	case OpGt:
		a, b, err := asNumbers(value, c.Value)
		if err != nil {
			return false, err
		}
		return a > b, nil
	case OpLt:
		a, b, err := asNumbers(value, c.Value)
		if err != nil {
			return false, err
		}
		return a < b, nil
	case OpContains:
		return strings.Contains(asString(value), asString(c.Value)), nil
	case OpRegex:
		re, err := regexp.Compile(asString(c.Value))
		if err != nil {
			return false, fmt.Errorf("invalid pattern %q: %w", asString(c.Value), err)
		}
		return re.MatchString(asString(value)), nil
	default:
		return false, fmt.Errorf("unknown operator %q", c.Operator)
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asNumbers(a, b any) (float64, float64, error) {
	av, err := asNumber(a)
	if err != nil {
		return 0, 0, err
	}
	bv, err := asNumber(b)
	if err != nil {
		return 0, 0, err
	}
	return av, bv, nil
}

func asNumber(v any) (float64, error) {
	switch t := v.(type) {
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", t)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("non-numeric value %v", v)
	}
}

type yamlRule struct {
	ID            string           `yaml:"id"`
	Name          string           `yaml:"name"`
	Enabled       bool             `yaml:"enabled"`
	RiskThreshold int              `yaml:"risk_threshold"`
	TimeWindow    string           `yaml:"time_window"`
	Conditions    []Condition      `yaml:"conditions"`
	Actions       []ResponseAction `yaml:"actions"`
}

// LoadRules reads detection rules from a YAML file. Time windows use Go
// duration syntax ("5m", "1h"); empty means stateless.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Rules []yamlRule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rule file %s: %w", path, err)
	}

	rules := make([]Rule, 0, len(doc.Rules))
	for _, yr := range doc.Rules {
		rule := Rule{
			ID:            yr.ID,
			Name:          yr.Name,
			Enabled:       yr.Enabled,
			RiskThreshold: yr.RiskThreshold,
			Conditions:    yr.Conditions,
			Actions:       yr.Actions,
		}
		if yr.TimeWindow != "" {
			window, err := time.ParseDuration(yr.TimeWindow)
			if err != nil {
				return nil, fmt.Errorf("rule %s: invalid time window %q: %w", yr.ID, yr.TimeWindow, err)
			}
			rule.TimeWindow = window
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
