package threat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

const (
	logCapacity       = 10000
	highRiskThreshold = 70
	topIPCount        = 10
)

// AlertFunc receives the event and rule for every fired alert action.
type AlertFunc func(SecurityEvent, Rule)

// Responder receives block/revoke/lock actions from firing rules. The
// monitor only triggers these; enforcement happens elsewhere.
type Responder interface {
	Block(SecurityEvent, Rule)
	RevokeToken(SecurityEvent, Rule)
	LockAccount(SecurityEvent, Rule)
}

// Sink receives a best-effort copy of every logged event. Sink failures are
// logged and swallowed; they never reach the caller of LogEvent.
type Sink interface {
	Name() string
	Stream(context.Context, SecurityEvent) error
}

// Monitor appends security events to a bounded in-memory log and evaluates
// detection rules against each new event. Safe for concurrent use.
type Monitor struct {
	mu         sync.Mutex
	events     []SecurityEvent
	rules      []Rule
	alerts     []AlertFunc
	responders []Responder
	sinks      []Sink
	capacity   int
	logger     zerolog.Logger
	now        func() time.Time
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithCapacity overrides the default 10,000 event log capacity.
func WithCapacity(n int) MonitorOption {
	return func(m *Monitor) {
		if n > 0 {
			m.capacity = n
		}
	}
}

// WithMonitorClock overrides the monitor's time source.
func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor constructs a monitor over the given rule set.
func NewMonitor(rules []Rule, logger zerolog.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		rules:    append([]Rule(nil), rules...),
		capacity: logCapacity,
		logger:   logger.With().Str("component", "threat").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddRule registers a detection rule at runtime.
func (m *Monitor) AddRule(r Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, r)
}

// OnAlert registers a callback invoked for every fired alert action.
func (m *Monitor) OnAlert(fn AlertFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, fn)
}

// AddResponder registers a block/revoke/lock hook.
func (m *Monitor) AddResponder(r Responder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responders = append(m.responders, r)
}

// AddSink registers a best-effort event sink.
func (m *Monitor) AddSink(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// LogEvent fills in defaults, appends the event to the bounded log (oldest
// evicted first), runs detection, and streams the event to every sink
// without blocking the caller on sink I/O.
func (m *Monitor) LogEvent(e SecurityEvent) SecurityEvent {
	if e.ID == "" {
		e.ID = xid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now()
	}

	m.mu.Lock()
	if len(m.events) >= m.capacity {
		copy(m.events, m.events[1:])
		m.events[len(m.events)-1] = e
	} else {
		m.events = append(m.events, e)
	}
	snapshot := append([]SecurityEvent(nil), m.events...)
	rules := append([]Rule(nil), m.rules...)
	sinks := append([]Sink(nil), m.sinks...)
	m.mu.Unlock()

	m.detect(e, snapshot, rules)

	for _, sink := range sinks {
		go m.stream(sink, e)
	}
	return e
}

func (m *Monitor) stream(sink Sink, e SecurityEvent) {
	if err := sink.Stream(context.Background(), e); err != nil {
		m.logger.Warn().Err(err).Str("sink", sink.Name()).Str("event_id", e.ID).Msg("event sink delivery failed")
	}
}

func (m *Monitor) detect(e SecurityEvent, log []SecurityEvent, rules []Rule) {
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		matched, err := rule.matches(e)
		if err != nil {
			m.logger.Warn().Err(err).Str("rule_id", rule.ID).Msg("rule evaluation failed, skipping")
			continue
		}
		if !matched || e.RiskScore < rule.RiskThreshold {
			continue
		}
		if rule.TimeWindow > 0 {
			count, err := countQualifying(rule, e, log)
			if err != nil {
				m.logger.Warn().Err(err).Str("rule_id", rule.ID).Msg("rule evaluation failed, skipping")
				continue
			}
			// A lone matching event never fires a windowed rule.
			if count < 2 {
				continue
			}
		}
		m.fire(e, rule)
	}
}

// countQualifying counts events whose timestamps fall within the rule's
// window ending at the triggering event and whose fields satisfy the rule's
// conditions. The triggering event is already in the log.
func countQualifying(rule Rule, e SecurityEvent, log []SecurityEvent) (int, error) {
	from := e.Timestamp.Add(-rule.TimeWindow)
	count := 0
	for _, ev := range log {
		if ev.Timestamp.Before(from) || ev.Timestamp.After(e.Timestamp) {
			continue
		}
		ok, err := rule.matches(ev)
		if err != nil {
			return 0, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

func (m *Monitor) fire(e SecurityEvent, rule Rule) {
	m.mu.Lock()
	alerts := append([]AlertFunc(nil), m.alerts...)
	responders := append([]Responder(nil), m.responders...)
	m.mu.Unlock()

	for _, action := range rule.Actions {
		switch action {
		case ActionLog:
			m.logger.Warn().
				Str("rule_id", rule.ID).
				Str("rule_name", rule.Name).
				Str("event_id", e.ID).
				Str("event_type", string(e.Type)).
				Str("action", e.Action).
				Str("ip", e.IPAddress).
				Int("risk_score", e.RiskScore).
				Msg("detection rule fired")
		case ActionAlert:
			for _, fn := range alerts {
				fn(e, rule)
			}
		case ActionBlock:
			for _, r := range responders {
				r.Block(e, rule)
			}
		case ActionRevokeToken:
			for _, r := range responders {
				r.RevokeToken(e, rule)
			}
		case ActionLockAccount:
			for _, r := range responders {
				r.LockAccount(e, rule)
			}
		}
	}
}

// IPRisk aggregates event risk per source address.
type IPRisk struct {
	IPAddress string  `json:"ip_address"`
	MeanRisk  float64 `json:"mean_risk"`
	Events    int     `json:"events"`
}

// Metrics is a point-in-time snapshot over the in-memory log.
type Metrics struct {
	TotalEvents    int      `json:"total_events"`
	HighRiskEvents int      `json:"high_risk_events"`
	TopRiskIPs     []IPRisk `json:"top_risk_ips"`
}

// Metrics computes aggregate counters over the current log contents.
func (m *Monitor) Metrics() Metrics {
	m.mu.Lock()
	snapshot := append([]SecurityEvent(nil), m.events...)
	m.mu.Unlock()

	metrics := Metrics{TotalEvents: len(snapshot)}
	type acc struct {
		total  int
		events int
	}
	byIP := make(map[string]*acc)
	for _, e := range snapshot {
		if e.RiskScore > highRiskThreshold {
			metrics.HighRiskEvents++
		}
		if e.IPAddress == "" {
			continue
		}
		a, ok := byIP[e.IPAddress]
		if !ok {
			a = &acc{}
			byIP[e.IPAddress] = a
		}
		a.total += e.RiskScore
		a.events++
	}

	ips := make([]IPRisk, 0, len(byIP))
	for ip, a := range byIP {
		ips = append(ips, IPRisk{
			IPAddress: ip,
			MeanRisk:  float64(a.total) / float64(a.events),
			Events:    a.events,
		})
	}
	sort.Slice(ips, func(i, j int) bool {
		if ips[i].MeanRisk != ips[j].MeanRisk {
			return ips[i].MeanRisk > ips[j].MeanRisk
		}
		return ips[i].Events > ips[j].Events
	})
	if len(ips) > topIPCount {
		ips = ips[:topIPCount]
	}
	metrics.TopRiskIPs = ips
	return metrics
}

// RecentHighRisk returns up to limit most recent events above the high-risk
// threshold, newest first.
func (m *Monitor) RecentHighRisk(limit int) []SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SecurityEvent, 0, limit)
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.events[i].RiskScore > highRiskThreshold {
			out = append(out, m.events[i])
		}
	}
	return out
}
