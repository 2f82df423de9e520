package posture

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Wildcard matches any role or tenant in a policy scope list.
const Wildcard = "*"

// ComplianceAction is the consequence of meeting a policy.
type ComplianceAction string

const (
	ActionAllow        ComplianceAction = "allow"
	ActionAllowLimited ComplianceAction = "allow_limited"
	ActionMonitor      ComplianceAction = "monitor"
)

// ViolationAction is the consequence of violating a policy.
type ViolationAction string

const (
	ActionDeny               ViolationAction = "deny"
	ActionQuarantine         ViolationAction = "quarantine"
	ActionRequireRemediation ViolationAction = "require_remediation"
	ActionMonitorViolation   ViolationAction = "monitor"
)

// AccessLevel is the final access decision for a session.
type AccessLevel string

const (
	AccessFull    AccessLevel = "full"
	AccessLimited AccessLevel = "limited"
	AccessDenied  AccessLevel = "denied"
)

// Requirements are the minimum posture a policy demands.
type Requirements struct {
	MinOSVersion       string `yaml:"min_os_version" json:"min_os_version,omitempty"`
	RequireEncryption  bool   `yaml:"require_encryption" json:"require_encryption"`
	RequireAntivirus   bool   `yaml:"require_antivirus" json:"require_antivirus"`
	RequireScreenLock  bool   `yaml:"require_screen_lock" json:"require_screen_lock"`
	BlockJailbroken    bool   `yaml:"block_jailbroken" json:"block_jailbroken"`
	RequireManaged     bool   `yaml:"require_managed" json:"require_managed"`
	MinComplianceScore int    `yaml:"min_compliance_score" json:"min_compliance_score"`
}

// PolicyActions map compliance and violation to an access consequence.
type PolicyActions struct {
	OnCompliance ComplianceAction `yaml:"on_compliance" json:"on_compliance"`
	OnViolation  ViolationAction  `yaml:"on_violation" json:"on_violation"`
}

// Policy is a prioritized, role/tenant-scoped compliance policy. Priority
// runs 1-10; only the single highest-priority matching policy is evaluated.
type Policy struct {
	ID                string        `yaml:"id" json:"id"`
	Name              string        `yaml:"name" json:"name"`
	Priority          int           `yaml:"priority" json:"priority"`
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	Requirements      Requirements  `yaml:"requirements" json:"requirements"`
	Actions           PolicyActions `yaml:"actions" json:"actions"`
	ApplicableRoles   []string      `yaml:"applicable_roles" json:"applicable_roles"`
	ApplicableTenants []string      `yaml:"applicable_tenants" json:"applicable_tenants"`
}

func (p Policy) appliesTo(role, tenant string) bool {
	return scopeMatches(p.ApplicableRoles, role) && scopeMatches(p.ApplicableTenants, tenant)
}

func scopeMatches(scope []string, value string) bool {
	for _, s := range scope {
		if s == Wildcard || s == value {
			return true
		}
	}
	return false
}

// ComplianceResult is the outcome of evaluating a posture against the
// selected policy. Derived, never stored.
type ComplianceResult struct {
	Compliant       bool        `json:"compliant"`
	Violations      []string    `json:"violations"`
	RequiredActions []string    `json:"required_actions"`
	AllowedAccess   AccessLevel `json:"allowed_access"`
	Policy          *Policy     `json:"policy,omitempty"`
}

// EvaluateCompliance selects the highest-priority enabled policy matching
// the role and tenant and evaluates the posture against it alone. With no
// matching policy the result is compliant with full access.
func (e *Evaluator) EvaluateCompliance(p DevicePosture, role, tenant string) ComplianceResult {
	e.mu.Lock()
	var selected *Policy
	for i := range e.policies {
		if e.policies[i].Enabled && e.policies[i].appliesTo(role, tenant) {
			policy := e.policies[i]
			selected = &policy
			break
		}
	}
	e.mu.Unlock()

	if selected == nil {
		return ComplianceResult{
			Compliant:       true,
			Violations:      []string{},
			RequiredActions: []string{},
			AllowedAccess:   AccessFull,
		}
	}

	result := ComplianceResult{
		Violations:      []string{},
		RequiredActions: []string{},
		Policy:          selected,
	}
	req := selected.Requirements

	if req.MinOSVersion != "" && compareVersions(p.OSVersion, req.MinOSVersion) < 0 {
		result.Violations = append(result.Violations,
			fmt.Sprintf("OS version %s is below the required minimum %s", p.OSVersion, req.MinOSVersion))
		result.RequiredActions = append(result.RequiredActions, "Update the device operating system")
	}
	if req.RequireEncryption && !p.DiskEncryption {
		result.Violations = append(result.Violations, "Disk encryption is not enabled")
		result.RequiredActions = append(result.RequiredActions, "Enable full-disk encryption")
	}
	if req.RequireAntivirus && p.Antivirus != AntivirusActive {
		result.Violations = append(result.Violations, "Antivirus protection is not active")
		result.RequiredActions = append(result.RequiredActions, "Install and enable antivirus software")
	}
	if req.RequireScreenLock && !p.ScreenLock {
		result.Violations = append(result.Violations, "Screen lock is not configured")
		result.RequiredActions = append(result.RequiredActions, "Configure a screen lock with a passcode")
	}
	if req.BlockJailbroken && (p.Jailbroken || p.Rooted) {
		result.Violations = append(result.Violations, "Device is jailbroken or rooted")
		result.RequiredActions = append(result.RequiredActions, "Restore the device to a supported configuration")
	}
	if req.RequireManaged && p.Management != ManagementManaged {
		result.Violations = append(result.Violations, "Device is not under management")
		result.RequiredActions = append(result.RequiredActions, "Enroll the device in device management")
	}
	if req.MinComplianceScore > 0 && p.ComplianceScore < req.MinComplianceScore {
		result.Violations = append(result.Violations,
			fmt.Sprintf("Compliance score %d is below the required minimum %d", p.ComplianceScore, req.MinComplianceScore))
		result.RequiredActions = append(result.RequiredActions, "Remediate outstanding posture issues")
	}

	result.Compliant = len(result.Violations) == 0
	if result.Compliant {
		switch selected.Actions.OnCompliance {
		case ActionAllowLimited:
			result.AllowedAccess = AccessLimited
		default:
			result.AllowedAccess = AccessFull
		}
	} else {
		switch selected.Actions.OnViolation {
		case ActionDeny:
			result.AllowedAccess = AccessDenied
		default:
			result.AllowedAccess = AccessLimited
		}
	}
	return result
}

// AddPolicy appends a policy at runtime and re-sorts by priority. There is
// no removal or hot-reload; registration is additive only.
func (e *Evaluator) AddPolicy(p Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = append(e.policies, p)
	sortPolicies(e.policies)
}

// Policies returns a copy of the current policy set in priority order.
func (e *Evaluator) Policies() []Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Policy(nil), e.policies...)
}

func sortPolicies(policies []Policy) {
	sort.SliceStable(policies, func(i, j int) bool {
		return policies[i].Priority > policies[j].Priority
	})
}

// LoadPolicies reads a policy set from a YAML file.
func LoadPolicies(path string) ([]Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Policies []Policy `yaml:"policies"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	return doc.Policies, nil
}

// compareVersions compares dotted numeric version strings. Missing segments
// count as zero; non-numeric segments compare as zero.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
