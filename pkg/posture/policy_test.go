package posture

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func compliantPosture() DevicePosture {
	p := DevicePosture{
		DeviceID:       "device-1",
		Platform:       "macos",
		OSVersion:      "14.2",
		ScreenLock:     true,
		Antivirus:      AntivirusActive,
		DiskEncryption: true,
		Management:     ManagementManaged,
		Certificate:    CertificateValid,
	}
	p.ComplianceScore = score(p)
	return p
}

func strictPolicy(id string, priority int) Policy {
	return Policy{
		ID:       id,
		Name:     id,
		Priority: priority,
		Enabled:  true,
		Requirements: Requirements{
			RequireEncryption:  true,
			RequireAntivirus:   true,
			RequireScreenLock:  true,
			BlockJailbroken:    true,
			RequireManaged:     true,
			MinComplianceScore: 70,
		},
		Actions: PolicyActions{
			OnCompliance: ActionAllow,
			OnViolation:  ActionDeny,
		},
		ApplicableRoles:   []string{"admin"},
		ApplicableTenants: []string{Wildcard},
	}
}

func TestHighestPriorityPolicyWins(t *testing.T) {
	lenient := strictPolicy("lenient", 5)
	lenient.Requirements = Requirements{}
	lenient.Actions.OnViolation = ActionMonitorViolation

	strict := strictPolicy("strict", 10)

	e := NewEvaluator([]Policy{lenient, strict})

	p := compliantPosture()
	p.DiskEncryption = false
	p.ComplianceScore = score(p)

	result := e.EvaluateCompliance(p, "admin", "acme")
	require.NotNil(t, result.Policy)
	require.Equal(t, "strict", result.Policy.ID)
	require.False(t, result.Compliant)
	require.Equal(t, AccessDenied, result.AllowedAccess)
}

func TestFailOpenWithoutMatchingPolicy(t *testing.T) {
	e := NewEvaluator([]Policy{strictPolicy("admin-only", 10)})

	result := e.EvaluateCompliance(compliantPosture(), "viewer", "acme")
	require.True(t, result.Compliant)
	require.Equal(t, AccessFull, result.AllowedAccess)
	require.Nil(t, result.Policy)
	require.Empty(t, result.Violations)
}

func TestDisabledPolicyIsIgnored(t *testing.T) {
	disabled := strictPolicy("disabled", 10)
	disabled.Enabled = false
	e := NewEvaluator([]Policy{disabled})

	result := e.EvaluateCompliance(DevicePosture{}, "admin", "acme")
	require.True(t, result.Compliant)
	require.Nil(t, result.Policy)
}

func TestViolationsAccumulate(t *testing.T) {
	e := NewEvaluator([]Policy{strictPolicy("strict", 10)})

	p := DevicePosture{
		DeviceID:   "device-2",
		Jailbroken: true,
		Antivirus:  AntivirusUnknown,
		Management: ManagementBYOD,
	}
	p.ComplianceScore = score(p)

	result := e.EvaluateCompliance(p, "admin", "acme")
	require.False(t, result.Compliant)
	require.Len(t, result.Violations, 6)
	require.Len(t, result.RequiredActions, 6)
	require.Equal(t, AccessDenied, result.AllowedAccess)
}

func TestViolationMapping(t *testing.T) {
	tests := []struct {
		name        string
		onViolation ViolationAction
		want        AccessLevel
	}{
		{"deny maps to denied", ActionDeny, AccessDenied},
		{"quarantine maps to limited", ActionQuarantine, AccessLimited},
		{"remediation maps to limited", ActionRequireRemediation, AccessLimited},
		{"monitor maps to limited", ActionMonitorViolation, AccessLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := strictPolicy("p", 5)
			policy.Actions.OnViolation = tt.onViolation
			e := NewEvaluator([]Policy{policy})

			result := e.EvaluateCompliance(DevicePosture{Jailbroken: true}, "admin", "acme")
			require.False(t, result.Compliant)
			require.Equal(t, tt.want, result.AllowedAccess)
		})
	}
}

func TestComplianceMapping(t *testing.T) {
	policy := strictPolicy("p", 5)
	policy.Requirements = Requirements{}
	policy.Actions.OnCompliance = ActionAllowLimited
	e := NewEvaluator([]Policy{policy})

	result := e.EvaluateCompliance(compliantPosture(), "admin", "acme")
	require.True(t, result.Compliant)
	require.Equal(t, AccessLimited, result.AllowedAccess)
}

func TestMinOSVersionComparison(t *testing.T) {
	policy := strictPolicy("os", 5)
	policy.Requirements = Requirements{MinOSVersion: "14.0"}
	e := NewEvaluator([]Policy{policy})

	old := compliantPosture()
	old.OSVersion = "13.6.1"
	result := e.EvaluateCompliance(old, "admin", "acme")
	require.False(t, result.Compliant)

	current := compliantPosture()
	result = e.EvaluateCompliance(current, "admin", "acme")
	require.True(t, result.Compliant)
}

func TestAddPolicyResorts(t *testing.T) {
	e := NewEvaluator([]Policy{strictPolicy("low", 3)})
	e.AddPolicy(strictPolicy("high", 9))

	policies := e.Policies()
	require.Equal(t, "high", policies[0].ID)
	require.Equal(t, "low", policies[1].ID)
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"14.2", "14.0", 1},
		{"13.6.1", "14.0", -1},
		{"10", "10.0", 0},
		{"10.0.1", "10", 1},
		{"", "1.0", -1},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, compareVersions(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}
