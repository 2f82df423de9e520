package posture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func boolPtr(v bool) *bool { return &v }

func baselineSignals() Signals {
	return Signals{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_2) AppleWebKit/605.1.15",
		DiskEncryption: boolPtr(true),
		ScreenLock:     boolPtr(true),
		Antivirus:      AntivirusActive,
		Jailbroken:     boolPtr(false),
		Rooted:         boolPtr(false),
		Management:     ManagementUnmanaged,
		Certificate:    CertificateMissing,
	}
}

func TestAssessBaselineScore(t *testing.T) {
	e := NewEvaluator(nil)
	p := e.Assess("device-1", baselineSignals())

	// encryption 25 + screen lock 15 + antivirus 20 + not jailbroken 20.
	require.Equal(t, 80, p.ComplianceScore)
	require.Equal(t, "macos", p.Platform)
	require.Equal(t, "14.2", p.OSVersion)
}

func TestScoreMonotonicity(t *testing.T) {
	base := baselineSignals()
	baseScore := NewEvaluator(nil).Assess("base", base).ComplianceScore

	improvements := map[string]func(*Signals){
		"managed":     func(s *Signals) { s.Management = ManagementManaged },
		"byod":        func(s *Signals) { s.Management = ManagementBYOD },
		"certificate": func(s *Signals) { s.Certificate = CertificateValid },
	}
	for name, improve := range improvements {
		t.Run(name, func(t *testing.T) {
			s := baselineSignals()
			improve(&s)
			got := NewEvaluator(nil).Assess("dev-"+name, s).ComplianceScore
			require.GreaterOrEqual(t, got, baseScore)
		})
	}
}

func TestScoreRubric(t *testing.T) {
	tests := []struct {
		name    string
		signals Signals
		want    int
	}{
		{
			name:    "empty signals score only the jailbreak factor",
			signals: Signals{},
			want:    20,
		},
		{
			name: "maximum achievable score is 100",
			signals: Signals{
				DiskEncryption: boolPtr(true),
				ScreenLock:     boolPtr(true),
				Antivirus:      AntivirusActive,
				Jailbroken:     boolPtr(false),
				Rooted:         boolPtr(false),
				Management:     ManagementManaged,
				Certificate:    CertificateValid,
			},
			want: 100,
		},
		{
			name: "inactive antivirus earns partial credit",
			signals: Signals{
				Antivirus: AntivirusInactive,
			},
			want: 25,
		},
		{
			name: "jailbroken device loses the integrity factor",
			signals: Signals{
				Jailbroken:     boolPtr(true),
				DiskEncryption: boolPtr(true),
			},
			want: 25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewEvaluator(nil).Assess("dev", tt.signals)
			require.Equal(t, tt.want, p.ComplianceScore)
		})
	}
}

func TestAssessCachesPerDevice(t *testing.T) {
	e := NewEvaluator(nil)
	current := time.Now()
	e.now = func() time.Time { return current }

	first := e.Assess("device-1", baselineSignals())

	// Different signals inside the TTL still return the cached posture.
	degraded := baselineSignals()
	degraded.DiskEncryption = boolPtr(false)
	cached := e.Assess("device-1", degraded)
	require.Equal(t, first.ComplianceScore, cached.ComplianceScore)

	current = current.Add(postureCacheTTL + time.Second)
	fresh := e.Assess("device-1", degraded)
	require.Equal(t, first.ComplianceScore-25, fresh.ComplianceScore)
}

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		ua          string
		platform    string
		osVersion   string
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64)", "windows", "10.0"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X)", "ios", "17.1"},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8)", "android", "14"},
		{"Mozilla/5.0 (X11; Linux x86_64)", "linux", ""},
		{"curl/8.4.0", "unknown", ""},
	}
	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			platform, osVersion := parseUserAgent(tt.ua)
			require.Equal(t, tt.platform, platform)
			require.Equal(t, tt.osVersion, osVersion)
		})
	}
}
