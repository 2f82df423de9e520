package posture

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// AntivirusStatus reports the state of endpoint protection on a device.
type AntivirusStatus string

const (
	AntivirusActive   AntivirusStatus = "active"
	AntivirusInactive AntivirusStatus = "inactive"
	AntivirusUnknown  AntivirusStatus = "unknown"
)

// ManagementStatus reports whether a device is under MDM control.
type ManagementStatus string

const (
	ManagementManaged   ManagementStatus = "managed"
	ManagementUnmanaged ManagementStatus = "unmanaged"
	ManagementBYOD      ManagementStatus = "byod"
)

// CertificateStatus reports the state of the device identity certificate.
type CertificateStatus string

const (
	CertificateValid   CertificateStatus = "valid"
	CertificateExpired CertificateStatus = "expired"
	CertificateMissing CertificateStatus = "missing"
)

// DevicePosture is a snapshot of a device's security-relevant configuration
// with a weighted compliance score.
type DevicePosture struct {
	DeviceID        string            `json:"device_id"`
	Platform        string            `json:"platform"`
	OSVersion       string            `json:"os_version"`
	Jailbroken      bool              `json:"jailbroken"`
	Rooted          bool              `json:"rooted"`
	ScreenLock      bool              `json:"screen_lock"`
	Antivirus       AntivirusStatus   `json:"antivirus"`
	DiskEncryption  bool              `json:"disk_encryption"`
	Management      ManagementStatus  `json:"management"`
	Certificate     CertificateStatus `json:"certificate"`
	ComplianceScore int               `json:"compliance_score"`
	TrustedDevice   bool              `json:"trusted_device"`
	AssessedAt      time.Time         `json:"assessed_at"`
}

// Signals are the raw inputs to a posture assessment: a user-agent style
// string plus whatever flags the caller's device channel reported. Nil
// pointers mean the signal was absent.
type Signals struct {
	UserAgent      string            `json:"user_agent"`
	OSVersion      string            `json:"os_version,omitempty"`
	Jailbroken     *bool             `json:"jailbroken,omitempty"`
	Rooted         *bool             `json:"rooted,omitempty"`
	ScreenLock     *bool             `json:"screen_lock,omitempty"`
	Antivirus      AntivirusStatus   `json:"antivirus,omitempty"`
	DiskEncryption *bool             `json:"disk_encryption,omitempty"`
	Management     ManagementStatus  `json:"management,omitempty"`
	Certificate    CertificateStatus `json:"certificate,omitempty"`
	TrustedDevice  *bool             `json:"trusted_device,omitempty"`
}

const postureCacheTTL = 5 * time.Minute

type cachedPosture struct {
	posture DevicePosture
	expires time.Time
}

// Evaluator assesses device posture and evaluates it against compliance
// policies. Safe for concurrent use.
type Evaluator struct {
	mu       sync.Mutex
	policies []Policy
	cache    map[string]cachedPosture
	now      func() time.Time
}

// NewEvaluator constructs an evaluator over the given policy set. Policies
// are kept sorted descending by priority.
func NewEvaluator(policies []Policy) *Evaluator {
	e := &Evaluator{
		policies: append([]Policy(nil), policies...),
		cache:    make(map[string]cachedPosture),
		now:      time.Now,
	}
	sortPolicies(e.policies)
	return e
}

// Assess merges raw signals into a DevicePosture and computes its score.
// Results are cached per device for a short TTL and recomputed after expiry.
func (e *Evaluator) Assess(deviceID string, signals Signals) DevicePosture {
	e.mu.Lock()
	if cached, ok := e.cache[deviceID]; ok && e.now().Before(cached.expires) {
		e.mu.Unlock()
		return cached.posture
	}
	e.mu.Unlock()

	platform, osVersion := parseUserAgent(signals.UserAgent)
	if signals.OSVersion != "" {
		osVersion = signals.OSVersion
	}

	p := DevicePosture{
		DeviceID:       deviceID,
		Platform:       platform,
		OSVersion:      osVersion,
		Jailbroken:     boolSignal(signals.Jailbroken),
		Rooted:         boolSignal(signals.Rooted),
		ScreenLock:     boolSignal(signals.ScreenLock),
		Antivirus:      signals.Antivirus,
		DiskEncryption: boolSignal(signals.DiskEncryption),
		Management:     signals.Management,
		Certificate:    signals.Certificate,
		TrustedDevice:  boolSignal(signals.TrustedDevice),
		AssessedAt:     e.now(),
	}
	if p.Antivirus == "" {
		p.Antivirus = AntivirusUnknown
	}
	if p.Management == "" {
		p.Management = ManagementUnmanaged
	}
	if p.Certificate == "" {
		p.Certificate = CertificateMissing
	}
	p.ComplianceScore = score(p)

	e.mu.Lock()
	e.cache[deviceID] = cachedPosture{posture: p, expires: e.now().Add(postureCacheTTL)}
	e.mu.Unlock()
	return p
}

func boolSignal(v *bool) bool {
	return v != nil && *v
}

// score applies the fixed weighted rubric. Each factor only adds points, so
// enabling any one factor never lowers the total.
func score(p DevicePosture) int {
	s := 0
	if p.DiskEncryption {
		s += 25
	}
	if p.ScreenLock {
		s += 15
	}
	switch p.Antivirus {
	case AntivirusActive:
		s += 20
	case AntivirusInactive:
		s += 5
	}
	if !p.Jailbroken && !p.Rooted {
		s += 20
	}
	switch p.Management {
	case ManagementManaged:
		s += 15
	case ManagementBYOD:
		s += 8
	}
	if p.Certificate == CertificateValid {
		s += 5
	}
	return s
}

var osVersionPatterns = []struct {
	platform string
	re       *regexp.Regexp
}{
	{"windows", regexp.MustCompile(`Windows NT ([\d.]+)`)},
	{"macos", regexp.MustCompile(`Mac OS X ([\d_.]+)`)},
	{"ios", regexp.MustCompile(`(?:iPhone|CPU) OS ([\d_]+)`)},
	{"android", regexp.MustCompile(`Android ([\d.]+)`)},
	{"chromeos", regexp.MustCompile(`CrOS \S+ ([\d.]+)`)},
}

func parseUserAgent(ua string) (platform, osVersion string) {
	switch {
	case strings.Contains(ua, "iPhone") || strings.Contains(ua, "iPad"):
		platform = "ios"
	case strings.Contains(ua, "Android"):
		platform = "android"
	case strings.Contains(ua, "Windows"):
		platform = "windows"
	case strings.Contains(ua, "Mac OS X") || strings.Contains(ua, "Macintosh"):
		platform = "macos"
	case strings.Contains(ua, "CrOS"):
		platform = "chromeos"
	case strings.Contains(ua, "Linux"):
		platform = "linux"
	default:
		platform = "unknown"
	}
	for _, p := range osVersionPatterns {
		if m := p.re.FindStringSubmatch(ua); m != nil {
			osVersion = strings.ReplaceAll(m[1], "_", ".")
			break
		}
	}
	return platform, osVersion
}
