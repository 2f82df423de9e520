// Package auth orchestrates admin authentication: credential verification,
// optional device compliance, security event emission, and token issue.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/storekit/admintrust/pkg/keyring"
	"github.com/storekit/admintrust/pkg/posture"
	"github.com/storekit/admintrust/pkg/threat"
)

// ErrInvalidCredentials is returned for both an unknown username and a wrong
// password, so callers cannot distinguish the two.
var ErrInvalidCredentials = errors.New("Invalid credentials")

// DeviceComplianceError is returned when the device check denies access.
type DeviceComplianceError struct {
	Violations []string
	Result     posture.ComplianceResult
}

func (e *DeviceComplianceError) Error() string {
	return "device not compliant: " + strings.Join(e.Violations, "; ")
}

// Risk scores attached to the security events emitted at each decision
// point of an authentication attempt.
const (
	riskAttempt            = 20
	riskInvalidUsername    = 60
	riskInvalidPassword    = 70
	riskDeviceNonCompliant = 90
	riskSuccess            = 10
)

const defaultTokenTTL = 8 * time.Hour

// dummyHash is compared against when the username is unknown so both
// failure paths pay a bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("admintrust-dummy"), bcrypt.DefaultCost)

// Credentials are the submitted login form values.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// DeviceContext carries the request context for the optional device check.
type DeviceContext struct {
	DeviceID  string          `json:"device_id"`
	Signals   posture.Signals `json:"signals"`
	IPAddress string          `json:"-"`
	UserAgent string          `json:"-"`
}

// Session is a successfully issued admin session.
type Session struct {
	Token         string                `json:"token"`
	Claims        keyring.SessionClaims `json:"claims"`
	AllowedAccess posture.AccessLevel   `json:"allowed_access"`
}

// Authenticator verifies the configured admin credential, evaluates device
// posture when a device context is supplied, emits a security event at
// every branch, and asks the key ring for a token on success.
type Authenticator struct {
	username     string
	passwordHash []byte
	email        string
	tenantID     string
	audience     string
	issuer       string
	tokenTTL     time.Duration
	fallback     string

	ring      *keyring.Ring
	evaluator *posture.Evaluator
	monitor   *threat.Monitor
	logger    zerolog.Logger
	now       func() time.Time
}

// Config holds the authenticator's static configuration. The admin password
// arrives in plain text and is hashed once at construction.
type Config struct {
	Username       string
	Password       string
	Email          string
	TenantID       string
	Audience       string
	Issuer         string
	TokenTTL       time.Duration
	FallbackSecret string
}

// New constructs an authenticator. Returns an error if the password cannot
// be hashed.
func New(cfg Config, ring *keyring.Ring, evaluator *posture.Evaluator, monitor *threat.Monitor, logger zerolog.Logger) (*Authenticator, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Authenticator{
		username:     cfg.Username,
		passwordHash: hash,
		email:        cfg.Email,
		tenantID:     cfg.TenantID,
		audience:     cfg.Audience,
		issuer:       cfg.Issuer,
		tokenTTL:     ttl,
		fallback:     cfg.FallbackSecret,
		ring:         ring,
		evaluator:    evaluator,
		monitor:      monitor,
		logger:       logger.With().Str("component", "auth").Logger(),
		now:          time.Now,
	}, nil
}

// Authenticate runs one authentication attempt. device may be nil, in which
// case the compliance check is skipped.
func (a *Authenticator) Authenticate(creds Credentials, device *DeviceContext) (*Session, error) {
	ip, ua := requestContext(device)

	a.emit("login_attempt", riskAttempt, creds.Username, device, map[string]any{})

	if creds.Username != a.username {
		// Equalize cost with the known-user path.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(creds.Password))
		a.emit("login_failed", riskInvalidUsername, creds.Username, device, map[string]any{"reason": "invalid_username"})
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(creds.Password)); err != nil {
		a.emit("login_failed", riskInvalidPassword, creds.Username, device, map[string]any{"reason": "invalid_password"})
		return nil, ErrInvalidCredentials
	}

	access := posture.AccessFull
	if device != nil {
		p := a.evaluator.Assess(device.DeviceID, device.Signals)
		result := a.evaluator.EvaluateCompliance(p, keyring.AdminRole, a.tenantID)
		if result.AllowedAccess == posture.AccessDenied {
			a.emit("login_failed", riskDeviceNonCompliant, creds.Username, device, map[string]any{
				"reason":     "device_non_compliant",
				"violations": result.Violations,
			})
			return nil, &DeviceComplianceError{Violations: result.Violations, Result: result}
		}
		access = result.AllowedAccess
	}

	claims := keyring.SessionClaims{
		SubjectID:   a.username,
		Username:    a.username,
		Email:       a.email,
		Role:        keyring.AdminRole,
		LoginMethod: "password",
		IssuedAt:    a.now(),
		ExpiresAt:   a.now().Add(a.tokenTTL),
		Audience:    a.audience,
		Issuer:      a.issuer,
	}

	token, err := a.ring.Sign(claims)
	if err != nil {
		if a.fallback == "" {
			return nil, err
		}
		// The static-secret path keeps logins working when the configured
		// backend is down, at the cost of weaker token provenance.
		a.logger.Warn().Err(err).Str("provenance", "fallback").Msg("signing with static fallback secret")
		if token, err = keyring.SignWithStaticSecret(claims, a.fallback); err != nil {
			return nil, err
		}
	}

	a.emit("login_success", riskSuccess, creds.Username, device, map[string]any{"access": string(access)})
	a.logger.Info().Str("username", creds.Username).Str("ip", ip).Str("user_agent", ua).Msg("admin login")

	return &Session{Token: token, Claims: claims, AllowedAccess: access}, nil
}

// VerifyToken verifies a bearer token and enforces the admin role. Tokens
// signed by the fallback static secret remain verifiable when a fallback is
// configured.
func (a *Authenticator) VerifyToken(token string) (keyring.SessionClaims, error) {
	claims, _, err := a.ring.Verify(token)
	if err != nil {
		var terr *keyring.TokenError
		var perr *keyring.KeyProviderError
		ringRejected := errors.As(err, &terr) && terr.Reason == keyring.ReasonInvalid
		ringUnavailable := errors.As(err, &perr)
		if a.fallback != "" && (ringRejected || ringUnavailable) {
			if claims, ferr := keyring.VerifyWithStaticSecret(token, a.fallback); ferr == nil {
				return checkRole(claims)
			}
		}
		return keyring.SessionClaims{}, err
	}
	return checkRole(claims)
}

func checkRole(claims keyring.SessionClaims) (keyring.SessionClaims, error) {
	if claims.Role != keyring.AdminRole {
		return keyring.SessionClaims{}, &keyring.TokenError{Reason: keyring.ReasonNotAdmin}
	}
	return claims, nil
}

func (a *Authenticator) emit(action string, risk int, username string, device *DeviceContext, details map[string]any) {
	ip, ua := requestContext(device)
	event := threat.SecurityEvent{
		TenantID:  a.tenantID,
		UserID:    username,
		Type:      threat.EventAuth,
		Action:    action,
		Details:   details,
		RiskScore: risk,
		IPAddress: ip,
		UserAgent: ua,
	}
	if device != nil {
		event.DeviceID = device.DeviceID
	}
	a.monitor.LogEvent(event)
}

func requestContext(device *DeviceContext) (ip, ua string) {
	if device == nil {
		return "", ""
	}
	return device.IPAddress, device.UserAgent
}
