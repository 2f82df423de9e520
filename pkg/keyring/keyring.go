package keyring

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

// Backend selects where signing key material comes from.
type Backend string

const (
	BackendEnv    Backend = "env"
	BackendVault  Backend = "vault"
	BackendKMS    Backend = "kms"
	BackendEdgeKV Backend = "edge-kv"
)

// KeyProviderError indicates the configured key backend cannot serve key
// material. It is a configuration fault; callers must not retry without
// reconfiguring.
type KeyProviderError struct {
	Backend Backend
}

func (e *KeyProviderError) Error() string {
	return fmt.Sprintf("key backend %q not implemented", e.Backend)
}

// SigningKey is one generation of symmetric signing material.
type SigningKey struct {
	ID        string
	Material  []byte
	CreatedAt time.Time
}

const (
	keyCacheTTL      = time.Hour
	rotationInterval = 30 * 24 * time.Hour
	materialBytes    = 32
)

// RotationInfo reports whether the active key is past its rotation interval.
type RotationInfo struct {
	Due          bool          `json:"due"`
	KeyAge       time.Duration `json:"key_age"`
	ScheduledFor time.Time     `json:"scheduled_for,omitempty"`
}

// Ring holds the active signing key and, after a rotation, the immediately
// prior key kept for verification only. There is never more than one
// retiring key: each rotation discards the previous one.
type Ring struct {
	mu        sync.Mutex
	backend   Backend
	envSecret []byte
	active    *SigningKey
	retiring  *SigningKey
	fetchedAt time.Time
	interval  time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// Option configures a Ring.
type Option func(*Ring)

// WithRotationInterval overrides the default 30-day rotation interval.
func WithRotationInterval(d time.Duration) Option {
	return func(r *Ring) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithClock overrides the ring's time source.
func WithClock(now func() time.Time) Option {
	return func(r *Ring) { r.now = now }
}

// NewRing constructs a key ring backed by the given provider. The env
// backend derives material from envSecret; the external backends are named
// but not implemented and fail hard at fetch time.
func NewRing(backend Backend, envSecret string, logger zerolog.Logger, opts ...Option) *Ring {
	r := &Ring{
		backend:   backend,
		envSecret: []byte(envSecret),
		interval:  rotationInterval,
		logger:    logger.With().Str("component", "keyring").Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SigningKey returns the active key, fetching from the backend on cache
// miss. The fetched key is cached for one hour; a key created by Rotate is
// never replaced by a cache refresh.
func (r *Ring) SigningKey() (*SigningKey, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil && r.now().Sub(r.fetchedAt) < keyCacheTTL {
		return r.active, r.active.ID, nil
	}

	key, err := r.fetch()
	if err != nil {
		return nil, "", err
	}
	// A rotated key stays active across cache refreshes; only the initial
	// backend-derived generation is re-fetched.
	if r.active == nil || r.active.ID == key.ID {
		r.active = key
	}
	r.fetchedAt = r.now()
	return r.active, r.active.ID, nil
}

// fetch obtains key material from the configured backend. Callers hold r.mu.
// The env backend is deterministic so that repeated fetches agree with each
// other; external providers are hard failures until implemented.
func (r *Ring) fetch() (*SigningKey, error) {
	switch r.backend {
	case BackendEnv:
		mac := hmac.New(sha256.New, r.envSecret)
		mac.Write([]byte("admin-session-signing"))
		material := mac.Sum(nil)
		sum := sha256.Sum256(material)
		return &SigningKey{
			ID:        "env-" + hex.EncodeToString(sum[:6]),
			Material:  material,
			CreatedAt: r.now(),
		}, nil
	case BackendVault, BackendKMS, BackendEdgeKV:
		return nil, &KeyProviderError{Backend: r.backend}
	default:
		return nil, &KeyProviderError{Backend: r.backend}
	}
}

// Rotate generates a fresh key, demotes the current active key to retiring
// and discards any previous retiring key. Tokens signed before the rotation
// stay verifiable until the next rotation drops the retiring key.
func (r *Ring) Rotate() (*SigningKey, error) {
	material := make([]byte, materialBytes)
	if _, err := rand.Read(material); err != nil {
		return nil, fmt.Errorf("generate key material: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := &SigningKey{
		ID:        xid.New().String(),
		Material:  material,
		CreatedAt: r.now(),
	}
	if r.active != nil {
		r.retiring = r.active
	}
	r.active = key
	r.fetchedAt = r.now()

	retiringID := ""
	if r.retiring != nil {
		retiringID = r.retiring.ID
	}
	r.logger.Info().Str("key_id", key.ID).Str("retiring_key_id", retiringID).Msg("signing key rotated")
	return key, nil
}

// RotationDue reports whether the active key is older than the rotation
// interval. When due, rotation is scheduled for the following day.
func (r *Ring) RotationDue() (RotationInfo, error) {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()

	if active == nil {
		var err error
		if active, _, err = r.SigningKey(); err != nil {
			return RotationInfo{}, err
		}
	}

	age := r.now().Sub(active.CreatedAt)
	info := RotationInfo{KeyAge: age}
	if age > r.interval {
		info.Due = true
		info.ScheduledFor = r.now().Add(24 * time.Hour)
	}
	return info, nil
}

// keys returns the active and retiring keys for verification.
func (r *Ring) keys() (active, retiring *SigningKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.retiring
}
