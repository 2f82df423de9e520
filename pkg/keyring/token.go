package keyring

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenReason classifies why a bearer token was rejected.
type TokenReason string

const (
	ReasonNoToken  TokenReason = "no_token"
	ReasonExpired  TokenReason = "expired"
	ReasonInvalid  TokenReason = "invalid"
	ReasonNotAdmin TokenReason = "not_admin"
)

// TokenError is returned for any rejected bearer token.
type TokenError struct {
	Reason TokenReason
}

func (e *TokenError) Error() string {
	return "token rejected: " + string(e.Reason)
}

// AdminRole is the only role admitted by session verification.
const AdminRole = "admin"

// SessionClaims is the payload of a signed admin session token. Sessions
// are stateless: nothing here is persisted server-side.
type SessionClaims struct {
	SubjectID   string
	Username    string
	Email       string
	Role        string
	LoginMethod string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Audience    string
	Issuer      string
}

func (c SessionClaims) mapClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":         c.SubjectID,
		"username":    c.Username,
		"email":       c.Email,
		"role":        c.Role,
		"loginMethod": c.LoginMethod,
		"iat":         c.IssuedAt.Unix(),
		"exp":         c.ExpiresAt.Unix(),
		"aud":         c.Audience,
		"iss":         c.Issuer,
	}
}

func claimsFromMap(m jwt.MapClaims) SessionClaims {
	return SessionClaims{
		SubjectID:   toString(m["sub"]),
		Username:    toString(m["username"]),
		Email:       toString(m["email"]),
		Role:        toString(m["role"]),
		LoginMethod: toString(m["loginMethod"]),
		IssuedAt:    toTime(m["iat"]),
		ExpiresAt:   toTime(m["exp"]),
		Audience:    toString(m["aud"]),
		Issuer:      toString(m["iss"]),
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case float64:
		return time.Unix(int64(t), 0)
	case int64:
		return time.Unix(t, 0)
	}
	return time.Time{}
}

// Sign serializes claims into a compact signed token. The header carries the
// active key id so verifiers can tell which generation signed it.
func (r *Ring) Sign(claims SessionClaims) (string, error) {
	key, keyID, err := r.SigningKey()
	if err != nil {
		return "", err
	}
	return signWithKey(claims, key.Material, keyID)
}

// SignWithStaticSecret signs claims with a fixed secret, bypassing the ring.
// It exists as the orchestrator's fallback when the configured backend is
// unavailable; tokens from this path carry weaker provenance.
func SignWithStaticSecret(claims SessionClaims, secret string) (string, error) {
	return signWithKey(claims, []byte(secret), "static")
}

func signWithKey(claims SessionClaims, material []byte, keyID string) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims.mapClaims())
	tok.Header["kid"] = keyID
	signed, err := tok.SignedString(material)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks a token against the active key and, if that fails on the
// signature, against the retiring key. This is the rotation grace period:
// tokens minted before the last rotation verify until the next one.
func (r *Ring) Verify(token string) (SessionClaims, string, error) {
	if token == "" {
		return SessionClaims{}, "", &TokenError{Reason: ReasonNoToken}
	}

	active, retiring := r.keys()
	if active == nil {
		var err error
		if active, _, err = r.SigningKey(); err != nil {
			return SessionClaims{}, "", err
		}
		_, retiring = r.keys()
	}

	claims, err := verifyWithKey(token, active.Material)
	if err == nil {
		return claims, active.ID, nil
	}
	var terr *TokenError
	if errors.As(err, &terr) && terr.Reason == ReasonExpired {
		return SessionClaims{}, "", err
	}
	if retiring != nil {
		if claims, rerr := verifyWithKey(token, retiring.Material); rerr == nil {
			return claims, retiring.ID, nil
		} else if errors.As(rerr, &terr) && terr.Reason == ReasonExpired {
			return SessionClaims{}, "", rerr
		}
	}
	return SessionClaims{}, "", &TokenError{Reason: ReasonInvalid}
}

// VerifyWithStaticSecret verifies a token against the fallback static secret.
func VerifyWithStaticSecret(token, secret string) (SessionClaims, error) {
	return verifyWithKey(token, []byte(secret))
}

func verifyWithKey(token string, material []byte) (SessionClaims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return material, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, &TokenError{Reason: ReasonExpired}
		}
		return SessionClaims{}, &TokenError{Reason: ReasonInvalid}
	}
	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return SessionClaims{}, &TokenError{Reason: ReasonInvalid}
	}
	return claimsFromMap(mapClaims), nil
}
