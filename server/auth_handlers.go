package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/storekit/admintrust/pkg/auth"
	"github.com/storekit/admintrust/pkg/keyring"
	"github.com/storekit/admintrust/pkg/posture"
)

const sessionClaimsContextKey = "session_claims"

type loginRequest struct {
	Username string        `json:"username" binding:"required"`
	Password string        `json:"password" binding:"required"`
	Device   *deviceReport `json:"device"`
}

type deviceReport struct {
	DeviceID string          `json:"device_id"`
	Signals  posture.Signals `json:"signals"`
}

func (s *Server) handleLogin(c *gin.Context) {
	if !s.limiter.Allow("login:"+c.ClientIP(), s.cfg.Server.LoginRateLimit,
		time.Duration(s.cfg.Server.LoginRateWindowS)*time.Second) {
		respondError(c, http.StatusTooManyRequests, "too many login attempts", s.logger)
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
		return
	}

	var device *auth.DeviceContext
	if req.Device != nil {
		signals := req.Device.Signals
		if signals.UserAgent == "" {
			signals.UserAgent = c.Request.UserAgent()
		}
		device = &auth.DeviceContext{
			DeviceID:  req.Device.DeviceID,
			Signals:   signals,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
	}

	session, err := s.authenticator.Authenticate(auth.Credentials{
		Username: req.Username,
		Password: req.Password,
	}, device)
	if err != nil {
		var cerr *auth.DeviceComplianceError
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			respondError(c, http.StatusUnauthorized, err.Error(), s.logger)
		case errors.As(err, &cerr):
			respondError(c, http.StatusForbidden, cerr.Error(), s.logger)
		default:
			respondError(c, http.StatusInternalServerError, "authentication unavailable", s.logger)
		}
		return
	}

	maxAge := int(time.Until(session.Claims.ExpiresAt).Seconds())
	c.SetCookie(s.cfg.Server.SessionCookieName, session.Token, maxAge, "/", "", true, true)
	c.JSON(http.StatusOK, gin.H{
		"token":          session.Token,
		"expires_at":     session.Claims.ExpiresAt,
		"allowed_access": session.AllowedAccess,
	})
}

// requireAdminSession reads the bearer token from the Authorization header
// first, then from the session cookie, verifies it, and enforces the admin
// role.
func (s *Server) requireAdminSession(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		if cookie, err := c.Cookie(s.cfg.Server.SessionCookieName); err == nil {
			token = cookie
		}
	}

	claims, err := s.authenticator.VerifyToken(token)
	if err != nil {
		var terr *keyring.TokenError
		if errors.As(err, &terr) {
			status := http.StatusUnauthorized
			if terr.Reason == keyring.ReasonNotAdmin {
				status = http.StatusForbidden
			}
			respondError(c, status, string(terr.Reason), s.logger)
			return
		}
		respondError(c, http.StatusInternalServerError, "session verification unavailable", s.logger)
		return
	}

	c.Set(sessionClaimsContextKey, claims)
	c.Next()
}

func (s *Server) handleSession(c *gin.Context) {
	claims := c.MustGet(sessionClaimsContextKey).(keyring.SessionClaims)
	c.JSON(http.StatusOK, gin.H{
		"subject_id":   claims.SubjectID,
		"username":     claims.Username,
		"email":        claims.Email,
		"role":         claims.Role,
		"login_method": claims.LoginMethod,
		"issued_at":    claims.IssuedAt,
		"expires_at":   claims.ExpiresAt,
	})
}

func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	return ""
}
