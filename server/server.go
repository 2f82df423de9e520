package main

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/storekit/admintrust/pkg/auth"
	"github.com/storekit/admintrust/pkg/config"
	"github.com/storekit/admintrust/pkg/keyring"
	"github.com/storekit/admintrust/pkg/posture"
	"github.com/storekit/admintrust/pkg/threat"
)

// Server exposes the trust engine over HTTP. The storefront and admin panel
// are its callers: they request sessions, verify bearers, and report events.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	ring          *keyring.Ring
	evaluator     *posture.Evaluator
	monitor       *threat.Monitor
	authenticator *auth.Authenticator
	archive       *threat.ArchiveSink
	db            *gorm.DB
	limiter       *RateLimiter
}

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/v1/health", s.handleHealth)
	r.POST("/v1/auth/login", s.handleLogin)

	protected := r.Group("/v1", s.requireAdminSession)
	protected.GET("/auth/session", s.handleSession)
	protected.POST("/events", s.handleReportEvent)
	protected.GET("/metrics", s.handleMetrics)
	protected.GET("/alerts", s.handleAlerts)
	protected.GET("/policies", s.handleListPolicies)
	protected.POST("/policies", s.handleAddPolicy)
	protected.GET("/keys/rotation", s.handleRotationInfo)
	protected.POST("/keys/rotate", s.handleRotateKeys)
}
