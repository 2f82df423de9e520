package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storekit/admintrust/pkg/health"
	"github.com/storekit/admintrust/pkg/posture"
)

func (s *Server) handleAddPolicy(c *gin.Context) {
	var policy posture.Policy
	if err := c.ShouldBindJSON(&policy); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
		return
	}
	if policy.ID == "" || policy.Name == "" {
		respondError(c, http.StatusBadRequest, "policy id and name are required", s.logger)
		return
	}
	if policy.Priority < 1 || policy.Priority > 10 {
		respondError(c, http.StatusBadRequest, "policy priority must be between 1 and 10", s.logger)
		return
	}
	if len(policy.ApplicableRoles) == 0 || len(policy.ApplicableTenants) == 0 {
		respondError(c, http.StatusBadRequest, "policy must name applicable roles and tenants", s.logger)
		return
	}

	s.evaluator.AddPolicy(policy)
	reqLogger := requestLogger(c, s.logger)
	reqLogger.Info().Str("policy_id", policy.ID).Int("priority", policy.Priority).Msg("policy added")
	c.JSON(http.StatusCreated, policy)
}

func (s *Server) handleListPolicies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"policies": s.evaluator.Policies(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	checks := health.Checks{
		SigningKeys: func() error {
			_, _, err := s.ring.SigningKey()
			return err
		},
		WebhookURL: s.cfg.Threat.WebhookURL,
	}
	if s.db != nil {
		checks.Archive = func() error {
			db, err := s.db.DB()
			if err != nil {
				return err
			}
			return db.Ping()
		}
	}

	status := health.Run(checks)
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
