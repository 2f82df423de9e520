package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storekit/admintrust/pkg/threat"
)

type eventReport struct {
	TenantID  string         `json:"tenant_id"`
	UserID    string         `json:"user_id"`
	DeviceID  string         `json:"device_id"`
	EventType string         `json:"event_type" binding:"required"`
	Action    string         `json:"action" binding:"required"`
	Details   map[string]any `json:"details"`
	RiskScore int            `json:"risk_score"`
	Location  string         `json:"location"`
}

var eventTypes = map[threat.EventType]bool{
	threat.EventAuth:   true,
	threat.EventAccess: true,
	threat.EventData:   true,
	threat.EventAdmin:  true,
	threat.EventThreat: true,
}

func (s *Server) handleReportEvent(c *gin.Context) {
	var req eventReport
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
		return
	}
	eventType := threat.EventType(req.EventType)
	if !eventTypes[eventType] {
		respondError(c, http.StatusBadRequest, "unknown event type: "+req.EventType, s.logger)
		return
	}
	if req.RiskScore < 0 || req.RiskScore > 100 {
		respondError(c, http.StatusBadRequest, "risk score must be between 0 and 100", s.logger)
		return
	}

	tenant := req.TenantID
	if tenant == "" {
		tenant = s.cfg.Admin.TenantID
	}

	event := s.monitor.LogEvent(threat.SecurityEvent{
		TenantID:  tenant,
		UserID:    req.UserID,
		DeviceID:  req.DeviceID,
		Type:      eventType,
		Action:    req.Action,
		Details:   req.Details,
		RiskScore: req.RiskScore,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Location:  req.Location,
	})

	c.JSON(http.StatusCreated, gin.H{
		"id":        event.ID,
		"timestamp": event.Timestamp,
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Metrics())
}

func (s *Server) handleAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"events": s.monitor.RecentHighRisk(50),
	})
}
