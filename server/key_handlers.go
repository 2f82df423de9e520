package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleRotationInfo(c *gin.Context) {
	info, err := s.ring.RotationDue()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "rotation status unavailable", s.logger)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleRotateKeys(c *gin.Context) {
	key, err := s.ring.Rotate()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "rotation failed", s.logger)
		return
	}
	reqLogger := requestLogger(c, s.logger)
	reqLogger.Info().Str("key_id", key.ID).Msg("manual key rotation")
	c.JSON(http.StatusOK, gin.H{
		"key_id":     key.ID,
		"created_at": key.CreatedAt,
	})
}
