package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"setup-scanner/internal/catalog"
	"setup-scanner/internal/setups"
)

func (s *Server) handleGetSetups(c *gin.Context) {
	minProb := 0.0
	if raw := c.Query("min_probability"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_probability must be in [0,1]"})
			return
		}
		minProb = parsed
	}

	var types []catalog.SetupType
	if raw := c.Query("types"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			t, err := catalog.ParseSetupType(name)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			types = append(types, t)
		}
	}

	var symbols []string
	if raw := c.Query("symbols"); raw != "" {
		for _, sym := range strings.Split(raw, ",") {
			if sym = strings.TrimSpace(strings.ToUpper(sym)); sym != "" {
				symbols = append(symbols, sym)
			}
		}
	}

	result := s.scanner.FormingSetups(minProb, types, symbols)
	c.JSON(http.StatusOK, gin.H{"setups": result, "count": len(result)})
}

func (s *Server) handleActiveAlerts(c *gin.Context) {
	alerts := s.scanner.ActiveAlerts()
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (s *Server) handleAlertHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	// Prefer the durable audit trail when a repository is wired; the
	// in-memory history only spans the current process lifetime.
	if s.repo != nil && c.Query("source") == "audit" {
		rows, err := s.repo.RecentAlerts(c.Request.Context(), limit)
		if err != nil {
			s.log.Error().Err(err).Msg("audit history query failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"alerts": rows, "count": len(rows), "source": "audit"})
		return
	}

	alerts := s.scanner.AlertHistory(limit)
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts), "source": "memory"})
}

func (s *Server) handleStatus(c *gin.Context) {
	status := s.scanner.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":        status,
		"watchlist":     s.scanner.Watchlist(),
		"enabled_types": s.scanner.EnabledSetupTypes(),
	})
}

func (s *Server) handleStart(c *gin.Context) {
	s.scanner.Start()
	c.JSON(http.StatusOK, gin.H{"running": true})
}

func (s *Server) handleStop(c *gin.Context) {
	s.scanner.Stop()
	c.JSON(http.StatusOK, gin.H{"running": false})
}

func (s *Server) handleSetWatchlist(c *gin.Context) {
	var req struct {
		Symbols []string `json:"symbols" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must contain a symbols array"})
		return
	}

	cleaned := make([]string, 0, len(req.Symbols))
	for _, sym := range req.Symbols {
		if sym = strings.TrimSpace(strings.ToUpper(sym)); sym != "" {
			cleaned = append(cleaned, sym)
		}
	}
	s.scanner.SetWatchlist(cleaned)
	c.JSON(http.StatusOK, gin.H{"watchlist": cleaned})
}

func (s *Server) handleSetInterval(c *gin.Context) {
	var req struct {
		Seconds int `json:"seconds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Seconds <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must contain positive seconds"})
		return
	}
	s.scanner.SetScanInterval(time.Duration(req.Seconds) * time.Second)
	c.JSON(http.StatusOK, gin.H{"scan_interval_seconds": req.Seconds})
}

func (s *Server) handleEnableType(c *gin.Context) {
	if err := s.scanner.EnableSetupType(c.Param("type")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled_types": s.scanner.EnabledSetupTypes()})
}

func (s *Server) handleDisableType(c *gin.Context) {
	if err := s.scanner.DisableSetupType(c.Param("type")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled_types": s.scanner.EnabledSetupTypes()})
}

func (s *Server) handleAlertOutcome(c *gin.Context) {
	var req struct {
		Status  string `json:"status" binding:"required"`
		Outcome string `json:"outcome"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must contain status"})
		return
	}

	status := setups.AlertStatus(req.Status)
	if err := s.scanner.ResolveAlert(c.Param("id"), status, setups.AlertOutcome(req.Outcome)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": true})
}
