package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *APIServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	timestamp := s.lastUpdate
	tracked := len(s.latest)
	s.stateMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"connections":    s.connectionCount(),
		"latest_update":  timestamp,
		"live_symbols":   tracked,
		"signals":        s.Signals.Len(),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getSymbols(c *gin.Context) {
	symbols, err := s.Store.GetSymbols()
	if err != nil {
		s.storeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": symbols})
}

// -----------------------------------------------------------------------------

// getSignals returns the buffered signals, oldest first. ?limit keeps only
// the most recent ones.
func (s *APIServer) getSignals(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"signals": s.Signals.Latest(limit)})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getTicks(c *gin.Context) {
	symbol := normalizeSymbol(c.Param("symbol"))

	limit := DefaultTickLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxTickLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 5000"})
			return
		}
		limit = n
	}

	ticks, err := s.Store.GetRecent(symbol, limit)
	if err != nil {
		s.storeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "ticks": ticks})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getLatestTick(c *gin.Context) {
	symbol := normalizeSymbol(c.Param("symbol"))

	ticks, err := s.Store.GetRecent(symbol, 1)
	if err != nil {
		s.storeFailure(c, err)
		return
	}
	if len(ticks) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no ticks for " + symbol})
		return
	}
	c.JSON(http.StatusOK, ticks[0])
}

// -----------------------------------------------------------------------------

func (s *APIServer) getTickRange(c *gin.Context) {
	symbol := normalizeSymbol(c.Param("symbol"))

	start, err := time.Parse(time.RFC3339Nano, c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be an RFC3339 timestamp"})
		return
	}
	end, err := time.Parse(time.RFC3339Nano, c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be an RFC3339 timestamp"})
		return
	}
	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end is before start"})
		return
	}

	ticks, err := s.Store.GetRange(symbol, start, end)
	if err != nil {
		s.storeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "ticks": ticks})
}

// -----------------------------------------------------------------------------

func (s *APIServer) storeFailure(c *gin.Context, err error) {
	s.Logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
}

func normalizeSymbol(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
