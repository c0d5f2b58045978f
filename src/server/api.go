package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"market-sentinel/src/interfaces"
	"market-sentinel/src/logger"
	"market-sentinel/src/metrics"
	"market-sentinel/src/models"
	"market-sentinel/src/utils"

	"github.com/gin-gonic/gin"
)

const (
	DefaultTickLimit = 60
	MaxTickLimit     = 5000
	shutdownTimeout  = 5 * time.Second
)

// -----------------------------------------------------------------------------
// APIServer
// -----------------------------------------------------------------------------

// APIServer serves read-only queries over the tick store and signal buffer,
// and pushes live updates to WebSocket clients.
type APIServer struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	Store   interfaces.ITickStore
	Signals *utils.SignalBuffer

	engine     *gin.Engine
	httpServer *http.Server
	startedAt  time.Time

	// WebSocket clients, owned by the hub goroutine
	clients    map[*Client]struct{}
	broadcast  chan models.MLiveUpdate
	register   chan *Client
	unregister chan *Client
	resync     chan *Client
	quit       chan struct{}
	connected  atomic.Int64
	hubOnce    sync.Once
	stopOnce   sync.Once

	// Last tick per symbol, replayed to new clients
	latest     map[string]models.MTick
	lastUpdate int64
	stateMutex sync.RWMutex
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(cfg *models.MConfig, store interfaces.ITickStore, signals *utils.SignalBuffer, log *logger.Logger) *APIServer {
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logger.NewLogger("APIServer")
	}
	if signals == nil {
		signals = utils.NewSignalBuffer(utils.DefaultSignalBufferSize)
	}

	s := &APIServer{
		Config:     cfg,
		Logger:     log,
		Store:      store,
		Signals:    signals,
		engine:     gin.New(),
		startedAt:  time.Now(),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan models.MLiveUpdate, utils.TickQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		resync:     make(chan *Client),
		quit:       make(chan struct{}),
		latest:     make(map[string]models.MTick),
	}

	s.engine.Use(gin.Recovery(), s.corsMiddleware())
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: s.engine,
	}
	return s
}

// -----------------------------------------------------------------------------

func (s *APIServer) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	api.GET("/symbols", s.getSymbols)
	api.GET("/signals", s.getSignals)
	api.GET("/ticks/:symbol", s.getTicks)
	api.GET("/ticks/:symbol/latest", s.getLatestTick)
	api.GET("/ticks/:symbol/range", s.getTickRange)

	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the router, mainly for httptest.
func (s *APIServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start runs the hub and serves HTTP until Stop is called.
func (s *APIServer) Start() error {
	s.StartHub()
	s.Logger.Info("Starting server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartHub launches the WebSocket hub loop. Safe to call more than once.
func (s *APIServer) StartHub() {
	s.hubOnce.Do(func() { go s.runHub() })
}

// -----------------------------------------------------------------------------

// Stop shuts the HTTP server down and disconnects every WebSocket client.
// Broadcast stays safe to call afterwards.
func (s *APIServer) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.quit)

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = s.httpServer.Shutdown(ctx)
		s.Logger.Info("Server stopped")
	})
	return err
}
