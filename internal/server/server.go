// Package server provides the HTTP and WebSocket front end of the status agent.
//
// Routes:
//
//	GET  /cpu /memory /processes /ext_temp   snapshot sections
//	GET  /status                             whole snapshot
//	GET  /health                             agent health
//	POST /control/ping                       controller commands
//	POST /control/process/kill               body {"pid": N}
//	POST /control/system/shutdown
//	POST /control/system/reboot
//	GET  /terminal/ws                        interactive shell over WebSocket
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/rpistatus/host/internal/logger"
	"github.com/rpistatus/host/internal/pty"
	"github.com/rpistatus/host/internal/status"
)

// StatusReader serves the latest snapshot. *status.Store satisfies it.
type StatusReader interface {
	Snapshot() status.SystemStatus
	CPU() status.CpuInfo
	Memory() status.MemoryInfo
	Processes() status.ProcessesInfo
	ExternalTemperature() status.ExternalTemperature
	UpdatedAt() (time.Time, uint64)
}

// Controller runs controller commands. *controller.Client satisfies it.
type Controller interface {
	Ping(ctx context.Context) error
	KillProcess(ctx context.Context, pid uint32) error
	Shutdown(ctx context.Context) error
	Reboot(ctx context.Context) error
}

// Terminal runs one shell session per stream. *pty.Bridge satisfies it.
type Terminal interface {
	Run(stream pty.Stream) error
	Active() int
}

// connectedReporter is implemented by controllers that cache a connection.
type connectedReporter interface {
	Connected() bool
}

// Config holds the server's collaborators and settings.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:3000".
	Addr string

	Status     StatusReader
	Controller Controller

	// Terminal serves /terminal/ws. Nil disables the endpoint.
	Terminal Terminal

	// ControlRate and ControlBurst limit /control requests across all
	// clients. A non-positive rate disables limiting.
	ControlRate  float64
	ControlBurst int

	// Version is reported by /health.
	Version string

	Log logger.Logger
}

// Server is the agent's HTTP server.
type Server struct {
	addr       string
	status     StatusReader
	controller Controller
	terminal   Terminal
	version    string
	log        logger.Logger

	// limiter guards /control; nil means unlimited.
	limiter *rate.Limiter

	// upgrader converts HTTP connections to WebSocket connections.
	upgrader websocket.Upgrader

	router    chi.Router
	startTime time.Time

	mu         sync.Mutex
	httpServer *http.Server
	listenAddr string
	tlsEnabled bool
}

// New creates a server. Call StartAsync to begin listening, or use
// Handler directly.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = logger.Noop()
	}

	s := &Server{
		addr:       cfg.Addr,
		status:     cfg.Status,
		controller: cfg.Controller,
		terminal:   cfg.Terminal,
		version:    cfg.Version,
		log:        log,
		startTime:  time.Now(),
		upgrader: websocket.Upgrader{
			// The mobile client connects from arbitrary origins.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}

	if cfg.ControlRate > 0 {
		burst := cfg.ControlBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.ControlRate), burst)
	}

	s.router = s.buildRouter()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)

	r.Get("/cpu", s.handleCPU)
	r.Get("/memory", s.handleMemory)
	r.Get("/processes", s.handleProcesses)
	r.Get("/ext_temp", s.handleExtTemp)
	r.Get("/status", s.handleStatus)

	r.Route("/control", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/ping", s.handlePing)
		r.Post("/process/kill", s.handleKill)
		r.Post("/system/shutdown", s.handleShutdown)
		r.Post("/system/reboot", s.handleReboot)
	})

	if s.terminal != nil {
		r.Get("/terminal/ws", s.handleTerminal)
	}

	return r
}

// logRequests logs each request at debug level with its status and duration.
// The WebSocket route is logged by its own handler since it runs for the
// whole session.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/terminal/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("%s %s -> %d (%s) [%s]", r.Method, r.URL.Path, ww.Status(),
			time.Since(start).Round(time.Microsecond), chimw.GetReqID(r.Context()))
	})
}

// rateLimit rejects /control requests beyond the configured rate.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.log.Warn("Rate limit exceeded for %s from %s", r.URL.Path, r.RemoteAddr)
			writeRateLimited(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
