// Package server provides the MCP server for the geo-reference resolution service.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/serendibstay/georesolve/pkg/localities"
	"github.com/serendibstay/georesolve/pkg/resolver"
	"github.com/serendibstay/georesolve/pkg/tools"
	"github.com/serendibstay/georesolve/pkg/version"
)

// ServerName is the name advertised during the MCP handshake.
const ServerName = "georesolve-mcp-server"

// Config holds the dependencies behind the tool surface. Zero-value fields
// fall back to sensible defaults: the embedded locality table, the default
// logger, and a resolver without short-link expansion, geocoding or AI
// assistance.
type Config struct {
	Logger   *slog.Logger
	Table    *localities.Table
	Expander resolver.Expander
	Geocoder resolver.Geocoder
	AI       resolver.PlusCodeAI
}

// Server encapsulates the MCP server with the resolution tools registered.
type Server struct {
	srv          *mcpserver.MCPServer
	registry     *tools.Registry
	logger       *slog.Logger
	stopCh       chan struct{}
	doneCh       chan struct{}
	running      bool
	mu           sync.Mutex
	once         sync.Once // Ensure we only close stopCh once
	ctxCancel    context.CancelFunc
	ctxGoroutine sync.Once // Ensure we only start one context goroutine
}

// NewServer creates a new MCP server with all resolution tools registered.
func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	table := cfg.Table
	if table == nil {
		var err error
		table, err = localities.Load()
		if err != nil {
			return nil, err
		}
	}

	logger.Info("initializing geo-reference MCP server",
		"name", ServerName,
		"version", version.Version,
		"localities", table.Count())

	opts := []resolver.Option{resolver.WithLogger(logger)}
	if cfg.Expander != nil {
		opts = append(opts, resolver.WithExpander(cfg.Expander))
	}
	if cfg.Geocoder != nil {
		opts = append(opts, resolver.WithGeocoder(cfg.Geocoder))
	}
	if cfg.AI != nil {
		opts = append(opts, resolver.WithAI(cfg.AI))
	}
	res := resolver.NewResolver(table, opts...)

	srv := mcpserver.NewMCPServer(
		ServerName,
		version.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	registry := tools.NewRegistry(logger, res, table, cfg.Expander)
	registry.RegisterAll(srv)

	return &Server{
		srv:      srv,
		registry: registry,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Run starts the MCP server using stdin/stdout for communication.
// This method blocks until the server is stopped or an error occurs.
func (s *Server) Run() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	// Run the server in a goroutine
	go func() {
		defer close(s.doneCh)
		err := mcpserver.ServeStdio(s.srv)
		if err != nil && err != io.EOF {
			s.logger.Error("server error", "error", err)
		}

		// Ensure the main Run loop is notified that the
		// server has finished processing.
		s.Shutdown()
	}()

	// Wait for stop signal
	<-s.stopCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	// Wait for server to finish before returning
	<-s.doneCh
	return nil
}

// RunWithContext starts the MCP server and allows for graceful shutdown via context.
// This method blocks until the context is canceled or an error occurs.
func (s *Server) RunWithContext(ctx context.Context) error {
	// Create a goroutine to watch the context for cancellation
	s.ctxGoroutine.Do(func() {
		// Create a derived context that we can cancel
		derived, cancel := context.WithCancel(ctx)
		s.ctxCancel = cancel

		go func() {
			select {
			case <-derived.Done():
				s.Shutdown()
			case <-s.stopCh:
				// Already being shut down
			}
		}()
	})

	return s.Run()
}

// Shutdown initiates a graceful shutdown of the server.
// It does not block and returns immediately.
// Using sync.Once to ensure we don't close an already closed channel.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	// Signal the server to stop using sync.Once to avoid panics
	// on double close of the channel
	s.once.Do(func() {
		close(s.stopCh)
	})

	// Cancel the context if we have one
	if s.ctxCancel != nil {
		s.ctxCancel()
	}
}

// WaitForShutdown blocks until the server has fully shut down.
func (s *Server) WaitForShutdown() {
	<-s.doneCh
}

// GetMCPServer returns the underlying MCP server instance for HTTP transport
func (s *Server) GetMCPServer() *mcpserver.MCPServer {
	return s.srv
}

// ToolNames returns the names of the registered tools.
func (s *Server) ToolNames() []string {
	return s.registry.GetToolNames()
}

// MonitorParent watches the parent process and shuts the server down when
// the parent exits. Stdio clients that crash without closing stdin would
// otherwise leave the server running forever.
func (s *Server) MonitorParent(interval time.Duration) {
	ppid := os.Getppid()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if !isProcessRunning(ppid) {
					s.logger.Info("parent process exited, shutting down", "ppid", ppid)
					s.Shutdown()
					return
				}
			case <-s.stopCh:
				return
			}
		}
	}()
}

// isProcessRunning reports whether a process with the given PID exists.
func isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 performs the existence and permission checks without
	// delivering a signal.
	err = proc.Signal(syscall.Signal(0))
	return err == nil || err == syscall.EPERM
}

// Handler exposes a thin REST facade over the resolution tools for
// callers that do not speak MCP.
type Handler struct {
	logger   *slog.Logger
	registry *tools.Registry
}

// NewHandler creates a new REST handler backed by the given tool registry.
func NewHandler(logger *slog.Logger, registry *tools.Registry) *Handler {
	return &Handler{
		logger:   logger,
		registry: registry,
	}
}

// ServeHTTP implements the http.Handler interface
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := r.URL.Path
	method := r.Method

	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = generateRequestID()
	}

	h.logger.Info("request started",
		"request_id", reqID,
		"method", method,
		"path", path,
		"remote_addr", r.RemoteAddr,
		"user_agent", r.UserAgent())

	var status int
	var err error

	switch {
	case path == "/health":
		status, err = h.handleHealth(w, r)
	case path == "/resolve":
		status, err = h.handleResolve(w, r)
	case path == "/expand":
		status, err = h.handleExpand(w, r)
	case path == "/locality":
		status, err = h.handleLocality(w, r)
	default:
		status = http.StatusNotFound
		http.NotFound(w, r)
	}

	duration := time.Since(start)
	if err != nil {
		h.logger.Error("request failed",
			"request_id", reqID,
			"method", method,
			"path", path,
			"status", status,
			"duration", duration,
			"error", err)
	} else {
		h.logger.Info("request completed",
			"request_id", reqID,
			"method", method,
			"path", path,
			"status", status,
			"duration", duration)
	}
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) (int, error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		h.logger.Error("failed to write health response", "error", err)
		return http.StatusOK, err // Status already written, but return error for logging
	}

	return http.StatusOK, nil
}

// handleResolve resolves a free-form geo reference from the query string.
func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) (int, error) {
	req := toolRequest("resolve_location", map[string]any{
		"reference": r.URL.Query().Get("reference"),
	})

	result, err := h.registry.HandleResolveLocation(r.Context(), req)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	return h.writeToolResult(w, result, "resolve")
}

// handleExpand expands a map short link from the query string.
func (h *Handler) handleExpand(w http.ResponseWriter, r *http.Request) (int, error) {
	req := toolRequest("expand_short_link", map[string]any{
		"url": r.URL.Query().Get("url"),
	})

	result, err := h.registry.HandleExpandShortLink(r.Context(), req)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	return h.writeToolResult(w, result, "expand")
}

// handleLocality looks up a locality by name or by nearest coordinates.
func (h *Handler) handleLocality(w http.ResponseWriter, r *http.Request) (int, error) {
	q := r.URL.Query()
	args := map[string]any{}
	if name := q.Get("name"); name != "" {
		args["name"] = name
	}
	if v, err := strconv.ParseFloat(q.Get("latitude"), 64); err == nil {
		args["latitude"] = v
	}
	if v, err := strconv.ParseFloat(q.Get("longitude"), 64); err == nil {
		args["longitude"] = v
	}
	req := toolRequest("lookup_locality", args)

	result, err := h.registry.HandleLookupLocality(r.Context(), req)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	return h.writeToolResult(w, result, "locality")
}

// writeToolResult writes the text content of a tool result as the HTTP body.
func (h *Handler) writeToolResult(w http.ResponseWriter, result *mcp.CallToolResult, name string) (int, error) {
	var content string
	for _, c := range result.Content {
		if t, ok := c.(mcp.TextContent); ok {
			content = t.Text
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	status := http.StatusOK
	if result.IsError {
		status = http.StatusBadRequest
	}
	w.WriteHeader(status)

	if _, err := w.Write([]byte(content)); err != nil {
		h.logger.Error("failed to write response", "handler", name, "error", err)
		return status, err
	}

	return status, nil
}

// toolRequest builds a CallToolRequest for in-process tool invocation.
func toolRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	return time.Now().Format("20060102150405.000000000")
}
