package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/serendibstay/georesolve/pkg/ai"
	"github.com/serendibstay/georesolve/pkg/geocode"
	"github.com/serendibstay/georesolve/pkg/monitoring"
	"github.com/serendibstay/georesolve/pkg/registration"
	"github.com/serendibstay/georesolve/pkg/server"
	"github.com/serendibstay/georesolve/pkg/shortlink"
	"github.com/serendibstay/georesolve/pkg/tracing"
	"github.com/serendibstay/georesolve/pkg/upstream"
	"github.com/serendibstay/georesolve/pkg/version"
)

var (
	showVersionFlag bool
	debug           bool
	generateConfig  string
	mergeOnly       bool
	userAgent       string

	// Upstream service flags
	nominatimURL    string
	countryCodes    string
	completionModel string

	// HTTP transport flags
	enableHTTP    bool
	httpOnly      bool
	httpAddr      string
	httpBaseURL   string
	httpAuthType  string
	httpAuthToken string

	// Monitoring flags
	enableMonitoring bool
	monitoringAddr   string

	// Registration flags
	enableRegistration bool
	registryURL        string
	serviceURL         string
	internalURL        string

	// Rate limits for each upstream service
	nominatimRPS    float64
	nominatimBurst  int
	linkInfoRPS     float64
	linkInfoBurst   int
	completionRPS   float64
	completionBurst int
)

func init() {
	flag.BoolVar(&showVersionFlag, "version", false, "Display version information")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.StringVar(&generateConfig, "generate-config", "", "Generate an MCP client config file at the specified path")
	flag.BoolVar(&mergeOnly, "merge-only", false, "Only merge new config, don't overwrite existing")
	flag.StringVar(&userAgent, "user-agent", upstream.DefaultUserAgent, "User-Agent string for upstream API requests")

	// Upstream services
	flag.StringVar(&nominatimURL, "nominatim-url", upstream.NominatimBaseURL, "Nominatim base URL")
	flag.StringVar(&countryCodes, "country-codes", geocode.DefaultCountryCodes, "Comma-separated ISO country codes to bias geocoding")
	flag.StringVar(&completionModel, "completion-model", ai.DefaultModel, "Model name for the AI completion fallback")

	// HTTP transport flags
	flag.BoolVar(&enableHTTP, "enable-http", false, "Enable HTTP+SSE transport (in addition to stdio)")
	flag.BoolVar(&httpOnly, "http-only", false, "Run HTTP transport only, skip stdio (requires --enable-http)")
	flag.StringVar(&httpAddr, "http-addr", ":7082", "HTTP server address")
	flag.StringVar(&httpBaseURL, "http-base-url", "", "Base URL for HTTP transport (auto-detected if empty)")
	flag.StringVar(&httpAuthType, "http-auth-type", "none", "HTTP authentication type: none, bearer, basic")
	flag.StringVar(&httpAuthToken, "http-auth-token", "", "HTTP authentication token")

	// Monitoring flags
	flag.BoolVar(&enableMonitoring, "enable-monitoring", true, "Enable Prometheus metrics and health endpoints")
	flag.StringVar(&monitoringAddr, "monitoring-addr", ":9090", "Monitoring server address")

	// Registration flags
	flag.BoolVar(&enableRegistration, "enable-registration", false, "Enable service registration with the platform registry")
	flag.StringVar(&registryURL, "registry-url", "", "Platform registry URL")
	flag.StringVar(&serviceURL, "service-url", "", "External URL where this service is accessible")
	flag.StringVar(&internalURL, "internal-url", "", "Internal URL for container environments")

	// Nominatim rate limits (public instance policy is 1 req/s)
	flag.Float64Var(&nominatimRPS, "nominatim-rps", 1.0, "Nominatim rate limit in requests per second")
	flag.IntVar(&nominatimBurst, "nominatim-burst", 1, "Nominatim rate limit burst size")

	// Link-info rate limits
	flag.Float64Var(&linkInfoRPS, "linkinfo-rps", 2.0, "Link-info service rate limit in requests per second")
	flag.IntVar(&linkInfoBurst, "linkinfo-burst", 2, "Link-info service rate limit burst size")

	// Completion rate limits
	flag.Float64Var(&completionRPS, "completion-rps", 0.5, "AI completion rate limit in requests per second")
	flag.IntVar(&completionBurst, "completion-burst", 1, "AI completion rate limit burst size")
}

func main() {
	flag.Parse()

	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry tracing
	ctx := context.Background()
	shutdownTracing, err := tracing.InitTracing(ctx, version.Version)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		// Continue without tracing - it's not critical
	} else {
		defer func() {
			if err := shutdownTracing(ctx); err != nil {
				logger.Error("error shutting down tracing", "error", err)
			}
		}()

		if endpoint := os.Getenv("OTLP_ENDPOINT"); endpoint != "" {
			logger.Info("OpenTelemetry tracing enabled", "endpoint", endpoint)
		}
	}

	if showVersionFlag {
		showVersion()
		return
	}

	if generateConfig != "" {
		if err := generateClientConfig(generateConfig, mergeOnly); err != nil {
			logger.Error("failed to generate config", "error", err)
			os.Exit(1)
		}
		logger.Info("successfully generated MCP client config", "path", generateConfig)
		return
	}

	if userAgent != upstream.DefaultUserAgent {
		upstream.SetUserAgent(userAgent)
	}

	if nominatimRPS != 1.0 || nominatimBurst != 1 {
		upstream.UpdateNominatimRateLimits(nominatimRPS, nominatimBurst)
	}
	if linkInfoRPS != 2.0 || linkInfoBurst != 2 {
		upstream.UpdateLinkInfoRateLimits(linkInfoRPS, linkInfoBurst)
	}
	if completionRPS != 0.5 || completionBurst != 1 {
		upstream.UpdateCompletionRateLimits(completionRPS, completionBurst)
	}

	apiKey := os.Getenv("GEORESOLVE_AI_API_KEY")

	logger.Info("starting geo-reference resolution MCP server",
		"version", version.Version,
		"log_level", logLevel.String(),
		"user_agent", userAgent,
		"nominatim_url", nominatimURL,
		"country_codes", countryCodes,
		"ai_enabled", apiKey != "",
		"nominatim_rps", nominatimRPS,
		"linkinfo_rps", linkInfoRPS,
		"completion_rps", completionRPS,
		"http_enabled", enableHTTP,
		"monitoring_enabled", enableMonitoring,
		"monitoring_addr", monitoringAddr)

	// Initialize health checker
	var healthChecker *monitoring.HealthChecker
	if enableMonitoring {
		healthChecker = monitoring.NewHealthChecker(monitoring.ServiceName, version.Version)
		defer healthChecker.Shutdown()

		upstream.SetMonitoringHooks(&upstream.MonitoringHooks{
			OnRequest: func(service, operation string) {
				monitoring.RecordExternalServiceRequestStart(service, operation)
			},
			OnResponse: func(service, operation string, duration time.Duration, success bool) {
				monitoring.RecordExternalServiceRequest(service, operation, duration, success)
			},
			OnRateLimit: func(service string, waitTime time.Duration) {
				monitoring.RecordRateLimitWait(service, waitTime)
				monitoring.RecordRateLimitExceeded(service)
			},
			OnError: func(service, errorType string) {
				monitoring.RecordError(service, errorType)
			},
		})
	}

	// Assemble resolver dependencies
	aiClient := ai.NewClient(apiKey,
		ai.WithLogger(logger),
		ai.WithModel(completionModel),
	)

	expander := shortlink.NewCascade(
		shortlink.DefaultStrategies(aiClient),
		shortlink.WithLogger(logger),
	)

	geocoder := geocode.NewClient(
		geocode.WithBaseURL(nominatimURL),
		geocode.WithCountryCodes(countryCodes),
		geocode.WithLogger(logger),
	)

	cfg := server.Config{
		Logger:   logger,
		Expander: expander,
		Geocoder: geocoder,
	}
	if aiClient.Enabled() {
		cfg.AI = aiClient
	}

	s, err := server.NewServer(cfg)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Start monitoring external services if health checker is enabled
	if healthChecker != nil {
		startExternalServiceMonitoring(healthChecker, logger)
	}

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start monitoring server if enabled (Prometheus metrics only)
	var monitoringServer *http.Server
	if enableMonitoring {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		monitoringServer = &http.Server{
			Addr:              monitoringAddr,
			Handler:           mux,
			ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
		}

		go func() {
			logger.Info("starting Prometheus metrics server", "addr", monitoringAddr)
			if err := monitoringServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("monitoring server error", "error", err)
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := monitoringServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown monitoring server", "error", err)
			}
		}()
	}

	// Initialize registration client if enabled
	var regClient *registration.Client
	if enableRegistration {
		toolNames := s.ToolNames()

		svcURL := serviceURL
		healthURL := serviceURL + "/health"
		if serviceURL == "" && enableHTTP {
			svcURL = fmt.Sprintf("http://localhost%s", httpAddr)
			healthURL = fmt.Sprintf("http://localhost%s/health", httpAddr)
		}

		regCfg := registration.Config{
			Enabled:           enableRegistration,
			RegistryURL:       registryURL,
			ServiceName:       "georesolve",
			ServiceType:       "mcp",
			ServiceURL:        svcURL,
			HealthURL:         healthURL,
			InternalURL:       internalURL,
			InternalHealthURL: internalURL + "/health",
			Version:           version.Version,
			Capabilities:      []string{"geo-resolution", "plus-codes", "short-links", "localities"},
			Tools:             toolNames,
			Metadata: map[string]interface{}{
				"transport": map[string]bool{"stdio": !httpOnly, "http": enableHTTP},
			},
		}
		regClient = registration.NewClient(regCfg, logger)
		regClient.Start(ctx)
		defer regClient.Stop()

		logger.Info("registration client initialized",
			"registry_url", registryURL,
			"service_url", svcURL,
			"tool_count", len(toolNames))
	}

	// Start HTTP transport in background if enabled (non-blocking)
	var httpTransport *server.HTTPTransport
	if enableHTTP {
		config := server.DefaultHTTPTransportConfig()
		config.Addr = httpAddr
		config.BaseURL = httpBaseURL
		config.AuthType = httpAuthType
		config.AuthToken = httpAuthToken

		httpTransport = server.NewHTTPTransport(s.GetMCPServer(), config, logger)

		if healthChecker != nil {
			httpTransport.SetHealthChecker(healthChecker)
		}

		go func() {
			logger.Info("starting HTTP+SSE transport", "addr", httpAddr)
			if err := httpTransport.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP transport error", "error", err)
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := httpTransport.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown HTTP transport", "error", err)
			}
		}()
	}

	// Transport startup logic:
	// - If HTTP is NOT enabled: run stdio on the main thread (blocking)
	// - If HTTP IS enabled and httpOnly is false: run stdio in a goroutine, then wait
	// - If HTTP IS enabled and httpOnly is true: skip stdio, just wait for shutdown
	if !enableHTTP {
		logger.Info("transport_enabled", "type", "stdio", "mode", "blocking")
		s.MonitorParent(5 * time.Second)
		if err := s.RunWithContext(ctx); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	} else if httpOnly {
		logger.Info("server_ready", "transports", []string{"http"}, "http_only", true)
		<-ctx.Done()
		logger.Info("shutdown signal received")
	} else {
		go func() {
			logger.Info("transport_enabled", "type", "stdio", "mode", "background")
			if err := s.RunWithContext(ctx); err != nil {
				logger.Error("stdio transport error", "error", err)
				// Don't exit - HTTP transport may still be useful
			}
		}()

		logger.Info("server_ready", "transports", []string{"stdio", "http"})
		<-ctx.Done()
		logger.Info("shutdown signal received")
	}

	logger.Info("server stopped")
}

// generateClientConfig writes an MCP client configuration referencing this
// binary, in the mcpServers format used by desktop MCP clients.
func generateClientConfig(path string, mergeOnly bool) error {
	if path == "" {
		return fmt.Errorf("config path cannot be empty")
	}
	if !strings.HasSuffix(path, ".json") {
		return fmt.Errorf("config file must have .json extension")
	}

	cleanPath := filepath.Clean(path)
	if err := validateSafePath(cleanPath); err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}

	configDir := filepath.Dir(cleanPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	binPath, err := os.Executable()
	if err != nil {
		binPath = "georesolve"
	}

	config := map[string]interface{}{
		"mcpServers": map[string]interface{}{
			"georesolve": map[string]interface{}{
				"command": binPath,
				"args":    []string{},
			},
		},
	}

	// Merge with existing config if requested
	if mergeOnly {
		if data, err := os.ReadFile(cleanPath); err == nil {
			var existing map[string]interface{}
			if err := json.Unmarshal(data, &existing); err != nil {
				return fmt.Errorf("failed to parse existing config: %w", err)
			}
			if servers, ok := existing["mcpServers"].(map[string]interface{}); ok {
				servers["georesolve"] = config["mcpServers"].(map[string]interface{})["georesolve"]
				existing["mcpServers"] = servers
			} else {
				existing["mcpServers"] = config["mcpServers"]
			}
			config = existing
		}
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cleanPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// validateSafePath validates that a path is safe to write to within the current working directory
func validateSafePath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current working directory: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	relPath, err := filepath.Rel(cwd, absPath)
	if err != nil {
		return fmt.Errorf("failed to determine relative path: %w", err)
	}

	// Reject paths that escape the working directory
	if strings.HasPrefix(relPath, "..") || strings.Contains(relPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected: %s", relPath)
	}

	if filepath.IsAbs(path) {
		return fmt.Errorf("absolute paths are not allowed for security reasons")
	}

	return nil
}

// showVersion displays version information and exits
func showVersion() {
	info := version.Info()
	fmt.Printf("georesolve %s (commit %s, built %s, %s)\n",
		info["version"], info["commit"], info["build_date"], info["go_version"])
}

// startExternalServiceMonitoring starts health monitoring of upstream services
func startExternalServiceMonitoring(healthChecker *monitoring.HealthChecker, logger *slog.Logger) {
	nominatimMonitor := monitoring.NewConnectionMonitor(
		"nominatim",
		healthChecker,
		upstream.CheckNominatimHealth,
		30*time.Second,
	)
	nominatimMonitor.Start()

	linkInfoMonitor := monitoring.NewConnectionMonitor(
		"linkinfo",
		healthChecker,
		upstream.CheckLinkInfoHealth,
		30*time.Second,
	)
	linkInfoMonitor.Start()

	logger.Info("started external service monitoring",
		"services", []string{"nominatim", "linkinfo"},
		"check_interval", "30s")
}
