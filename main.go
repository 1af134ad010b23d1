// Command uno-server starts the UNO session server.
//
// It supports two modes:
//  1. "server" (default) – runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "stdio-mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//
// Configuration comes from UNO_* environment variables (optionally loaded
// from .env) and flags. The session store is memory, file or sqlite.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/uno-server/api"
	"github.com/wricardo/uno-server/auth"
	"github.com/wricardo/uno-server/game/config"
	"github.com/wricardo/uno-server/game/service"
	"github.com/wricardo/uno-server/game/session"
	"github.com/wricardo/uno-server/game/storage/sqlite"
	"github.com/wricardo/uno-server/transport/mcp"
	"github.com/wricardo/uno-server/transport/websocket"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "UNO Session Server"
)

// services bundles what every mode needs
type services struct {
	game  service.GameService
	store service.SessionStore
	auth  auth.Authenticator
	close func() error
}

// main loads .env and configuration, then hands off to run.
func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	} else {
		log.Println("Loaded environment variables from .env file")
	}

	cfg, err := loadConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.ShowVersion {
		fmt.Printf("%s v%s\n", AppName, Version)
		os.Exit(0)
	}

	if cfg.Debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	} else {
		log.SetFlags(log.LstdFlags)
	}

	if err := run(cfg); err != nil {
		log.Printf("Server error: %v", err)
		os.Exit(1)
	}
	log.Println("Server stopped")
}

// run initializes services and serves the selected mode until a signal
// arrives.
func run(cfg ServerConfig) error {
	log.Printf("Starting %s v%s (mode: %s, store: %s)", AppName, Version, cfg.Mode, cfg.Store)

	svcs, err := initializeServices(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	return runServices(cfg, svcs)
}

// runServices serves cfg.Mode with svcs and closes them when done.
func runServices(cfg ServerConfig, svcs *services) error {
	defer func() {
		if err := svcs.close(); err != nil {
			log.Printf("Failed to close store: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Mode {
	case "stdio-mcp", "mcp-stdio", "mcp":
		return runStdioMCPWithInternalServer(ctx, cfg, svcs)

	case "server", "http":
		return runHTTPServer(ctx, cfg, svcs)

	default:
		return fmt.Errorf("unknown mode: %s. Use 'server' (default) or 'stdio-mcp'", cfg.Mode)
	}
}

// initializeServices opens the configured store and wires the preset
// manager, authenticator and game service.
func initializeServices(cfg ServerConfig) (*services, error) {
	presets, err := config.NewManager(cfg.PresetDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create preset manager: %w", err)
	}

	authenticator, err := newAuthenticator(cfg)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	return &services{
		game:  service.NewGameService(store, presets),
		store: store,
		auth:  authenticator,
		close: closeStore,
	}, nil
}

// openStore returns the session store selected by cfg.Store and a func that
// releases it.
func openStore(cfg ServerConfig) (service.SessionStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Store {
	case StoreFile:
		persistence, err := session.NewFilePersistence(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create session persistence: %w", err)
		}
		manager := session.NewManagerWithPersistence(persistence)
		if err := manager.LoadPersistedSessions(); err != nil {
			log.Printf("Warning: Failed to load persisted sessions: %v", err)
		}
		log.Printf("Loaded %d sessions from %s", manager.Count(), cfg.DataDir)
		return manager, noop, nil

	case StoreSQLite:
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		log.Printf("Using sqlite store at %s", cfg.DBPath)
		return store, store.Close, nil

	default:
		return session.NewManager(), noop, nil
	}
}

func newAuthenticator(cfg ServerConfig) (auth.Authenticator, error) {
	if cfg.JWTSecret == "" {
		log.Printf("Warning: UNO_JWT_SECRET not set, trusting the %s header", auth.PlayerHeader)
		return auth.HeaderAuthenticator{}, nil
	}
	authenticator, err := auth.NewTokenAuthenticator(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}
	return authenticator, nil
}

// newMCPClient builds the MCP proxy for baseURL, presenting the configured
// token when the API requires JWTs
func newMCPClient(cfg ServerConfig, baseURL string) *mcp.Client {
	if cfg.JWTSecret != "" && cfg.MCPToken != "" {
		return mcp.NewClient(baseURL, mcp.WithBearerToken(cfg.MCPToken))
	}
	if cfg.JWTSecret != "" {
		log.Printf("Warning: UNO_JWT_SECRET is set without UNO_MCP_TOKEN; MCP commands will be rejected")
	}
	return mcp.NewClient(baseURL)
}

// newMainRouter mounts the API at / and the MCP proxy at /mcp
func newMainRouter(apiServer http.Handler, mcpClient *mcp.Client) *http.ServeMux {
	mainRouter := http.NewServeMux()

	// Mount API server at root
	mainRouter.Handle("/", apiServer)

	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})

	return mainRouter
}

// runHTTPServer serves the REST API, WebSocket hub and /mcp endpoint until
// ctx is done. The purge loop and the optional ngrok tunnel run alongside.
func runHTTPServer(ctx context.Context, cfg ServerConfig, svcs *services) error {
	hub := websocket.NewHub(svcs.game)
	apiServer := api.NewServer(svcs.game, hub, svcs.auth)

	addr := cfg.Addr()
	mcpClient := newMCPClient(cfg, fmt.Sprintf("http://%s", addr))
	mainRouter := newMainRouter(apiServer, mcpClient)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Printf("HTTP server listening on %s", addr)
		log.Printf("REST API: http://%s/api", addr)
		log.Printf("WebSocket: ws://%s/ws", addr)
		log.Printf("MCP endpoint: http://%s/mcp", addr)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		return nil
	})

	g.Go(func() error {
		return runPurgeLoop(gctx, svcs.store, cfg.PurgeInterval, cfg.PurgeRetention, time.Now)
	})

	if cfg.NgrokEnabled {
		g.Go(func() error {
			runNgrokTunnel(gctx, cfg, mainRouter)
			return nil
		})
	}

	return g.Wait()
}

// runNgrokTunnel exposes handler through ngrok until ctx is done. Failures
// are logged; the local server keeps running.
func runNgrokTunnel(ctx context.Context, cfg ServerConfig, handler http.Handler) {
	if cfg.NgrokAuthToken == "" {
		log.Println("WARNING: Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	log.Println("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if cfg.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.NgrokDomain))
		log.Printf("Using custom ngrok domain: %s", cfg.NgrokDomain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx,
		tunnel,
		ngrok.WithAuthtoken(cfg.NgrokAuthToken),
	)
	if err != nil {
		log.Printf("Failed to start ngrok tunnel: %v", err)
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Printf("Failed to close ngrok tunnel: %v", err)
		}
	}()

	ngrokURL := tun.URL()
	log.Printf("Ngrok tunnel established: %s", ngrokURL)
	log.Printf("  REST API (ngrok): %s/api", ngrokURL)
	log.Printf("  WebSocket (ngrok): %s/ws", ngrokURL)
	log.Printf("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		log.Printf("Ngrok server error: %v", err)
	}
	log.Println("Ngrok tunnel closed")
}

// runPurgeLoop deletes finished sessions older than retention every
// interval until ctx is done
func runPurgeLoop(ctx context.Context, store service.SessionStore, interval, retention time.Duration, now func() time.Time) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			purgeOnce(ctx, store, retention, now)
		}
	}
}

func purgeOnce(ctx context.Context, store service.SessionStore, retention time.Duration, now func() time.Time) int {
	removed, err := store.PurgeFinished(ctx, now().Add(-retention))
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("Failed to purge finished sessions: %v", err)
		}
		return 0
	}
	if removed > 0 {
		log.Printf("Purged %d finished sessions", removed)
	}
	return removed
}

// runStdioMCPWithInternalServer runs an MCP stdio server.
// It tries to reuse an external API at the configured address; if unavailable,
// it starts an internal HTTP API bound to a random loopback port and targets that.
func runStdioMCPWithInternalServer(ctx context.Context, cfg ServerConfig, svcs *services) error {
	externalURL := fmt.Sprintf("http://%s", cfg.Addr())
	log.Printf("Checking for external API server at %s...", externalURL)

	baseURL := externalURL
	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(externalURL + "/healthz")
	if err == nil {
		resp.Body.Close()
	}
	if err == nil && resp.StatusCode < 500 {
		log.Printf("External API server found at %s, using it for MCP", externalURL)
	} else {
		log.Printf("No external API server found, starting internal HTTP server")

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		internalAddr := listener.Addr().String()
		log.Printf("Starting internal HTTP server on %s for MCP stdio", internalAddr)

		hub := websocket.NewHub(svcs.game)
		go hub.Run(ctx)

		httpServer := &http.Server{
			Handler: api.NewServer(svcs.game, hub, svcs.auth),
		}
		go func() {
			if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				log.Printf("Internal HTTP server error: %v", err)
			}
		}()
		defer httpServer.Close()

		go runPurgeLoop(ctx, svcs.store, cfg.PurgeInterval, cfg.PurgeRetention, time.Now)

		baseURL = fmt.Sprintf("http://%s", internalAddr)
	}

	mcpClient := newMCPClient(cfg, baseURL)
	log.Printf("MCP stdio server ready (API at %s)", baseURL)

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
