package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends selectable with UNO_STORE or -store.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// ServerConfig is the process configuration. Environment variables are read
// first, then command-line flags override them.
type ServerConfig struct {
	Host      string `env:"UNO_HOST" envDefault:"localhost"`
	Port      int    `env:"UNO_PORT" envDefault:"8080"`
	Store     string `env:"UNO_STORE" envDefault:"memory"`
	DataDir   string `env:"UNO_DATA_DIR" envDefault:"sessions"`
	DBPath    string `env:"UNO_DB_PATH" envDefault:"uno.db"`
	PresetDir string `env:"UNO_PRESET_DIR" envDefault:"presets"`

	// JWTSecret switches authentication from the X-Player-ID header to
	// HS256 bearer tokens.
	JWTSecret string `env:"UNO_JWT_SECRET"`
	// MCPToken is the bearer token the /mcp proxy presents when JWTSecret is set.
	MCPToken string `env:"UNO_MCP_TOKEN"`

	PurgeInterval  time.Duration `env:"UNO_PURGE_INTERVAL" envDefault:"1h"`
	PurgeRetention time.Duration `env:"UNO_PURGE_RETENTION" envDefault:"24h"`
	Debug          bool          `env:"UNO_DEBUG"`

	NgrokEnabled   bool   `env:"NGROK_ENABLED"`
	NgrokAuthToken string `env:"NGROK_AUTHTOKEN"`
	NgrokDomain    string `env:"NGROK_DOMAIN"`

	// Set by flags only
	Mode        string `env:"-"`
	ShowVersion bool   `env:"-"`
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// loadConfig parses the environment, then args. Usage output goes to out.
func loadConfig(args []string, out io.Writer) (ServerConfig, error) {
	cfg, err := env.ParseAs[ServerConfig]()
	if err != nil {
		return ServerConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.NgrokAuthToken == "" {
		// Also support underscore version
		cfg.NgrokAuthToken = os.Getenv("NGROK_AUTH_TOKEN")
	}

	fs := newFlagSet(&cfg, out)
	if err := fs.Parse(args); err != nil {
		return ServerConfig{}, err
	}

	cfg.Mode = "server"
	if fs.NArg() > 0 {
		cfg.Mode = fs.Arg(0)
	}

	if err := cfg.validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func newFlagSet(cfg *ServerConfig, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(AppName, flag.ContinueOnError)
	fs.SetOutput(out)

	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "HTTP server host")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "Session store: memory, file or sqlite")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for the file store")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Database path for the sqlite store")
	fs.StringVar(&cfg.PresetDir, "preset-dir", cfg.PresetDir, "Directory containing house-rule presets")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.NgrokEnabled, "ngrok", cfg.NgrokEnabled, "Enable ngrok tunnel")
	fs.StringVar(&cfg.NgrokAuthToken, "ngrok-auth", cfg.NgrokAuthToken, "Ngrok auth token (or use NGROK_AUTHTOKEN env var)")
	fs.StringVar(&cfg.NgrokDomain, "ngrok-domain", cfg.NgrokDomain, "Custom ngrok domain (optional)")

	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: %s [OPTIONS] [MODE]\n\n", os.Args[0])
		fmt.Fprintf(out, "%s v%s\n\n", AppName, Version)
		fmt.Fprintf(out, "Available modes:\n")
		fmt.Fprintf(out, "  server, http     Run HTTP server with API, WebSocket, and MCP endpoint (default)\n")
		fmt.Fprintf(out, "  stdio-mcp        Run MCP stdio server with internal HTTP server\n")
		fmt.Fprintf(out, "  mcp-stdio        Alias for stdio-mcp\n")
		fmt.Fprintf(out, "  mcp              Alias for stdio-mcp\n")
		fmt.Fprintf(out, "\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(out, "\nEnvironment:\n")
		fmt.Fprintf(out, "  UNO_HOST, UNO_PORT, UNO_STORE, UNO_DATA_DIR, UNO_DB_PATH, UNO_PRESET_DIR,\n")
		fmt.Fprintf(out, "  UNO_JWT_SECRET, UNO_MCP_TOKEN, UNO_PURGE_INTERVAL, UNO_PURGE_RETENTION, UNO_DEBUG,\n")
		fmt.Fprintf(out, "  NGROK_ENABLED, NGROK_AUTHTOKEN, NGROK_DOMAIN\n")
		fmt.Fprintf(out, "\nExamples:\n")
		fmt.Fprintf(out, "  %s                        # Run HTTP server on default port 8080\n", os.Args[0])
		fmt.Fprintf(out, "  %s -store sqlite -db uno.db\n", os.Args[0])
		fmt.Fprintf(out, "  %s stdio-mcp              # Run MCP stdio server\n", os.Args[0])
	}
	return fs
}

func (c ServerConfig) validate() error {
	switch c.Store {
	case StoreMemory, StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q (use memory, file or sqlite)", c.Store)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PurgeInterval <= 0 {
		return fmt.Errorf("purge interval must be positive, got %s", c.PurgeInterval)
	}
	if c.PurgeRetention < 0 {
		return fmt.Errorf("purge retention must not be negative, got %s", c.PurgeRetention)
	}
	return nil
}
