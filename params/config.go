package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Codec struct {
	Scale int32 // decimal places of the fixed-point encoding
}

type Keystore struct {
	Path     string
	InMemory bool // keys are lost on exit; for devnet and tests
}

type API struct {
	Addr           string
	AllowedOrigins []string
}

type P2P struct {
	Enabled    bool
	ListenAddr string
	Bootstrap  []string // full /p2p multiaddrs
}

type Log struct {
	Level string
	File  string // empty logs to stdout only
}

// Feeder drives synthetic trades through the signer for load testing.
type Feeder struct {
	Enabled   bool
	Accounts  int
	BatchSize int
	Interval  time.Duration
}

type Config struct {
	Codec    Codec
	Keystore Keystore
	API      API
	P2P      P2P
	Log      Log
	Feeder   Feeder
}

func Default() Config {
	return Config{
		Codec:    Codec{Scale: 9},
		Keystore: Keystore{Path: "data/keystore"},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		P2P: P2P{
			ListenAddr: "/ip4/0.0.0.0/tcp/4001",
		},
		Log: Log{Level: "info", File: "data/signerd.log"},
		Feeder: Feeder{
			Accounts:  10,
			BatchSize: 10,
			Interval:  100 * time.Millisecond,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if scale := os.Getenv("FIXED_POINT_SCALE"); scale != "" {
		if n, err := strconv.ParseInt(scale, 10, 32); err == nil && n >= 0 {
			cfg.Codec.Scale = int32(n)
		}
	}

	cfg.Keystore.Path = getEnv("KEYSTORE_PATH", cfg.Keystore.Path)
	cfg.Keystore.InMemory = getBool("KEYSTORE_IN_MEMORY", cfg.Keystore.InMemory)

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if origins := splitList(os.Getenv("CORS_ORIGINS")); len(origins) > 0 {
		cfg.API.AllowedOrigins = origins
	}

	cfg.P2P.Enabled = getBool("P2P_ENABLED", cfg.P2P.Enabled)
	cfg.P2P.ListenAddr = getEnv("P2P_LISTEN", cfg.P2P.ListenAddr)
	if peers := splitList(os.Getenv("P2P_BOOTSTRAP")); len(peers) > 0 {
		cfg.P2P.Bootstrap = peers
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	// Enable with: ENABLE_TXGEN=true TXGEN_ACCOUNTS=10 TXGEN_BATCH=10 TXGEN_INTERVAL_MS=100
	cfg.Feeder.Enabled = getBool("ENABLE_TXGEN", cfg.Feeder.Enabled)
	if n, err := strconv.Atoi(os.Getenv("TXGEN_ACCOUNTS")); err == nil && n > 1 {
		cfg.Feeder.Accounts = n
	}
	if n, err := strconv.Atoi(os.Getenv("TXGEN_BATCH")); err == nil && n > 0 {
		cfg.Feeder.BatchSize = n
	}
	if ms, err := strconv.Atoi(os.Getenv("TXGEN_INTERVAL_MS")); err == nil && ms > 0 {
		cfg.Feeder.Interval = time.Duration(ms) * time.Millisecond
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return b
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
