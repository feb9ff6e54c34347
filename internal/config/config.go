package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	DataDir         string
	SequenceLogPath string
	LedgerPath      string
	OutputDir       string
	DealerProfile   string

	SequencePolicy string
	RemoteStore    string
	RemoteTimeout  time.Duration
	RemoteCooldown time.Duration

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBMigrate         bool

	SupabaseURL string
	SupabaseKey string

	RedisLockEnabled bool
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	LockTTL          time.Duration

	RenderServiceURL     string
	RenderServiceTimeout time.Duration
}

const (
	PolicyCompat       = "compat"
	PolicyStrictRemote = "strict_remote"
)

const (
	RemoteNone     = "none"
	RemoteDatabase = "database"
	RemoteSupabase = "supabase"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	dataDir := getenv("DATA_DIR", "data")

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "invoicedesk"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DataDir:         dataDir,
		SequenceLogPath: getenv("SEQUENCE_LOG_PATH", filepath.Join(dataDir, "invoice_log.csv")),
		LedgerPath:      getenv("LEDGER_PATH", filepath.Join(dataDir, "invoices.csv")),
		OutputDir:       getenv("OUTPUT_DIR", "output"),
		DealerProfile:   strings.TrimSpace(getenv("DEALER_PROFILE", "")),

		SequencePolicy: normalizePolicy(getenv("SEQUENCE_POLICY", PolicyCompat)),
		RemoteStore:    normalizeRemote(getenv("REMOTE_STORE", RemoteNone)),
		RemoteTimeout:  time.Duration(getenvInt64("REMOTE_TIMEOUT_MS", 3000)) * time.Millisecond,
		RemoteCooldown: time.Duration(getenvInt64("REMOTE_COOLDOWN_SECONDS", 30)) * time.Second,

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "invoicedesk"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", filepath.Join(dataDir, "invoicedesk.db")),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 2)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 10)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		DBMigrate:         getenvBool("DATABASE_MIGRATE", true),

		SupabaseURL: strings.TrimSpace(getenv("SUPABASE_URL", "")),
		SupabaseKey: strings.TrimSpace(getenv("SUPABASE_KEY", "")),

		RedisLockEnabled: getenvBool("REDIS_LOCK_ENABLED", false),
		RedisAddr:        getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getenv("REDIS_PASSWORD", ""),
		RedisDB:          int(getenvInt64("REDIS_DB", 0)),
		LockTTL:          time.Duration(getenvInt64("LOCK_TTL_SECONDS", 10)) * time.Second,

		RenderServiceURL:     strings.TrimRight(strings.TrimSpace(getenv("RENDER_SERVICE_URL", "")), "/"),
		RenderServiceTimeout: time.Duration(getenvInt64("RENDER_SERVICE_TIMEOUT_MS", 5000)) * time.Millisecond,
	}

	return cfg
}

// RemoteEnabled reports whether a remote sequence store is configured.
func (c Config) RemoteEnabled() bool {
	return c.RemoteStore != RemoteNone
}

func (c Config) StrictRemote() bool {
	return c.SequencePolicy == PolicyStrictRemote
}

func normalizePolicy(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case PolicyStrictRemote, "strict-remote", "strict":
		return PolicyStrictRemote
	default:
		return PolicyCompat
	}
}

func normalizeRemote(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case RemoteDatabase, "db", "gorm":
		return RemoteDatabase
	case RemoteSupabase:
		return RemoteSupabase
	default:
		return RemoteNone
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
