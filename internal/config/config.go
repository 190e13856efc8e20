package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides the application configuration.
var Module = fx.Provide(Load)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	DefaultOrgID int64

	// ReportingTimezone is the civil time zone QBR periods are evaluated in.
	ReportingTimezone string

	OTLPEndpoint string

	ConnectWise ConnectWiseConfig
	Inventory   InventoryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
}

// ConnectWiseConfig carries the credential bundle for the ConnectWise Manage API.
type ConnectWiseConfig struct {
	ServerURL    string
	CompanyID    string
	ClientID     string
	PublicKey    string
	PrivateKey   string
	ServiceBoard string
	MaxAttempts  int
}

// InventoryConfig controls the device snapshot aggregation.
type InventoryConfig struct {
	Vendor       string
	ExcludedOrgs []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "qbr-collector"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		DefaultOrgID:      getenvInt64("DEFAULT_ORG", 1),
		ReportingTimezone: getenv("QBR_TIMEZONE", "America/New_York"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		ConnectWise: ConnectWiseConfig{
			ServerURL:    strings.TrimSpace(getenv("CW_SERVER_URL", "")),
			CompanyID:    strings.TrimSpace(getenv("CW_COMPANY_ID", "")),
			ClientID:     strings.TrimSpace(getenv("CW_CLIENT_ID", "")),
			PublicKey:    strings.TrimSpace(getenv("CW_PUBLIC_KEY", "")),
			PrivateKey:   strings.TrimSpace(getenv("CW_PRIVATE_KEY", "")),
			ServiceBoard: getenv("CW_SERVICE_BOARD", "Help Desk"),
			MaxAttempts:  getenvInt("CW_MAX_ATTEMPTS", 5),
		},
		Inventory: InventoryConfig{
			Vendor:       getenv("INVENTORY_VENDOR", "ncentral"),
			ExcludedOrgs: parseList(getenv("INVENTORY_EXCLUDED_ORGS", "")),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
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

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
