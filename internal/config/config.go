package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

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

	RedisAddr     string
	RedisPassword string

	// AcquireTimeout bounds one whole acquisition chain
	// (submit + delay + fetch + pagination).
	AcquireTimeout time.Duration

	Upstreams map[string]Upstream
}

// Upstream configures one external source integration.
type Upstream struct {
	BaseURL  string
	TokenURL string
	APIKey   string
}

// Known upstream service names. Each maps to a source adapter package.
const (
	ServiceCompanyRegistry = "company_registry"
	ServiceCourtRecords    = "court_records"
	ServiceInsolvency      = "insolvency"
	ServiceSecuredInterest = "secured_interest"
	ServiceLandTitle       = "land_title"
	ServicePropertyData    = "property_data"
	ServiceTrademarks      = "trademarks"
	ServiceBusinessNames   = "business_names"
	ServiceUnclaimedMoney  = "unclaimed_money"
)

var serviceNames = []string{
	ServiceCompanyRegistry,
	ServiceCourtRecords,
	ServiceInsolvency,
	ServiceSecuredInterest,
	ServiceLandTitle,
	ServicePropertyData,
	ServiceTrademarks,
	ServiceBusinessNames,
	ServiceUnclaimedMoney,
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "vetted"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "vetted"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		RedisAddr:         getenv("REDIS_ADDR", ""),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		AcquireTimeout:    time.Duration(getenvInt("ACQUIRE_TIMEOUT_SECONDS", 180)) * time.Second,
		Upstreams:         loadUpstreams(),
	}

	return cfg
}

func loadUpstreams() map[string]Upstream {
	upstreams := make(map[string]Upstream, len(serviceNames))
	for _, name := range serviceNames {
		prefix := "UPSTREAM_" + strings.ToUpper(name) + "_"
		upstreams[name] = Upstream{
			BaseURL:  getenv(prefix+"URL", ""),
			TokenURL: getenv(prefix+"TOKEN_URL", ""),
			APIKey:   strings.TrimSpace(getenv(prefix+"API_KEY", "")),
		}
	}
	return upstreams
}

// UpstreamFor returns the configuration for a known service name.
func (c Config) UpstreamFor(service string) Upstream {
	return c.Upstreams[service]
}

var Module = fx.Module("config",
	fx.Provide(Load),
)

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
