package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Valkey    ValkeyConfig
	Queue     QueueConfig
	Auth      AuthConfig
	Gateway   GatewayConfig
	Discovery DiscoveryConfig
	Scheduler SchedulerConfig
	Worker    WorkerConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ValkeyConfig struct {
	Addr           string
	Password       string
	DB             int
	KeyPrefix      string
	ConnectTimeout time.Duration
}

type QueueConfig struct {
	Store        string        // QUEUE_STORE: valkey | memory
	DispatchMode string        // DISPATCH_MODE: inline | stream
	StatusTTL    time.Duration // QUEUE_STATUS_TTL_SECS, 0 disables expiry
}

type AuthConfig struct {
	Enabled      bool
	SecureToken  string
	IssuerURL    string
	PublicIssuer string
	Audience     string
	ReindexScope string // AUTH_REINDEX_SCOPE, empty disables the check
}

type GatewayConfig struct {
	Address        string // GATEWAY_ADDRESS skips discovery when set
	ServiceType    string
	Timeout        time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

type DiscoveryConfig struct {
	Addresses   []string
	SecureToken string
	CacheTTL    time.Duration
}

type SchedulerConfig struct {
	Targets  []string // project#branch
	Interval time.Duration
}

type WorkerConfig struct {
	ConsumerID  string
	Concurrency int // WORKER_CONCURRENCY, consumer loops per process
}

type LogConfig struct {
	Level string
	File  string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load() // ignore error if .env missing

	hostname, _ := os.Hostname()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     time.Duration(getEnvInt("SERVER_READ_TIMEOUT_SECS", 30)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT_SECS", 60)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("SERVER_SHUTDOWN_TIMEOUT_SECS", 30)) * time.Second,
		},
		Valkey: ValkeyConfig{
			Addr:           getEnv("VALKEY_ADDR", "localhost:6379"),
			Password:       getEnv("VALKEY_PASSWORD", ""),
			DB:             getEnvInt("VALKEY_DB", 0),
			KeyPrefix:      getEnv("VALKEY_KEY_PREFIX", "nightcrawler:"),
			ConnectTimeout: time.Duration(getEnvInt("VALKEY_CONNECT_TIMEOUT_SECS", 30)) * time.Second,
		},
		Queue: QueueConfig{
			Store:        getEnv("QUEUE_STORE", "valkey"),
			DispatchMode: getEnv("DISPATCH_MODE", "inline"),
			StatusTTL:    time.Duration(getEnvInt("QUEUE_STATUS_TTL_SECS", 1800)) * time.Second,
		},
		Auth: AuthConfig{
			Enabled:      getEnvBool("AUTH_ENABLED", false),
			SecureToken:  getEnv("SECURE_TOKEN", ""),
			IssuerURL:    getEnv("AUTH_ISSUER_URL", ""),
			PublicIssuer: getEnv("AUTH_PUBLIC_ISSUER", ""),
			Audience:     getEnv("AUTH_AUDIENCE", "nightcrawler"),
			ReindexScope: getEnvAllowEmpty("AUTH_REINDEX_SCOPE", "nightcrawler:reindex"),
		},
		Gateway: GatewayConfig{
			Address:        getEnv("GATEWAY_ADDRESS", ""),
			ServiceType:    getEnv("GATEWAY_SERVICE_TYPE", "gateway"),
			Timeout:        time.Duration(getEnvInt("GATEWAY_TIMEOUT_SECS", 60)) * time.Second,
			RateLimitRPS:   getEnvFloat("GATEWAY_RATE_LIMIT_RPS", 0),
			RateLimitBurst: getEnvInt("GATEWAY_RATE_LIMIT_BURST", 1),
		},
		Discovery: DiscoveryConfig{
			Addresses:   getEnvList("DISCOVERY_ADDRESSES"),
			SecureToken: getEnv("DISCOVERY_SECURE_TOKEN", ""),
			CacheTTL:    time.Duration(getEnvInt("DISCOVERY_CACHE_TTL_SECS", 600)) * time.Second,
		},
		Scheduler: SchedulerConfig{
			Targets:  getEnvList("SCHEDULE_TARGETS"),
			Interval: time.Duration(getEnvInt("SCHEDULE_INTERVAL_SECS", 3600)) * time.Second,
		},
		Worker: WorkerConfig{
			ConsumerID:  getEnv("WORKER_CONSUMER_ID", "worker-"+hostname),
			Concurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvAllowEmpty is getEnv for settings an explicit empty value turns off.
func getEnvAllowEmpty(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
