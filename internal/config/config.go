package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds configuration for the dashboard, the job service and the CLI.
// Each binary validates only the sections it uses.
type Config struct {
	Env        string
	Log        LogConfig
	Dashboard  DashboardConfig
	JobService JobServiceConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	AMQP       AMQPConfig
	Worker     WorkerConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type DashboardConfig struct {
	Port            int
	SubmitRateLimit int // submissions per minute per client, 0 disables
	QueryCacheGC    time.Duration
	CatalogFile     string
}

// JobServiceConfig covers both sides of the remote job service: the
// client settings used by the dashboard and CLI, and the port the
// reference service listens on.
type JobServiceConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // outbound requests per second, 0 disables
	Port      int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AMQPConfig struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
}

type WorkerConfig struct {
	KeyHash string
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first when present; variables already set
// in the environment win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Env: envString("APP_ENV", "development"),
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Dashboard: DashboardConfig{
			Port:            envInt("DASHBOARD_PORT", 3000),
			SubmitRateLimit: envInt("SUBMIT_RATE_LIMIT", 30),
			QueryCacheGC:    envDuration("QUERY_CACHE_GC_TIME", 5*time.Minute),
			CatalogFile:     os.Getenv("CATALOG_FILE"),
		},
		JobService: JobServiceConfig{
			BaseURL:   strings.TrimRight(envString("JOB_SERVICE_BASE_URL", "http://localhost:8000"), "/"),
			Timeout:   envDuration("JOB_SERVICE_TIMEOUT", 10*time.Second),
			RateLimit: envFloat("JOB_SERVICE_RATE_LIMIT", 0),
			Port:      envInt("JOBSERVICE_PORT", 8000),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AMQP: AMQPConfig{
			URL:        os.Getenv("AMQP_URL"),
			Exchange:   envString("AMQP_EXCHANGE", "cluster_jobs"),
			Queue:      envString("AMQP_QUEUE", "cluster_jobs.requested"),
			RoutingKey: envString("AMQP_ROUTING_KEY", "cluster.requested"),
		},
		Worker: WorkerConfig{
			KeyHash: os.Getenv("WORKER_KEY_HASH"),
		},
	}
}

// ValidateClient checks the settings needed to talk to the job service.
func (c *Config) ValidateClient() error {
	if err := validateHTTPURL("JOB_SERVICE_BASE_URL", c.JobService.BaseURL); err != nil {
		return err
	}
	if c.JobService.Timeout <= 0 {
		return fmt.Errorf("JOB_SERVICE_TIMEOUT must be positive, got %s", c.JobService.Timeout)
	}
	if c.JobService.RateLimit < 0 {
		return fmt.Errorf("JOB_SERVICE_RATE_LIMIT must not be negative, got %v", c.JobService.RateLimit)
	}
	return nil
}

// ValidateDashboard checks everything cmd/server needs.
func (c *Config) ValidateDashboard() error {
	if err := c.ValidateClient(); err != nil {
		return err
	}
	if err := validatePort("DASHBOARD_PORT", c.Dashboard.Port); err != nil {
		return err
	}
	if c.Dashboard.SubmitRateLimit < 0 {
		return fmt.Errorf("SUBMIT_RATE_LIMIT must not be negative, got %d", c.Dashboard.SubmitRateLimit)
	}
	if c.Dashboard.QueryCacheGC <= 0 {
		return fmt.Errorf("QUERY_CACHE_GC_TIME must be positive, got %s", c.Dashboard.QueryCacheGC)
	}
	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}
	return nil
}

// ValidateJobService checks everything cmd/jobservice needs.
func (c *Config) ValidateJobService() error {
	if err := validatePort("JOBSERVICE_PORT", c.JobService.Port); err != nil {
		return err
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.AMQP.URL != "" {
		if !strings.HasPrefix(c.AMQP.URL, "amqp://") && !strings.HasPrefix(c.AMQP.URL, "amqps://") {
			return fmt.Errorf("AMQP_URL must start with amqp:// or amqps://, got %q", c.AMQP.URL)
		}
		if c.AMQP.Exchange == "" || c.AMQP.Queue == "" {
			return fmt.Errorf("AMQP_EXCHANGE and AMQP_QUEUE are required when AMQP_URL is set")
		}
	}
	if c.Worker.KeyHash != "" && !strings.HasPrefix(c.Worker.KeyHash, "$2") {
		return fmt.Errorf("WORKER_KEY_HASH must be a bcrypt hash")
	}
	return nil
}

func validateHTTPURL(key, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", key)
	}
	if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
		return fmt.Errorf("%s must start with http:// or https://, got %q", key, v)
	}
	return nil
}

func validatePort(key string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", key, port)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
