package config

import (
	"log"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    Server    `yaml:"server"`
	Database  Database  `yaml:"database"`
	Redis     Redis     `yaml:"redis"`
	Queue     Queue     `yaml:"queue"`
	Worker    Worker    `yaml:"worker"`
	Auth      Auth      `yaml:"auth"`
	AI        AI        `yaml:"ai"`
	S3        S3        `yaml:"s3"`
	Dashboard Dashboard `yaml:"dashboard"`
	Log       Log       `yaml:"log"`
}

// S3 holds S3/MinIO storage configuration
type S3 struct {
	Endpoint        string `yaml:"endpoint" env:"S3_ENDPOINT" env-default:"http://localhost:9000"`
	AccessKeyID     string `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID" env-default:"minioadmin"`
	SecretAccessKey string `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY" env-default:"minioadmin"`
	Bucket          string `yaml:"bucket" env:"S3_BUCKET" env-default:"media"`
	Region          string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	PublicURL       string `yaml:"public_url" env:"S3_PUBLIC_URL" env-default:"http://localhost:9000/media"`
}

// Server holds HTTP server configuration
type Server struct {
	Host         string        `yaml:"host" env:"SERVER_HOST" env-default:"0.0.0.0"`
	Port         string        `yaml:"port" env:"SERVER_PORT" env-default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"60s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" env-default:"60s"`
}

// Address returns the full server address
func (s Server) Address() string {
	return s.Host + ":" + s.Port
}

// Database holds database configuration
type Database struct {
	// PostgreSQL
	PostgresDSN string `yaml:"postgres_dsn" env:"DATABASE_URL"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"true"`

	// Connection pool settings
	MaxOpenConns int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnLifetime time.Duration `yaml:"conn_lifetime" env:"DB_CONN_LIFETIME" env-default:"5m"`
}

// Redis holds the connection used by the job broker, the cache and the rate limiter
type Redis struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// Address returns host:port
func (r Redis) Address() string {
	return r.Host + ":" + r.Port
}

// Queue holds job queue configuration
type Queue struct {
	Prefix          string        `yaml:"prefix" env:"BULLMQ_QUEUE_PREFIX" env-default:"bull"`
	JanitorInterval time.Duration `yaml:"janitor_interval" env:"JANITOR_INTERVAL" env-default:"10m"`
	MetricsInterval time.Duration `yaml:"metrics_interval" env:"METRICS_INTERVAL" env-default:"15s"`
}

// Worker holds consumer configuration
type Worker struct {
	PublishConcurrency    int     `yaml:"publish_concurrency" env:"PUBLISH_WORKER_CONCURRENCY" env-default:"5"`
	VerifyConcurrency     int     `yaml:"verify_concurrency" env:"VERIFY_WORKER_CONCURRENCY" env-default:"5"`
	TrendConcurrency      int     `yaml:"trend_concurrency" env:"TREND_WORKER_CONCURRENCY" env-default:"5"`
	CompetitorConcurrency int     `yaml:"competitor_concurrency" env:"COMPETITOR_WORKER_CONCURRENCY" env-default:"5"`
	RateLimit             float64 `yaml:"rate_limit" env:"WORKER_RATE_LIMIT" env-default:"10"`
	MetricsAddr           string  `yaml:"metrics_addr" env:"WORKER_METRICS_ADDR" env-default:":9091"`

	TrendCron     string `yaml:"trend_cron" env:"TREND_CRON" env-default:"0 */6 * * *"`
	TrendKeywords string `yaml:"trend_keywords" env:"TREND_DEFAULT_KEYWORDS"`

	// Simulated platform behaviour
	PublishSuccessRate float64       `yaml:"publish_success_rate" env:"PLATFORM_PUBLISH_SUCCESS_RATE" env-default:"0.95"`
	CookieValidRate    float64       `yaml:"cookie_valid_rate" env:"PLATFORM_COOKIE_VALID_RATE" env-default:"0.9"`
	MinLatency         time.Duration `yaml:"min_latency" env:"PLATFORM_MIN_LATENCY" env-default:"2s"`
	MaxLatency         time.Duration `yaml:"max_latency" env:"PLATFORM_MAX_LATENCY" env-default:"5s"`
}

// Keywords splits TrendKeywords on commas, dropping blanks
func (w Worker) Keywords() []string {
	var out []string
	for _, k := range strings.Split(w.TrendKeywords, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Auth holds authentication and abuse-protection configuration
type Auth struct {
	JWTSecret       string `yaml:"jwt_secret" env:"JWT_SECRET"`
	TaskCreateLimit int    `yaml:"task_create_limit" env:"TASK_CREATE_LIMIT" env-default:"30"`
	CookieSecret    string `yaml:"cookie_secret" env:"COOKIE_SECRET"`
}

// AI holds the model provider credentials
type AI struct {
	DeepSeekKey  string        `yaml:"deepseek_key" env:"DEEPSEEK_API_KEY"`
	ZhipuKey     string        `yaml:"zhipu_key" env:"ZHIPU_API_KEY"`
	DashScopeKey string        `yaml:"dashscope_key" env:"DASHSCOPE_API_KEY"`
	Timeout      time.Duration `yaml:"timeout" env:"AI_REQUEST_TIMEOUT" env-default:"90s"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env:"ANALYSIS_CACHE_TTL" env-default:"30m"`
}

// Dashboard holds the terminal dashboard configuration
type Dashboard struct {
	APIURL   string        `yaml:"api_url" env:"DASHBOARD_API_URL" env-default:"http://localhost:8080/api/v1"`
	Token    string        `yaml:"token" env:"DASHBOARD_TOKEN"`
	Interval time.Duration `yaml:"interval" env:"DASHBOARD_INTERVAL" env-default:"5s"`
}

// Log holds logging configuration
type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// SlogLevel maps Level onto slog, defaulting to info
func (l Log) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if n, err := strconv.Atoi(l.Level); err == nil {
		return slog.Level(n)
	}
	return slog.LevelInfo
}

// MustLoad loads configuration from environment and panics on error
func MustLoad() Config {
	// Load .env file if exists (for development)
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	return cfg
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
