package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPPort          = "8080"
	defaultTemporalAddress   = "localhost:7233"
	defaultTemporalNS        = "default"
	defaultTaskQueue         = "contract-review-task-queue"
	defaultMinioEndpoint     = "localhost:9000"
	defaultMinioBucket       = "contracts"
	defaultPaymentAPIBaseURL = "https://api.stripe.com"
	defaultSubmissionTimeout = 60
	defaultPaymentTimeout    = 60
	defaultAnalysisTimeout   = 180
	defaultSessionIdleMin    = 60
	defaultSubmitRPM         = 30
	defaultMaxUploadBytes    = 10 * 1024 * 1024
	defaultPriceLabel        = "$25.00"
	defaultSupportContact    = "support@ndaclarity.com"
	defaultSQLitePath        = "clarity.db"
)

type Config struct {
	HTTPPort          string `yaml:"http_port"`
	PostgresDSN       string `yaml:"postgres_dsn"`
	SQLitePath        string `yaml:"sqlite_path"`
	TemporalAddress   string `yaml:"temporal_address"`
	TemporalNamespace string `yaml:"temporal_namespace"`
	TemporalTaskQueue string `yaml:"temporal_task_queue"`
	WorkflowIDPrefix  string `yaml:"workflow_id_prefix"`

	MinioEndpoint  string `yaml:"minio_endpoint"`
	MinioAccessKey string `yaml:"minio_access_key"`
	MinioSecretKey string `yaml:"minio_secret_key"`
	MinioBucket    string `yaml:"minio_bucket"`
	MinioUseSSL    bool   `yaml:"minio_use_ssl"`

	BackendBaseURL        string `yaml:"backend_base_url"`
	PaymentAPIBaseURL     string `yaml:"payment_api_base_url"`
	PaymentPublishableKey string `yaml:"payment_publishable_key"`

	SubmissionTimeoutSec int   `yaml:"submission_timeout_sec"`
	PaymentTimeoutSec    int   `yaml:"payment_timeout_sec"`
	AnalysisTimeoutSec   int   `yaml:"analysis_timeout_sec"`
	SessionIdleMin       int   `yaml:"session_idle_min"`
	SubmitRPM            int   `yaml:"submit_rpm"`
	AllowedUploadBytes   int64 `yaml:"max_upload_bytes"`

	SupportContact string `yaml:"support_contact"`
	PriceLabel     string `yaml:"price_label"`
	LogLevel       string `yaml:"log_level"`
	LogFile        string `yaml:"log_file"`
}

func Default() Config {
	return Config{
		HTTPPort:             defaultHTTPPort,
		SQLitePath:           defaultSQLitePath,
		TemporalAddress:      defaultTemporalAddress,
		TemporalNamespace:    defaultTemporalNS,
		TemporalTaskQueue:    defaultTaskQueue,
		WorkflowIDPrefix:     "contract-review",
		MinioEndpoint:        defaultMinioEndpoint,
		MinioBucket:          defaultMinioBucket,
		PaymentAPIBaseURL:    defaultPaymentAPIBaseURL,
		SubmissionTimeoutSec: defaultSubmissionTimeout,
		PaymentTimeoutSec:    defaultPaymentTimeout,
		AnalysisTimeoutSec:   defaultAnalysisTimeout,
		SessionIdleMin:       defaultSessionIdleMin,
		SubmitRPM:            defaultSubmitRPM,
		AllowedUploadBytes:   defaultMaxUploadBytes,
		SupportContact:       defaultSupportContact,
		PriceLabel:           defaultPriceLabel,
		LogLevel:             "info",
	}
}

// Load reads CONFIG_FILE (if set) and the environment for the server
// binaries, which require Postgres.
func Load() (Config, error) {
	cfg, err := LoadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}
	if cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("POSTGRES_DSN is required")
	}
	return cfg, nil
}

// LoadFile overlays defaults with the YAML file at path (skipped when path is
// empty) and then with environment variables.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPPort = getenv("HTTP_PORT", cfg.HTTPPort)
	cfg.PostgresDSN = getenv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.SQLitePath = getenv("SQLITE_PATH", cfg.SQLitePath)
	cfg.TemporalAddress = getenv("TEMPORAL_ADDRESS", cfg.TemporalAddress)
	cfg.TemporalNamespace = getenv("TEMPORAL_NAMESPACE", cfg.TemporalNamespace)
	cfg.TemporalTaskQueue = getenv("TEMPORAL_TASK_QUEUE", cfg.TemporalTaskQueue)
	cfg.WorkflowIDPrefix = getenv("WORKFLOW_ID_PREFIX", cfg.WorkflowIDPrefix)
	cfg.MinioEndpoint = getenv("MINIO_ENDPOINT", cfg.MinioEndpoint)
	cfg.MinioAccessKey = getenv("MINIO_ACCESS_KEY", cfg.MinioAccessKey)
	cfg.MinioSecretKey = getenv("MINIO_SECRET_KEY", cfg.MinioSecretKey)
	cfg.MinioBucket = getenv("MINIO_BUCKET", cfg.MinioBucket)
	cfg.MinioUseSSL = getenvBool("MINIO_USE_SSL", cfg.MinioUseSSL)
	cfg.BackendBaseURL = getenv("BACKEND_BASE_URL", cfg.BackendBaseURL)
	cfg.PaymentAPIBaseURL = getenv("PAYMENT_API_BASE_URL", cfg.PaymentAPIBaseURL)
	cfg.PaymentPublishableKey = getenv("PAYMENT_PUBLISHABLE_KEY", cfg.PaymentPublishableKey)
	cfg.SubmissionTimeoutSec = getenvInt("SUBMISSION_TIMEOUT_SEC", cfg.SubmissionTimeoutSec)
	cfg.PaymentTimeoutSec = getenvInt("PAYMENT_TIMEOUT_SEC", cfg.PaymentTimeoutSec)
	cfg.AnalysisTimeoutSec = getenvInt("ANALYSIS_TIMEOUT_SEC", cfg.AnalysisTimeoutSec)
	cfg.SessionIdleMin = getenvInt("SESSION_IDLE_MIN", cfg.SessionIdleMin)
	cfg.SubmitRPM = getenvInt("SUBMIT_RPM", cfg.SubmitRPM)
	cfg.AllowedUploadBytes = int64(getenvInt("MAX_UPLOAD_BYTES", int(cfg.AllowedUploadBytes)))
	cfg.SupportContact = getenv("SUPPORT_CONTACT", cfg.SupportContact)
	cfg.PriceLabel = getenv("PRICE_LABEL", cfg.PriceLabel)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getenv("LOG_FILE", cfg.LogFile)
}

func (c Config) SubmissionTimeout() time.Duration {
	return time.Duration(c.SubmissionTimeoutSec) * time.Second
}

func (c Config) PaymentTimeout() time.Duration {
	return time.Duration(c.PaymentTimeoutSec) * time.Second
}

func (c Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.AnalysisTimeoutSec) * time.Second
}

func (c Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleMin) * time.Minute
}

func getenv(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
