package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig
	Log           LogConfig `mapstructure:"log"`
	Database      DatabaseConfig
	JWT           JWTConfig
	Storage       StorageConfig
	Tracing       TracingConfig `mapstructure:"tracing"`
	Redis         RedisConfig
	AI            AIConfig
	Certification CertificationConfig `mapstructure:"certification"`
	SendGrid      SendGridConfig      `mapstructure:"sendgrid"`
	Catalog       CatalogConfig       `mapstructure:"catalog"`
	CORS          CORSConfig          `mapstructure:"cors"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
}

// LogConfig 日志输出，Level 为空时按 server.mode 决定
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Console    bool   `mapstructure:"console"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// AIConfig 题目生成使用的 OpenAI 兼容接口，Models 按优先级排列
type AIConfig struct {
	BaseURL        string   `mapstructure:"base_url"`
	APIKey         string   `mapstructure:"api_key"`
	Models         []string `mapstructure:"models"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	MaxTokens      int      `mapstructure:"max_tokens"`
	Temperature    float64  `mapstructure:"temperature"`
}

// CertificationConfig 证书考试策略
type CertificationConfig struct {
	MinProgressPercent    float64       `mapstructure:"min_progress_percent"`
	TotalQuestions        int           `mapstructure:"total_questions"`
	PassingScore          int           `mapstructure:"passing_score"`
	MaxAttempts           int           `mapstructure:"max_attempts"`
	XPReward              int           `mapstructure:"xp_reward"`
	MinContentLength      int           `mapstructure:"min_content_length"`
	MaxContentChars       int           `mapstructure:"max_content_chars"`
	MinGeneratedQuestions int           `mapstructure:"min_generated_questions"`
	TokenSecret           string        `mapstructure:"token_secret"`
	TokenTTL              time.Duration `mapstructure:"token_ttl"`
	VerifyBaseURL         string        `mapstructure:"verify_base_url"`
	ContentCacheTTL       time.Duration `mapstructure:"content_cache_ttl"`
}

type SendGridConfig struct {
	APIKey    string `mapstructure:"api_key"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`
}

type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver    string
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	SSLMode   string `mapstructure:"sslmode"`
	Path      string
}

// JWTConfig 访问令牌由上游签发，这里只做校验
type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	Leeway time.Duration `mapstructure:"leeway"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	CollectorEndpoint string  `mapstructure:"collector_endpoint"`
	ServiceName       string  `mapstructure:"service_name"`
	SampleRatio       float64 `mapstructure:"sample_ratio"`
}

type RedisConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// DefaultCertification 未配置时使用的默认策略
func DefaultCertification() CertificationConfig {
	return CertificationConfig{
		MinProgressPercent:    100,
		TotalQuestions:        10,
		PassingScore:          70,
		MaxAttempts:           3,
		XPReward:              500,
		MinContentLength:      200,
		MaxContentChars:       8000,
		MinGeneratedQuestions: 5,
		TokenTTL:              2 * time.Hour,
		VerifyBaseURL:         "http://localhost:8080/api/certificates/verify",
		ContentCacheTTL:       10 * time.Minute,
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultCertification()
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.console", true)
	v.SetDefault("jwt.leeway", 30*time.Second)
	v.SetDefault("tracing.service_name", "certify")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", 3*time.Second)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("catalog.path", "configs/courses.yaml")
	v.SetDefault("ai.timeout_seconds", 60)
	v.SetDefault("ai.max_tokens", 4000)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("certification.min_progress_percent", d.MinProgressPercent)
	v.SetDefault("certification.total_questions", d.TotalQuestions)
	v.SetDefault("certification.passing_score", d.PassingScore)
	v.SetDefault("certification.max_attempts", d.MaxAttempts)
	v.SetDefault("certification.xp_reward", d.XPReward)
	v.SetDefault("certification.min_content_length", d.MinContentLength)
	v.SetDefault("certification.max_content_chars", d.MaxContentChars)
	v.SetDefault("certification.min_generated_questions", d.MinGeneratedQuestions)
	v.SetDefault("certification.token_ttl", d.TokenTTL)
	v.SetDefault("certification.verify_base_url", d.VerifyBaseURL)
	v.SetDefault("certification.content_cache_ttl", d.ContentCacheTTL)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "uploads")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("CERTIFY")
	v.AutomaticEnv()
	setDefaults(v)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("jwt.issuer", "JWT_ISSUER")

	// Log
	v.BindEnv("log.level", "LOG_LEVEL")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("server.port", "SERVER_PORT")

	// AI
	v.BindEnv("ai.base_url", "AI_BASE_URL")
	v.BindEnv("ai.api_key", "AI_API_KEY")

	// Certification
	v.BindEnv("certification.token_secret", "CERTIFICATION_TOKEN_SECRET")
	v.BindEnv("certification.verify_base_url", "CERTIFICATION_VERIFY_BASE_URL")

	// SendGrid
	v.BindEnv("sendgrid.api_key", "SENDGRID_API_KEY")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")
	v.BindEnv("tracing.sample_ratio", "TRACING_SAMPLE_RATIO")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

// Validate 校验配置合法性，release 模式下要求密钥强度
func (c *Config) Validate() error {
	cert := c.Certification
	if cert.TotalQuestions <= 0 {
		return fmt.Errorf("certification.total_questions must be positive, got %d", cert.TotalQuestions)
	}
	if cert.MaxAttempts <= 0 {
		return fmt.Errorf("certification.max_attempts must be positive, got %d", cert.MaxAttempts)
	}
	if cert.PassingScore < 0 || cert.PassingScore > 100 {
		return fmt.Errorf("certification.passing_score must be within [0,100], got %d", cert.PassingScore)
	}
	if cert.MinProgressPercent < 0 || cert.MinProgressPercent > 100 {
		return fmt.Errorf("certification.min_progress_percent must be within [0,100], got %v", cert.MinProgressPercent)
	}
	if cert.MinGeneratedQuestions <= 0 || cert.MinGeneratedQuestions > cert.TotalQuestions {
		return fmt.Errorf("certification.min_generated_questions must be within [1,%d], got %d", cert.TotalQuestions, cert.MinGeneratedQuestions)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0,1], got %v", c.Tracing.SampleRatio)
	}
	if c.Server.Mode == "release" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
		}
		if len(cert.TokenSecret) < 32 {
			return fmt.Errorf("certification token secret is too short (%d chars), must be at least 32 characters in release mode", len(cert.TokenSecret))
		}
	}
	return nil
}
