package config

import (
	"os"
	"strings"
	"time"

	"github.com/coderev/coderev/backend/go-services/internal/storage"
	"github.com/coderev/coderev/backend/go-services/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	MinIO     storage.MinIOConfig
	Functions FunctionsConfig
	Live      LiveConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// AllowedOrigins for CORS; "*" allows any origin.
	AllowedOrigins []string
}

// MongoDBConfig is optional: with an empty URI the in-memory document
// backend is used.
type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
	// AllowInsecure accepts unsigned tokens; integration tests only.
	AllowInsecure bool
}

// Issuer is the realm issuer URL, or URL itself when no realm is set.
func (k KeycloakConfig) Issuer() string {
	if k.Realm == "" {
		return k.URL
	}
	return strings.TrimRight(k.URL, "/") + "/realms/" + k.Realm
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// FunctionsConfig configures the standalone callable functions binary.
type FunctionsConfig struct {
	Port string
	// AllowedOrigins for the callable endpoint.
	AllowedOrigins []string
	Timeout        time.Duration
}

// LiveConfig configures the live session event stream.
type LiveConfig struct {
	Heartbeat time.Duration
	// IdleTimeout closes sessions that had no event listener for this long.
	IdleTimeout time.Duration
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("SERVER_ALLOWED_ORIGINS", "*")
	v.SetDefault("MONGODB_DATABASE", "coderev")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	v.SetDefault("JWT_REFRESH_TOKEN_TTL", 10080)
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("MINIO_BUCKET", "coderev-sources")
	v.SetDefault("MINIO_URL_EXPIRY_HOURS", 168)
	v.SetDefault("FUNCTIONS_PORT", "5002")
	v.SetDefault("FUNCTIONS_ALLOWED_ORIGINS", "https://coderev.app")
	v.SetDefault("FUNCTIONS_TIMEOUT_SECONDS", 240)
	v.SetDefault("LIVE_HEARTBEAT_SECONDS", 25)
	v.SetDefault("LIVE_IDLE_TIMEOUT_SECONDS", 900)

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Host:           v.GetString("SERVER_HOST"),
			Environment:    v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			AllowedOrigins: splitList(v.GetString("SERVER_ALLOWED_ORIGINS")),
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			URL:           v.GetString("KEYCLOAK_URL"),
			Realm:         v.GetString("KEYCLOAK_REALM"),
			ClientID:      v.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret:  v.GetString("KEYCLOAK_CLIENT_SECRET"),
			AllowInsecure: v.GetBool("ALLOW_INSECURE_TOKEN"),
		},
		JWT: JWTConfig{
			Secret:          os.Getenv("JWT_SECRET"),
			AccessTokenTTL:  time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
			RefreshTokenTTL: time.Duration(v.GetInt("JWT_REFRESH_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		MinIO: storage.MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			URLExpiry: time.Duration(v.GetInt("MINIO_URL_EXPIRY_HOURS")) * time.Hour,
		},
		Functions: FunctionsConfig{
			Port:           v.GetString("FUNCTIONS_PORT"),
			AllowedOrigins: splitList(v.GetString("FUNCTIONS_ALLOWED_ORIGINS")),
			Timeout:        time.Duration(v.GetInt("FUNCTIONS_TIMEOUT_SECONDS")) * time.Second,
		},
		Live: LiveConfig{
			Heartbeat:   time.Duration(v.GetInt("LIVE_HEARTBEAT_SECONDS")) * time.Second,
			IdleTimeout: time.Duration(v.GetInt("LIVE_IDLE_TIMEOUT_SECONDS")) * time.Second,
		},
	}

	// Basic validation
	if cfg.JWT.Secret == "" {
		logger.Warnf("JWT_SECRET is not set; set a secure value in production")
	}
	if cfg.MongoDB.URI == "" {
		logger.Warnf("MONGODB_URI is not set; documents are kept in memory")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
