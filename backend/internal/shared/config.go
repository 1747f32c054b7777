// ============================================================================
// backend/internal/shared/config.go
// Shared configuration management (.env + environment via viper)
// ============================================================================

package shared

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ============================================================================
// Configuration Structs
// ============================================================================

// ServiceConfig holds common configuration for all services
type ServiceConfig struct {
	ServiceName string `mapstructure:"service_name"`
	ServicePort string `mapstructure:"service_port"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`   // debug, info, warn, error

	// MongoDB Configuration
	MongoDB MongoConfig `mapstructure:"mongo"`

	// gRPC Configuration
	GRPC GRPCConfig `mapstructure:"grpc"`

	// Security Configuration
	Security SecurityConfig `mapstructure:"security"`

	// Turnover engine tuning
	Engine EngineConfig `mapstructure:"engine"`
}

// GRPCConfig holds gRPC-specific configuration
type GRPCConfig struct {
	MaxRecvMsgSize    int           `mapstructure:"max_recv_msg_size"` // bytes
	MaxSendMsgSize    int           `mapstructure:"max_send_msg_size"` // bytes
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	JWTSecret          string `mapstructure:"jwt_secret"`
	JWTExpirationHours int    `mapstructure:"jwt_expiration_hours"`
}

// EngineConfig holds the year turnover engine knobs
type EngineConfig struct {
	BatchSize           int           `mapstructure:"batch_size"`            // ops per atomic batch, below the store hard cap
	LargeClassThreshold int           `mapstructure:"large_class_threshold"` // students per class before warning
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
}

// GatewayConfig holds gateway-specific configuration
type GatewayConfig struct {
	ServiceConfig `mapstructure:",squash"`
	HTTPPort      string `mapstructure:"http_port"`

	// Service addresses
	TurnoverServiceAddr string `mapstructure:"turnover_service_addr"`

	// CORS Configuration
	CORS CORSConfig `mapstructure:"cors"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"` // in seconds
}

// ============================================================================
// Configuration Loading Functions
// ============================================================================

// LoadEnv merges variables from an .env file into the process environment.
// Variables already set in the environment win.
func LoadEnv(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}

	envMap, err := godotenv.Read(envFile)
	if err != nil {
		return fmt.Errorf("read %s: %w", envFile, err)
	}
	for k, v := range envMap {
		if _, exists := os.LookupEnv(k); !exists {
			_ = os.Setenv(k, v)
		}
	}
	return nil
}

// envBindings maps config keys to the environment variable names the services use.
var envBindings = map[string]string{
	"service_port":                  "SERVICE_PORT",
	"environment":                   "ENVIRONMENT",
	"log_level":                     "LOG_LEVEL",
	"mongo.uri":                     "MONGO_URI",
	"mongo.database":                "MONGO_DB_NAME",
	"mongo.connect_timeout":         "MONGO_CONNECT_TIMEOUT",
	"mongo.max_pool_size":           "MONGO_MAX_POOL_SIZE",
	"mongo.min_pool_size":           "MONGO_MIN_POOL_SIZE",
	"mongo.max_idle_time":           "MONGO_MAX_IDLE_TIME",
	"mongo.query_timeout":           "MONGO_QUERY_TIMEOUT",
	"grpc.max_recv_msg_size":        "GRPC_MAX_RECV_MSG_SIZE",
	"grpc.max_send_msg_size":        "GRPC_MAX_SEND_MSG_SIZE",
	"grpc.connection_timeout":       "GRPC_CONNECTION_TIMEOUT",
	"grpc.request_timeout":          "GRPC_REQUEST_TIMEOUT",
	"security.jwt_secret":           "JWT_SECRET",
	"security.jwt_expiration_hours": "JWT_EXPIRATION_HOURS",
	"engine.batch_size":             "TURNOVER_BATCH_SIZE",
	"engine.large_class_threshold":  "TURNOVER_LARGE_CLASS_THRESHOLD",
	"engine.cache_ttl":              "TURNOVER_CACHE_TTL",
	"http_port":                     "HTTP_PORT",
	"turnover_service_addr":         "TURNOVER_SERVICE_ADDR",
	"cors.allowed_origins":          "CORS_ALLOWED_ORIGINS",
	"cors.allowed_methods":          "CORS_ALLOWED_METHODS",
	"cors.allowed_headers":          "CORS_ALLOWED_HEADERS",
	"cors.allow_credentials":        "CORS_ALLOW_CREDENTIALS",
	"cors.max_age":                  "CORS_MAX_AGE",
}

func newViper(serviceName string) *viper.Viper {
	v := viper.New()

	v.SetDefault("service_name", serviceName)
	v.SetDefault("service_port", GetServicePort(serviceName))
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "LibraryTurnover")
	v.SetDefault("mongo.connect_timeout", 20*time.Second)
	v.SetDefault("mongo.max_pool_size", 50)
	v.SetDefault("mongo.min_pool_size", 10)
	v.SetDefault("mongo.max_idle_time", 30*time.Second)
	v.SetDefault("mongo.query_timeout", 10*time.Second)

	v.SetDefault("grpc.max_recv_msg_size", 32*1024*1024) // snapshots carry raw data
	v.SetDefault("grpc.max_send_msg_size", 32*1024*1024)
	v.SetDefault("grpc.connection_timeout", 10*time.Second)
	v.SetDefault("grpc.request_timeout", 30*time.Second)

	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_expiration_hours", 24)

	v.SetDefault("engine.batch_size", DefaultBatchSize)
	v.SetDefault("engine.large_class_threshold", DefaultLargeClassThreshold)
	v.SetDefault("engine.cache_ttl", 5*time.Minute)

	v.SetDefault("http_port", DefaultGatewayHTTPPort)
	v.SetDefault("turnover_service_addr", "localhost:"+DefaultTurnoverServicePort)
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"})
	v.SetDefault("cors.allowed_headers", []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 300)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	return v
}

// LoadServiceConfig loads common service configuration from environment
func LoadServiceConfig(serviceName string) (*ServiceConfig, error) {
	v := newViper(serviceName)

	var config ServiceConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	config.ServiceName = serviceName

	if config.MongoDB.URI == "" {
		return nil, fmt.Errorf("MONGO_URI environment variable is required")
	}

	return &config, nil
}

// LoadGatewayConfig loads gateway-specific configuration. The gateway never
// talks to MongoDB, so MONGO_URI is not required here.
func LoadGatewayConfig() (*GatewayConfig, error) {
	v := newViper("gateway")

	var config GatewayConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	config.ServiceName = "gateway"

	if config.Security.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required for the gateway")
	}

	return &config, nil
}

// ============================================================================
// Configuration Validation
// ============================================================================

// ValidateServiceConfig validates service configuration
func ValidateServiceConfig(config *ServiceConfig) error {
	if config.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	if config.ServicePort == "" {
		return fmt.Errorf("service port is required")
	}

	if config.MongoDB.URI == "" {
		return fmt.Errorf("MongoDB URI is required")
	}

	if config.MongoDB.Database == "" {
		return fmt.Errorf("MongoDB database name is required")
	}

	if config.Engine.BatchSize <= 0 || config.Engine.BatchSize > MaxStoreBatchOps {
		return fmt.Errorf("turnover batch size must be between 1 and %d", MaxStoreBatchOps)
	}

	return nil
}

// ValidateGatewayConfig validates gateway configuration
func ValidateGatewayConfig(config *GatewayConfig) error {
	if config.HTTPPort == "" {
		return fmt.Errorf("HTTP port is required")
	}

	if config.TurnoverServiceAddr == "" {
		return fmt.Errorf("turnover service address is required")
	}

	if config.Security.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	return nil
}

// ============================================================================
// Configuration Display (for debugging)
// ============================================================================

// PrintConfig logs configuration (sanitized) for debugging
func PrintConfig(log *zap.SugaredLogger, config *ServiceConfig) {
	log.Infow("service configuration",
		"service", config.ServiceName,
		"port", config.ServicePort,
		"environment", config.Environment,
		"log_level", config.LogLevel,
	)
	log.Infow("mongodb configuration",
		"database", config.MongoDB.Database,
		"max_pool_size", config.MongoDB.MaxPoolSize,
		"min_pool_size", config.MongoDB.MinPoolSize,
		"query_timeout", config.MongoDB.QueryTimeout,
	)
	log.Infow("grpc configuration",
		"max_recv_msg_size", config.GRPC.MaxRecvMsgSize,
		"max_send_msg_size", config.GRPC.MaxSendMsgSize,
		"connection_timeout", config.GRPC.ConnectionTimeout,
	)
	log.Infow("turnover engine configuration",
		"batch_size", config.Engine.BatchSize,
		"large_class_threshold", config.Engine.LargeClassThreshold,
		"cache_ttl", config.Engine.CacheTTL,
	)
}

// PrintGatewayConfig logs gateway configuration (sanitized)
func PrintGatewayConfig(log *zap.SugaredLogger, config *GatewayConfig) {
	log.Infow("gateway configuration",
		"http_port", config.HTTPPort,
		"turnover_service", config.TurnoverServiceAddr,
		"environment", config.Environment,
		"allowed_origins", config.CORS.AllowedOrigins,
		"allow_credentials", config.CORS.AllowCredentials,
	)
}

// ============================================================================
// Default Port Mapping
// ============================================================================

const (
	DefaultGatewayHTTPPort     = "8080"
	DefaultTurnoverServicePort = "50061"
)

// GetServicePort returns the default port for a service
func GetServicePort(serviceName string) string {
	ports := map[string]string{
		"gateway":          DefaultGatewayHTTPPort,
		"turnover-service": DefaultTurnoverServicePort,
	}

	if port, exists := ports[serviceName]; exists {
		return port
	}

	return DefaultTurnoverServicePort
}

// ============================================================================
// Environment-Specific Configuration
// ============================================================================

// IsDevelopment checks if running in development environment
func IsDevelopment(config *ServiceConfig) bool {
	return config.Environment == "development"
}

// IsProduction checks if running in production environment
func IsProduction(config *ServiceConfig) bool {
	return config.Environment == "production"
}

// GetLogLevel returns the configured log level
func GetLogLevel(config *ServiceConfig) string {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if validLevels[config.LogLevel] {
		return config.LogLevel
	}

	return "info"
}
