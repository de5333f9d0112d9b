package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Release policies. Exactly one is active per deployment; the trigger
// surface only exposes the operations of the active policy.
const (
	// ReleasePolicyChoose lets a user hold several slots and name which one
	// to release.
	ReleasePolicyChoose = "choose"
	// ReleasePolicySingle allows at most one slot per user; a release frees
	// whichever slot the user holds.
	ReleasePolicySingle = "single"
)

// Store backends.
const (
	StoreBackendMongo  = "mongo"
	StoreBackendRedis  = "redis"
	StoreBackendMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	// Store selection
	StoreBackend string

	// MongoDB Configuration
	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration

	// Redis Configuration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// HTTP Server Configuration
	HTTPPort         string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration

	// Slot pool
	SlotCount     int
	LeaseDuration time.Duration
	ReleasePolicy string

	// Panel refresh
	RefreshEnabled      bool
	RefreshInterval     time.Duration
	PanelRepostSchedule string // optional cron expression

	// Display surface (chat API the panel message lives on)
	DisplayURL       string
	DisplayAuthToken string
	DisplayTimeout   time.Duration
	DisplayIDPath    string // JSONPath to the message id in the create response

	// Rate limiting for claim/release triggers
	RateLimitRPS   float64
	RateLimitBurst int

	// Logging Configuration
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	return &Config{
		// Store
		StoreBackend: getEnv("STORE_BACKEND", StoreBackendMongo),

		// MongoDB
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017/slotboard?authSource=admin"),
		MongoDatabase: getEnv("MONGO_DATABASE", "slotboard"),
		MongoTimeout:  getDurationEnv("MONGO_TIMEOUT_SEC", 10) * time.Second,

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		// HTTP Server
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		HTTPReadTimeout:  getDurationEnv("HTTP_READ_TIMEOUT_SEC", 30) * time.Second,
		HTTPWriteTimeout: getDurationEnv("HTTP_WRITE_TIMEOUT_SEC", 30) * time.Second,

		// Slot pool
		SlotCount:     getIntEnv("SLOT_COUNT", 3),
		LeaseDuration: getDurationEnv("LEASE_DURATION_HOURS", 8) * time.Hour,
		ReleasePolicy: getEnv("RELEASE_POLICY", ReleasePolicyChoose),

		// Panel refresh
		RefreshEnabled:      getBoolEnv("REFRESH_ENABLED", true),
		RefreshInterval:     getDurationEnv("REFRESH_INTERVAL_SEC", 60) * time.Second,
		PanelRepostSchedule: getEnv("PANEL_REPOST_SCHEDULE", ""),

		// Display surface
		DisplayURL:       getEnv("DISPLAY_URL", "http://localhost:9090/messages"),
		DisplayAuthToken: getEnv("DISPLAY_AUTH_TOKEN", ""),
		DisplayTimeout:   getDurationEnv("DISPLAY_TIMEOUT_SEC", 10) * time.Second,
		DisplayIDPath:    getEnv("DISPLAY_ID_PATH", "$.id"),

		// Rate limiting
		RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 1),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 5),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
		log.Printf("Warning: Invalid float value for %s, using default %g", key, defaultValue)
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return time.Duration(intVal)
		}
		log.Printf("Warning: Invalid duration value for %s, using default %d", key, defaultValue)
	}
	return time.Duration(defaultValue)
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: Invalid boolean value for %s, using default %t", key, defaultValue)
	}
	return defaultValue
}
