package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the binary needs. Values come from a .env file,
// then the process environment, then the defaults below.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	LogLevel      string
	LogOutputPath string

	// Blob store
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
	ContentScheme  string // locators look like <scheme>://<cid>
	GatewayURL     string // public base URL that serves /ipfs/<cid>

	// Index
	IndexMode   string // "graphql" or "local"
	IndexAPIURL string
	IndexTTL    time.Duration

	// Redis snapshot cache
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MySQL backing the local ledger
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Ledger
	LedgerMode    string // "local" or "wallet"
	WalletRPCURL  string
	WalletAddress string
	ChainName     string
	ContractsFile string

	JWTSecret  string
	TokenTTL   time.Duration
	FFmpegPath string
	WatchDir   string
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load reads the configuration. A missing .env file is not an error.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables and defaults.")
	}

	return &Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogOutputPath: getEnv("LOG_OUTPUT_PATH", ""),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "multitrack"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		ContentScheme:  getEnv("CONTENT_SCHEME", "ipfs"),
		GatewayURL:     strings.TrimRight(getEnv("GATEWAY_URL", "http://127.0.0.1:8080"), "/"),

		IndexMode:   getEnv("INDEX_MODE", "local"),
		IndexAPIURL: getEnv("INDEX_API_URL", "https://api-mumbai.lens.dev"),
		IndexTTL:    getEnvDuration("INDEX_TTL", 30*time.Second),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "multitrack"),

		LedgerMode:    getEnv("LEDGER_MODE", "local"),
		WalletRPCURL:  getEnv("WALLET_RPC_URL", "http://127.0.0.1:1248"),
		WalletAddress: getEnv("WALLET_ADDRESS", ""),
		ChainName:     getEnv("CHAIN_NAME", "Polygon Mumbai"),
		ContractsFile: getEnv("CONTRACTS_FILE", ""),

		JWTSecret:  getEnv("JWT_SECRET", "multitrack-dev-secret"),
		TokenTTL:   getEnvDuration("TOKEN_TTL", 24*time.Hour),
		FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),
		WatchDir:   getEnv("WATCH_DIR", "drops"),
	}
}

// RedisAddr joins host and port.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}
