package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv        string
	HTTPAddr      string
	RedisAddr     string
	RedisPassword string
	DataDir       string

	// Status store: "redis", "sql" or "memory"
	StoreBackend   string
	DatabaseDriver string
	DatabaseDSN    string

	// Blob store: "supabase", "minio" or "local"
	BlobBackend        string
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string
	MinioEndpoint      string
	MinioAccessKey     string
	MinioSecretKey     string
	MinioBucket        string
	MinioUseSSL        bool

	// Generation service: "gemini", "openai" or "fake"
	LLMProvider     string
	GeminiAPIKey    string
	OpenAIAPIKey    string
	DefaultLLMModel string

	TaskMaxRetries    int
	WorkerConcurrency int

	NotifyWebhookURL string
	SystemAuthSecret string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if path := getenv("ENV_FILE", ".env"); fileExists(path) {
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg := Config{
		AppEnv:        getenv("APP_ENV", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8081"),
		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DataDir:       getenv("DATA_DIR", "./data"),

		StoreBackend:   getenv("STORE_BACKEND", "redis"),
		DatabaseDriver: getenv("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:    getenv("DATABASE_DSN", "./data/planner.db"),

		BlobBackend:        getenv("BLOB_BACKEND", "local"),
		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:     getenv("SUPABASE_STORAGE_BUCKET", "artifacts"),
		MinioEndpoint:      os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:     os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:        getenv("MINIO_BUCKET", "artifacts"),
		MinioUseSSL:        getenvBool("MINIO_USE_SSL", false),

		LLMProvider:     getenv("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		DefaultLLMModel: getenv("DEFAULT_LLM_MODEL", "gemini-1.5-flash"),

		TaskMaxRetries:    getenvInt("TASK_MAX_RETRIES", 3),
		WorkerConcurrency: getenvInt("WORKER_CONCURRENCY", 10),

		NotifyWebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
		SystemAuthSecret: os.Getenv("SYSTEM_AUTH_SECRET"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) IsProduction() bool { return c.AppEnv == "production" }

func (c Config) validate() error {
	switch c.StoreBackend {
	case "redis", "sql", "memory":
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}
	if c.RedisAddr == "" {
		// asynq needs redis regardless of the status store backend
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.StoreBackend == "sql" && c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required when STORE_BACKEND=sql")
	}
	if c.IsProduction() {
		if c.StoreBackend == "memory" {
			return fmt.Errorf("memory status store is not allowed in production")
		}
		if c.LLMProvider == "fake" {
			return fmt.Errorf("fake generation service is not allowed in production")
		}
		if c.BlobBackend == "local" {
			return fmt.Errorf("production environment requires a remote blob store (supabase or minio)")
		}
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
