package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	Environment string `env:"ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"ai-roleplay"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// DSN demo：
	// app:apppass@tcp(127.0.0.1:3306)/ai_roleplay?charset=utf8mb4&parseTime=true&loc=Local
	DBDriver string `env:"DB_DRIVER" envDefault:"mysql"`
	DBDSN    string `env:"DB_DSN" envDefault:"app:apppass@tcp(127.0.0.1:3306)/ai_roleplay?charset=utf8mb4&parseTime=true&loc=Local"`

	JWTSecret                string   `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	AccessTokenExpireMinutes int      `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"60"`
	CORSAllowOrigins         []string `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"*"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	LoginMaxAttempts    int `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginLockoutMinutes int `env:"LOGIN_LOCKOUT_MINUTES" envDefault:"15"`

	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser string `env:"SMTP_USER"`
	SMTPPass string `env:"SMTP_PASS"`
	SMTPFrom string `env:"SMTP_FROM"`

	ChatContextWindowSize int `env:"CHAT_CONTEXT_WINDOW_SIZE" envDefault:"20"`

	RAGTopK      int     `env:"RAG_TOP_K" envDefault:"3"`
	RAGThreshold float64 `env:"RAG_THRESHOLD" envDefault:"0.05"`
	RAGStrategy  string  `env:"RAG_STRATEGY" envDefault:"lexical"`

	// AI provider
	AIProvider        string `env:"AI_PROVIDER" envDefault:"ollama"`
	LLMTimeoutSeconds int    `env:"LLM_TIMEOUT_SECONDS" envDefault:"90"`
	OllamaBaseURL     string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	OllamaModel       string `env:"OLLAMA_MODEL" envDefault:"llama3:latest"`
	OpenRouterBaseURL string `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	OpenRouterAPIKey  string `env:"OPENROUTER_API_KEY"`
	OpenRouterModel   string `env:"OPENROUTER_MODEL" envDefault:"openrouter/auto"`
	OpenRouterSiteURL string `env:"OPENROUTER_SITE_URL"`
	OpenRouterAppName string `env:"OPENROUTER_APP_NAME"`
	OpenAIAPIKey      string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string `env:"OPENAI_BASE_URL"`
	OpenAIModel       string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	EmbeddingModel    string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`

	// speech
	STTProvider          string `env:"STT_PROVIDER" envDefault:"mock"`
	TTSProvider          string `env:"TTS_PROVIDER" envDefault:"mock"`
	DashScopeAPIKey      string `env:"DASHSCOPE_API_KEY"`
	DashScopeBaseURL     string `env:"DASHSCOPE_BASE_URL" envDefault:"https://dashscope.aliyuncs.com"`
	SpeechTimeoutSeconds int    `env:"SPEECH_TIMEOUT_SECONDS" envDefault:"30"`
	MaxAudioUploadMB     int    `env:"MAX_AUDIO_UPLOAD_MB" envDefault:"20"`

	// object storage for audio
	StorageBackend   string `env:"STORAGE_BACKEND" envDefault:"local"`
	StorageLocalPath string `env:"STORAGE_LOCAL_PATH" envDefault:"./data/audio"`
	StorageBaseURL   string `env:"STORAGE_BASE_URL"`
	S3Endpoint       string `env:"S3_ENDPOINT"`
	S3Region         string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Bucket         string `env:"S3_BUCKET"`
	S3AccessKeyID    string `env:"S3_ACCESS_KEY_ID"`
	S3SecretKey      string `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle   bool   `env:"S3_USE_PATH_STYLE" envDefault:"true"`
	S3PublicBaseURL  string `env:"S3_PUBLIC_BASE_URL"`

	// vector retrieval
	QdrantURL        string `env:"QDRANT_URL"`
	QdrantAPIKey     string `env:"QDRANT_API_KEY"`
	QdrantCollection string `env:"QDRANT_COLLECTION" envDefault:"knowledge_snippets"`
	EmbeddingDim     int    `env:"EMBEDDING_DIM" envDefault:"1536"`

	// rabbitMQ (api log pipeline; empty URL writes logs directly)
	RabbitURL         string `env:"RABBIT_URL"`
	RabbitQueue       string `env:"RABBIT_QUEUE" envDefault:"api_logs"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY" envDefault:"2"`
}

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.AIProvider = strings.ToLower(strings.TrimSpace(c.AIProvider))
	c.RAGStrategy = strings.ToLower(strings.TrimSpace(c.RAGStrategy))
	c.STTProvider = strings.ToLower(strings.TrimSpace(c.STTProvider))
	c.TTSProvider = strings.ToLower(strings.TrimSpace(c.TTSProvider))
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))

	if c.SMTPFrom == "" {
		c.SMTPFrom = c.SMTPUser
	}
	if c.ChatContextWindowSize <= 0 || c.ChatContextWindowSize > 100 {
		c.ChatContextWindowSize = 20
	}
	if c.AccessTokenExpireMinutes <= 0 {
		c.AccessTokenExpireMinutes = 60
	}
	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = 2
	}
	if c.WorkerConcurrency > 50 {
		c.WorkerConcurrency = 50
	}
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

func (c Config) LoginLockout() time.Duration {
	return time.Duration(c.LoginLockoutMinutes) * time.Minute
}

func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

func (c Config) SpeechTimeout() time.Duration {
	return time.Duration(c.SpeechTimeoutSeconds) * time.Second
}

func (c Config) IsDevelopment() bool {
	return c.Environment == "" || c.Environment == "development" || c.Environment == "dev"
}
