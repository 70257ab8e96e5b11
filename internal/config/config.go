package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	// DatabaseURL is optional; without it the service runs on the
	// in-memory vector store.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`

	QueueWorkers     int           `envconfig:"QUEUE_WORKERS" default:"5"`
	QueueCapacity    int           `envconfig:"QUEUE_CAPACITY" default:"1024"`
	QueuePollTimeout time.Duration `envconfig:"QUEUE_POLL_TIMEOUT" default:"1s"`

	MaxChunkSize int `envconfig:"MAX_CHUNK_SIZE" default:"512"`
	OverlapSize  int `envconfig:"OVERLAP_SIZE" default:"50"`

	CacheTTL     time.Duration `envconfig:"CACHE_TTL" default:"1h"`
	EmbeddingTTL time.Duration `envconfig:"EMBEDDING_TTL" default:"1h"`
	SearchTTL    time.Duration `envconfig:"SEARCH_TTL" default:"5m"`

	TopK              int           `envconfig:"TOP_K" default:"5"`
	GenerationTimeout time.Duration `envconfig:"GENERATION_TIMEOUT" default:"30s"`

	// ResultMaxAge bounds how long finished task results are retained.
	ResultMaxAge time.Duration `envconfig:"RESULT_MAX_AGE" default:"1h"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("ASKBOOK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}
