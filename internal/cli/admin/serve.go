// Package admin holds the askbookd server commands.
package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/askbook-ai/askbook/internal/api/handlers"
	"github.com/askbook-ai/askbook/internal/cache"
	"github.com/askbook-ai/askbook/internal/config"
	"github.com/askbook-ai/askbook/internal/domain"
	"github.com/askbook-ai/askbook/internal/jobs"
	"github.com/askbook-ai/askbook/internal/openai"
	"github.com/askbook-ai/askbook/internal/repository"
	"github.com/askbook-ai/askbook/internal/server"
	"github.com/askbook-ai/askbook/internal/service"
	"github.com/askbook-ai/askbook/internal/telemetry"
	"github.com/askbook-ai/askbook/internal/vectorstore"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the askbook API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	// Pick the vector store: pgvector when a database is configured,
	// otherwise the in-process index.
	var store service.VectorStore
	if cfg.HasDatabase() {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}
		log.Println("connected to database")

		noMigrate, _ := cmd.Flags().GetBool("no-migrate")
		if !noMigrate {
			if err := runMigrations(cfg.DatabaseURL); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		store = repository.NewChunkVectorStore(pool)
	} else {
		log.Println("no database configured, using in-memory vector index")
		store = vectorstore.NewMemoryStore()
	}

	if !cfg.HasOpenAI() {
		log.Println("OPENAI_API_KEY not set: ingestion will fail and answers fall back to retrieval echoes")
	}
	openaiClient := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
	})

	embeddingSvc := service.NewEmbeddingService(openaiClient, store, cache.New(cfg.CacheTTL), service.EmbeddingConfig{
		Dimensions:   cfg.EmbeddingDimensions,
		EmbeddingTTL: cfg.EmbeddingTTL,
		SearchTTL:    cfg.SearchTTL,
	})
	if err := embeddingSvc.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}

	chunker := service.NewChunker(service.ChunkConfig{
		MaxChunkSize: cfg.MaxChunkSize,
		OverlapSize:  cfg.OverlapSize,
	})
	ingestSvc := service.NewIngestService(chunker, embeddingSvc)

	var generator service.GenerationClient
	if cfg.HasOpenAI() {
		generator = openaiClient
	}
	ragSvc := service.NewRAGService(embeddingSvc, generator, service.RAGConfig{
		TopK:              cfg.TopK,
		GenerationTimeout: cfg.GenerationTimeout,
	})

	queue := jobs.NewQueue(jobs.QueueConfig{
		Capacity:    cfg.QueueCapacity,
		PollTimeout: cfg.QueuePollTimeout,
	})
	queue.Register(domain.TaskKindAnswerQuery, func(ctx context.Context, task *domain.Task) (any, error) {
		input, ok := task.Payload.(domain.QueryInput)
		if !ok {
			return nil, domain.NewDomainError(domain.ErrCodeValidation, "invalid query payload")
		}
		return ragSvc.Query(ctx, input)
	})
	queue.Start(cfg.QueueWorkers)

	janitor := jobs.NewWorker(jobs.NewResultsJanitor(queue, cfg.ResultMaxAge), 5*time.Minute)
	go janitor.Start(ctx)

	router := server.NewRouter(server.RouterConfig{
		QueryHandler:  handlers.NewQueryHandler(queue, ragSvc, cfg.GenerationTimeout+30*time.Second),
		IngestHandler: handlers.NewIngestHandler(ingestSvc),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	janitor.Stop()
	queue.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
