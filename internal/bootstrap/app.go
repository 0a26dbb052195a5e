package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"portfoliohub/internal/ai"
	"portfoliohub/internal/app"
	"portfoliohub/internal/config"
	"portfoliohub/internal/model"
	"portfoliohub/internal/platform/objectstore"
	postgresClient "portfoliohub/internal/platform/postgres"
	rabbitmqClient "portfoliohub/internal/platform/rabbitmq"
	redisClient "portfoliohub/internal/platform/redis"
	"portfoliohub/internal/repository"
	"portfoliohub/internal/vectorindex"
	"portfoliohub/internal/worker"
)

// App is the dependency-injection root: every shared client is constructed
// exactly once here and passed into the services that need it.
type App struct {
	Config      *config.Config
	DB          *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	ObjectStore *objectstore.Store
	VectorIndex *vectorindex.Client
	AIClient    *ai.Client
	Embedder    *ai.EmbeddingService

	CleanupService   *app.CleanupService
	TranscriptWorker *worker.TranscriptPersistWorker
	CleanupWorker    *worker.CleanupWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	db, err := postgresClient.New(ctx, cfg.PostgresDSN())
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&model.User{},
		&model.Profile{},
		&model.Project{},
		&model.Session{},
		&model.File{},
		&model.AssistantMessage{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	blobs, err := objectstore.New(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	aiClient := ai.NewClient()
	embedder := ai.NewEmbeddingService(aiClient, ai.EmbeddingConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.EmbeddingModel,
	})
	index := vectorindex.NewClient(cfg.Vector.BaseURL, cfg.Vector.APIKey, cfg.Vector.Namespace)

	transcriptRepo := repository.NewAssistantMessageRepository(db)
	transcriptWorker := worker.NewTranscriptPersistWorker(mqConn, transcriptRepo, cfg.RabbitMQ.TranscriptQueue)
	if err := transcriptWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start transcript worker failed: %w", err)
	}

	sessionRepo := repository.NewSessionRepository(db)
	fileRepo := repository.NewFileRepository(db)
	cleanupService := app.NewCleanupService(sessionRepo, fileRepo, blobs, index)

	var cleanupWorker *worker.CleanupWorker
	if cfg.Cleanup.RunInProcess {
		cleanupWorker = worker.NewCleanupWorker(cleanupService, time.Duration(cfg.Cleanup.IntervalMinute)*time.Minute)
		cleanupWorker.Start(ctx)
	}

	return &App{
		Config:           cfg,
		DB:               db,
		Redis:            redisCli,
		MQConn:           mqConn,
		ObjectStore:      blobs,
		VectorIndex:      index,
		AIClient:         aiClient,
		Embedder:         embedder,
		CleanupService:   cleanupService,
		TranscriptWorker: transcriptWorker,
		CleanupWorker:    cleanupWorker,
		StartedAt:        time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.CleanupWorker != nil {
		a.CleanupWorker.Close()
	}
	if a.TranscriptWorker != nil {
		a.TranscriptWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
