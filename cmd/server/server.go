package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/codebuildervaibhav/content-pipeline/internal/cleanup"
	"github.com/codebuildervaibhav/content-pipeline/internal/config"
	"github.com/codebuildervaibhav/content-pipeline/internal/content"
	"github.com/codebuildervaibhav/content-pipeline/internal/continuation"
	"github.com/codebuildervaibhav/content-pipeline/internal/handlers"
	"github.com/codebuildervaibhav/content-pipeline/internal/llm"
	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
	"github.com/codebuildervaibhav/content-pipeline/internal/pipeline"
	"github.com/codebuildervaibhav/content-pipeline/internal/queue"
	"github.com/codebuildervaibhav/content-pipeline/internal/render"
	"github.com/codebuildervaibhav/content-pipeline/internal/storage"
	"github.com/codebuildervaibhav/content-pipeline/internal/style"
	"github.com/codebuildervaibhav/content-pipeline/internal/transcription"
	"github.com/codebuildervaibhav/content-pipeline/internal/vapi"
)

const shutdownTimeout = 30 * time.Second

// server owns every long-lived component of the API process
type server struct {
	cfg           *config.Config
	log           *logger.Logger
	store         storage.Store
	pool          *queue.WorkerPool
	scheduler     *cleanup.Scheduler
	conversations *continuation.Store
	app           *fiber.App
}

func newServer(ctx context.Context, cfg *config.Config) (*server, error) {
	logBuffer := logger.NewLogBuffer(1000)
	log := logger.New(logger.Options{
		Environment: cfg.Environment,
		Level:       cfg.Log.Level,
		Output:      io.MultiWriter(os.Stdout, logBuffer),
	})

	for _, dir := range []string{cfg.Storage.TempDir, cfg.Storage.OutputDir} {
		if err := cleanup.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	log.Info("Initializing components...")

	ai, err := llm.NewOpenAIClient(llm.ClientConfig{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		ChatModel:      cfg.OpenAI.ChatModel,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		MaxRetries:     cfg.OpenAI.MaxRetries,
		RetryDelay:     cfg.OpenAI.RetryDelay,
		RequestTimeout: cfg.OpenAI.RequestTimeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	var embedder transcription.Embedder
	if cfg.OpenAI.EmbedChunks {
		embedder = ai
	}
	whisper := transcription.NewWhisperTranscriber(cfg.Whisper.Model, cfg.Whisper.Command, cfg.Whisper.Language, cfg.Storage.TempDir, log)
	normalize := func(ctx context.Context, inputPath string) (string, error) {
		return transcription.NormalizeAudio(ctx, inputPath, cfg.Storage.TempDir)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pool := queue.NewWorkerPool(cfg.Workers.Count, cfg.Workers.QueueSize, cfg.Pipeline.StageTimeout, log)
	orch := pipeline.New(store, pool, pipeline.Config{
		Transcripts:  transcription.NewProcessor(whisper, normalize, embedder),
		Profiles:     style.NewProcessor(ai),
		Contents:     content.NewGenerator(ai),
		Local:        storage.NewLocalStorage(cfg.Storage.OutputDir),
		StageTimeout: cfg.Pipeline.StageTimeout,
	}, log)

	deps := &handlers.Deps{
		Store:     store,
		Pipeline:  orch,
		Renderer:  render.NewPDFRenderer(cfg.Render.Timeout, log),
		LogBuffer: logBuffer,
		Log:       log,
		TempDir:   cfg.Storage.TempDir,
		MaxSizeMB: cfg.Limits.MaxFileSizeMB,
	}

	var fetcher continuation.CallFetcher
	if cfg.Vapi.APIKey != "" {
		calls, err := newVapiClient(cfg, log)
		if err != nil {
			store.Close()
			return nil, err
		}
		deps.Calls = calls
		fetcher = calls
		log.Info("Vapi integration enabled")
	} else {
		log.Warn("VAPI_API_KEY not set - interview calls disabled")
	}

	conversations := continuation.NewStore(cfg.Continuation.StoreFile)
	if err := conversations.Load(); err != nil {
		log.WithError(err).Warn("Failed to load conversation store, starting empty")
	}
	deps.Continuation = continuation.NewService(conversations, fetcher, log)

	if drive := openDrive(ctx, cfg, log); drive != nil {
		deps.Archive = drive
	}

	app := handlers.NewApp(deps)
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{Output: log.Writer()}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	handlers.Register(app, deps)

	scheduler := cleanup.NewScheduler(cleanup.Options{
		TempDir:       cfg.Storage.TempDir,
		Interval:      time.Duration(cfg.Cleanup.IntervalMinutes) * time.Minute,
		MaxAge:        time.Duration(cfg.Cleanup.MaxAgeHours) * time.Hour,
		SweepInterval: cfg.Pipeline.SweepInterval,
	}, orch, log)

	return &server{
		cfg:           cfg,
		log:           log,
		store:         store,
		pool:          pool,
		scheduler:     scheduler,
		conversations: conversations,
		app:           app,
	}, nil
}

// run serves until ctx is cancelled, then drains in dependency order
func (s *server) run(ctx context.Context) error {
	s.pool.Start()
	s.scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.cfg.Addr()).Info("Server starting")
		errCh <- s.app.Listen(s.cfg.Addr())
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.log.Info("Shutting down gracefully...")
	case serveErr = <-errCh:
		s.log.WithError(serveErr).Error("Server stopped")
	}

	return errors.Join(serveErr, s.shutdown())
}

func (s *server) shutdown() error {
	var errs []error
	if err := s.app.ShutdownWithTimeout(10 * time.Second); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	s.scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.pool.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("worker pool: %w", err))
	}
	if err := s.conversations.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush conversations: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "mongo":
		store, err := storage.NewMongoStore(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewSQLiteStore(cfg.Storage.Database)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return store, nil
	}
}

func newVapiClient(cfg *config.Config, log *logger.Logger) (*vapi.Client, error) {
	script, err := vapi.LoadScript(cfg.Vapi.ScriptFile)
	if err != nil {
		return nil, err
	}
	return vapi.NewClient(vapi.Config{
		APIKey:       cfg.Vapi.APIKey,
		BaseURL:      cfg.Vapi.BaseURL,
		AssistantID:  cfg.Vapi.AssistantID,
		PhoneNumber:  cfg.Vapi.PhoneNumber,
		WebhookURL:   cfg.Server.BaseURL + "/webhooks/vapi/call-completed",
		Script:       script,
		Timeout:      cfg.Vapi.RequestTimeout,
		MaxRetryTime: cfg.Vapi.MaxRetryTime,
	}, log)
}

// openDrive returns nil when Drive archiving is not set up
func openDrive(ctx context.Context, cfg *config.Config, log *logger.Logger) *storage.DriveClient {
	if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); err != nil {
		log.Info("Google Drive credentials not found - approved content is not archived")
		return nil
	}
	drive, err := storage.NewDriveClient(ctx, cfg.GoogleDrive.CredentialsFile, cfg.GoogleDrive.TokenFile, cfg.GoogleDrive.FolderName)
	if err != nil {
		log.WithError(err).Warn("Google Drive not available")
		return nil
	}
	log.Info("Google Drive integration enabled")
	return drive
}
