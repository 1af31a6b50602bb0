// Package handlers exposes the pipeline over HTTP.
package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/codebuildervaibhav/content-pipeline/internal/apperr"
	"github.com/codebuildervaibhav/content-pipeline/internal/continuation"
	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
	"github.com/codebuildervaibhav/content-pipeline/internal/pipeline"
	"github.com/codebuildervaibhav/content-pipeline/internal/storage"
	"github.com/codebuildervaibhav/content-pipeline/internal/vapi"
)

// CallPlacer schedules and starts interview calls
type CallPlacer interface {
	ScheduleCall(ctx context.Context, req vapi.CallRequest) (*vapi.Call, error)
	InitiateCall(ctx context.Context, req vapi.CallRequest) (*vapi.Call, error)
}

// Archiver stores approved content outside the service
type Archiver interface {
	Upload(ctx context.Context, archive *storage.Archive) (string, error)
}

// Renderer prints an HTML page to PDF
type Renderer interface {
	PDF(ctx context.Context, html string) ([]byte, error)
}

// Deps are the collaborators the handlers need. Calls, Archive, Renderer and
// Continuation are optional.
type Deps struct {
	Store        storage.Store
	Pipeline     *pipeline.Orchestrator
	Calls        CallPlacer
	Continuation *continuation.Service
	Archive      Archiver
	Renderer     Renderer
	LogBuffer    *logger.LogBuffer
	Log          *logger.Logger
	TempDir      string
	MaxSizeMB    int
}

// Register mounts every route on app
func Register(app *fiber.App, d *Deps) {
	interviews := NewInterviewHandler(d)
	transcripts := NewTranscriptHandler(d)
	upload := NewUploadHandler(d)
	imports := NewImportHandler(d)
	stream := NewStreamHandler(d)
	profiles := NewProfileHandler(d)
	content := NewContentHandler(d)
	webhooks := NewWebhookHandler(d)
	system := NewSystemHandler(d)

	app.Get("/health", system.Health)
	app.Get("/logs", system.Logs)

	app.Get("/interviews", interviews.List)
	app.Post("/interviews", interviews.Create)
	app.Get("/interviews/continuation", interviews.Continuation)
	app.Get("/interviews/:id", interviews.Get)
	app.Get("/interviews/:id/status", interviews.Status)
	app.Put("/interviews/:id", interviews.Update)
	app.Delete("/interviews/:id", interviews.Delete)
	app.Post("/interviews/:id/call", interviews.Call)

	app.Get("/transcripts", transcripts.List)
	app.Post("/transcripts/upload", upload.Handle)
	app.Post("/transcripts/manual", transcripts.Manual)
	app.Post("/transcripts/import", imports.Handle)
	app.Get("/transcripts/:id", transcripts.Get)
	app.Get("/transcripts/:id/status", transcripts.Status)
	app.Get("/transcripts/:id/chunks", transcripts.Chunks)
	app.Put("/transcripts/:id/chunks", transcripts.UpdateChunks)
	app.Delete("/transcripts/:id", transcripts.Delete)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/transcripts/stream", websocket.New(stream.Handle))

	app.Get("/profiles", profiles.List)
	app.Post("/profiles/generate", profiles.Generate)
	app.Get("/profiles/:id", profiles.Get)
	app.Get("/profiles/:id/status", profiles.Status)
	app.Delete("/profiles/:id", profiles.Delete)

	app.Get("/content", content.List)
	app.Post("/content/generate", content.Generate)
	app.Get("/content/:id", content.Get)
	app.Get("/content/:id/status", content.Status)
	app.Put("/content/:id/fields", content.UpdateFields)
	app.Post("/content/:id/approve", content.Approve)
	app.Get("/content/:id/export.xlsx", content.Export)
	app.Get("/content/:id/preview.pdf", content.Preview)
	app.Delete("/content/:id", content.Delete)
	app.Get("/projects/:clientId", content.Project)

	app.Post("/webhooks/vapi/call-completed", webhooks.CallCompleted)
	app.Post("/webhooks/vapi/call-status", webhooks.CallStatus)
	app.Post("/webhooks/vapi/call-ended", webhooks.CallEnded)
}

// ErrorHandler renders every returned error as {"error": ..., "code": ...}.
// Conflicts also carry the id of the entity that already exists.
func ErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		e := apperr.As(err)
		status := e.Status()
		if status >= 500 {
			log.WithRequest(c).WithField("error", err.Error()).Error("Request failed")
		}

		body := fiber.Map{"error": e.Message, "code": e.Code}
		if e.Kind == apperr.KindConflict && e.IDField != "" {
			body[e.IDField] = e.ExistingID
		}
		return c.Status(status).JSON(body)
	}
}

// NewApp creates a fiber app with the error handler and body limit the
// handlers expect
func NewApp(d *Deps) *fiber.App {
	maxMB := d.MaxSizeMB
	if maxMB <= 0 {
		maxMB = 100
	}
	return fiber.New(fiber.Config{
		AppName:      "Content Pipeline",
		BodyLimit:    (maxMB + 1) * 1024 * 1024,
		ErrorHandler: ErrorHandler(d.Log),
	})
}

// lookup maps a store miss onto a 404 with the given message
func lookup[T any](doc *T, err error, code, msg string) (*T, error) {
	if err == nil {
		return doc, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound(code, msg)
	}
	return nil, apperr.Internal(msg, err)
}

// deleted maps a store delete error the same way
func deleted(err error, code, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(code, msg)
	}
	return apperr.Internal(msg, err)
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.Validation("ERR_INVALID_BODY", "Invalid request body")
	}
	return nil
}

// accepted answers 202 with the id of the entity being processed
func accepted(c *fiber.Ctx, idField, id string) error {
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		idField:   id,
		"status":  "processing",
		"message": "Processing started",
	})
}
