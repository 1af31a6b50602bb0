package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/content-pipeline/internal/apperr"
	"github.com/codebuildervaibhav/content-pipeline/internal/pipeline"
	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

// TranscriptHandler serves transcript records and manual submissions
type TranscriptHandler struct {
	d *Deps
}

// NewTranscriptHandler creates a new transcript handler
func NewTranscriptHandler(d *Deps) *TranscriptHandler {
	return &TranscriptHandler{d: d}
}

func (h *TranscriptHandler) List(c *fiber.Ctx) error {
	list, err := h.d.Store.Transcripts().List(c.UserContext())
	if err != nil {
		return apperr.Internal("Failed to list transcripts", err)
	}
	return c.JSON(list)
}

func (h *TranscriptHandler) Get(c *fiber.Ctx) error {
	t, err := h.find(c)
	if err != nil {
		return err
	}
	return c.JSON(t)
}

func (h *TranscriptHandler) Status(c *fiber.Ctx) error {
	t, err := h.find(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": t.Status})
}

func (h *TranscriptHandler) Chunks(c *fiber.Ctx) error {
	t, err := h.find(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"transcriptId": t.ID, "chunks": t.Chunks})
}

// UpdateChunks replaces the chunks of a completed transcript
func (h *TranscriptHandler) UpdateChunks(c *fiber.Ctx) error {
	t, err := h.find(c)
	if err != nil {
		return err
	}
	if t.Status != types.StatusCompleted {
		return apperr.NotReady("ERR_TRANSCRIPT_NOT_READY", "Transcript processing not completed")
	}

	var req struct {
		Chunks []types.Chunk `json:"chunks"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if len(req.Chunks) == 0 {
		return apperr.Validation("ERR_MISSING_CHUNKS", "chunks are required")
	}
	for _, ch := range req.Chunks {
		if ch.ID == "" || strings.TrimSpace(ch.Text) == "" {
			return apperr.Validation("ERR_INVALID_CHUNK", "Every chunk needs an id and text")
		}
	}

	t.Chunks = req.Chunks
	t.SetMeta("chunkCount", len(req.Chunks))
	t.SetMeta("edited", true)
	if err := h.d.Store.Transcripts().Update(c.UserContext(), t); err != nil {
		return apperr.Internal("Failed to update transcript", err)
	}
	return c.JSON(t)
}

func (h *TranscriptHandler) Delete(c *fiber.Ctx) error {
	if err := deleted(h.d.Store.Transcripts().Delete(c.UserContext(), c.Params("id")), "ERR_TRANSCRIPT_NOT_FOUND", "Transcript not found"); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Transcript deleted"})
}

// Manual accepts pasted transcript text
func (h *TranscriptHandler) Manual(c *fiber.Ctx) error {
	var req struct {
		ClientID string `json:"clientId"`
		Text     string `json:"text"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Text) == "" {
		return apperr.Validation("ERR_MISSING_TEXT", "text is required")
	}

	t, err := h.d.Pipeline.SubmitTranscript(c.UserContext(), pipeline.Submission{
		Transcript: &types.Transcript{
			ClientID:   strings.TrimSpace(req.ClientID),
			SourceType: types.SourceManual,
			RawText:    req.Text,
		},
	})
	if err != nil {
		return err
	}
	return accepted(c, "transcriptId", t.ID)
}

func (h *TranscriptHandler) find(c *fiber.Ctx) (*types.Transcript, error) {
	t, err := h.d.Store.Transcripts().Get(c.UserContext(), c.Params("id"))
	return lookup(t, err, "ERR_TRANSCRIPT_NOT_FOUND", "Transcript not found")
}
