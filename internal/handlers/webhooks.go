package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/content-pipeline/internal/apperr"
	"github.com/codebuildervaibhav/content-pipeline/internal/continuation"
	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
	"github.com/codebuildervaibhav/content-pipeline/internal/pipeline"
)

// WebhookHandler receives voice API events
type WebhookHandler struct {
	d   *Deps
	log *logger.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(d *Deps) *WebhookHandler {
	return &WebhookHandler{d: d, log: d.Log.Component("webhooks")}
}

// CallCompleted stores the call transcript and starts the transcript stage
func (h *WebhookHandler) CallCompleted(c *fiber.Ctx) error {
	var ev pipeline.CallCompleted
	if err := parseBody(c, &ev); err != nil {
		return err
	}
	t, err := h.d.Pipeline.CompleteCall(c.UserContext(), ev)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Webhook processed successfully", "transcriptId": t.ID})
}

// CallStatus mirrors call progress onto the interview
func (h *WebhookHandler) CallStatus(c *fiber.Ctx) error {
	var ev pipeline.CallStatus
	if err := parseBody(c, &ev); err != nil {
		return err
	}
	iv, err := h.d.Pipeline.UpdateCallStatus(c.UserContext(), ev)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Status updated", "status": iv.Status})
}

type callEndedEvent struct {
	Call struct {
		ID string `json:"id"`
	} `json:"call"`
}

// CallEnded records the finished call for interview continuation
func (h *WebhookHandler) CallEnded(c *fiber.Ctx) error {
	var ev callEndedEvent
	if err := parseBody(c, &ev); err != nil {
		return err
	}
	callID := strings.TrimSpace(ev.Call.ID)
	if callID == "" {
		return apperr.Validation("ERR_MISSING_FIELDS", "call.id is required")
	}
	if h.d.Continuation == nil {
		return c.JSON(fiber.Map{"message": "Continuation disabled"})
	}

	if err := h.d.Continuation.ProcessCompletedCall(c.UserContext(), callID); err != nil {
		if errors.Is(err, continuation.ErrMissingClientInfo) {
			return apperr.Validation("ERR_MISSING_CLIENT_INFO", "Call analysis has no client email or name")
		}
		h.log.WithFields(logrus.Fields{"call_id": callID, "error": err.Error()}).Error("Failed to record call")
		return apperr.Internal("Failed to record call", err)
	}
	return c.JSON(fiber.Map{"message": "Call recorded"})
}
