package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/content-pipeline/internal/apperr"
	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

// ProfileHandler serves style profiles
type ProfileHandler struct {
	d *Deps
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(d *Deps) *ProfileHandler {
	return &ProfileHandler{d: d}
}

func (h *ProfileHandler) List(c *fiber.Ctx) error {
	list, err := h.d.Store.Profiles().List(c.UserContext())
	if err != nil {
		return apperr.Internal("Failed to list profiles", err)
	}
	return c.JSON(list)
}

func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	p, err := h.find(c)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (h *ProfileHandler) Status(c *fiber.Ctx) error {
	p, err := h.find(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": p.Status})
}

// Generate starts the style stage for a completed transcript
func (h *ProfileHandler) Generate(c *fiber.Ctx) error {
	var req struct {
		TranscriptID string `json:"transcriptId"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}
	p, err := h.d.Pipeline.GenerateProfile(c.UserContext(), strings.TrimSpace(req.TranscriptID))
	if err != nil {
		return err
	}
	return accepted(c, "profileId", p.ID)
}

func (h *ProfileHandler) Delete(c *fiber.Ctx) error {
	if err := deleted(h.d.Store.Profiles().Delete(c.UserContext(), c.Params("id")), "ERR_PROFILE_NOT_FOUND", "Profile not found"); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Profile deleted"})
}

func (h *ProfileHandler) find(c *fiber.Ctx) (*types.Profile, error) {
	p, err := h.d.Store.Profiles().Get(c.UserContext(), c.Params("id"))
	return lookup(p, err, "ERR_PROFILE_NOT_FOUND", "Profile not found")
}
