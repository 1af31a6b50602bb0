package handlers

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/content-pipeline/internal/apperr"
	"github.com/codebuildervaibhav/content-pipeline/internal/export"
	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
	"github.com/codebuildervaibhav/content-pipeline/internal/render"
	"github.com/codebuildervaibhav/content-pipeline/internal/storage"
	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ContentHandler serves generated content and its exports
type ContentHandler struct {
	d   *Deps
	log *logger.Logger
}

// NewContentHandler creates a new content handler
func NewContentHandler(d *Deps) *ContentHandler {
	return &ContentHandler{d: d, log: d.Log.Component("content")}
}

func (h *ContentHandler) List(c *fiber.Ctx) error {
	list, err := h.d.Store.Contents().List(c.UserContext())
	if err != nil {
		return apperr.Internal("Failed to list content", err)
	}
	return c.JSON(list)
}

func (h *ContentHandler) Get(c *fiber.Ctx) error {
	ct, err := h.find(c)
	if err != nil {
		return err
	}
	return c.JSON(ct)
}

func (h *ContentHandler) Status(c *fiber.Ctx) error {
	ct, err := h.find(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": ct.Status})
}

// Generate starts the content stage for a completed profile
func (h *ContentHandler) Generate(c *fiber.Ctx) error {
	var req struct {
		ProfileID string `json:"profileId"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ct, err := h.d.Pipeline.GenerateContent(c.UserContext(), strings.TrimSpace(req.ProfileID))
	if err != nil {
		return err
	}
	return accepted(c, "contentId", ct.ID)
}

// UpdateFields overwrites fields by key and appends unknown keys
func (h *ContentHandler) UpdateFields(c *fiber.Ctx) error {
	ct, err := h.ready(c)
	if err != nil {
		return err
	}
	var req struct {
		ContentFields []types.ContentField `json:"contentFields"`
	}
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if len(req.ContentFields) == 0 {
		return apperr.Validation("ERR_MISSING_FIELDS", "contentFields are required")
	}

	index := make(map[string]int, len(ct.ContentFields))
	for i, f := range ct.ContentFields {
		index[f.Key] = i
	}
	for _, f := range req.ContentFields {
		key := strings.TrimSpace(f.Key)
		if key == "" {
			return apperr.Validation("ERR_INVALID_FIELD", "Every field needs a key")
		}
		if i, ok := index[key]; ok {
			ct.ContentFields[i].Value = f.Value
			continue
		}
		index[key] = len(ct.ContentFields)
		ct.ContentFields = append(ct.ContentFields, types.ContentField{Key: key, Value: f.Value})
	}

	if err := h.d.Store.Contents().Update(c.UserContext(), ct); err != nil {
		return apperr.Internal("Failed to update content", err)
	}
	return c.JSON(ct)
}

// Approve moves completed content to approved and archives it when an
// archive is configured. An archive failure does not undo the approval.
func (h *ContentHandler) Approve(c *fiber.Ctx) error {
	ct, err := h.find(c)
	if err != nil {
		return err
	}
	if ct.Status != types.StatusCompleted {
		return apperr.Validation("ERR_CONTENT_NOT_COMPLETED", fmt.Sprintf("Only completed content can be approved, content is %s", ct.Status))
	}
	_ = ct.SetStatus(types.StatusApproved)

	ctx := c.UserContext()
	log := h.log.WithField("content_id", ct.ID)
	if h.d.Archive != nil {
		if link, err := h.archive(c, ct); err != nil {
			log.WithField("error", err.Error()).Error("Failed to archive approved content")
			ct.SetMeta("archiveError", err.Error())
		} else {
			ct.SetMeta("archiveUrl", link)
			log.WithField("link", link).Info("Archived approved content")
		}
	}

	if err := h.d.Store.Contents().Update(ctx, ct); err != nil {
		return apperr.Internal("Failed to approve content", err)
	}
	return c.JSON(ct)
}

func (h *ContentHandler) archive(c *fiber.Ctx, ct *types.Content) (string, error) {
	sheet, err := export.Spreadsheet(ct)
	if err != nil {
		return "", err
	}
	name := ct.ClientID
	if title, ok := ct.Field("rendered_title"); ok && title != "" {
		name = title
	}
	return h.d.Archive.Upload(c.UserContext(), &storage.Archive{
		Name:        fmt.Sprintf("%s_%s", name, ct.ID),
		Document:    ct,
		Spreadsheet: sheet,
	})
}

// Export downloads the content fields as a spreadsheet
func (h *ContentHandler) Export(c *fiber.Ctx) error {
	ct, err := h.ready(c)
	if err != nil {
		return err
	}
	data, err := export.Spreadsheet(ct)
	if err != nil {
		return apperr.Internal("Failed to export content", err)
	}
	c.Set(fiber.HeaderContentType, xlsxMIME)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="content_%s.xlsx"`, ct.ID))
	return c.Send(data)
}

// Preview prints the content preview page to PDF
func (h *ContentHandler) Preview(c *fiber.Ctx) error {
	ct, err := h.ready(c)
	if err != nil {
		return err
	}
	if h.d.Renderer == nil {
		return apperr.Internal("PDF rendering is not configured", nil)
	}
	page, err := render.PreviewHTML(ct)
	if err != nil {
		return apperr.Internal("Failed to build preview", err)
	}
	pdf, err := h.d.Renderer.PDF(c.UserContext(), page)
	if err != nil {
		h.log.WithFields(logrus.Fields{"content_id": ct.ID, "error": err.Error()}).Error("PDF render failed")
		return apperr.Internal("Failed to render preview", err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`inline; filename="content_%s.pdf"`, ct.ID))
	return c.Send(pdf)
}

func (h *ContentHandler) Delete(c *fiber.Ctx) error {
	if err := deleted(h.d.Store.Contents().Delete(c.UserContext(), c.Params("id")), "ERR_CONTENT_NOT_FOUND", "Content not found"); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Content deleted"})
}

// Project returns the client's mirrored content
func (h *ContentHandler) Project(c *fiber.Ctx) error {
	p, err := h.d.Store.Projects().Get(c.UserContext(), c.Params("clientId"))
	p, err = lookup(p, err, "ERR_PROJECT_NOT_FOUND", "Project not found")
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (h *ContentHandler) find(c *fiber.Ctx) (*types.Content, error) {
	ct, err := h.d.Store.Contents().Get(c.UserContext(), c.Params("id"))
	return lookup(ct, err, "ERR_CONTENT_NOT_FOUND", "Content not found")
}

// ready loads content that has finished generating
func (h *ContentHandler) ready(c *fiber.Ctx) (*types.Content, error) {
	ct, err := h.find(c)
	if err != nil {
		return nil, err
	}
	if ct.Status != types.StatusCompleted && ct.Status != types.StatusApproved {
		return nil, apperr.NotReady("ERR_CONTENT_NOT_READY", "Content generation not completed")
	}
	return ct, nil
}
