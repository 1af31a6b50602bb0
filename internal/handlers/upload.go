package handlers

import (
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/content-pipeline/internal/apperr"
	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
	"github.com/codebuildervaibhav/content-pipeline/internal/pipeline"
	"github.com/codebuildervaibhav/content-pipeline/internal/transcription"
	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

// UploadHandler handles transcript file uploads
type UploadHandler struct {
	d         *Deps
	tempDir   string
	maxSizeMB int
	log       *logger.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(d *Deps) *UploadHandler {
	tempDir := d.TempDir
	if tempDir == "" {
		tempDir = "temp"
	}
	maxSizeMB := d.MaxSizeMB
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	return &UploadHandler{d: d, tempDir: tempDir, maxSizeMB: maxSizeMB, log: d.Log.Component("upload")}
}

// uploadField is one accepted multipart file field
type uploadField struct {
	name  string
	valid func(string) bool
}

var uploadFields = []uploadField{
	{"video", transcription.IsMedia},
	{"audio", transcription.IsMedia},
	{"subtitle", transcription.IsSubtitle},
}

// Handle saves the uploaded video, audio and subtitle files and starts the
// transcript stage
func (h *UploadHandler) Handle(c *fiber.Ctx) error {
	clientID := strings.TrimSpace(c.FormValue("clientId"))
	if clientID == "" {
		return apperr.Validation("ERR_MISSING_CLIENT_ID", "clientId is required")
	}

	files := map[string]*multipart.FileHeader{}
	for _, f := range uploadFields {
		fh, err := c.FormFile(f.name)
		if err != nil {
			continue
		}
		if err := h.validate(fh, f.valid); err != nil {
			return err
		}
		files[f.name] = fh
	}
	if len(files) == 0 {
		return apperr.Validation("ERR_NO_FILE", "No file uploaded")
	}

	if err := os.MkdirAll(h.tempDir, 0755); err != nil {
		return apperr.Internal("Failed to save file", err)
	}

	uploadID := uuid.New().String()
	saved := transcription.Files{}
	var names []string
	for _, f := range uploadFields {
		fh, ok := files[f.name]
		if !ok {
			continue
		}
		path := filepath.Join(h.tempDir, fmt.Sprintf("%s_%s%s", uploadID, f.name, strings.ToLower(filepath.Ext(fh.Filename))))
		if err := c.SaveFile(fh, path); err != nil {
			h.log.WithFields(logrus.Fields{"file": fh.Filename, "error": err.Error()}).Error("Failed to save uploaded file")
			return apperr.Internal("Failed to save file", err)
		}
		switch f.name {
		case "video":
			saved.Video = path
		case "audio":
			saved.Audio = path
		case "subtitle":
			saved.Subtitle = path
		}
		names = append(names, fh.Filename)
	}

	t := &types.Transcript{
		ClientID:    clientID,
		InterviewID: strings.TrimSpace(c.FormValue("interviewId")),
		SourceType:  types.SourceUpload,
		Base:        types.Base{Metadata: types.Metadata{"files": names}},
	}
	t, err := h.d.Pipeline.SubmitTranscript(c.UserContext(), pipeline.Submission{Transcript: t, Files: saved})
	if err != nil {
		return err
	}

	h.log.WithFields(logrus.Fields{"transcript_id": t.ID, "files": names}).Info("Upload accepted")
	return accepted(c, "transcriptId", t.ID)
}

func (h *UploadHandler) validate(fh *multipart.FileHeader, valid func(string) bool) error {
	if fh.Size > int64(h.maxSizeMB)*1024*1024 {
		return apperr.Validation("ERR_FILE_TOO_LARGE", fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB))
	}
	if !transcription.ValidateUploadFormat(fh.Filename) || !valid(fh.Filename) {
		return apperr.Validation("ERR_INVALID_FORMAT", fmt.Sprintf("Unsupported file format: %s", fh.Filename))
	}
	return nil
}
