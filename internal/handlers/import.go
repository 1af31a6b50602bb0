package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/content-pipeline/internal/apperr"
	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
	"github.com/codebuildervaibhav/content-pipeline/internal/pipeline"
	"github.com/codebuildervaibhav/content-pipeline/internal/transcription"
	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

// Import source kinds
const (
	importDrive   = "gdrive"
	importYouTube = "youtube"
	importDirect  = "url"
)

var (
	driveFileRe  = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)
	driveQueryRe = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
	driveBareRe  = regexp.MustCompile(`^([a-zA-Z0-9_-]{25,40})$`)
)

// ImportHandler creates transcripts from remote media. Files are fetched
// inside the transcript stage so the request returns immediately.
type ImportHandler struct {
	d          *Deps
	tempDir    string
	maxBytes   int64
	httpClient *http.Client
	ytdlp      string
	driveURL   string
	log        *logger.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(d *Deps) *ImportHandler {
	tempDir := d.TempDir
	if tempDir == "" {
		tempDir = "temp"
	}
	maxMB := d.MaxSizeMB
	if maxMB <= 0 {
		maxMB = 100
	}
	return &ImportHandler{
		d:          d,
		tempDir:    tempDir,
		maxBytes:   int64(maxMB) * 1024 * 1024,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		ytdlp:      "yt-dlp",
		driveURL:   "https://drive.google.com/uc?export=download&id=",
		log:        d.Log.Component("import"),
	}
}

type importRequest struct {
	ClientID    string `json:"clientId"`
	InterviewID string `json:"interviewId"`
	URL         string `json:"url"`
	Name        string `json:"name"`
}

// importPlan is a resolved import source
type importPlan struct {
	kind     string
	download string
	ext      string
}

// Handle validates the link and queues the transcript
func (h *ImportHandler) Handle(c *fiber.Ctx) error {
	var req importRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return apperr.Validation("ERR_NO_URL", "URL is required")
	}

	plan, err := h.resolve(req.URL, req.Name)
	if err != nil {
		return err
	}

	t := &types.Transcript{
		ClientID:    strings.TrimSpace(req.ClientID),
		InterviewID: strings.TrimSpace(req.InterviewID),
		SourceType:  types.SourceUpload,
		SourceURL:   req.URL,
		Base:        types.Base{Metadata: types.Metadata{"importSource": plan.kind}},
	}
	if req.Name != "" {
		t.SetMeta("name", req.Name)
	}

	t, err = h.d.Pipeline.SubmitTranscript(c.UserContext(), pipeline.Submission{
		Transcript: t,
		Fetch: func(ctx context.Context) (transcription.Files, error) {
			return h.fetch(ctx, plan)
		},
	})
	if err != nil {
		return err
	}

	h.log.WithFields(logrus.Fields{"transcript_id": t.ID, "source": plan.kind}).Info("Import accepted")
	return accepted(c, "transcriptId", t.ID)
}

// resolve works out where and how to download raw
func (h *ImportHandler) resolve(raw, name string) (importPlan, error) {
	if id := extractGDriveFileID(raw); id != "" && (driveBareRe.MatchString(raw) || strings.Contains(raw, "drive.google.com")) {
		ext := strings.ToLower(filepath.Ext(name))
		if !transcription.ValidateUploadFormat(name) {
			ext = ".mp3"
		}
		return importPlan{kind: importDrive, download: h.driveURL + id, ext: ext}, nil
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return importPlan{}, apperr.Validation("ERR_INVALID_URL", "Invalid URL")
	}

	if isYouTube(u.Host) {
		return importPlan{kind: importYouTube, download: raw, ext: ".mp3"}, nil
	}

	file := path.Base(u.Path)
	if !transcription.ValidateUploadFormat(file) {
		return importPlan{}, apperr.Validation("ERR_INVALID_FORMAT", "Unsupported file format")
	}
	return importPlan{kind: importDirect, download: raw, ext: strings.ToLower(filepath.Ext(file))}, nil
}

func (h *ImportHandler) fetch(ctx context.Context, plan importPlan) (transcription.Files, error) {
	if err := os.MkdirAll(h.tempDir, 0755); err != nil {
		return transcription.Files{}, fmt.Errorf("create temp dir: %w", err)
	}
	dest := filepath.Join(h.tempDir, uuid.New().String()+plan.ext)

	var err error
	if plan.kind == importYouTube {
		err = h.captureWithYtDlp(ctx, plan.download, dest)
	} else {
		err = h.download(ctx, plan.download, dest)
	}
	if err != nil {
		_ = os.Remove(dest)
		return transcription.Files{}, err
	}

	if transcription.IsSubtitle(dest) {
		return transcription.Files{Subtitle: dest}, nil
	}
	return transcription.Files{Audio: dest}, nil
}

func (h *ImportHandler) download(ctx context.Context, src, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("save download: %w", err)
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return fmt.Errorf("write download: %w", err)
	}
	if n > h.maxBytes {
		return fmt.Errorf("download exceeds %d bytes", h.maxBytes)
	}

	h.log.WithFields(logrus.Fields{"bytes": n, "path": dest}).Info("Downloaded import")
	return nil
}

// captureWithYtDlp extracts the audio track of a video page with yt-dlp
func (h *ImportHandler) captureWithYtDlp(ctx context.Context, src, dest string) error {
	h.log.WithField("url", src).Info("Using yt-dlp to download")

	cmd := exec.CommandContext(ctx, h.ytdlp,
		"-x",
		"--audio-format", "mp3",
		"--max-filesize", fmt.Sprintf("%d", h.maxBytes),
		"-o", dest,
		src,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// extractGDriveFileID extracts the file ID from the Google Drive URL formats
func extractGDriveFileID(link string) string {
	for _, re := range []*regexp.Regexp{driveFileRe, driveQueryRe, driveBareRe} {
		if m := re.FindStringSubmatch(link); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

func isYouTube(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	host = strings.TrimPrefix(host, "m.")
	return host == "youtube.com" || host == "youtu.be" || host == "music.youtube.com"
}
