package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/content-pipeline/internal/apperr"
	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
	"github.com/codebuildervaibhav/content-pipeline/internal/pipeline"
	"github.com/codebuildervaibhav/content-pipeline/internal/transcription"
	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

// StreamHandler records audio streamed over a WebSocket into a transcript
type StreamHandler struct {
	d        *Deps
	tempDir  string
	maxBytes int
	log      *logger.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(d *Deps) *StreamHandler {
	tempDir := d.TempDir
	if tempDir == "" {
		tempDir = "temp"
	}
	maxMB := d.MaxSizeMB
	if maxMB <= 0 {
		maxMB = 100
	}
	return &StreamHandler{d: d, tempDir: tempDir, maxBytes: maxMB * 1024 * 1024, log: d.Log.Component("stream")}
}

// streamControl is a JSON text frame setting stream details
type streamControl struct {
	ClientID    string `json:"clientId"`
	InterviewID string `json:"interviewId"`
	Name        string `json:"name"`
}

// Handle reads control text frames and binary audio frames until END, then
// submits the recording. The reply is a single JSON text frame.
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	var (
		buffer   bytes.Buffer
		control  streamControl
		streamID = uuid.New().String()
		log      = h.log.WithField("stream_id", streamID)
	)

	log.Info("WebSocket connection established")

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			log.WithField("error", err.Error()).Warn("WebSocket closed before END")
			return
		}

		if messageType == websocket.TextMessage {
			msg := strings.TrimSpace(string(message))
			if msg == "END" {
				break
			}
			if strings.HasPrefix(msg, "{") {
				var next streamControl
				if err := json.Unmarshal([]byte(msg), &next); err != nil {
					h.reply(c, fiber.Map{"error": "Invalid control message", "code": "ERR_INVALID_BODY"})
					continue
				}
				control.merge(next)
				continue
			}
			if len(msg) > 0 && len(msg) < 200 {
				control.Name = msg
			}
			continue
		}

		if messageType == websocket.BinaryMessage {
			if buffer.Len()+len(message) > h.maxBytes {
				h.reply(c, fiber.Map{"error": "Stream too large", "code": "ERR_FILE_TOO_LARGE"})
				return
			}
			buffer.Write(message)
		}
	}

	id, err := h.submit(control, buffer.Bytes(), streamID)
	if err != nil {
		e := apperr.As(err)
		log.WithField("error", err.Error()).Warn("Stream rejected")
		h.reply(c, fiber.Map{"error": e.Message, "code": e.Code})
		return
	}

	log.WithFields(logrus.Fields{"transcript_id": id, "bytes": buffer.Len()}).Info("Stream accepted")
	h.reply(c, fiber.Map{"transcriptId": id, "status": "processing"})
}

func (h *StreamHandler) submit(control streamControl, audio []byte, streamID string) (string, error) {
	if control.ClientID == "" {
		return "", apperr.Validation("ERR_MISSING_CLIENT_ID", "clientId is required")
	}
	if len(audio) == 0 {
		return "", apperr.Validation("ERR_NO_FILE", "No audio data received")
	}

	if err := os.MkdirAll(h.tempDir, 0755); err != nil {
		return "", apperr.Internal("Failed to save stream", err)
	}
	tempPath := filepath.Join(h.tempDir, fmt.Sprintf("%s.webm", streamID))
	if err := os.WriteFile(tempPath, audio, 0644); err != nil {
		return "", apperr.Internal("Failed to save stream", err)
	}

	name := control.Name
	if name == "" {
		name = "stream_recording"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	t, err := h.d.Pipeline.SubmitTranscript(ctx, pipeline.Submission{
		Transcript: &types.Transcript{
			ClientID:    control.ClientID,
			InterviewID: control.InterviewID,
			SourceType:  types.SourceUpload,
			Base:        types.Base{Metadata: types.Metadata{"name": name, "stream": true}},
		},
		Files: transcription.Files{Audio: tempPath},
	})
	if err != nil {
		_ = os.Remove(tempPath)
		return "", err
	}
	return t.ID, nil
}

func (s *streamControl) merge(next streamControl) {
	if v := strings.TrimSpace(next.ClientID); v != "" {
		s.ClientID = v
	}
	if v := strings.TrimSpace(next.InterviewID); v != "" {
		s.InterviewID = v
	}
	if v := strings.TrimSpace(next.Name); v != "" {
		s.Name = v
	}
}

func (h *StreamHandler) reply(c *websocket.Conn, body fiber.Map) {
	data, _ := json.Marshal(body)
	if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
		h.log.WithField("error", err.Error()).Warn("Failed to write WebSocket reply")
	}
}
