package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
)

// Segment is one timestamped span of recognized speech
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Transcription is the output of a speech-to-text run
type Transcription struct {
	Text     string
	Language string
	Duration float64
	Segments []Segment
}

// WhisperTranscriber wraps Python's OpenAI Whisper for transcription
type WhisperTranscriber struct {
	modelName  string
	whisperCmd string
	language   string
	tempDir    string
	log        *logger.Logger
	mu         sync.Mutex // one whisper process at a time
}

// NewWhisperTranscriber creates a new transcriber using Python Whisper.
// model may be a bare model name or a path that contains one.
func NewWhisperTranscriber(model, command, language, tempDir string, log *logger.Logger) *WhisperTranscriber {
	if command == "" {
		command = "python"
	}
	wt := &WhisperTranscriber{
		modelName:  modelName(model),
		whisperCmd: command,
		language:   language,
		tempDir:    tempDir,
		log:        log.Component("whisper"),
	}
	wt.log.Infof("Initializing Python Whisper with model: %s", wt.modelName)
	return wt
}

// modelName extracts a whisper model name, e.g. "ggml-small.bin" -> "small"
func modelName(model string) string {
	for _, name := range []string{"tiny", "base", "small", "medium", "large"} {
		if strings.Contains(model, name) {
			return name
		}
	}
	return "small"
}

// Transcribe processes an audio file and returns the transcript
func (wt *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (*Transcription, error) {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	wt.log.WithField("path", audioPath).Info("Transcribing with Python Whisper")

	if err := os.MkdirAll(wt.tempDir, 0755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	outDir, err := os.MkdirTemp(wt.tempDir, "whisper_output_")
	if err != nil {
		return nil, fmt.Errorf("create whisper output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	absAudioPath, err := filepath.Abs(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %v", err)
	}

	args := []string{"-m", "whisper",
		absAudioPath,
		"--model", wt.modelName,
		"--output_dir", outDir,
		"--output_format", "json", // Get JSON for segments
		"--fp16", "False", // Disable fp16 for CPU compatibility
	}
	if wt.language != "" {
		args = append(args, "--language", wt.language)
	}

	output, err := exec.CommandContext(ctx, wt.whisperCmd, args...).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("whisper transcription failed: %v\nOutput: %s", err, string(output))
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonData, err := os.ReadFile(filepath.Join(outDir, baseName+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read whisper output: %v", err)
	}

	result, err := decodeWhisperOutput(jsonData)
	if err != nil {
		return nil, err
	}

	wt.log.Infof("Transcription completed: %d segments, %.2fs duration", len(result.Segments), result.Duration)
	return result, nil
}

func decodeWhisperOutput(data []byte) (*Transcription, error) {
	var whisperOutput WhisperOutput
	if err := json.Unmarshal(data, &whisperOutput); err != nil {
		return nil, fmt.Errorf("failed to parse whisper JSON: %v", err)
	}

	segments := make([]Segment, len(whisperOutput.Segments))
	for i, seg := range whisperOutput.Segments {
		segments[i] = Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		}
	}

	// Calculate duration (last segment end time)
	var duration float64
	if len(segments) > 0 {
		duration = segments[len(segments)-1].End
	}

	return &Transcription{
		Text:     strings.TrimSpace(whisperOutput.Text),
		Language: whisperOutput.Language,
		Duration: duration,
		Segments: segments,
	}, nil
}

// WhisperOutput matches Python Whisper's JSON output format
type WhisperOutput struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []WhisperSegment `json:"segments"`
}

// WhisperSegment represents a timestamped segment from Whisper
type WhisperSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}
