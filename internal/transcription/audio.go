package transcription

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	mediaFormats    = []string{".mp4", ".m4a", ".mp3", ".wav"}
	subtitleFormats = []string{".vtt", ".srt"}
)

// NormalizeAudio converts any audio or video file to 16kHz mono WAV in tempDir
func NormalizeAudio(ctx context.Context, inputPath, tempDir string) (string, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	outputPath := filepath.Join(tempDir, fmt.Sprintf("normalized_%s.wav", uuid.New().String()))

	// FFmpeg command: convert to 16kHz mono WAV
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", inputPath,
		"-vn",               // drop any video stream
		"-ar", "16000",      // 16kHz sample rate
		"-ac", "1",          // Mono
		"-c:a", "pcm_s16le", // 16-bit PCM
		"-y",                // Overwrite output
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg failed: %v\nOutput: %s", err, string(output))
	}

	return outputPath, nil
}

// ValidateUploadFormat checks if the file extension is accepted for upload
func ValidateUploadFormat(filename string) bool {
	return IsMedia(filename) || IsSubtitle(filename)
}

// IsMedia reports whether the file is an accepted audio or video format
func IsMedia(filename string) bool {
	return hasExt(filename, mediaFormats)
}

// IsSubtitle reports whether the file is a VTT or SRT subtitle
func IsSubtitle(filename string) bool {
	return hasExt(filename, subtitleFormats)
}

func hasExt(filename string, formats []string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, format := range formats {
		if ext == format {
			return true
		}
	}
	return false
}
