package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

// LocalStorage writes stage artifacts to the local filesystem
type LocalStorage struct {
	outputDir string
	now       func() time.Time
}

// NewLocalStorage creates a new local storage handler
func NewLocalStorage(outputDir string) *LocalStorage {
	return &LocalStorage{
		outputDir: outputDir,
		now:       time.Now,
	}
}

// artifactDir returns outputs/2025/01/23/<id>/, creating it
func (ls *LocalStorage) artifactDir(id string) (string, error) {
	now := ls.now()
	dir := filepath.Join(ls.outputDir,
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()),
		sanitizeFilename(id))

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return dir, nil
}

// SaveChunks writes transcript_chunks.json and transcript_chunks.md and returns the directory
func (ls *LocalStorage) SaveChunks(t *types.Transcript) (string, error) {
	dir, err := ls.artifactDir(t.ID)
	if err != nil {
		return "", err
	}

	chunksJSON, err := json.MarshalIndent(t.Chunks, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal chunks: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "transcript_chunks.json"), chunksJSON, 0644); err != nil {
		return "", fmt.Errorf("failed to save chunks: %w", err)
	}

	var md strings.Builder
	fmt.Fprintf(&md, "# Transcript Chunks for %s\n", t.ClientID)
	fmt.Fprintf(&md, "Generated: %s\n\n", ls.now().Format("2006-01-02 15:04:05"))
	for _, c := range t.Chunks {
		fmt.Fprintf(&md, "## %s\n%s\n\n", c.ID, c.Text)
	}
	if err := os.WriteFile(filepath.Join(dir, "transcript_chunks.md"), []byte(md.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to save chunks markdown: %w", err)
	}

	return dir, nil
}

// SaveProfile writes style-profile.md and style-profile.json and returns the directory
func (ls *LocalStorage) SaveProfile(p *types.Profile) (string, error) {
	dir, err := ls.artifactDir(p.ID)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(dir, "style-profile.md"), []byte(p.RawProfile), 0644); err != nil {
		return "", fmt.Errorf("failed to save profile: %w", err)
	}

	profile := map[string]interface{}{
		"voice":          p.Voice,
		"themes":         p.Themes,
		"values":         p.Values,
		"emotional_tone": p.EmotionalTone,
		"relatability":   p.Relatability,
	}
	profileJSON, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "style-profile.json"), profileJSON, 0644); err != nil {
		return "", fmt.Errorf("failed to save profile JSON: %w", err)
	}

	return dir, nil
}

// KeepMedia moves the uploaded media the transcript's chunks point to into
// its artifact directory and rewrites the chunk paths. Upload temp files are
// swept by the cleanup scheduler, artifacts are not.
func (ls *LocalStorage) KeepMedia(t *types.Transcript) error {
	moved := make(map[string]string)
	relocate := func(src string) (string, error) {
		if src == "" || ls.owns(src) {
			return src, nil
		}
		if dst, ok := moved[src]; ok {
			return dst, nil
		}
		dir, err := ls.artifactDir(t.ID)
		if err != nil {
			return "", err
		}
		dst := filepath.Join(dir, filepath.Base(src))
		if err := moveFile(src, dst); err != nil {
			return "", fmt.Errorf("failed to keep media %s: %w", filepath.Base(src), err)
		}
		moved[src] = dst
		return dst, nil
	}

	for i := range t.Chunks {
		c := &t.Chunks[i]
		audio, err := relocate(c.AudioPath)
		if err != nil {
			return err
		}
		video, err := relocate(c.VideoPath)
		if err != nil {
			return err
		}
		c.AudioPath, c.VideoPath = audio, video
	}
	return nil
}

// owns reports whether path already lives under the output directory
func (ls *LocalStorage) owns(path string) bool {
	rel, err := filepath.Rel(ls.outputDir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// moveFile renames src to dst, copying when they sit on different devices
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	in.Close()
	return os.Remove(src)
}

// sanitizeFilename replaces path and reserved characters and limits length
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_",
	)
	result := strings.TrimSpace(replacer.Replace(name))
	if result == "" || result == "." || result == ".." {
		result = "untitled"
	}
	if len(result) > 100 {
		result = result[:100] // Limit length
	}
	return result
}
