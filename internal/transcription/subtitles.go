package transcription

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

// cue is one timed subtitle block
type cue struct {
	index int
	start float64
	end   float64
	text  string
}

var speakerLabel = regexp.MustCompile(`Speaker \d+:`)

// ParseVTT converts WebVTT captions into client chunks. When the captions
// carry speaker labels only cues attributed to the client are kept; chunk ids
// follow the cue position in the file.
func ParseVTT(content string) ([]types.Chunk, error) {
	cues, err := parseCues(content, '.')
	if err != nil {
		return nil, fmt.Errorf("parse vtt: %w", err)
	}
	return clientChunks(cues), nil
}

// ParseSRT converts SubRip subtitles into client chunks, like ParseVTT
func ParseSRT(content string) ([]types.Chunk, error) {
	cues, err := parseCues(content, ',')
	if err != nil {
		return nil, fmt.Errorf("parse srt: %w", err)
	}
	return clientChunks(cues), nil
}

func parseCues(content string, fracSep byte) ([]cue, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	blocks := strings.Split(content, "\n\n")

	var cues []cue
	for _, block := range blocks {
		lines := strings.Split(strings.Trim(block, "\n"), "\n")
		timing := -1
		for i, line := range lines {
			if strings.Contains(line, "-->") {
				timing = i
				break
			}
		}
		// header, NOTE and STYLE blocks carry no timing line
		if timing < 0 {
			continue
		}

		start, end, err := parseTiming(lines[timing], fracSep)
		if err != nil {
			return nil, fmt.Errorf("cue %d: %w", len(cues)+1, err)
		}

		var body []string
		for _, line := range lines[timing+1:] {
			if line = strings.TrimSpace(line); line != "" {
				body = append(body, line)
			}
		}

		cues = append(cues, cue{
			index: len(cues) + 1,
			start: start,
			end:   end,
			text:  strings.Join(body, " "),
		})
	}
	return cues, nil
}

func clientChunks(cues []cue) []types.Chunk {
	labelled := false
	for _, c := range cues {
		if speakerLabel.MatchString(c.text) {
			labelled = true
			break
		}
	}

	chunks := make([]types.Chunk, 0, len(cues))
	for _, c := range cues {
		text := c.text
		if labelled {
			if !strings.Contains(text, ClientSpeakerTag) {
				continue
			}
			text = strings.ReplaceAll(text, ClientSpeakerTag, "")
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		chunks = append(chunks, types.Chunk{
			ID:    chunkID(c.index),
			Text:  text,
			Start: c.start,
			End:   c.end,
		})
	}
	return chunks
}

// parseTiming reads "start --> end [settings]"
func parseTiming(line string, fracSep byte) (float64, float64, error) {
	parts := strings.SplitN(line, "-->", 2)
	startField := strings.TrimSpace(parts[0])
	endFields := strings.Fields(parts[1])
	if startField == "" || len(endFields) == 0 {
		return 0, 0, fmt.Errorf("malformed timing line %q", line)
	}

	start, err := parseTimestamp(startField, fracSep)
	if err != nil {
		return 0, 0, err
	}
	end, err := parseTimestamp(endFields[0], fracSep)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// parseTimestamp converts [HH:]MM:SS<sep>mmm to seconds
func parseTimestamp(ts string, fracSep byte) (float64, error) {
	if fracSep != '.' {
		ts = strings.Replace(ts, string(fracSep), ".", 1)
	}

	parts := strings.Split(ts, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("malformed timestamp %q", ts)
	}

	var hours, minutes int
	var err error
	if len(parts) == 3 {
		if hours, err = strconv.Atoi(parts[0]); err != nil {
			return 0, fmt.Errorf("malformed timestamp %q", ts)
		}
		parts = parts[1:]
	}
	if minutes, err = strconv.Atoi(parts[0]); err != nil {
		return 0, fmt.Errorf("malformed timestamp %q", ts)
	}
	seconds, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed timestamp %q", ts)
	}

	return float64(hours*3600+minutes*60) + seconds, nil
}

func chunkID(n int) string {
	return fmt.Sprintf("chunk_%03d", n)
}
