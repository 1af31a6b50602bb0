package transcription

import (
	"strings"

	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

// ParseManual chunks pasted transcript text. Labelled call transcripts are
// parsed like call transcripts; plain text becomes one chunk per paragraph.
func ParseManual(text string) []types.Chunk {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if HasSpeakerLabels(text) {
		return ParseCallTranscript(text)
	}

	var chunks []types.Chunk
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.Join(strings.Fields(para), " ")
		if para == "" {
			continue
		}
		chunks = append(chunks, types.Chunk{
			ID:   chunkID(len(chunks) + 1),
			Text: para,
		})
	}
	return chunks
}
