package transcription

import (
	"strings"

	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

// Speaker identifies who said a line of a call transcript
type Speaker string

const (
	SpeakerNone        Speaker = ""
	SpeakerInterviewer Speaker = "interviewer"
	SpeakerClient      Speaker = "client"
)

// ClientSpeakerTag marks client cues in diarized subtitles
const ClientSpeakerTag = "Speaker 2:"

var speakerPrefixes = []struct {
	prefix  string
	speaker Speaker
}{
	{"AI:", SpeakerInterviewer},
	{"Assistant:", SpeakerInterviewer},
	{"Human:", SpeakerClient},
	{"Client:", SpeakerClient},
	{"User:", SpeakerClient},
}

// SpeakerOf splits a speaker label off a transcript line. Lines without a
// known label return SpeakerNone and the trimmed line.
func SpeakerOf(line string) (Speaker, string) {
	for _, p := range speakerPrefixes {
		if strings.HasPrefix(line, p.prefix) {
			return p.speaker, strings.TrimSpace(line[len(p.prefix):])
		}
	}
	return SpeakerNone, strings.TrimSpace(line)
}

// HasSpeakerLabels reports whether any line starts with a known speaker label
func HasSpeakerLabels(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if s, _ := SpeakerOf(line); s != SpeakerNone {
			return true
		}
	}
	return false
}

// ParseCallTranscript keeps the client's turns from a labelled call
// transcript. Consecutive client lines merge into one chunk and unlabelled
// lines continue the current turn. Calls carry no timestamps, so start and
// end are zero.
func ParseCallTranscript(text string) []types.Chunk {
	var (
		chunks  []types.Chunk
		current Speaker
		turn    []string
	)

	flush := func() {
		if current == SpeakerClient && len(turn) > 0 {
			chunks = append(chunks, types.Chunk{
				ID:   chunkID(len(chunks) + 1),
				Text: strings.Join(turn, " "),
			})
		}
		turn = nil
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		speaker, rest := SpeakerOf(line)
		switch {
		case speaker == SpeakerNone:
			if rest != "" && len(turn) > 0 {
				turn = append(turn, rest)
			}
		case speaker == SpeakerClient && current == SpeakerClient:
			if rest != "" {
				turn = append(turn, rest)
			}
		default:
			flush()
			current = speaker
			if rest != "" {
				turn = append(turn, rest)
			}
		}
	}
	flush()

	return chunks
}
