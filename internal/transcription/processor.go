package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

// Transcriber turns an audio file into timed segments
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*Transcription, error)
}

// Embedder returns one vector per input text
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Normalizer prepares a media file for the transcriber and returns the new path
type Normalizer func(ctx context.Context, inputPath string) (string, error)

// Files are the uploaded inputs of a transcript, any of which may be empty
type Files struct {
	Video    string
	Audio    string
	Subtitle string
}

// Input is everything the transcript stage reads
type Input struct {
	Transcript *types.Transcript
	Files      Files
}

// ErrNoSpeech is returned when a source yields no client chunks
var ErrNoSpeech = errors.New("no client speech found in transcript")

// Processor derives chunks from a transcript's source. It never writes to the store.
type Processor struct {
	transcriber Transcriber
	normalize   Normalizer
	embedder    Embedder
}

// NewProcessor creates a transcript processor. transcriber, normalize and
// embedder may be nil; media uploads then fail and chunks carry no embedding.
func NewProcessor(transcriber Transcriber, normalize Normalizer, embedder Embedder) *Processor {
	return &Processor{
		transcriber: transcriber,
		normalize:   normalize,
		embedder:    embedder,
	}
}

// Process chunks the transcript. A subtitle file wins over media; raw text is
// used when no file was uploaded.
func (p *Processor) Process(ctx context.Context, in Input) (*types.TranscriptResult, error) {
	if in.Transcript == nil {
		return nil, errors.New("transcript is required")
	}

	var (
		result *types.TranscriptResult
		err    error
	)
	switch {
	case in.Files.Subtitle != "":
		result, err = p.fromSubtitle(in.Files.Subtitle)
	case in.Files.Audio != "" || in.Files.Video != "":
		result, err = p.fromMedia(ctx, in.Files)
	case in.Transcript.SourceType == types.SourceVapi:
		result = &types.TranscriptResult{Chunks: ParseCallTranscript(in.Transcript.RawText), Mode: types.ModeVapi}
	case strings.TrimSpace(in.Transcript.RawText) != "":
		result = &types.TranscriptResult{Chunks: ParseManual(in.Transcript.RawText), Mode: types.ModeManual}
	default:
		return nil, errors.New("transcript has no source to process")
	}
	if err != nil {
		return nil, err
	}

	if len(result.Chunks) == 0 {
		return nil, ErrNoSpeech
	}
	for i := range result.Chunks {
		result.Chunks[i].AudioPath = in.Files.Audio
		result.Chunks[i].VideoPath = in.Files.Video
	}

	if p.embedder != nil {
		if err := p.embed(ctx, result.Chunks); err != nil {
			return nil, err
		}
	}

	result.ChunkCount = len(result.Chunks)
	return result, nil
}

func (p *Processor) fromSubtitle(path string) (*types.TranscriptResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subtitle: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".srt") {
		chunks, err := ParseSRT(string(data))
		if err != nil {
			return nil, err
		}
		return &types.TranscriptResult{Chunks: chunks, Mode: types.ModeSRT}, nil
	}

	chunks, err := ParseVTT(string(data))
	if err != nil {
		return nil, err
	}
	return &types.TranscriptResult{Chunks: chunks, Mode: types.ModeVTT}, nil
}

func (p *Processor) fromMedia(ctx context.Context, files Files) (*types.TranscriptResult, error) {
	if p.transcriber == nil {
		return nil, errors.New("no transcriber configured for media uploads")
	}

	source := files.Audio
	if source == "" {
		source = files.Video
	}

	if p.normalize != nil {
		normalized, err := p.normalize(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("normalize audio: %w", err)
		}
		defer os.Remove(normalized)
		source = normalized
	}

	tr, err := p.transcriber.Transcribe(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	chunks := make([]types.Chunk, 0, len(tr.Segments))
	for _, seg := range tr.Segments {
		if seg.Text == "" {
			continue
		}
		chunks = append(chunks, types.Chunk{
			ID:    chunkID(len(chunks) + 1),
			Text:  seg.Text,
			Start: seg.Start,
			End:   seg.End,
		})
	}

	return &types.TranscriptResult{
		Chunks:   chunks,
		Mode:     types.ModeWhisper,
		Language: tr.Language,
		Duration: tr.Duration,
	}, nil
}

func (p *Processor) embed(ctx context.Context, chunks []types.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	return nil
}
