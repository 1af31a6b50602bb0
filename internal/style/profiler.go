// Package style derives a client's style profile from transcript chunks.
package style

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codebuildervaibhav/content-pipeline/internal/llm"
	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

const systemPrompt = "You are an expert brand analyst who extracts style profiles from interview transcripts."

const analysisPrompt = `Analyze the following interview transcript and extract the client's style profile in these categories:

1. Voice: Identify 5-7 adjectives that describe the client's communication style and tone
2. Themes: Extract 5-7 key themes or topics the client focuses on
3. Values: Identify 5-7 core values or beliefs that drive the client's work
4. Emotional Tone: Describe the emotional qualities present in the client's language (5-7 items)
5. Relatability: Note 5-7 ways the client connects with their audience

For each category, provide a list of specific words or short phrases, not sentences.

Transcript:
%s

Format your response as a structured JSON object with these categories as keys, and arrays of strings as values.`

// Completer sends one prompt to a language model
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// Input is everything the style stage reads
type Input struct {
	Profile    *types.Profile
	Transcript *types.Transcript
}

// Processor runs the style stage
type Processor struct {
	llm Completer
}

// NewProcessor creates a style processor
func NewProcessor(c Completer) *Processor {
	return &Processor{llm: c}
}

// Process asks the model for the five style categories and parses its reply.
// It never writes to the store.
func (p *Processor) Process(ctx context.Context, in Input) (*types.ProfileResult, error) {
	if in.Profile == nil || in.Transcript == nil {
		return nil, errors.New("profile and transcript are required")
	}
	if len(in.Transcript.Chunks) == 0 {
		return nil, errors.New("transcript has no chunks")
	}

	reply, err := p.llm.Complete(ctx, llm.CompletionRequest{
		System:      systemPrompt,
		Prompt:      fmt.Sprintf(analysisPrompt, transcriptMarkdown(in.Transcript)),
		Temperature: 0.5,
		MaxTokens:   1000,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze transcript: %w", err)
	}

	result, err := ParseProfile(reply)
	if err != nil {
		return nil, err
	}

	clientID := in.Profile.ClientID
	if clientID == "" {
		clientID = in.Transcript.ClientID
	}
	result.RawProfile = RenderMarkdown(result, clientID, in.Profile.CreatedAt)
	return result, nil
}

// transcriptMarkdown formats chunks the way they are saved as artifacts
func transcriptMarkdown(t *types.Transcript) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Transcript Chunks for %s\n\n", t.ClientID)
	for _, c := range t.Chunks {
		fmt.Fprintf(&b, "## %s\n%s\n\n", c.ID, c.Text)
	}
	return b.String()
}
