package types

// StageResult is the output of one stage processor. It is one of
// *TranscriptResult, *ProfileResult or *ContentResult.
type StageResult interface {
	Stage() Kind
}

// Transcript processing modes
const (
	ModeVTT     = "vtt"
	ModeSRT     = "srt"
	ModeWhisper = "whisper"
	ModeVapi    = "vapi"
	ModeManual  = "manual"
)

// TranscriptResult holds the chunks derived from a transcript source
type TranscriptResult struct {
	Chunks     []Chunk
	Mode       string
	ChunkCount int
	Language   string
	Duration   float64
}

func (*TranscriptResult) Stage() Kind { return KindTranscript }

// Profile parse sources, from most to least structured
const (
	ProfileSourceJSON     = "json"
	ProfileSourceFenced   = "fenced-json"
	ProfileSourceSections = "sections"
)

// ProfileResult holds the five style attributes derived from a transcript.
// MissingFields lists attributes the model did not return; they are empty, never nil.
type ProfileResult struct {
	Voice         []string
	Themes        []string
	Values        []string
	EmotionalTone []string
	Relatability  []string
	RawProfile    string
	Source        string
	MissingFields []string
}

func (*ProfileResult) Stage() Kind { return KindProfile }

// ContentResult holds the ordered content fields. Fallbacks lists the
// generation steps that used canned copy instead of model output.
type ContentResult struct {
	Fields    []ContentField
	Fallbacks []string
}

func (*ContentResult) Stage() Kind { return KindContent }
