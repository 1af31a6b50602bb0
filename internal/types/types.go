package types

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state shared by every pipeline entity
type Status string

// Status constants
const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in-progress"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusApproved   Status = "approved"
)

// Source type constants
const (
	SourceVapi   = "vapi"
	SourceUpload = "upload"
	SourceManual = "manual"
)

// Kind names an entity collection
type Kind string

const (
	KindInterview  Kind = "interview"
	KindTranscript Kind = "transcript"
	KindProfile    Kind = "profile"
	KindContent    Kind = "content"
)

// ErrInvalidTransition is returned when a status change would move an entity backwards
var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[Kind]map[Status][]Status{
	KindInterview: {
		StatusScheduled:  {StatusInProgress, StatusCompleted, StatusFailed},
		StatusInProgress: {StatusCompleted, StatusFailed},
	},
	KindTranscript: {
		StatusProcessing: {StatusCompleted, StatusFailed},
	},
	KindProfile: {
		StatusProcessing: {StatusCompleted, StatusFailed},
	},
	KindContent: {
		StatusProcessing: {StatusCompleted, StatusFailed},
		StatusCompleted:  {StatusApproved},
	},
}

// CanTransition reports whether an entity of the given kind may move from one status to another.
// Staying in the same status is always allowed.
func CanTransition(kind Kind, from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[kind][from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s belongs to the kind's status vocabulary
func ValidStatus(kind Kind, s Status) bool {
	if kind == KindInterview {
		switch s {
		case StatusScheduled, StatusInProgress, StatusCompleted, StatusFailed:
			return true
		}
		return false
	}
	switch s {
	case StatusProcessing, StatusCompleted, StatusFailed:
		return true
	case StatusApproved:
		return kind == KindContent
	}
	return false
}

func transition(kind Kind, current *Status, to Status) error {
	if !CanTransition(kind, *current, to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, kind, *current, to)
	}
	*current = to
	return nil
}

// Document is implemented by every persisted entity
type Document interface {
	GetID() string
	SetID(id string)
	GetStatus() Status
	// RefID is the parent reference the store indexes (callId, interviewId, transcriptId, profileId)
	RefID() string
	Stamp(now time.Time)
	Created() time.Time
}

// Metadata is free-form entity metadata
type Metadata map[string]interface{}

// Base carries the fields every entity shares
type Base struct {
	ID        string    `json:"id" bson:"_id"`
	Status    Status    `json:"status" bson:"status"`
	Metadata  Metadata  `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (b *Base) GetID() string      { return b.ID }
func (b *Base) SetID(id string)    { b.ID = id }
func (b *Base) GetStatus() Status  { return b.Status }
func (b *Base) Created() time.Time { return b.CreatedAt }

// Stamp sets CreatedAt on first save and UpdatedAt on every save
func (b *Base) Stamp(now time.Time) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// SetMeta stores a metadata key, allocating the map if needed
func (b *Base) SetMeta(key string, value interface{}) {
	if b.Metadata == nil {
		b.Metadata = Metadata{}
	}
	b.Metadata[key] = value
}

// Interview is one scheduled or completed voice session
type Interview struct {
	Base          `bson:",inline"`
	ClientID      string     `json:"clientId" bson:"clientId"`
	ClientName    string     `json:"clientName" bson:"clientName"`
	ClientEmail   string     `json:"clientEmail" bson:"clientEmail"`
	ClientPhone   string     `json:"clientPhone,omitempty" bson:"clientPhone,omitempty"`
	CallID        string     `json:"callId,omitempty" bson:"callId,omitempty"`
	TranscriptURL string     `json:"transcriptUrl,omitempty" bson:"transcriptUrl,omitempty"`
	AudioURL      string     `json:"audioUrl,omitempty" bson:"audioUrl,omitempty"`
	Duration      float64    `json:"duration,omitempty" bson:"duration,omitempty"`
	ScheduledTime *time.Time `json:"scheduledTime,omitempty" bson:"scheduledTime,omitempty"`
	CompletedTime *time.Time `json:"completedTime,omitempty" bson:"completedTime,omitempty"`
}

func (i *Interview) RefID() string { return i.CallID }

// SetStatus moves the interview along scheduled -> in-progress -> completed|failed
func (i *Interview) SetStatus(to Status) error {
	return transition(KindInterview, &i.Status, to)
}

// Chunk is one ordered unit of transcript text
type Chunk struct {
	ID        string    `json:"id" bson:"id"`
	Text      string    `json:"text" bson:"text"`
	Start     float64   `json:"start" bson:"start"`
	End       float64   `json:"end" bson:"end"`
	AudioPath string    `json:"audioPath,omitempty" bson:"audioPath,omitempty"`
	VideoPath string    `json:"videoPath,omitempty" bson:"videoPath,omitempty"`
	Embedding []float64 `json:"embedding,omitempty" bson:"embedding,omitempty"`
}

// Transcript is raw or processed spoken content
type Transcript struct {
	Base        `bson:",inline"`
	ClientID    string  `json:"clientId" bson:"clientId"`
	InterviewID string  `json:"interviewId,omitempty" bson:"interviewId,omitempty"`
	SourceType  string  `json:"sourceType" bson:"sourceType"`
	SourceURL   string  `json:"sourceUrl,omitempty" bson:"sourceUrl,omitempty"`
	Chunks      []Chunk `json:"chunks" bson:"chunks"`
	RawText     string  `json:"rawText,omitempty" bson:"rawText,omitempty"`
}

func (t *Transcript) RefID() string { return t.InterviewID }

// SetStatus moves the transcript from processing to completed or failed
func (t *Transcript) SetStatus(to Status) error {
	return transition(KindTranscript, &t.Status, to)
}

// Text joins chunk texts with blank lines
func (t *Transcript) Text() string {
	var out []byte
	for i, c := range t.Chunks {
		if i > 0 {
			out = append(out, "\n\n"...)
		}
		out = append(out, c.Text...)
	}
	return string(out)
}

// Profile is the derived style fingerprint of one transcript
type Profile struct {
	Base          `bson:",inline"`
	ClientID      string   `json:"clientId" bson:"clientId"`
	TranscriptID  string   `json:"transcriptId" bson:"transcriptId"`
	Voice         []string `json:"voice" bson:"voice"`
	Themes        []string `json:"themes" bson:"themes"`
	Values        []string `json:"values" bson:"values"`
	EmotionalTone []string `json:"emotionalTone" bson:"emotionalTone"`
	Relatability  []string `json:"relatability" bson:"relatability"`
	RawProfile    string   `json:"rawProfile,omitempty" bson:"rawProfile,omitempty"`
}

func (p *Profile) RefID() string { return p.TranscriptID }

// SetStatus moves the profile from processing to completed or failed
func (p *Profile) SetStatus(to Status) error {
	return transition(KindProfile, &p.Status, to)
}

// ContentField is one named piece of generated copy
type ContentField struct {
	Key   string `json:"key" bson:"key"`
	Value string `json:"value" bson:"value"`
}

// Content is the set of marketing artifacts generated from one profile
type Content struct {
	Base          `bson:",inline"`
	ClientID      string         `json:"clientId" bson:"clientId"`
	ProfileID     string         `json:"profileId" bson:"profileId"`
	ContentFields []ContentField `json:"contentFields" bson:"contentFields"`
}

func (c *Content) RefID() string { return c.ProfileID }

// SetStatus moves the content along processing -> completed|failed and completed -> approved
func (c *Content) SetStatus(to Status) error {
	return transition(KindContent, &c.Status, to)
}

// Field returns the value stored under key
func (c *Content) Field(key string) (string, bool) {
	for _, f := range c.ContentFields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Project mirrors a client's latest generated content fields
type Project struct {
	ProjectID string         `json:"projectId" bson:"projectId"`
	Name      string         `json:"name" bson:"name"`
	Content   []ContentField `json:"content" bson:"content"`
	CreatedAt time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt" bson:"updatedAt"`
}
