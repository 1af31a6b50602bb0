package types

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		kind     Kind
		from, to Status
		want     bool
	}{
		{KindTranscript, StatusProcessing, StatusCompleted, true},
		{KindTranscript, StatusProcessing, StatusFailed, true},
		{KindTranscript, StatusCompleted, StatusProcessing, false},
		{KindTranscript, StatusFailed, StatusCompleted, false},
		{KindTranscript, StatusCompleted, StatusApproved, false},
		{KindProfile, StatusCompleted, StatusFailed, false},
		{KindContent, StatusCompleted, StatusApproved, true},
		{KindContent, StatusProcessing, StatusApproved, false},
		{KindContent, StatusApproved, StatusCompleted, false},
		{KindContent, StatusFailed, StatusApproved, false},
		{KindInterview, StatusScheduled, StatusInProgress, true},
		{KindInterview, StatusScheduled, StatusCompleted, true},
		{KindInterview, StatusInProgress, StatusScheduled, false},
		{KindInterview, StatusCompleted, StatusInProgress, false},
		{KindInterview, StatusCompleted, StatusCompleted, true},
		{KindContent, StatusApproved, StatusApproved, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind)+":"+string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.kind, tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSetStatusRejectsBackwardMove(t *testing.T) {
	c := &Content{Base: Base{Status: StatusApproved}}
	err := c.SetStatus(StatusProcessing)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("SetStatus() error = %v, want ErrInvalidTransition", err)
	}
	if c.Status != StatusApproved {
		t.Errorf("Status = %s, want %s", c.Status, StatusApproved)
	}
}

func TestSetStatusSameStateIsNoop(t *testing.T) {
	tr := &Transcript{Base: Base{Status: StatusFailed}}
	if err := tr.SetStatus(StatusFailed); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
}

func TestValidStatus(t *testing.T) {
	if ValidStatus(KindProfile, StatusApproved) {
		t.Error("approved should not be valid for profiles")
	}
	if !ValidStatus(KindContent, StatusApproved) {
		t.Error("approved should be valid for content")
	}
	if ValidStatus(KindInterview, StatusProcessing) {
		t.Error("processing should not be valid for interviews")
	}
	if !ValidStatus(KindInterview, StatusInProgress) {
		t.Error("in-progress should be valid for interviews")
	}
}

func TestStamp(t *testing.T) {
	var b Base
	first := time.Date(2025, 1, 23, 10, 0, 0, 0, time.UTC)
	b.Stamp(first)
	later := first.Add(time.Hour)
	b.Stamp(later)

	if !b.CreatedAt.Equal(first) {
		t.Errorf("CreatedAt = %v, want %v", b.CreatedAt, first)
	}
	if !b.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", b.UpdatedAt, later)
	}
}

func TestTranscriptText(t *testing.T) {
	tr := &Transcript{Chunks: []Chunk{{Text: "one"}, {Text: "two"}}}
	if got := tr.Text(); got != "one\n\ntwo" {
		t.Errorf("Text() = %q", got)
	}
}

func TestContentField(t *testing.T) {
	c := &Content{ContentFields: []ContentField{{Key: "rendered_title", Value: "Ada"}}}
	if v, ok := c.Field("rendered_title"); !ok || v != "Ada" {
		t.Errorf("Field() = %q, %v", v, ok)
	}
	if _, ok := c.Field("missing"); ok {
		t.Error("Field(missing) should not be found")
	}
}
