package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/codebuildervaibhav/content-pipeline/internal/apperr"
	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

func (h *harness) interview(t *testing.T, callID string, status types.Status) *types.Interview {
	t.Helper()
	iv := &types.Interview{
		Base:        types.Base{Status: status},
		ClientID:    "c1",
		ClientName:  "Ada Baker",
		ClientEmail: "ada@example.com",
		CallID:      callID,
	}
	if err := h.store.Interviews().Insert(context.Background(), iv); err != nil {
		t.Fatal(err)
	}
	return iv
}

func callEvent() CallCompleted {
	return CallCompleted{
		CallID:     "call_1",
		Transcript: "AI: Tell me about your work.\nUser: I bake bread every morning.",
		AudioURL:   "https://example.com/rec.mp3",
		Duration:   312,
		Timestamp:  "2025-03-01T15:30:00Z",
		Metadata:   map[string]interface{}{"endedReason": "hangup"},
	}
}

func TestCompleteCallChainsProfile(t *testing.T) {
	h := newHarness(t, 2, 10, time.Minute)
	ctx := context.Background()
	iv := h.interview(t, "call_1", types.StatusInProgress)

	tr, err := h.orch.CompleteCall(ctx, callEvent())
	if err != nil {
		t.Fatalf("CompleteCall() error = %v", err)
	}
	if tr.SourceType != types.SourceVapi || tr.InterviewID != iv.ID || tr.ClientID != "c1" {
		t.Errorf("transcript = %+v", tr)
	}

	gotIV, _ := h.store.Interviews().Get(ctx, iv.ID)
	if gotIV.Status != types.StatusCompleted {
		t.Errorf("interview status = %s", gotIV.Status)
	}
	if gotIV.AudioURL != "https://example.com/rec.mp3" || gotIV.Duration != 312 {
		t.Errorf("interview = %+v", gotIV)
	}
	want := time.Date(2025, 3, 1, 15, 30, 0, 0, time.UTC)
	if gotIV.CompletedTime == nil || !gotIV.CompletedTime.Equal(want) {
		t.Errorf("completedTime = %v, want %v", gotIV.CompletedTime, want)
	}
	if gotIV.Metadata["endedReason"] != "hangup" {
		t.Errorf("metadata = %v", gotIV.Metadata)
	}

	eventually(t, "profile auto-created", func() bool {
		p, err := h.store.Profiles().FindByRef(ctx, tr.ID)
		return err == nil && p.Status == types.StatusCompleted
	})
}

func TestCompleteCallTwiceCreatesSecondTranscript(t *testing.T) {
	h := newHarness(t, 2, 10, time.Minute)
	ctx := context.Background()
	h.interview(t, "call_1", types.StatusInProgress)

	first, err := h.orch.CompleteCall(ctx, callEvent())
	if err != nil {
		t.Fatalf("first CompleteCall() error = %v", err)
	}
	second, err := h.orch.CompleteCall(ctx, callEvent())
	if err != nil {
		t.Fatalf("second CompleteCall() error = %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("second delivery reused the first transcript")
	}

	all, _ := h.store.Transcripts().List(ctx)
	if len(all) != 2 {
		t.Errorf("transcripts = %d, want 2", len(all))
	}
}

func TestCompleteCallErrors(t *testing.T) {
	h := newHarness(t, 1, 10, time.Minute)
	ctx := context.Background()

	ev := callEvent()
	ev.Transcript = ""
	if _, err := h.orch.CompleteCall(ctx, ev); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("missing transcript err = %v", err)
	}
	if _, err := h.orch.CompleteCall(ctx, callEvent()); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("unknown call err = %v", err)
	}
	all, _ := h.store.Transcripts().List(ctx)
	if len(all) != 0 {
		t.Errorf("transcripts = %d, want none", len(all))
	}
}

func TestCompleteCallWithoutTimestamp(t *testing.T) {
	h := newHarness(t, 1, 10, time.Minute)
	fixed := time.Date(2025, 5, 5, 5, 5, 5, 0, time.UTC)
	h.orch.now = func() time.Time { return fixed }
	iv := h.interview(t, "call_1", types.StatusScheduled)

	ev := callEvent()
	ev.Timestamp = "not a time"
	if _, err := h.orch.CompleteCall(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	got, _ := h.store.Interviews().Get(context.Background(), iv.ID)
	if got.CompletedTime == nil || !got.CompletedTime.Equal(fixed) {
		t.Errorf("completedTime = %v, want %v", got.CompletedTime, fixed)
	}
}

func TestUpdateCallStatus(t *testing.T) {
	tests := []struct {
		name   string
		from   types.Status
		status string
		want   types.Status
	}{
		{"forward", types.StatusScheduled, "in-progress", types.StatusInProgress},
		{"complete", types.StatusInProgress, "completed", types.StatusCompleted},
		{"fail", types.StatusScheduled, "failed", types.StatusFailed},
		{"unknown status", types.StatusScheduled, "ringing", types.StatusScheduled},
		{"backward", types.StatusCompleted, "in-progress", types.StatusCompleted},
		{"same", types.StatusInProgress, "in-progress", types.StatusInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 1, 10, time.Minute)
			iv := h.interview(t, "call_1", tt.from)

			got, err := h.orch.UpdateCallStatus(context.Background(), CallStatus{CallID: "call_1", Status: tt.status})
			if err != nil {
				t.Fatalf("UpdateCallStatus() error = %v", err)
			}
			if got.Status != tt.want {
				t.Errorf("returned status = %s, want %s", got.Status, tt.want)
			}
			stored, _ := h.store.Interviews().Get(context.Background(), iv.ID)
			if stored.Status != tt.want {
				t.Errorf("stored status = %s, want %s", stored.Status, tt.want)
			}
		})
	}
}

func TestUpdateCallStatusErrors(t *testing.T) {
	h := newHarness(t, 1, 10, time.Minute)
	if _, err := h.orch.UpdateCallStatus(context.Background(), CallStatus{CallID: "call_1"}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("missing status err = %v", err)
	}
	if _, err := h.orch.UpdateCallStatus(context.Background(), CallStatus{CallID: "nope", Status: "completed"}); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("unknown call err = %v", err)
	}
}
