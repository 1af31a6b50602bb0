package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/content-pipeline/internal/apperr"
	"github.com/codebuildervaibhav/content-pipeline/internal/storage"
	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

// CallCompleted is the voice API's call-completed event
type CallCompleted struct {
	CallID     string                 `json:"call_id"`
	Transcript string                 `json:"transcript"`
	AudioURL   string                 `json:"audio_url"`
	ClientID   string                 `json:"client_id"`
	Duration   float64                `json:"duration"`
	Timestamp  string                 `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// CallStatus is the voice API's call-status event
type CallStatus struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`
}

// callStatuses maps voice API statuses onto interview statuses
var callStatuses = map[string]types.Status{
	"in-progress": types.StatusInProgress,
	"completed":   types.StatusCompleted,
	"failed":      types.StatusFailed,
}

// CompleteCall marks the call's interview completed, stores the delivered
// transcript and dispatches the transcript stage, which chains into profile
// generation. Every delivery creates a new transcript.
func (o *Orchestrator) CompleteCall(ctx context.Context, ev CallCompleted) (*types.Transcript, error) {
	if ev.CallID == "" || ev.Transcript == "" {
		return nil, apperr.Validation("ERR_MISSING_FIELDS", "Missing required fields")
	}

	iv, err := o.interviewByCall(ctx, ev.CallID)
	if err != nil {
		return nil, err
	}

	log := o.log.WithFields(logrus.Fields{"call_id": ev.CallID, "interview_id": iv.ID})

	if err := iv.SetStatus(types.StatusCompleted); err != nil {
		log.WithField("status", iv.Status).Warn("Interview cannot move to completed, keeping status")
	}
	iv.AudioURL = ev.AudioURL
	iv.TranscriptURL = ev.AudioURL
	iv.Duration = ev.Duration
	completed := o.eventTime(ev.Timestamp)
	iv.CompletedTime = &completed
	for k, v := range ev.Metadata {
		iv.SetMeta(k, v)
	}
	if err := o.store.Interviews().Update(ctx, iv); err != nil {
		return nil, apperr.Internal("failed to update interview", err)
	}

	clientID := iv.ClientID
	if clientID == "" {
		clientID = ev.ClientID
	}
	t, err := o.SubmitTranscript(ctx, Submission{
		Transcript: &types.Transcript{
			ClientID:    clientID,
			InterviewID: iv.ID,
			SourceType:  types.SourceVapi,
			SourceURL:   ev.AudioURL,
			RawText:     ev.Transcript,
		},
		ChainProfile: true,
	})
	if err != nil {
		return nil, err
	}

	log.WithField("transcript_id", t.ID).Info("Call completed, transcript queued")
	return t, nil
}

// UpdateCallStatus maps a call status onto its interview. Unknown statuses
// and backward moves leave the interview unchanged.
func (o *Orchestrator) UpdateCallStatus(ctx context.Context, ev CallStatus) (*types.Interview, error) {
	if ev.CallID == "" || ev.Status == "" {
		return nil, apperr.Validation("ERR_MISSING_FIELDS", "Missing required fields")
	}

	iv, err := o.interviewByCall(ctx, ev.CallID)
	if err != nil {
		return nil, err
	}

	to, known := callStatuses[ev.Status]
	if !known || to == iv.Status {
		return iv, nil
	}
	if err := iv.SetStatus(to); err != nil {
		o.log.WithFields(logrus.Fields{"call_id": ev.CallID, "from": iv.Status, "to": to}).Warn("Ignoring backward call status")
		return iv, nil
	}
	if err := o.store.Interviews().Update(ctx, iv); err != nil {
		return nil, apperr.Internal("failed to update interview", err)
	}
	return iv, nil
}

func (o *Orchestrator) interviewByCall(ctx context.Context, callID string) (*types.Interview, error) {
	iv, err := o.store.Interviews().FindByRef(ctx, callID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			o.log.WithField("call_id", callID).Error("Interview not found for call")
			return nil, apperr.NotFound("ERR_INTERVIEW_NOT_FOUND", "Interview not found")
		}
		return nil, apperr.Internal("failed to find interview", err)
	}
	return iv, nil
}

// eventTime parses an RFC 3339 event timestamp, falling back to now
func (o *Orchestrator) eventTime(ts string) time.Time {
	if ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			return t.UTC()
		}
	}
	return o.now().UTC()
}
