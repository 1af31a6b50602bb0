package continuation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
	"github.com/codebuildervaibhav/content-pipeline/internal/vapi"
)

// ErrMissingClientInfo is returned when a call's analysis has no email or name
var ErrMissingClientInfo = errors.New("call analysis has no client email or name")

// pausePhrases mark an assistant turn that parks the interview for a later call
var pausePhrases = []string{
	"continue this conversation when you call back",
	"pause here and continue next time",
}

// lastExchangeCount is the number of trailing messages carried into a continuation
const lastExchangeCount = 6

// CallFetcher reads finished calls from the voice API
type CallFetcher interface {
	GetCall(ctx context.Context, callID string) (*vapi.Call, error)
	GetCallTranscript(ctx context.Context, callID string) ([]vapi.Message, error)
	GetCallAnalysis(ctx context.Context, callID string) (*vapi.Analysis, error)
}

// Context is what the interviewer needs to resume an interrupted interview
type Context struct {
	ClientName         string         `json:"clientName"`
	ClientEmail        string         `json:"clientEmail"`
	LastTopic          string         `json:"lastTopic"`
	LastExchanges      []vapi.Message `json:"lastExchanges"`
	ContinuationPrompt string         `json:"continuationPrompt"`
}

// Service records finished calls and prepares continuation context
type Service struct {
	store *Store
	calls CallFetcher
	log   *logger.Logger
}

// NewService creates a continuation service over store
func NewService(store *Store, calls CallFetcher, log *logger.Logger) *Service {
	return &Service{store: store, calls: calls, log: log.Component("continuation")}
}

// ProcessCompletedCall fetches a finished call and appends it to the
// client's history
func (s *Service) ProcessCompletedCall(ctx context.Context, callID string) error {
	if s.calls == nil {
		return errors.New("voice API is not configured")
	}
	if _, err := s.calls.GetCall(ctx, callID); err != nil {
		return err
	}
	transcript, err := s.calls.GetCallTranscript(ctx, callID)
	if err != nil {
		return err
	}
	analysis, err := s.calls.GetCallAnalysis(ctx, callID)
	if err != nil {
		return err
	}

	email := stringField(analysis.StructuredData, "email_address")
	fullName := stringField(analysis.StructuredData, "full_name")
	if email == "" || fullName == "" {
		return fmt.Errorf("call %s: %w", callID, ErrMissingClientInfo)
	}

	complete := !Interrupted(transcript)
	s.store.Append(email, fullName, CallRecord{
		CallID:     callID,
		Timestamp:  s.store.now().UTC(),
		Transcript: transcript,
		Analysis:   analysis,
	}, complete)

	s.log.WithFields(logrus.Fields{
		"call_id":  callID,
		"email":    NormalizeEmail(email),
		"complete": complete,
	}).Info("Stored conversation")
	return nil
}

// Interrupted reports whether the assistant paused the interview for a callback
func Interrupted(transcript []vapi.Message) bool {
	for _, m := range transcript {
		if m.Role != "assistant" {
			continue
		}
		for _, phrase := range pausePhrases {
			if strings.Contains(m.Content, phrase) {
				return true
			}
		}
	}
	return false
}

// Prepare returns continuation context for a client whose last interview
// was interrupted. ok is false for unknown clients and completed interviews.
func (s *Service) Prepare(email string) (*Context, bool) {
	conv, found := s.store.Get(email)
	if !found || conv.IsComplete || len(conv.CallHistory) == 0 {
		return nil, false
	}

	last := conv.CallHistory[len(conv.CallHistory)-1]
	exchanges := last.Transcript
	if len(exchanges) > lastExchangeCount {
		exchanges = exchanges[len(exchanges)-lastExchangeCount:]
	}

	topic := "your story"
	if last.Analysis != nil {
		if t := stringField(last.Analysis.StructuredData, "focus_area"); t != "" {
			topic = t
		}
	}

	normalized := NormalizeEmail(email)
	encoded, _ := json.Marshal(exchanges)
	prompt := fmt.Sprintf("The client %s (%s) is returning to continue a previous interview. "+
		"Their last conversation ended while discussing %s. "+
		"Here are the last few exchanges from that conversation: %s. "+
		"Please acknowledge that you recognize them, mention the topic they were discussing, "+
		"and ask if they'd like to continue where they left off.",
		conv.FullName, normalized, topic, encoded)

	return &Context{
		ClientName:         conv.FullName,
		ClientEmail:        normalized,
		LastTopic:          topic,
		LastExchanges:      exchanges,
		ContinuationPrompt: prompt,
	}, true
}

func stringField(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	v, _ := data[key].(string)
	return strings.TrimSpace(v)
}
