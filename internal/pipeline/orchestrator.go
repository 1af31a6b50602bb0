// Package pipeline creates stage entities, runs their processors on the
// worker pool and applies the outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/content-pipeline/internal/apperr"
	"github.com/codebuildervaibhav/content-pipeline/internal/content"
	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
	"github.com/codebuildervaibhav/content-pipeline/internal/queue"
	"github.com/codebuildervaibhav/content-pipeline/internal/storage"
	"github.com/codebuildervaibhav/content-pipeline/internal/style"
	"github.com/codebuildervaibhav/content-pipeline/internal/transcription"
	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

var (
	// ErrStageTimedOut is recorded on entities whose stage outlived its deadline
	ErrStageTimedOut = errors.New("stage timed out")
	// ErrStageCancelled is recorded when the worker pool shuts down mid-stage
	ErrStageCancelled = errors.New("stage cancelled")
)

// storeTimeout bounds the store writes that settle a finished stage
const storeTimeout = 30 * time.Second

// TranscriptProcessor derives chunks from a transcript source
type TranscriptProcessor interface {
	Process(ctx context.Context, in transcription.Input) (*types.TranscriptResult, error)
}

// ProfileProcessor derives a style profile from a transcript
type ProfileProcessor interface {
	Process(ctx context.Context, in style.Input) (*types.ProfileResult, error)
}

// ContentProcessor derives content fields from a profile
type ContentProcessor interface {
	Process(ctx context.Context, in content.Input) (*types.ContentResult, error)
}

// Config wires the stage processors
type Config struct {
	Transcripts TranscriptProcessor
	Profiles    ProfileProcessor
	Contents    ContentProcessor
	// Local receives chunk and profile artifacts and kept media when set
	Local        *storage.LocalStorage
	StageTimeout time.Duration
}

// Orchestrator runs the transcript -> profile -> content chain
type Orchestrator struct {
	store   storage.Store
	pool    *queue.WorkerPool
	stages  Config
	timeout time.Duration
	log     *logger.Logger
	now     func() time.Time
}

// New creates an orchestrator that dispatches onto pool
func New(store storage.Store, pool *queue.WorkerPool, cfg Config, log *logger.Logger) *Orchestrator {
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 10 * time.Minute
	}
	return &Orchestrator{
		store:   store,
		pool:    pool,
		stages:  cfg,
		timeout: cfg.StageTimeout,
		log:     log.Component("pipeline"),
		now:     time.Now,
	}
}

// Submission is a transcript source to process
type Submission struct {
	Transcript *types.Transcript
	Files      transcription.Files
	// Fetch, when set, downloads the source files inside the stage deadline
	Fetch func(ctx context.Context) (transcription.Files, error)
	// ChainProfile starts profile generation once the transcript completes
	ChainProfile bool
}

// SubmitTranscript stores the transcript in processing and dispatches the
// transcript stage. It returns as soon as the job is queued.
func (o *Orchestrator) SubmitTranscript(ctx context.Context, sub Submission) (*types.Transcript, error) {
	t := sub.Transcript
	if t.ClientID == "" {
		return nil, apperr.Validation("ERR_MISSING_CLIENT_ID", "clientId is required")
	}
	t.Status = types.StatusProcessing
	if t.Chunks == nil {
		t.Chunks = []types.Chunk{}
	}
	if err := o.store.Transcripts().Insert(ctx, t); err != nil {
		return nil, apperr.Internal("failed to create transcript", err)
	}

	in := transcription.Input{Transcript: copyTranscript(t), Files: sub.Files}
	job := queue.NewJob(t.ID, types.KindTranscript,
		func(ctx context.Context) (types.StageResult, error) {
			if sub.Fetch != nil {
				files, err := sub.Fetch(ctx)
				if err != nil {
					return nil, err
				}
				in.Files = files
			}
			return o.stages.Transcripts.Process(ctx, in)
		},
		func(res types.StageResult, err error) {
			o.finishTranscript(t.ID, res, err, sub.ChainProfile)
		})
	o.dispatch(job)
	return t, nil
}

// GenerateProfile creates a profile for a completed transcript and
// dispatches the style stage
func (o *Orchestrator) GenerateProfile(ctx context.Context, transcriptID string) (*types.Profile, error) {
	if transcriptID == "" {
		return nil, apperr.Validation("ERR_MISSING_TRANSCRIPT_ID", "transcriptId is required")
	}

	t, err := o.store.Transcripts().Get(ctx, transcriptID)
	if err != nil {
		return nil, lookupError(err, "ERR_TRANSCRIPT_NOT_FOUND", "Transcript not found")
	}
	if t.Status != types.StatusCompleted {
		return nil, apperr.NotReady("ERR_TRANSCRIPT_NOT_READY", "Transcript processing not completed")
	}

	if existing, err := o.store.Profiles().FindByRef(ctx, transcriptID); err == nil {
		return nil, profileConflict(existing.ID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.Internal("failed to check existing profile", err)
	}

	p := &types.Profile{
		Base:          types.Base{Status: types.StatusProcessing},
		ClientID:      t.ClientID,
		TranscriptID:  t.ID,
		Voice:         []string{},
		Themes:        []string{},
		Values:        []string{},
		EmotionalTone: []string{},
		Relatability:  []string{},
	}
	if err := o.store.Profiles().Insert(ctx, p); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			if existing, ferr := o.store.Profiles().FindByRef(ctx, transcriptID); ferr == nil {
				return nil, profileConflict(existing.ID)
			}
		}
		return nil, apperr.Internal("failed to create profile", err)
	}

	in := style.Input{Profile: copyProfile(p), Transcript: t}
	job := queue.NewJob(p.ID, types.KindProfile,
		func(ctx context.Context) (types.StageResult, error) {
			return o.stages.Profiles.Process(ctx, in)
		},
		func(res types.StageResult, err error) {
			o.finishProfile(p.ID, res, err)
		})
	o.dispatch(job)
	return p, nil
}

// GenerateContent creates content for a completed profile and dispatches
// the content stage
func (o *Orchestrator) GenerateContent(ctx context.Context, profileID string) (*types.Content, error) {
	if profileID == "" {
		return nil, apperr.Validation("ERR_MISSING_PROFILE_ID", "profileId is required")
	}

	p, err := o.store.Profiles().Get(ctx, profileID)
	if err != nil {
		return nil, lookupError(err, "ERR_PROFILE_NOT_FOUND", "Profile not found")
	}
	if p.Status != types.StatusCompleted {
		return nil, apperr.NotReady("ERR_PROFILE_NOT_READY", "Profile processing not completed")
	}

	if existing, err := o.store.Contents().FindByRef(ctx, profileID); err == nil {
		return nil, contentConflict(existing.ID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.Internal("failed to check existing content", err)
	}

	c := &types.Content{
		Base:          types.Base{Status: types.StatusProcessing},
		ClientID:      p.ClientID,
		ProfileID:     p.ID,
		ContentFields: []types.ContentField{},
	}
	if err := o.store.Contents().Insert(ctx, c); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			if existing, ferr := o.store.Contents().FindByRef(ctx, profileID); ferr == nil {
				return nil, contentConflict(existing.ID)
			}
		}
		return nil, apperr.Internal("failed to create content", err)
	}

	snapshot := copyContent(c)
	var clientName string
	job := queue.NewJob(c.ID, types.KindContent,
		func(ctx context.Context) (types.StageResult, error) {
			t, err := o.store.Transcripts().Get(ctx, p.TranscriptID)
			if err != nil {
				return nil, fmt.Errorf("load transcript %s: %w", p.TranscriptID, err)
			}
			clientName = o.interviewClientName(ctx, t)
			return o.stages.Contents.Process(ctx, content.Input{
				Content:    snapshot,
				Profile:    p,
				Transcript: t,
				ClientName: clientName,
			})
		},
		func(res types.StageResult, err error) {
			o.finishContent(c.ID, res, err, content.ClientName(clientName, p.RawProfile))
		})
	o.dispatch(job)
	return c, nil
}

// dispatch enqueues a job. A job the pool refuses fails its entity at once.
func (o *Orchestrator) dispatch(job *queue.Job) {
	if err := o.pool.Enqueue(job); err != nil {
		o.log.WithFields(logrus.Fields{"id": job.ID, "kind": job.Kind}).WithError(err).Error("Failed to dispatch stage")
		job.Finish(nil, err)
	}
}

func (o *Orchestrator) interviewClientName(ctx context.Context, t *types.Transcript) string {
	if t.InterviewID == "" {
		return ""
	}
	iv, err := o.store.Interviews().Get(ctx, t.InterviewID)
	if err != nil {
		return ""
	}
	return iv.ClientName
}

func lookupError(err error, code, msg string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(code, msg)
	}
	return apperr.Internal(msg, err)
}

func profileConflict(id string) error {
	return apperr.Conflict("ERR_PROFILE_EXISTS", "Profile already exists for this transcript", "profileId", id)
}

func contentConflict(id string) error {
	return apperr.Conflict("ERR_CONTENT_EXISTS", "Content already exists for this profile", "contentId", id)
}

// stage inputs are snapshots so processors never share memory with the store writer

func copyTranscript(t *types.Transcript) *types.Transcript {
	cp := *t
	cp.Chunks = append([]types.Chunk(nil), t.Chunks...)
	return &cp
}

func copyProfile(p *types.Profile) *types.Profile {
	cp := *p
	return &cp
}

func copyContent(c *types.Content) *types.Content {
	cp := *c
	cp.ContentFields = append([]types.ContentField(nil), c.ContentFields...)
	return &cp
}
