package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/content-pipeline/internal/storage"
	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

type stageDoc[T any] interface {
	*T
	types.Document
	SetStatus(to types.Status) error
	SetMeta(key string, value interface{})
}

// settle records a stage outcome on the entity. Entities that were deleted
// or are no longer processing are left alone. It reports whether the entity
// was completed.
func settle[T any, PT stageDoc[T]](o *Orchestrator, kind types.Kind, coll storage.Collection[T], id string, stageErr error, apply func(PT)) (PT, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	log := o.log.WithFields(logrus.Fields{"kind": kind, "id": id})

	doc, err := coll.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn("Entity removed before stage finished, dropping result")
		} else {
			log.WithError(err).Error("Failed to load entity for stage result")
		}
		return nil, false
	}
	d := PT(doc)
	if d.GetStatus() != types.StatusProcessing {
		log.WithField("status", d.GetStatus()).Warn("Entity no longer processing, dropping result")
		return nil, false
	}

	if stageErr != nil {
		switch {
		case errors.Is(stageErr, ErrStageTimedOut), errors.Is(stageErr, ErrStageCancelled):
		case errors.Is(stageErr, context.DeadlineExceeded):
			stageErr = ErrStageTimedOut
		case errors.Is(stageErr, context.Canceled):
			stageErr = ErrStageCancelled
		}
		_ = d.SetStatus(types.StatusFailed)
		d.SetMeta("error", stageErr.Error())
	} else {
		apply(d)
		_ = d.SetStatus(types.StatusCompleted)
	}

	if err := coll.Update(ctx, doc); err != nil {
		log.WithError(err).Error("Failed to save stage result")
		return nil, false
	}

	if stageErr != nil {
		log.WithError(stageErr).Warn("Stage failed")
		return d, false
	}
	log.Info("Stage completed")
	return d, true
}

func (o *Orchestrator) finishTranscript(id string, res types.StageResult, stageErr error, chain bool) {
	r, _ := res.(*types.TranscriptResult)
	if stageErr == nil && r == nil {
		stageErr = errors.New("transcript stage returned no result")
	}

	t, ok := settle(o, types.KindTranscript, o.store.Transcripts(), id, stageErr, func(t *types.Transcript) {
		t.Chunks = r.Chunks
		t.SetMeta("mode", r.Mode)
		t.SetMeta("chunkCount", r.ChunkCount)
		if r.Language != "" {
			t.SetMeta("language", r.Language)
		}
		if r.Duration > 0 {
			t.SetMeta("duration", r.Duration)
		}
		if o.stages.Local != nil {
			if err := o.stages.Local.KeepMedia(t); err != nil {
				o.log.WithField("transcript_id", t.ID).WithError(err).Warn("Failed to keep uploaded media")
			}
		}
	})
	if !ok {
		return
	}

	if o.stages.Local != nil {
		if dir, err := o.stages.Local.SaveChunks(t); err != nil {
			o.log.WithError(err).Warn("Failed to save chunk artifacts")
		} else {
			o.log.WithField("dir", dir).Debug("Saved chunk artifacts")
		}
	}

	if !chain {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	p, err := o.GenerateProfile(ctx, id)
	if err != nil {
		o.log.WithField("transcript_id", id).WithError(err).Error("Failed to trigger profile generation")
		return
	}
	o.log.WithFields(logrus.Fields{"transcript_id": id, "profile_id": p.ID}).Info("Profile generation triggered")
}

func (o *Orchestrator) finishProfile(id string, res types.StageResult, stageErr error) {
	r, _ := res.(*types.ProfileResult)
	if stageErr == nil && r == nil {
		stageErr = errors.New("style stage returned no result")
	}

	p, ok := settle(o, types.KindProfile, o.store.Profiles(), id, stageErr, func(p *types.Profile) {
		p.Voice = r.Voice
		p.Themes = r.Themes
		p.Values = r.Values
		p.EmotionalTone = r.EmotionalTone
		p.Relatability = r.Relatability
		p.RawProfile = r.RawProfile
		p.SetMeta("source", r.Source)
		if len(r.MissingFields) > 0 {
			p.SetMeta("missingFields", r.MissingFields)
		}
	})
	if !ok || o.stages.Local == nil {
		return
	}
	if _, err := o.stages.Local.SaveProfile(p); err != nil {
		o.log.WithError(err).Warn("Failed to save profile artifacts")
	}
}

func (o *Orchestrator) finishContent(id string, res types.StageResult, stageErr error, clientName string) {
	r, _ := res.(*types.ContentResult)
	if stageErr == nil && r == nil {
		stageErr = errors.New("content stage returned no result")
	}

	c, ok := settle(o, types.KindContent, o.store.Contents(), id, stageErr, func(c *types.Content) {
		c.ContentFields = r.Fields
		if len(r.Fallbacks) > 0 {
			c.SetMeta("fallbacks", r.Fallbacks)
		}
	})
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	project := &types.Project{ProjectID: c.ClientID, Name: clientName, Content: c.ContentFields}
	if err := o.store.Projects().Upsert(ctx, project); err != nil {
		o.log.WithField("client_id", c.ClientID).WithError(err).Warn("Failed to update project")
	}
}

// Sweep cancels running stages past their deadline and fails processing
// entities that have outlived the deadline without a live task. It returns
// the number of entities it failed.
func (o *Orchestrator) Sweep(ctx context.Context) (int, error) {
	now := o.now()
	for _, t := range o.pool.Tasks() {
		if t.Expired(now) {
			o.log.WithFields(logrus.Fields{"id": t.ID, "kind": t.Kind}).Warn("Cancelling stage past its deadline")
			o.pool.Cancel(t.ID)
		}
	}

	total := 0
	n, err := sweepStale(ctx, o, types.KindTranscript, o.store.Transcripts())
	total += n
	if err != nil {
		return total, err
	}
	n, err = sweepStale(ctx, o, types.KindProfile, o.store.Profiles())
	total += n
	if err != nil {
		return total, err
	}
	n, err = sweepStale(ctx, o, types.KindContent, o.store.Contents())
	total += n
	return total, err
}

func sweepStale[T any, PT stageDoc[T]](ctx context.Context, o *Orchestrator, kind types.Kind, coll storage.Collection[T]) (int, error) {
	docs, err := coll.ListByStatus(ctx, types.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("list processing %s: %w", kind, err)
	}

	cutoff := o.now().Add(-o.timeout)
	swept := 0
	for _, doc := range docs {
		d := PT(doc)
		if d.Created().After(cutoff) || o.pool.IsActive(d.GetID()) {
			continue
		}
		if failed, _ := settle(o, kind, coll, d.GetID(), ErrStageTimedOut, func(PT) {}); failed != nil {
			swept++
		}
	}
	if swept > 0 {
		o.log.WithFields(logrus.Fields{"kind": kind, "count": swept}).Warn("Marked stuck entities as failed")
	}
	return swept, nil
}
