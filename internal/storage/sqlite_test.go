package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tr := &types.Transcript{
		Base:       types.Base{Status: types.StatusProcessing},
		ClientID:   "c1",
		SourceType: types.SourceManual,
		RawText:    "hello",
	}
	if err := s.Transcripts().Insert(ctx, tr); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if tr.ID == "" {
		t.Fatal("Insert() should assign an id")
	}
	if tr.CreatedAt.IsZero() {
		t.Fatal("Insert() should stamp CreatedAt")
	}

	got, err := s.Transcripts().Get(ctx, tr.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ClientID != "c1" || got.RawText != "hello" || got.Status != types.StatusProcessing {
		t.Errorf("Get() = %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Profiles().Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		iv := &types.Interview{Base: types.Base{Status: types.StatusScheduled}, ClientName: "n"}
		if err := s.Interviews().Insert(ctx, iv); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		ids = append(ids, iv.ID)
	}

	list, err := s.Interviews().List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len(List()) = %d, want 3", len(list))
	}
	if list[0].ID != ids[2] || list[2].ID != ids[0] {
		t.Errorf("List() order = %s,%s,%s; want newest first", list[0].ID, list[1].ID, list[2].ID)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &types.Content{Base: types.Base{Status: types.StatusProcessing}, ProfileID: "p1"}
	if err := s.Contents().Insert(ctx, c); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	c.Status = types.StatusCompleted
	c.ContentFields = []types.ContentField{{Key: "rendered_title", Value: "Ada"}}
	if err := s.Contents().Update(ctx, c); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := s.Contents().Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != types.StatusCompleted || len(got.ContentFields) != 1 {
		t.Errorf("Get() after update = %+v", got)
	}

	if err := s.Contents().Delete(ctx, c.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Contents().Delete(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
	missing := &types.Content{Base: types.Base{ID: "gone"}}
	if err := s.Contents().Update(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
}

func TestFindByRef(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &types.Profile{Base: types.Base{Status: types.StatusProcessing}, TranscriptID: "t1"}
	if err := s.Profiles().Insert(ctx, p); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := s.Profiles().FindByRef(ctx, "t1")
	if err != nil {
		t.Fatalf("FindByRef() error = %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("FindByRef() id = %s, want %s", got.ID, p.ID)
	}

	if _, err := s.Profiles().FindByRef(ctx, "t2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByRef(t2) error = %v, want ErrNotFound", err)
	}
	if _, err := s.Profiles().FindByRef(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByRef(empty) error = %v, want ErrNotFound", err)
	}
}

func TestDependentRefIsUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &types.Profile{Base: types.Base{Status: types.StatusProcessing}, TranscriptID: "t1"}
	if err := s.Profiles().Insert(ctx, first); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	second := &types.Profile{Base: types.Base{Status: types.StatusProcessing}, TranscriptID: "t1"}
	if err := s.Profiles().Insert(ctx, second); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second Insert() error = %v, want ErrDuplicate", err)
	}

	// transcripts may share an interview
	for i := 0; i < 2; i++ {
		tr := &types.Transcript{Base: types.Base{Status: types.StatusProcessing}, InterviewID: "iv1"}
		if err := s.Transcripts().Insert(ctx, tr); err != nil {
			t.Fatalf("Transcript Insert() #%d error = %v", i, err)
		}
	}
}

func TestListByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, st := range []types.Status{types.StatusProcessing, types.StatusCompleted, types.StatusProcessing} {
		tr := &types.Transcript{Base: types.Base{Status: st}}
		if err := s.Transcripts().Insert(ctx, tr); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	got, err := s.Transcripts().ListByStatus(ctx, types.StatusProcessing)
	if err != nil {
		t.Fatalf("ListByStatus() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len(ListByStatus()) = %d, want 2", len(got))
	}
}

func TestProjectUpsert(t *testing.T) {
	testProjectUpsert(t, newTestStore(t).Projects())
}
