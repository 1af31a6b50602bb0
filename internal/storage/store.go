package storage

import (
	"context"
	"errors"

	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

var (
	// ErrNotFound is returned when no document matches
	ErrNotFound = errors.New("document not found")
	// ErrDuplicate is returned when a dependent already exists for the same parent
	ErrDuplicate = errors.New("duplicate document")
)

// Collection persists one entity type
type Collection[T any] interface {
	// Insert assigns an id if empty, stamps timestamps and stores the document
	Insert(ctx context.Context, doc *T) error
	Get(ctx context.Context, id string) (*T, error)
	// List returns all documents, newest first
	List(ctx context.Context) ([]*T, error)
	Update(ctx context.Context, doc *T) error
	Delete(ctx context.Context, id string) error
	// FindByRef returns the newest document whose parent reference equals ref
	FindByRef(ctx context.Context, ref string) (*T, error)
	ListByStatus(ctx context.Context, status types.Status) ([]*T, error)
}

// ProjectStore mirrors generated content per client. Upsert replaces the
// content on every call; the name is kept from the first insert.
type ProjectStore interface {
	Upsert(ctx context.Context, p *types.Project) error
	Get(ctx context.Context, projectID string) (*types.Project, error)
}

// Store is the document store adapter
type Store interface {
	Interviews() Collection[types.Interview]
	Transcripts() Collection[types.Transcript]
	Profiles() Collection[types.Profile]
	Contents() Collection[types.Content]
	Projects() ProjectStore
	Close() error
}

type docPtr[T any] interface {
	*T
	types.Document
}
