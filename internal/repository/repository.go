package repository

import (
	"context"

	"studyhub/portal/internal/domain"
)

var (
	ErrNotFound = RepositoryError("not found")
	// ErrConflict is returned when a save loses a race with another writer.
	ErrConflict = RepositoryError("version conflict")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// ContainerFilter narrows a container listing. Zero fields match everything.
type ContainerFilter struct {
	Kind    domain.ContainerKind
	Exam    string
	Year    string
	Branch  string
	Subject string // matches containers holding a subject with this name
	Skip    int64
	Limit   int64
}

// ContainerRepository persists exam and course aggregates.
type ContainerRepository interface {
	GetByKey(ctx context.Context, key domain.ContainerKey) (*domain.Container, error)
	Find(ctx context.Context, filter ContainerFilter) ([]domain.Container, error)
	// Save inserts a container without ID or replaces one whose stored version
	// still equals c.Version. On success c.Version is incremented.
	Save(ctx context.Context, c *domain.Container) error
}

// ActivityRepository persists the append-only activity log.
type ActivityRepository interface {
	Create(ctx context.Context, a *domain.Activity) error
	// List returns records newest first. An empty userID lists every user.
	List(ctx context.Context, userID string) ([]domain.Activity, error)
	DeleteByScope(ctx context.Context, scope domain.Scope) (int64, error)
}
