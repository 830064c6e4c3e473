package services

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDuplicateID = errors.New("work item id already exists")
	ErrIDNotFound  = errors.New("work item id not found")
)

// WorkItemRecord is the slice of a work item the id allocator and migration care about.
type WorkItemRecord struct {
	ID        string    `json:"id"`
	ParentID  *string   `json:"parent_id,omitempty"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// WorkItemRepository is the work item store consumed by the allocator and the migrator.
type WorkItemRepository interface {
	// ListBucketIDs returns new-format ids of projectID starting with prefix and
	// created within [from, to], ordered by created_at.
	ListBucketIDs(ctx context.Context, projectID, prefix string, from, to time.Time) ([]string, error)
	// CountBucket counts the ids ListBucketIDs would return.
	CountBucket(ctx context.Context, projectID, prefix string, from, to time.Time) (int, error)
	// ListAll returns every work item in store order.
	ListAll(ctx context.Context) ([]WorkItemRecord, error)
	UpdateID(ctx context.Context, oldID, newID string) error
	ReparentChildren(ctx context.Context, oldParentID, newParentID string) (int64, error)
	Insert(ctx context.Context, item WorkItemRecord) error
}

// Transactor scopes repository calls made with the returned context.
type Transactor interface {
	InTx(ctx context.Context, fn func(context.Context) error) error
	// InSavepoint must be called inside InTx. A failing fn is rolled back
	// without aborting the enclosing transaction.
	InSavepoint(ctx context.Context, fn func(context.Context) error) error
}
