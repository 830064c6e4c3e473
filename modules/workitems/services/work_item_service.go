package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type CreateWorkItemInput struct {
	ProjectID string
	Title     string
	ParentID  *string
}

type ImportWorkItem struct {
	Title    string
	ParentID *string
}

// WorkItemService creates work items with allocated ids.
type WorkItemService struct {
	repo  WorkItemRepository
	tx    Transactor
	alloc *Allocator
}

func NewWorkItemService(repo WorkItemRepository, tx Transactor, alloc *Allocator) (*WorkItemService, error) {
	if repo == nil || tx == nil || alloc == nil {
		return nil, fmt.Errorf("work item service requires a repository, a transactor and an allocator")
	}
	return &WorkItemService{repo: repo, tx: tx, alloc: alloc}, nil
}

func (s *WorkItemService) now() time.Time {
	return s.alloc.opts.Now().In(s.alloc.opts.Location)
}

// Create inserts one work item under an id from GenerateOne, allocating again
// when a concurrent creator took the id first.
func (s *WorkItemService) Create(ctx context.Context, in CreateWorkItemInput) (WorkItemRecord, error) {
	if strings.TrimSpace(in.ProjectID) == "" {
		return WorkItemRecord{}, ErrProjectRequired
	}
	createdAt := s.now()
	rec := WorkItemRecord{
		ProjectID: in.ProjectID,
		Title:     strings.TrimSpace(in.Title),
		ParentID:  in.ParentID,
		CreatedAt: createdAt,
	}

	id, err := s.alloc.CreateWithRetry(ctx, in.ProjectID, createdAt, func(ctx context.Context, id string) error {
		rec.ID = id
		return s.repo.Insert(ctx, rec)
	})
	if err != nil {
		return WorkItemRecord{}, err
	}
	rec.ID = id
	s.alloc.opts.Logger.WithFields(logrus.Fields{
		"project_id":   rec.ProjectID,
		"work_item_id": rec.ID,
	}).Debug("workitems: created")
	return rec, nil
}

// Import inserts items in one transaction under consecutive ids from GenerateBatch.
// Any failure rolls back the whole import.
func (s *WorkItemService) Import(ctx context.Context, projectID string, items []ImportWorkItem) ([]WorkItemRecord, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, ErrProjectRequired
	}
	ctx, span := tracer.Start(ctx, "workitems.Import", trace.WithAttributes(
		attribute.String("project_id", projectID),
		attribute.Int("count", len(items)),
	))
	defer span.End()

	createdAt := s.now()
	var out []WorkItemRecord
	err := s.tx.InTx(ctx, func(txCtx context.Context) error {
		ids, err := s.alloc.GenerateBatch(txCtx, projectID, len(items), createdAt)
		if err != nil {
			return err
		}
		out = make([]WorkItemRecord, 0, len(items))
		for i, it := range items {
			rec := WorkItemRecord{
				ID:        ids[i],
				ProjectID: projectID,
				Title:     strings.TrimSpace(it.Title),
				ParentID:  it.ParentID,
				CreatedAt: createdAt,
			}
			if err := s.repo.Insert(txCtx, rec); err != nil {
				return fmt.Errorf("insert %s: %w", rec.ID, err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}
