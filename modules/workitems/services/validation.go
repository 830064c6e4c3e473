package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/drydock-pm/drydock/modules/workitems/domain/workitemid"
)

type OrphanRef struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
}

type ValidationResult struct {
	IsValid      bool        `json:"is_valid"`
	TotalItems   int         `json:"total_items"`
	LegacyIDs    []string    `json:"legacy_ids"`
	DuplicateIDs []string    `json:"duplicate_ids"`
	Orphans      []OrphanRef `json:"orphans"`
}

// ValidateMigration checks that every id is new-format, unique, and that every
// parent reference resolves. Problems are reported, never returned as errors.
func (m *Migrator) ValidateMigration(ctx context.Context) (*ValidationResult, error) {
	ctx, span := tracer.Start(ctx, "workitems.ValidateMigration")
	defer span.End()

	items, err := m.repo.ListAll(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list work items: %w", err)
	}
	return validate(items), nil
}

func validate(items []WorkItemRecord) *ValidationResult {
	out := &ValidationResult{
		TotalItems:   len(items),
		LegacyIDs:    []string{},
		DuplicateIDs: []string{},
		Orphans:      []OrphanRef{},
	}

	seen := make(map[string]int, len(items))
	for _, it := range items {
		seen[it.ID]++
		if !workitemid.IsNewFormat(it.ID) {
			out.LegacyIDs = append(out.LegacyIDs, it.ID)
		}
	}
	for id, n := range seen {
		if n > 1 {
			out.DuplicateIDs = append(out.DuplicateIDs, id)
		}
	}
	sort.Strings(out.DuplicateIDs)

	for _, it := range items {
		if it.ParentID == nil {
			continue
		}
		if _, ok := seen[*it.ParentID]; !ok {
			out.Orphans = append(out.Orphans, OrphanRef{ID: it.ID, ParentID: *it.ParentID})
		}
	}

	out.IsValid = len(out.LegacyIDs) == 0 && len(out.DuplicateIDs) == 0 && len(out.Orphans) == 0
	return out
}
