package services

import (
	"context"
	"fmt"

	"github.com/drydock-pm/drydock/modules/workitems/domain/workitemid"
)

// largeMigrationThreshold is the legacy count above which a maintenance window is advised.
const largeMigrationThreshold = 500

type Recommendation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Recommendations struct {
	Analysis *Analysis       `json:"analysis"`
	Items    []Recommendation `json:"items"`
}

func (m *Migrator) GetMigrationRecommendations(ctx context.Context) (*Recommendations, error) {
	ctx, span := tracer.Start(ctx, "workitems.GetMigrationRecommendations")
	defer span.End()

	items, err := m.repo.ListAll(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list work items: %w", err)
	}
	analysis := m.analyze(items)
	out := &Recommendations{Analysis: analysis, Items: []Recommendation{}}

	if analysis.LegacyCount == 0 {
		out.Items = append(out.Items, Recommendation{
			Code:    "NO_MIGRATION_NEEDED",
			Message: fmt.Sprintf("all %d work items already use the DD/MM/YY/NNN format", analysis.TotalItems),
		})
		return out, nil
	}

	out.Items = append(out.Items, Recommendation{
		Code:    "BACKUP_FIRST",
		Message: fmt.Sprintf("%d legacy ids found: take a backup and review a dry run before migrating", analysis.LegacyCount),
	})
	if analysis.LegacyCount > largeMigrationThreshold {
		out.Items = append(out.Items, Recommendation{
			Code:    "LARGE_MIGRATION",
			Message: fmt.Sprintf("%d ids will be rewritten in one transaction: run during a maintenance window", analysis.LegacyCount),
		})
	}
	if analysis.FallbackCount > 0 {
		out.Items = append(out.Items, Recommendation{
			Code:    "FALLBACK_IDS_PRESENT",
			Message: fmt.Sprintf("%d ids were minted by the allocator fallback: check store errors around their creation time", analysis.FallbackCount),
		})
	}

	legacy := legacyRecords(items)
	parents := map[string]bool{}
	for _, it := range items {
		if it.ParentID != nil {
			parents[*it.ParentID] = true
		}
	}
	legacyParents := 0
	for _, rec := range legacy {
		if parents[rec.ID] {
			legacyParents++
		}
	}
	if legacyParents > 0 {
		out.Items = append(out.Items, Recommendation{
			Code:    "PRESERVE_HIERARCHY",
			Message: fmt.Sprintf("%d legacy items have children: migrate with hierarchy preservation enabled", legacyParents),
		})
	}

	for _, b := range m.groupByBucket(legacy) {
		_, seqs, err := m.alloc.bucketSequences(ctx, b.key.projectID, b.ref)
		if err != nil {
			return nil, fmt.Errorf("read bucket %s %s: %w", b.key.projectID, b.key.prefix, err)
		}
		if len(seqs) == 0 {
			continue
		}
		if highest := seqs[len(seqs)-1]; highest > len(seqs) {
			out.Items = append(out.Items, Recommendation{
				Code: "BUCKET_HAS_GAPS",
				Message: fmt.Sprintf(
					"project %s on %s uses %d ids up to %s: migration appends after the count and may collide with existing ids",
					b.key.projectID, b.key.prefix, len(seqs), workitemid.Format(b.key.prefix, highest),
				),
			})
		}
	}
	return out, nil
}
