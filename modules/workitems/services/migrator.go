package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/drydock-pm/drydock/modules/workitems/domain/workitemid"
	"github.com/drydock-pm/drydock/pkg/logging"
)

type MigratorOptions struct {
	// Location decides which calendar day a created_at belongs to.
	Location      *time.Location
	ProgressEvery int
	SampleSize    int

	Logger *logrus.Entry
	Now    func() time.Time
}

func (o *MigratorOptions) setDefaults() {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.ProgressEvery == 0 {
		o.ProgressEvery = 10
	}
	if o.SampleSize == 0 {
		o.SampleSize = 5
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Migrator rewrites legacy work item ids into the DD/MM/YY/NNN format.
// Running it against an already migrated store is a no-op.
type Migrator struct {
	repo  WorkItemRepository
	tx    Transactor
	alloc *Allocator
	opts  MigratorOptions
	m     *metrics
}

func NewMigrator(repo WorkItemRepository, tx Transactor, alloc *Allocator, opts MigratorOptions) (*Migrator, error) {
	if repo == nil {
		return nil, fmt.Errorf("work item repository is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transactor is required")
	}
	if alloc == nil {
		return nil, fmt.Errorf("allocator is required")
	}
	opts.setDefaults()
	return &Migrator{repo: repo, tx: tx, alloc: alloc, opts: opts, m: getMetrics()}, nil
}

type Analysis struct {
	TotalItems       int       `json:"total_items"`
	LegacyCount      int       `json:"legacy_count"`
	NewFormatCount   int       `json:"new_format_count"`
	FallbackCount    int       `json:"fallback_count"`
	LegacySamples    []string  `json:"legacy_samples"`
	NewFormatSamples []string  `json:"new_format_samples"`
	AnalyzedAt       time.Time `json:"analyzed_at"`
}

func (m *Migrator) Analyze(ctx context.Context) (*Analysis, error) {
	ctx, span := tracer.Start(ctx, "workitems.Analyze")
	defer span.End()

	items, err := m.repo.ListAll(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list work items: %w", err)
	}
	return m.analyze(items), nil
}

func (m *Migrator) analyze(items []WorkItemRecord) *Analysis {
	out := &Analysis{
		TotalItems:       len(items),
		LegacySamples:    []string{},
		NewFormatSamples: []string{},
		AnalyzedAt:       m.opts.Now().UTC(),
	}
	for _, it := range items {
		if workitemid.IsNewFormat(it.ID) {
			out.NewFormatCount++
			if len(out.NewFormatSamples) < m.opts.SampleSize {
				out.NewFormatSamples = append(out.NewFormatSamples, it.ID)
			}
			continue
		}
		out.LegacyCount++
		if workitemid.IsFallback(it.ID) {
			out.FallbackCount++
		}
		if len(out.LegacySamples) < m.opts.SampleSize {
			out.LegacySamples = append(out.LegacySamples, it.ID)
		}
	}
	return out
}

// legacyRecords returns legacy items ordered by project, then created_at, then store order.
func legacyRecords(items []WorkItemRecord) []WorkItemRecord {
	out := make([]WorkItemRecord, 0, len(items))
	for _, it := range items {
		if !workitemid.IsNewFormat(it.ID) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ProjectID != out[j].ProjectID {
			return out[i].ProjectID < out[j].ProjectID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

type bucketKey struct {
	projectID string
	prefix    string
}

type bucket struct {
	key     bucketKey
	ref     time.Time
	records []WorkItemRecord
}

// groupByBucket keeps the first-seen order of buckets and of records within them.
func (m *Migrator) groupByBucket(records []WorkItemRecord) []*bucket {
	index := map[bucketKey]*bucket{}
	out := make([]*bucket, 0)
	for _, rec := range records {
		ref := rec.CreatedAt.In(m.opts.Location)
		key := bucketKey{projectID: rec.ProjectID, prefix: workitemid.DatePrefix(ref)}
		b, ok := index[key]
		if !ok {
			b = &bucket{key: key, ref: ref}
			index[key] = b
			out = append(out, b)
		}
		b.records = append(b.records, rec)
	}
	return out
}

type MigrateOptions struct {
	DryRun            bool
	PreserveHierarchy bool
}

type IDMapping struct {
	OldID     string    `json:"old_id"`
	NewID     string    `json:"new_id"`
	ProjectID string    `json:"project_id"`
	CreatedAt time.Time `json:"created_at"`
}

type MigrationError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type MigrationResult struct {
	Success           bool             `json:"success"`
	DryRun            bool             `json:"dry_run"`
	PreserveHierarchy bool             `json:"preserve_hierarchy"`
	LegacyCount       int              `json:"legacy_count"`
	MigratedCount     int              `json:"migrated_count"`
	ReparentedCount   int64            `json:"reparented_count"`
	Mappings          []IDMapping      `json:"mappings"`
	Errors            []MigrationError `json:"errors"`
	Error             string           `json:"error,omitempty"`
	StartedAt         time.Time        `json:"started_at"`
	FinishedAt        time.Time        `json:"finished_at"`
}

// MigrateToNewFormat previews (DryRun) or commits the legacy id rewrite.
//
// The commit runs in one transaction. Each record's id change and the
// re-pointing of its children share a savepoint; a failing record is
// reported in Errors and the rest of the run still commits.
func (m *Migrator) MigrateToNewFormat(ctx context.Context, opts MigrateOptions) (*MigrationResult, error) {
	ctx, span := tracer.Start(ctx, "workitems.MigrateToNewFormat", trace.WithAttributes(
		attribute.Bool("dry_run", opts.DryRun),
		attribute.Bool("preserve_hierarchy", opts.PreserveHierarchy),
	))
	defer span.End()

	res := &MigrationResult{
		DryRun:            opts.DryRun,
		PreserveHierarchy: opts.PreserveHierarchy,
		Mappings:          []IDMapping{},
		Errors:            []MigrationError{},
		StartedAt:         m.opts.Now().UTC(),
	}

	if opts.DryRun {
		if err := m.dryRun(ctx, res); err != nil {
			span.RecordError(err)
			return nil, err
		}
		res.Success = true
		res.FinishedAt = m.opts.Now().UTC()
		return res, nil
	}

	var committed *MigrationResult
	err := m.tx.InTx(ctx, func(txCtx context.Context) error {
		attempt := *res
		attempt.Mappings = []IDMapping{}
		attempt.Errors = []MigrationError{}
		if err := m.commit(txCtx, &attempt, opts.PreserveHierarchy); err != nil {
			return err
		}
		committed = &attempt
		return nil
	})
	if err != nil {
		span.RecordError(err)
		m.opts.Logger.WithError(err).Error("workitems: id migration rolled back")
		res.Success = false
		res.Error = err.Error()
		res.MigratedCount = 0
		res.ReparentedCount = 0
		res.FinishedAt = m.opts.Now().UTC()
		return res, nil
	}

	committed.Success = true
	committed.FinishedAt = m.opts.Now().UTC()
	m.opts.Logger.WithFields(logrus.Fields{
		"migrated":   committed.MigratedCount,
		"errors":     len(committed.Errors),
		"reparented": committed.ReparentedCount,
	}).Info("workitems: id migration committed")
	return committed, nil
}

// dryRun proposes ids one record at a time with the GenerateOne gap-filling
// rule, treating ids proposed earlier in the run as taken.
func (m *Migrator) dryRun(ctx context.Context, res *MigrationResult) error {
	items, err := m.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list work items: %w", err)
	}
	records := legacyRecords(items)
	res.LegacyCount = len(records)

	taken := map[bucketKey][]int{}
	for _, rec := range records {
		ref := rec.CreatedAt.In(m.opts.Location)
		key := bucketKey{projectID: rec.ProjectID, prefix: workitemid.DatePrefix(ref)}

		seqs, ok := taken[key]
		if !ok {
			_, existing, err := m.alloc.bucketSequences(ctx, rec.ProjectID, ref)
			if err != nil {
				return fmt.Errorf("read bucket %s %s: %w", key.projectID, key.prefix, err)
			}
			seqs = existing
		}

		next := firstGap(seqs)
		if next > workitemid.MaxSequence {
			res.Errors = append(res.Errors, MigrationError{ID: rec.ID, Message: ErrBucketExhausted.Error()})
			taken[key] = seqs
			continue
		}
		seqs = append(seqs, next)
		sort.Ints(seqs)
		taken[key] = seqs

		res.Mappings = append(res.Mappings, IDMapping{
			OldID:     rec.ID,
			NewID:     workitemid.Format(key.prefix, next),
			ProjectID: rec.ProjectID,
			CreatedAt: rec.CreatedAt,
		})
	}
	res.MigratedCount = len(res.Mappings)
	return nil
}

func (m *Migrator) commit(ctx context.Context, res *MigrationResult, preserveHierarchy bool) error {
	items, err := m.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list work items: %w", err)
	}
	records := legacyRecords(items)
	res.LegacyCount = len(records)

	log := m.opts.Logger.WithField("legacy", len(records))
	log.Info("workitems: id migration started")

	processed := 0
	for _, b := range m.groupByBucket(records) {
		ids, err := m.alloc.GenerateBatch(ctx, b.key.projectID, len(b.records), b.ref)
		if err != nil {
			for _, rec := range b.records {
				res.Errors = append(res.Errors, MigrationError{ID: rec.ID, Message: err.Error()})
				m.m.migratedTotal.WithLabelValues("error").Inc()
			}
			processed += len(b.records)
			continue
		}

		for i, rec := range b.records {
			newID := ids[i]
			var reparented int64
			err := m.tx.InSavepoint(ctx, func(spCtx context.Context) error {
				if err := m.repo.UpdateID(spCtx, rec.ID, newID); err != nil {
					return err
				}
				if !preserveHierarchy {
					return nil
				}
				n, err := m.repo.ReparentChildren(spCtx, rec.ID, newID)
				reparented = n
				return err
			})
			processed++

			if err != nil {
				res.Errors = append(res.Errors, MigrationError{ID: rec.ID, Message: err.Error()})
				m.m.migratedTotal.WithLabelValues("error").Inc()
				log.WithError(err).WithField("work_item_id", rec.ID).Warn("workitems: failed to migrate id")
			} else {
				res.MigratedCount++
				res.ReparentedCount += reparented
				res.Mappings = append(res.Mappings, IDMapping{
					OldID:     rec.ID,
					NewID:     newID,
					ProjectID: rec.ProjectID,
					CreatedAt: rec.CreatedAt,
				})
				m.m.migratedTotal.WithLabelValues("ok").Inc()
			}

			if processed%m.opts.ProgressEvery == 0 {
				log.WithFields(logrus.Fields{
					"processed": processed,
					"migrated":  res.MigratedCount,
					"errors":    len(res.Errors),
				}).Info("workitems: id migration progress")
			}
		}
	}
	return nil
}
