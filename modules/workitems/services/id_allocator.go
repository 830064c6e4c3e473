package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/drydock-pm/drydock/modules/workitems/domain/workitemid"
	"github.com/drydock-pm/drydock/pkg/logging"
)

type AllocatorOptions struct {
	// Location supplies "today" when no reference date is given.
	Location       *time.Location
	FallbackPrefix string
	InsertRetries  int

	Logger *logrus.Entry
	Now    func() time.Time
}

func (o *AllocatorOptions) setDefaults() {
	if o.Location == nil {
		o.Location = time.Local
	}
	if strings.TrimSpace(o.FallbackPrefix) == "" {
		o.FallbackPrefix = workitemid.DefaultFallbackPrefix
	}
	if o.InsertRetries == 0 {
		o.InsertRetries = 5
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Allocator hands out DD/MM/YY/NNN ids per (project, calendar day) bucket.
//
// Allocation is read-then-write: two callers racing on the same bucket can be
// handed the same id. Uniqueness is enforced by the store; CreateWithRetry
// re-allocates when the insert reports ErrDuplicateID.
type Allocator struct {
	repo WorkItemRepository
	opts AllocatorOptions
	m    *metrics
}

func NewAllocator(repo WorkItemRepository, opts AllocatorOptions) (*Allocator, error) {
	if repo == nil {
		return nil, fmt.Errorf("work item repository is required")
	}
	opts.setDefaults()
	return &Allocator{repo: repo, opts: opts, m: getMetrics()}, nil
}

func (a *Allocator) Location() *time.Location {
	return a.opts.Location
}

func (a *Allocator) reference(ref time.Time) time.Time {
	if ref.IsZero() {
		return a.opts.Now().In(a.opts.Location)
	}
	return ref
}

// bucketSequences returns the date prefix of ref and the positive sequence
// numbers already used in that bucket, sorted ascending.
func (a *Allocator) bucketSequences(ctx context.Context, projectID string, ref time.Time) (string, []int, error) {
	prefix := workitemid.DatePrefix(ref)
	from, to := workitemid.DayBounds(ref)

	ids, err := a.repo.ListBucketIDs(ctx, projectID, prefix+"/", from, to)
	if err != nil {
		return prefix, nil, err
	}

	seqs := make([]int, 0, len(ids))
	for _, id := range ids {
		if n := workitemid.Sequence(id); n > 0 {
			seqs = append(seqs, n)
		}
	}
	sort.Ints(seqs)
	return prefix, seqs, nil
}

// firstGap returns the smallest positive integer absent from sorted.
func firstGap(sorted []int) int {
	candidate := 1
	for _, n := range sorted {
		if n < candidate {
			continue
		}
		if n != candidate {
			break
		}
		candidate++
	}
	return candidate
}

// GenerateOne returns the lowest free id in the bucket of (projectID, ref).
// A zero ref means now. Store failures never surface: a legacy-shaped fallback
// id is returned instead so creation is not blocked.
func (a *Allocator) GenerateOne(ctx context.Context, projectID string, ref time.Time) (string, error) {
	if strings.TrimSpace(projectID) == "" {
		return "", ErrProjectRequired
	}
	ref = a.reference(ref)

	ctx, span := tracer.Start(ctx, "workitems.GenerateOne", trace.WithAttributes(
		attribute.String("project_id", projectID),
	))
	defer span.End()

	prefix, seqs, err := a.bucketSequences(ctx, projectID, ref)
	if err != nil {
		span.RecordError(err)
		return a.fallback(projectID, prefix, "store_error", err), nil
	}

	next := firstGap(seqs)
	if next > workitemid.MaxSequence {
		return a.fallback(projectID, prefix, "bucket_full", ErrBucketExhausted), nil
	}

	a.m.allocatedTotal.WithLabelValues("single").Inc()
	id := workitemid.Format(prefix, next)
	span.SetAttributes(attribute.String("work_item_id", id))
	return id, nil
}

func (a *Allocator) fallback(projectID, prefix, reason string, cause error) string {
	id := workitemid.NewFallback(a.opts.FallbackPrefix, a.opts.Now())
	a.m.fallbackTotal.WithLabelValues(reason).Inc()
	a.opts.Logger.WithError(cause).WithFields(logrus.Fields{
		"project_id":  projectID,
		"date_prefix": prefix,
		"fallback_id": id,
	}).Warn("workitems: id allocation failed, using fallback id")
	return id
}

// GenerateBatch returns count consecutive ids starting after the number of ids
// already in the bucket. Unlike GenerateOne it does not fill gaps: bulk callers
// append. The bucket is counted once for the whole batch.
func (a *Allocator) GenerateBatch(ctx context.Context, projectID string, count int, ref time.Time) ([]string, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, ErrProjectRequired
	}
	if count < 0 {
		return nil, ErrInvalidCount
	}
	if count == 0 {
		return []string{}, nil
	}
	ref = a.reference(ref)

	ctx, span := tracer.Start(ctx, "workitems.GenerateBatch", trace.WithAttributes(
		attribute.String("project_id", projectID),
		attribute.Int("count", count),
	))
	defer span.End()

	prefix := workitemid.DatePrefix(ref)
	from, to := workitemid.DayBounds(ref)
	existing, err := a.repo.CountBucket(ctx, projectID, prefix+"/", from, to)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("count bucket %s/%s: %w", projectID, prefix, err)
	}

	start := existing + 1
	if start+count-1 > workitemid.MaxSequence {
		return nil, fmt.Errorf("%w: %s %s has %d ids, %d requested", ErrBucketExhausted, projectID, prefix, existing, count)
	}

	ids := make([]string, count)
	for i := range ids {
		ids[i] = workitemid.Format(prefix, start+i)
	}
	a.m.allocatedTotal.WithLabelValues("batch").Add(float64(count))
	return ids, nil
}

// CreateWithRetry allocates an id with GenerateOne and hands it to insert,
// allocating again while insert reports ErrDuplicateID. insert must not run
// inside a transaction that a failed statement would abort.
func (a *Allocator) CreateWithRetry(ctx context.Context, projectID string, ref time.Time, insert func(ctx context.Context, id string) error) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= a.opts.InsertRetries; attempt++ {
		id, err := a.GenerateOne(ctx, projectID, ref)
		if err != nil {
			return "", err
		}
		err = insert(ctx, id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrDuplicateID) {
			return "", err
		}
		lastErr = err
		a.m.retryTotal.Inc()
		a.opts.Logger.WithFields(logrus.Fields{
			"project_id":   projectID,
			"work_item_id": id,
			"attempt":      attempt,
		}).Info("workitems: id taken by a concurrent insert, retrying")
	}
	return "", fmt.Errorf("allocate id for project %s after %d attempts: %w", projectID, a.opts.InsertRetries, lastErr)
}
