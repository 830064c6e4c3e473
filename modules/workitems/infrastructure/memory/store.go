// Package memory is an in-process work item store with snapshot transactions.
// It backs unit tests and the CLI's --store=memory mode.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/drydock-pm/drydock/modules/workitems/domain/workitemid"
	"github.com/drydock-pm/drydock/modules/workitems/services"
)

var ErrNoTx = errors.New("memory: savepoint requires an open transaction")

// Hook runs before each store operation; a non-nil error fails that operation.
// op is one of list_bucket, count_bucket, list_all, update_id, reparent, insert, commit.
type Hook func(op, key string) error

type txKey struct{}

// Store keeps items in insertion order. Transactions restore a snapshot on
// failure; they do not isolate concurrent callers from each other.
type Store struct {
	mu    sync.Mutex
	items []services.WorkItemRecord
	hook  Hook
}

func New(items ...services.WorkItemRecord) *Store {
	s := &Store{}
	for _, it := range items {
		s.items = append(s.items, clone(it))
	}
	return s
}

func (s *Store) SetHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

func (s *Store) before(op, key string) error {
	if s.hook == nil {
		return nil
	}
	return s.hook(op, key)
}

func clone(it services.WorkItemRecord) services.WorkItemRecord {
	if it.ParentID != nil {
		p := *it.ParentID
		it.ParentID = &p
	}
	return it
}

func (s *Store) snapshot() []services.WorkItemRecord {
	out := make([]services.WorkItemRecord, len(s.items))
	for i, it := range s.items {
		out[i] = clone(it)
	}
	return out
}

func (s *Store) restore(snap []services.WorkItemRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = snap
}

// Items returns a copy of the current contents in store order.
func (s *Store) Items() []services.WorkItemRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Store) Get(id string) (services.WorkItemRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.ID == id {
			return clone(it), true
		}
	}
	return services.WorkItemRecord{}, false
}

func (s *Store) bucket(projectID, prefix string, from, to time.Time) []services.WorkItemRecord {
	out := make([]services.WorkItemRecord, 0)
	for _, it := range s.items {
		if it.ProjectID != projectID || !strings.HasPrefix(it.ID, prefix) || !workitemid.IsNewFormat(it.ID) {
			continue
		}
		if it.CreatedAt.Before(from) || it.CreatedAt.After(to) {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) ListBucketIDs(ctx context.Context, projectID, prefix string, from, to time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.before("list_bucket", projectID); err != nil {
		return nil, err
	}
	rows := s.bucket(projectID, prefix, from, to)
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}

func (s *Store) CountBucket(ctx context.Context, projectID, prefix string, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.before("count_bucket", projectID); err != nil {
		return 0, err
	}
	return len(s.bucket(projectID, prefix, from, to)), nil
}

func (s *Store) ListAll(ctx context.Context) ([]services.WorkItemRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.before("list_all", ""); err != nil {
		return nil, err
	}
	return s.snapshot(), nil
}

func (s *Store) indexOf(id string) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) UpdateID(ctx context.Context, oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.before("update_id", oldID); err != nil {
		return err
	}
	i := s.indexOf(oldID)
	if i < 0 {
		return services.ErrIDNotFound
	}
	if oldID != newID && s.indexOf(newID) >= 0 {
		return services.ErrDuplicateID
	}
	s.items[i].ID = newID
	return nil
}

func (s *Store) ReparentChildren(ctx context.Context, oldParentID, newParentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.before("reparent", oldParentID); err != nil {
		return 0, err
	}
	var n int64
	for i := range s.items {
		if s.items[i].ParentID != nil && *s.items[i].ParentID == oldParentID {
			p := newParentID
			s.items[i].ParentID = &p
			n++
		}
	}
	return n, nil
}

func (s *Store) Insert(ctx context.Context, item services.WorkItemRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.before("insert", item.ID); err != nil {
		return err
	}
	if s.indexOf(item.ID) >= 0 {
		return services.ErrDuplicateID
	}
	s.items = append(s.items, clone(item))
	return nil
}

func (s *Store) InTx(ctx context.Context, fn func(context.Context) error) error {
	s.mu.Lock()
	snap := s.snapshot()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}

	s.mu.Lock()
	err := s.before("commit", "")
	s.mu.Unlock()
	if err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) InSavepoint(ctx context.Context, fn func(context.Context) error) error {
	if inTx, _ := ctx.Value(txKey{}).(bool); !inTx {
		return ErrNoTx
	}
	s.mu.Lock()
	snap := s.snapshot()
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

var (
	_ services.WorkItemRepository = (*Store)(nil)
	_ services.Transactor         = (*Store)(nil)
)
