package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type BackupItem struct {
	OriginalID string    `json:"originalId"`
	ParentID   *string   `json:"parentId"`
	ProjectID  string    `json:"projectId"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Backup is the pre-migration snapshot artifact.
type Backup struct {
	Timestamp  time.Time    `json:"timestamp"`
	TotalItems int          `json:"totalItems"`
	Items      []BackupItem `json:"items"`
}

func BackupFileName(ts time.Time) string {
	return fmt.Sprintf("work-item-ids-backup-%s.json", ts.UTC().Format("20060102T150405.000Z"))
}

// CreateBackup snapshots every work item into a timestamped JSON file under dir.
func (m *Migrator) CreateBackup(ctx context.Context, dir string) (string, *Backup, error) {
	ctx, span := tracer.Start(ctx, "workitems.CreateBackup")
	defer span.End()

	items, err := m.repo.ListAll(ctx)
	if err != nil {
		span.RecordError(err)
		return "", nil, fmt.Errorf("list work items: %w", err)
	}

	backup := &Backup{
		Timestamp:  m.opts.Now().UTC(),
		TotalItems: len(items),
		Items:      make([]BackupItem, 0, len(items)),
	}
	for _, it := range items {
		backup.Items = append(backup.Items, BackupItem{
			OriginalID: it.ID,
			ParentID:   it.ParentID,
			ProjectID:  it.ProjectID,
			Title:      it.Title,
			CreatedAt:  it.CreatedAt,
		})
	}

	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, BackupFileName(backup.Timestamp))
	b, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("json marshal: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", nil, fmt.Errorf("write %s: %w", path, err)
	}

	m.opts.Logger.WithField("path", path).WithField("items", backup.TotalItems).Info("workitems: id backup written")
	return path, backup, nil
}

func ReadBackup(path string) (*Backup, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var out Backup
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if out.TotalItems != len(out.Items) {
		return nil, fmt.Errorf("backup %s is truncated: totalItems=%d items=%d", path, out.TotalItems, len(out.Items))
	}
	return &out, nil
}
