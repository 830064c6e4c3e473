package persistence

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/drydock-pm/drydock/modules/workitems/services"
	"github.com/drydock-pm/drydock/pkg/composables"
)

// newFormatPattern mirrors workitemid's DD/MM/YY/NNN check in SQL.
const newFormatPattern = `^[0-9]{2}/[0-9]{2}/[0-9]{2}/[0-9]{3}$`

const (
	selectBucketIDs = `
		SELECT id
		FROM work_items
		WHERE project_id = $1
			AND id LIKE $2 || '%'
			AND id ~ $3
			AND created_at BETWEEN $4 AND $5
		ORDER BY created_at ASC, created_seq ASC`

	countBucket = `
		SELECT COUNT(*)
		FROM work_items
		WHERE project_id = $1
			AND id LIKE $2 || '%'
			AND id ~ $3
			AND created_at BETWEEN $4 AND $5`

	selectAll = `
		SELECT id, parent_id, project_id, title, created_at
		FROM work_items
		ORDER BY created_seq ASC`

	updateID = `UPDATE work_items SET id = $2 WHERE id = $1`

	reparentChildren = `UPDATE work_items SET parent_id = $2 WHERE parent_id = $1`

	insertWorkItem = `
		INSERT INTO work_items (id, project_id, parent_id, title, created_at)
		VALUES ($1, $2, $3, $4, $5)`
)

type WorkItemRepository struct{}

func NewWorkItemRepository() *WorkItemRepository {
	return &WorkItemRepository{}
}

func (r *WorkItemRepository) ListBucketIDs(ctx context.Context, projectID, prefix string, from, to time.Time) ([]string, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, selectBucketIDs, projectID, prefix, newFormatPattern, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query bucket ids")
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan bucket id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating bucket ids")
	}
	return ids, nil
}

func (r *WorkItemRepository) CountBucket(ctx context.Context, projectID, prefix string, from, to time.Time) (int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get transaction")
	}

	var n int
	if err := tx.QueryRow(ctx, countBucket, projectID, prefix, newFormatPattern, from, to).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count bucket")
	}
	return n, nil
}

func (r *WorkItemRepository) ListAll(ctx context.Context) ([]services.WorkItemRecord, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, selectAll)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query work items")
	}
	defer rows.Close()

	out := make([]services.WorkItemRecord, 0)
	for rows.Next() {
		var rec services.WorkItemRecord
		if err := rows.Scan(&rec.ID, &rec.ParentID, &rec.ProjectID, &rec.Title, &rec.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan work item")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating work items")
	}
	return out, nil
}

func (r *WorkItemRepository) UpdateID(ctx context.Context, oldID, newID string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	tag, err := tx.Exec(ctx, updateID, oldID, newID)
	if err != nil {
		return mapWriteError(err, "failed to update work item id")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(services.ErrIDNotFound, "work item %s", oldID)
	}
	return nil
}

func (r *WorkItemRepository) ReparentChildren(ctx context.Context, oldParentID, newParentID string) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get transaction")
	}

	tag, err := tx.Exec(ctx, reparentChildren, oldParentID, newParentID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to reparent children")
	}
	return tag.RowsAffected(), nil
}

func (r *WorkItemRepository) Insert(ctx context.Context, item services.WorkItemRecord) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if _, err := tx.Exec(ctx, insertWorkItem, item.ID, item.ProjectID, item.ParentID, item.Title, createdAt); err != nil {
		return mapWriteError(err, "failed to insert work item")
	}
	return nil
}

func mapWriteError(err error, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errors.Wrap(services.ErrDuplicateID, pgErr.Detail)
	}
	return errors.Wrap(err, msg)
}

var _ services.WorkItemRepository = (*WorkItemRepository)(nil)
