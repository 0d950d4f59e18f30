package persistence

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

const mergeConflictColumns = `id, pr_id, status, head_sha, resolved_code_branch, created_at, updated_at`

type MergeConflictRepository struct {
	db *sqlx.DB
}

func NewMergeConflictRepository(db *sqlx.DB) *MergeConflictRepository {
	return &MergeConflictRepository{db: db}
}

func (r *MergeConflictRepository) Create(ctx context.Context, mc entity.MergeConflict) (entity.MergeConflict, error) {
	query := `
        INSERT INTO merge_conflicts (pr_id, status, head_sha, resolved_code_branch)
        VALUES ($1, $2, $3, $4)
        RETURNING ` + mergeConflictColumns

	var created entity.MergeConflict
	err := conn(ctx, r.db).GetContext(ctx, &created, query, mc.PrId, mc.Status, mc.HeadSha, mc.ResolvedCodeBranch)
	if err != nil {
		return entity.MergeConflict{}, mapError(err, "", "failed to create merge conflict")
	}
	return created, nil
}

func (r *MergeConflictRepository) GetById(ctx context.Context, id int64) (entity.MergeConflict, error) {
	query := `SELECT ` + mergeConflictColumns + ` FROM merge_conflicts WHERE id = $1`
	return r.get(ctx, fmt.Sprintf("merge conflict %d not found", id), query, id)
}

func (r *MergeConflictRepository) LockById(ctx context.Context, id int64) (entity.MergeConflict, error) {
	query := `SELECT ` + mergeConflictColumns + ` FROM merge_conflicts WHERE id = $1` + lockClause(ctx)
	return r.get(ctx, fmt.Sprintf("merge conflict %d not found", id), query, id)
}

func (r *MergeConflictRepository) LockActiveByPr(ctx context.Context, prId int64) (entity.MergeConflict, error) {
	query := `
        SELECT ` + mergeConflictColumns + ` FROM merge_conflicts
        WHERE pr_id = $1 AND status = ANY($2::text[])` + lockClause(ctx)

	return r.get(ctx, fmt.Sprintf("pull request %d has no active merge conflict", prId),
		query, prId, statusArray(entity.ActiveConflictStatuses))
}

func (r *MergeConflictRepository) LockLatestByPr(
	ctx context.Context,
	prId int64,
	status entity.MergeConflictStatus,
) (entity.MergeConflict, error) {
	query := `
        SELECT ` + mergeConflictColumns + ` FROM merge_conflicts
        WHERE pr_id = $1 AND status = $2
        ORDER BY created_at DESC, id DESC
        LIMIT 1` + lockClause(ctx)

	return r.get(ctx, fmt.Sprintf("pull request %d has no %s merge conflict", prId, status), query, prId, status)
}

func (r *MergeConflictRepository) get(ctx context.Context, notFound, query string, args ...any) (entity.MergeConflict, error) {
	var mc entity.MergeConflict
	if err := conn(ctx, r.db).GetContext(ctx, &mc, query, args...); err != nil {
		return entity.MergeConflict{}, mapError(err, notFound, "failed to get merge conflict")
	}
	return mc, nil
}

func (r *MergeConflictRepository) UpdateStatus(ctx context.Context, id int64, from, to entity.MergeConflictStatus) error {
	query := `UPDATE merge_conflicts SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`

	res, err := conn(ctx, r.db).ExecContext(ctx, query, id, from, to)
	if err != nil {
		return mapError(err, "", "failed to update merge conflict status")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "repository: failed to read affected rows")
	}
	if n == 0 {
		return domain.NewError(errcodes.Conflict,
			fmt.Sprintf("merge conflict %d is no longer %s", id, from))
	}
	return nil
}

func (r *MergeConflictRepository) ListFilePaths(ctx context.Context, id int64) ([]string, error) {
	query := `
        SELECT DISTINCT file_path FROM resolved_code
        WHERE merge_conflict_id = $1
        ORDER BY file_path`

	paths := []string{}
	if err := conn(ctx, r.db).SelectContext(ctx, &paths, query, id); err != nil {
		return nil, mapError(err, "", "failed to list resolved files")
	}
	return paths, nil
}
