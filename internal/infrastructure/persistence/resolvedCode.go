package persistence

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/int-code/git-sleuth/internal/domain/entity"
)

type ResolvedCodeRepository struct {
	db *sqlx.DB
}

func NewResolvedCodeRepository(db *sqlx.DB) *ResolvedCodeRepository {
	return &ResolvedCodeRepository{db: db}
}

func (r *ResolvedCodeRepository) Create(ctx context.Context, rc entity.ResolvedCode) (entity.ResolvedCode, error) {
	query := `
        INSERT INTO resolved_code (merge_conflict_id, task_id, file_path, resolved_code_branch, chunk_index,
            resolved_code, confidence_score, source)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, merge_conflict_id, task_id, file_path, resolved_code_branch, chunk_index,
            resolved_code, confidence_score, source, created_at`

	var created entity.ResolvedCode
	err := conn(ctx, r.db).GetContext(ctx, &created, query,
		rc.MergeConflictId, rc.TaskId, rc.FilePath, rc.ResolvedCodeBranch, rc.ChunkIndex,
		rc.ResolvedCode, rc.ConfidenceScore, rc.Source)
	if err != nil {
		return entity.ResolvedCode{}, mapError(err, "", "failed to save resolved code")
	}
	return created, nil
}
