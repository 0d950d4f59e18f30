package persistence

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

const pullRequestColumns = `id, repo_id, pr_number, installation_id, url, github_id, node_id, state, title,
    head_ref, head_sha, base_ref, closed_at, merged_at, mergeable, commits, details, event_updated_at,
    created_at, updated_at`

type PullRequestRepository struct {
	db *sqlx.DB
}

func NewPullRequestRepository(db *sqlx.DB) *PullRequestRepository {
	return &PullRequestRepository{db: db}
}

func (r *PullRequestRepository) Create(ctx context.Context, pr entity.PullRequest) (entity.PullRequest, error) {
	query := `
        INSERT INTO pull_requests (repo_id, pr_number, installation_id, url, github_id, node_id, state, title,
            head_ref, head_sha, base_ref, closed_at, merged_at, mergeable, commits, details, event_updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
        RETURNING ` + pullRequestColumns

	var created entity.PullRequest
	err := conn(ctx, r.db).GetContext(ctx, &created, query,
		pr.RepoId, pr.Number, pr.InstallationId, pr.Url, pr.GithubId, pr.NodeId, pr.State, pr.Title,
		pr.HeadRef, pr.HeadSha, pr.BaseRef, pr.ClosedAt, pr.MergedAt, pr.Mergeable, pr.Commits, pr.Details,
		pr.EventUpdatedAt)
	if err != nil {
		return entity.PullRequest{}, mapError(err, "", "failed to create pull request")
	}
	return created, nil
}

func (r *PullRequestRepository) GetById(ctx context.Context, id int64) (entity.PullRequest, error) {
	return r.getBy(ctx, "id", id)
}

func (r *PullRequestRepository) LockById(ctx context.Context, id int64) (entity.PullRequest, error) {
	return r.getBy(ctx, "id", id, lockClause(ctx))
}

func (r *PullRequestRepository) LockByGithubId(ctx context.Context, githubId int64) (entity.PullRequest, error) {
	return r.getBy(ctx, "github_id", githubId, lockClause(ctx))
}

func (r *PullRequestRepository) getBy(ctx context.Context, column string, id int64, suffix ...string) (entity.PullRequest, error) {
	query := `SELECT ` + pullRequestColumns + ` FROM pull_requests WHERE ` + column + ` = $1`
	for _, s := range suffix {
		query += s
	}

	var pr entity.PullRequest
	if err := conn(ctx, r.db).GetContext(ctx, &pr, query, id); err != nil {
		return entity.PullRequest{}, mapError(err,
			fmt.Sprintf("pull request with %s %d not found", column, id), "failed to get pull request")
	}
	return pr, nil
}

func (r *PullRequestRepository) UpdateSnapshot(ctx context.Context, pr entity.PullRequest) error {
	query := `
        UPDATE pull_requests SET
            pr_number = $2, installation_id = $3, url = $4, node_id = $5, state = $6, title = $7,
            head_ref = $8, head_sha = $9, base_ref = $10, closed_at = $11, merged_at = $12, commits = $13,
            details = $14, event_updated_at = $15, updated_at = now()
        WHERE id = $1`

	res, err := conn(ctx, r.db).ExecContext(ctx, query,
		pr.Id, pr.Number, pr.InstallationId, pr.Url, pr.NodeId, pr.State, pr.Title,
		pr.HeadRef, pr.HeadSha, pr.BaseRef, pr.ClosedAt, pr.MergedAt, pr.Commits,
		pr.Details, pr.EventUpdatedAt)
	if err != nil {
		return mapError(err, "", "failed to update pull request")
	}
	return requireRow(res, fmt.Sprintf("pull request %d not found", pr.Id))
}

func (r *PullRequestRepository) SetMergeable(ctx context.Context, id int64, mergeable entity.Mergeable) error {
	query := `UPDATE pull_requests SET mergeable = $2, updated_at = now() WHERE id = $1`

	res, err := conn(ctx, r.db).ExecContext(ctx, query, id, mergeable)
	if err != nil {
		return mapError(err, "", "failed to update mergeability")
	}
	return requireRow(res, fmt.Sprintf("pull request %d not found", id))
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func requireRow(res rowsAffected, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "repository: failed to read affected rows")
	}
	if n == 0 {
		return domain.NewError(errcodes.NotFound, notFound)
	}
	return nil
}
