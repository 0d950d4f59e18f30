package persistence

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/int-code/git-sleuth/internal/domain/entity"
)

const repositoryColumns = `id, github_id, installation_id, node_id, name, full_name, private, status, created_at`

type RepositoryRepository struct {
	db *sqlx.DB
}

func NewRepositoryRepository(db *sqlx.DB) *RepositoryRepository {
	return &RepositoryRepository{db: db}
}

// Upsert inserts the repository or reactivates and refreshes the row with the same github id.
func (r *RepositoryRepository) Upsert(ctx context.Context, repo entity.Repository) (entity.Repository, error) {
	query := `
        INSERT INTO repositories (github_id, installation_id, node_id, name, full_name, private, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (github_id) DO UPDATE SET
            installation_id = EXCLUDED.installation_id,
            node_id = EXCLUDED.node_id,
            name = EXCLUDED.name,
            full_name = EXCLUDED.full_name,
            private = EXCLUDED.private,
            status = EXCLUDED.status
        RETURNING ` + repositoryColumns

	var saved entity.Repository
	err := conn(ctx, r.db).GetContext(ctx, &saved, query,
		repo.GithubId, repo.InstallationId, repo.NodeId, repo.Name, repo.FullName, repo.Private, repo.Status)
	if err != nil {
		return entity.Repository{}, mapError(err, "", "failed to upsert repository")
	}
	return saved, nil
}

func (r *RepositoryRepository) MarkRemoved(ctx context.Context, githubId int64) (entity.Repository, error) {
	query := `UPDATE repositories SET status = $2 WHERE github_id = $1 RETURNING ` + repositoryColumns

	var removed entity.Repository
	err := conn(ctx, r.db).GetContext(ctx, &removed, query, githubId, entity.RepositoryRemoved)
	if err != nil {
		return entity.Repository{}, mapError(err,
			fmt.Sprintf("repository with github id %d not found", githubId), "failed to remove repository")
	}
	return removed, nil
}

func (r *RepositoryRepository) GetById(ctx context.Context, id int64) (entity.Repository, error) {
	query := `SELECT ` + repositoryColumns + ` FROM repositories WHERE id = $1`

	var repo entity.Repository
	if err := conn(ctx, r.db).GetContext(ctx, &repo, query, id); err != nil {
		return entity.Repository{}, mapError(err,
			fmt.Sprintf("repository %d not found", id), "failed to get repository")
	}
	return repo, nil
}

func (r *RepositoryRepository) GetByGithubId(ctx context.Context, githubId int64) (entity.Repository, error) {
	query := `SELECT ` + repositoryColumns + ` FROM repositories WHERE github_id = $1`

	var repo entity.Repository
	if err := conn(ctx, r.db).GetContext(ctx, &repo, query, githubId); err != nil {
		return entity.Repository{}, mapError(err,
			fmt.Sprintf("repository with github id %d not found", githubId), "failed to get repository")
	}
	return repo, nil
}
