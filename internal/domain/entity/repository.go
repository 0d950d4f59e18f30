package entity

import "time"

type RepositoryStatus string

const (
	RepositoryActive  RepositoryStatus = "active"
	RepositoryRemoved RepositoryStatus = "removed"
)

type Repository struct {
	Id             int64            `db:"id"`
	GithubId       int64            `db:"github_id"`
	InstallationId int64            `db:"installation_id"`
	NodeId         string           `db:"node_id"`
	Name           string           `db:"name"`
	FullName       string           `db:"full_name"`
	Private        bool             `db:"private"`
	Status         RepositoryStatus `db:"status"`
	CreatedAt      time.Time        `db:"created_at"`
}
