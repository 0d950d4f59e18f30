package entity

import "time"

const (
	PullRequestStateOpen   = "open"
	PullRequestStateClosed = "closed"
)

type PullRequest struct {
	Id             int64      `db:"id"`
	RepoId         int64      `db:"repo_id"`
	Number         int        `db:"pr_number"`
	InstallationId int64      `db:"installation_id"`
	Url            string     `db:"url"`
	GithubId       int64      `db:"github_id"`
	NodeId         string     `db:"node_id"`
	State          string     `db:"state"`
	Title          string     `db:"title"`
	HeadRef        string     `db:"head_ref"`
	HeadSha        string     `db:"head_sha"`
	BaseRef        string     `db:"base_ref"`
	ClosedAt       *time.Time `db:"closed_at"`
	MergedAt       *time.Time `db:"merged_at"`
	Mergeable      Mergeable  `db:"mergeable"`
	Commits        int        `db:"commits"`
	Details        string     `db:"details"`
	EventUpdatedAt *time.Time `db:"event_updated_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// IsNewerThan reports whether a payload stamped at updatedAt may overwrite the stored snapshot.
// Payloads without a stamp are treated as current.
func (pr PullRequest) IsNewerThan(updatedAt *time.Time) bool {
	if pr.EventUpdatedAt == nil || updatedAt == nil {
		return false
	}
	return pr.EventUpdatedAt.After(*updatedAt)
}
