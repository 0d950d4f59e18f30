// Package event models inbound GitHub webhook deliveries as a closed set of typed variants.
package event

import "time"

const (
	NameInstallation             = "installation"
	NameInstallationRepositories = "installation_repositories"
	NamePullRequest              = "pull_request"
)

const (
	ActionCreated     = "created"
	ActionDeleted     = "deleted"
	ActionAdded       = "added"
	ActionRemoved     = "removed"
	ActionOpened      = "opened"
	ActionSynchronize = "synchronize"
	ActionClosed      = "closed"
	ActionReopened    = "reopened"
)

// Event is implemented by every variant ParseEvent can return.
type Event interface {
	Name() string
}

type Installation struct {
	Id int64 `json:"id" validate:"required"`
}

type Repository struct {
	Id       int64  `json:"id" validate:"required"`
	NodeId   string `json:"node_id"`
	Name     string `json:"name" validate:"required"`
	FullName string `json:"full_name" validate:"required"`
	Private  bool   `json:"private"`
}

// RepositoriesEvent covers both installation and installation_repositories deliveries once
// normalized: an add or remove of a set of repositories under one installation.
type RepositoriesEvent struct {
	EventName    string
	Action       string
	Installation Installation
	Repositories []Repository
}

func (e RepositoriesEvent) Name() string { return e.EventName }

// Adding reports whether the event provisions repositories rather than removing them.
func (e RepositoriesEvent) Adding() bool {
	return e.Action == ActionCreated || e.Action == ActionAdded
}

type Owner struct {
	Login string `json:"login" validate:"required"`
}

type PullRequestRepository struct {
	Id       int64  `json:"id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	FullName string `json:"full_name" validate:"required"`
	Owner    Owner  `json:"owner"`
}

type Ref struct {
	Ref string `json:"ref" validate:"required"`
	Sha string `json:"sha"`
}

type PullRequest struct {
	Id        int64      `json:"id" validate:"required"`
	NodeId    string     `json:"node_id"`
	Number    int        `json:"number"`
	Url       string     `json:"url"`
	State     string     `json:"state" validate:"required"`
	Title     string     `json:"title"`
	ClosedAt  *time.Time `json:"closed_at"`
	MergedAt  *time.Time `json:"merged_at"`
	UpdatedAt *time.Time `json:"updated_at"`
	Mergeable *bool      `json:"mergeable"`
	Commits   int        `json:"commits"`
	Head      Ref        `json:"head"`
	Base      Ref        `json:"base"`
}

type PullRequestEvent struct {
	Action       string                `json:"action" validate:"required"`
	Number       int                   `json:"number" validate:"required,gt=0"`
	PullRequest  PullRequest           `json:"pull_request"`
	Repository   PullRequestRepository `json:"repository"`
	Installation Installation          `json:"installation"`

	// Raw is the delivery body, kept as the pull request's event snapshot.
	Raw []byte `json:"-"`
}

func (e PullRequestEvent) Name() string { return NamePullRequest }

// Ignored is a delivery of an event or action this service does not act on.
type Ignored struct {
	EventName string
	Action    string
}

func (e Ignored) Name() string { return e.EventName }
