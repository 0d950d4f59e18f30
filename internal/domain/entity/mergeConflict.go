package entity

import (
	"slices"
	"time"
)

type MergeConflictStatus string

const (
	ConflictOpen        MergeConflictStatus = "open"
	ConflictResolving   MergeConflictStatus = "resolving"
	ConflictResolved    MergeConflictStatus = "resolved"
	ConflictAccepted    MergeConflictStatus = "accepted"
	ConflictRejected    MergeConflictStatus = "rejected"
	ConflictEscalated   MergeConflictStatus = "escalated"
	ConflictOverwritten MergeConflictStatus = "overwritten"
	ConflictClosed      MergeConflictStatus = "closed"
	ConflictTerminated  MergeConflictStatus = "terminated"
)

// ActiveConflictStatuses are the non-terminal statuses. A pull request has at most one
// conflict in any of them.
var ActiveConflictStatuses = []MergeConflictStatus{ConflictOpen, ConflictResolving, ConflictEscalated} //nolint:gochecknoglobals

var conflictTransitions = map[MergeConflictStatus][]MergeConflictStatus{ //nolint:gochecknoglobals
	ConflictOpen:      {ConflictResolving, ConflictEscalated, ConflictClosed, ConflictTerminated, ConflictOverwritten},
	ConflictResolving: {ConflictResolved, ConflictEscalated, ConflictClosed, ConflictTerminated, ConflictOverwritten},
	ConflictEscalated: {ConflictResolving, ConflictAccepted, ConflictRejected, ConflictClosed, ConflictTerminated, ConflictOverwritten},
	ConflictResolved:  {ConflictAccepted, ConflictRejected},
	ConflictClosed:    {ConflictOpen},
}

func (s MergeConflictStatus) String() string {
	return string(s)
}

func (s MergeConflictStatus) IsActive() bool {
	return slices.Contains(ActiveConflictStatuses, s)
}

func (s MergeConflictStatus) CanTransitionTo(next MergeConflictStatus) bool {
	return slices.Contains(conflictTransitions[s], next)
}

func (s MergeConflictStatus) Valid() bool {
	switch s {
	case ConflictOpen, ConflictResolving, ConflictResolved, ConflictAccepted, ConflictRejected,
		ConflictEscalated, ConflictOverwritten, ConflictClosed, ConflictTerminated:
		return true
	}
	return false
}

type MergeConflict struct {
	Id                 int64               `db:"id"`
	PrId               int64               `db:"pr_id"`
	Status             MergeConflictStatus `db:"status"`
	HeadSha            string              `db:"head_sha"`
	ResolvedCodeBranch string              `db:"resolved_code_branch"`
	CreatedAt          time.Time           `db:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at"`
}

// MergeConflictDetails is the episode view consumed by the apply-resolution automation.
type MergeConflictDetails struct {
	MergeConflict
	HeadRef   string
	BaseRef   string
	RepoName  string
	FilePaths []string
}
