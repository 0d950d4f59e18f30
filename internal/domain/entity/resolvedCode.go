package entity

import "time"

type ResolutionSource string

const (
	SourceHeuristic ResolutionSource = "heuristic"
	SourceAI        ResolutionSource = "ai"
)

type ResolvedCode struct {
	Id                 int64            `db:"id"`
	MergeConflictId    *int64           `db:"merge_conflict_id"`
	TaskId             string           `db:"task_id"`
	FilePath           string           `db:"file_path"`
	ResolvedCodeBranch string           `db:"resolved_code_branch"`
	ChunkIndex         int              `db:"chunk_index"`
	ResolvedCode       string           `db:"resolved_code"`
	ConfidenceScore    float64          `db:"confidence_score"`
	Source             ResolutionSource `db:"source"`
	CreatedAt          time.Time        `db:"created_at"`
}
