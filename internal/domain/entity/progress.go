package entity

// Progress is one message on a task's notification channel.
type Progress struct {
	TaskId          string           `json:"task_id"`
	Status          TaskStatus       `json:"status"`
	FilePath        string           `json:"file_path,omitempty"`
	ChunkIndex      *int             `json:"chunk_index,omitempty"`
	ResolvedCode    string           `json:"resolved_code,omitempty"`
	ConfidenceScore *float64         `json:"confidence_score,omitempty"`
	Source          ResolutionSource `json:"source,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// ChunkResolution is what the AI resolution engine returns for one chunk.
type ChunkResolution struct {
	ResolvedCode    string  `json:"resolved_code"`
	ConfidenceScore float64 `json:"confidence_score"`
}
