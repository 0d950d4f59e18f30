package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/internal/domain/service"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type taskResponse struct {
	TaskId    string             `json:"task_id"`
	Type      entity.TaskType    `json:"task_type"`
	Status    entity.TaskStatus  `json:"status"`
	MergeId   *int64             `json:"merge_id,omitempty"`
	FilePath  *string            `json:"file_path,omitempty"`
	Result    *entity.TaskResult `json:"result,omitempty"`
	Error     *string            `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type mergeConflictResponse struct {
	MergeId            int64                      `json:"merge_id"`
	PrId               int64                      `json:"pr_id"`
	Status             entity.MergeConflictStatus `json:"status"`
	HeadSha            string                     `json:"head_sha"`
	ResolvedCodeBranch string                     `json:"resolved_code_branch"`
	HeadRef            string                     `json:"head_ref,omitempty"`
	BaseRef            string                     `json:"base_ref,omitempty"`
	RepoName           string                     `json:"repo_name,omitempty"`
	FilePaths          []string                   `json:"file_paths,omitempty"`
	UpdatedAt          time.Time                  `json:"updated_at"`
}

func newTaskResponse(view service.TaskView) taskResponse {
	return taskResponse{
		TaskId:    view.Id,
		Type:      view.Type,
		Status:    view.Status,
		MergeId:   view.MergeId,
		FilePath:  view.FilePath,
		Result:    view.Outcome,
		Error:     view.Error,
		CreatedAt: view.CreatedAt,
		UpdatedAt: view.UpdatedAt,
	}
}

func newMergeConflictResponse(mc entity.MergeConflict) mergeConflictResponse {
	return mergeConflictResponse{
		MergeId:            mc.Id,
		PrId:               mc.PrId,
		Status:             mc.Status,
		HeadSha:            mc.HeadSha,
		ResolvedCodeBranch: mc.ResolvedCodeBranch,
		UpdatedAt:          mc.UpdatedAt,
	}
}

func newMergeConflictDetailsResponse(d entity.MergeConflictDetails) mergeConflictResponse {
	resp := newMergeConflictResponse(d.MergeConflict)
	resp.HeadRef = d.HeadRef
	resp.BaseRef = d.BaseRef
	resp.RepoName = d.RepoName
	resp.FilePaths = d.FilePaths
	return resp
}

// statusOf maps an error code onto an HTTP status. Errors without a code are internal.
func statusOf(err error) (int, errorBody) {
	code, ok := domain.CodeOf(err)
	if !ok {
		return http.StatusInternalServerError, errorBody{
			Code:    string(errcodes.InternalServerError),
			Message: "internal error",
		}
	}

	status := http.StatusInternalServerError
	switch code {
	case errcodes.ValidationError:
		status = http.StatusBadRequest
	case errcodes.Unauthorized:
		status = http.StatusUnauthorized
	case errcodes.NotFound:
		status = http.StatusNotFound
	case errcodes.Conflict, errcodes.CancellationError:
		status = http.StatusConflict
	case errcodes.UpstreamError, errcodes.ResolutionFailure:
		status = http.StatusBadGateway
	case errcodes.TimeoutError:
		status = http.StatusGatewayTimeout
	}

	body := errorBody{Code: string(code), Message: err.Error()}
	if status == http.StatusInternalServerError {
		body.Message = "internal error"
	}
	return status, body
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, body := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger(ctx).Error("request failed", slog.Any("error", err))
	}
	writeJSON(ctx, w, status, errorResponse{Error: body})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger(ctx).Warn("write response", slog.Any("error", err))
	}
}
