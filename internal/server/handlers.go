package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/internal/domain/service"
	"github.com/int-code/git-sleuth/internal/infrastructure/notify"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

const maxSubmissionBytes = 10 << 20

type resolveConflictsRequest struct {
	File     string `json:"file" validate:"required"`
	FilePath string `json:"file_path" validate:"required,max=1024"`
	TaskId   string `json:"task_id" validate:"omitempty,max=64"`
	MergeId  *int64 `json:"merge_id" validate:"omitempty,gt=0"`
	Final    bool   `json:"final"`
}

type resolveConflictsResponse struct {
	TaskId string            `json:"task_id"`
	Status entity.TaskStatus `json:"status"`
}

type decisionRequest struct {
	Decision entity.MergeConflictStatus `json:"decision" validate:"required,oneof=accepted rejected"`
}

// decode reads a size-limited JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return domain.WrapError(err, errcodes.ValidationError, "failed to read request body")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.WrapError(err, errcodes.ValidationError, "malformed JSON body")
	}
	if err := s.validate.Struct(dst); err != nil {
		return domain.WrapError(err, errcodes.ValidationError, "invalid request")
	}
	return nil
}

func (s *Server) PostResolveConflicts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req resolveConflictsRequest
	if err := s.decode(w, r, maxSubmissionBytes, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	task, err := s.resolutions.Submit(ctx, service.Submission{
		TaskId:   req.TaskId,
		MergeId:  req.MergeId,
		FilePath: req.FilePath,
		File:     req.File,
		Final:    req.Final,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusAccepted, resolveConflictsResponse{TaskId: task.Id, Status: task.Status})
}

func (s *Server) GetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := taskIdParam(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	view, err := s.tasks.Get(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, newTaskResponse(view))
}

// GetTaskStream writes one JSON document per line and closes with the sentinel line.
// Errors before the first message get a regular error response; later ones an error line.
func (s *Server) GetTaskStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := taskIdParam(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(ctx, w, errors.New("response writer does not support flushing"))
		return
	}

	var started bool
	enc := json.NewEncoder(w)
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
	}

	err = s.tasks.Stream(ctx, id, func(msg entity.Progress) error {
		start()
		if err := enc.Encode(msg); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !started {
			writeError(ctx, w, err)
			return
		}
		_, body := statusOf(err)
		if encErr := enc.Encode(errorResponse{Error: body}); encErr != nil {
			logger(ctx).Warn("write stream error", slog.Any("error", encErr))
		}
		flusher.Flush()
		return
	}

	start()
	if _, err := io.WriteString(w, notify.Sentinel+"\n"); err != nil {
		logger(ctx).Warn("write stream sentinel", slog.Any("error", err))
	}
	flusher.Flush()
}

func (s *Server) GetMergeConflict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := mergeIdParam(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	details, err := s.conflicts.Details(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, newMergeConflictDetailsResponse(details))
}

func (s *Server) PostMergeConflictDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := mergeIdParam(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	var req decisionRequest
	if err := s.decode(w, r, 1<<10, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	mc, err := s.conflicts.Decide(ctx, id, req.Decision)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, newMergeConflictResponse(mc))
}
