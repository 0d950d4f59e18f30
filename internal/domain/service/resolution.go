package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/conflict"
	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/internal/domain/value"
	"github.com/int-code/git-sleuth/internal/metrics"
	"github.com/int-code/git-sleuth/pkg/contextx"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

// Submission is one conflicted file handed in for resolution.
type Submission struct {
	// TaskId is an optional caller-supplied idempotency key.
	TaskId   string
	MergeId  *int64
	FilePath string
	File     string

	// Final marks the last file of the episode. The episode stays resolving until it succeeds.
	Final bool
}

// ResolutionService runs the chunk pipeline: heuristics first, the AI engine for whatever
// they cannot settle.
type ResolutionService struct {
	supervisor
	resolver ChunkResolver
}

func NewResolutionService(stores Stores, resolver ChunkResolver, queue JobQueue, notifier Notifier) *ResolutionService {
	return &ResolutionService{
		supervisor: supervisor{
			stores:   stores,
			queue:    queue,
			notifier: notifier,
		},
		resolver: resolver,
	}
}

// acceptsSubmissions reports whether files may still be resolved for an episode. A resolved
// episode is settled and only awaits a decision.
func acceptsSubmissions(status entity.MergeConflictStatus) bool {
	return status.IsActive()
}

// Submit records a resolve task and queues it. Resubmitting a known task id returns the
// existing task without queueing it again.
func (s *ResolutionService) Submit(ctx context.Context, sub Submission) (entity.Task, error) {
	if strings.TrimSpace(sub.FilePath) == "" {
		return entity.Task{}, domain.NewError(errcodes.ValidationError, "file_path is required")
	}

	id := value.NewTaskID()
	if sub.TaskId != "" {
		parsed, err := value.ParseTaskID(sub.TaskId)
		if err != nil {
			return entity.Task{}, domain.WrapError(err, errcodes.ValidationError, "invalid task_id")
		}
		id = parsed
	}

	task := entity.Task{
		Id:       id.String(),
		Type:     entity.TaskResolveConflict,
		Status:   entity.TaskQueued,
		MergeId:  sub.MergeId,
		FilePath: &sub.FilePath,
	}
	if sub.MergeId != nil {
		mc, err := s.stores.Conflicts.GetById(ctx, *sub.MergeId)
		if err != nil {
			return entity.Task{}, fmt.Errorf("conflicts.GetById: %w", err)
		}
		if !acceptsSubmissions(mc.Status) {
			return entity.Task{}, domain.NewError(errcodes.Conflict,
				fmt.Sprintf("merge conflict %d is %s", mc.Id, mc.Status))
		}
		task.PrId = &mc.PrId
	}

	created, err := s.stores.Tasks.Create(ctx, task)
	if domain.HasCode(err, errcodes.Conflict) {
		existing, gerr := s.stores.Tasks.GetById(ctx, task.Id)
		if gerr == nil && existing.Type == entity.TaskResolveConflict {
			logger(ctx).Info("resolution resubmitted", slog.String("task_id", existing.Id))
			return existing, nil
		}
	}
	if err != nil {
		return entity.Task{}, fmt.Errorf("tasks.Create: %w", err)
	}

	job := Job{
		TaskId: created.Id,
		Type:   created.Type,
		Payload: ResolveJob{
			MergeId:  sub.MergeId,
			FilePath: sub.FilePath,
			File:     sub.File,
			Final:    sub.Final,
		},
	}
	if err := s.enqueue(ctx, job, sub.MergeId); err != nil {
		return entity.Task{}, err
	}

	logger(ctx).Info("resolution submitted",
		slog.String("task_id", created.Id),
		slog.String("file_path", sub.FilePath),
	)
	return created, nil
}

// Resolve is the worker side of a submission. Once the task is terminated it neither writes
// nor publishes anything further.
func (s *ResolutionService) Resolve(ctx context.Context, taskId string, job ResolveJob) error {
	ctx = contextx.WithLogAttrs(ctx, slog.String("file_path", job.FilePath))
	if job.MergeId != nil {
		ctx = contextx.WithLogAttrs(ctx, slog.Int64("merge_id", *job.MergeId))
	}

	mc, started, err := s.begin(ctx, taskId, job.MergeId)
	if err != nil || !started {
		return err
	}

	result, err := s.resolveFile(ctx, taskId, mc, job)
	if err != nil {
		if s.abort(ctx, taskId, job.MergeId, err) {
			s.publishFinal(ctx, entity.Progress{
				TaskId:   taskId,
				Status:   entity.TaskFailed,
				FilePath: job.FilePath,
				Error:    err.Error(),
			})
		}
		return err
	}

	return s.complete(ctx, taskId, job, result)
}

func (s *ResolutionService) begin(ctx context.Context, taskId string, mergeId *int64) (entity.MergeConflict, bool, error) {
	var (
		mc         entity.MergeConflict
		started    bool
		superseded bool
	)
	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if mergeId != nil {
			if mc, err = s.stores.Conflicts.LockById(ctx, *mergeId); err != nil {
				return fmt.Errorf("conflicts.LockById: %w", err)
			}
		}
		task, err := s.stores.Tasks.LockById(ctx, taskId)
		if err != nil {
			return fmt.Errorf("tasks.LockById: %w", err)
		}
		if task.Status != entity.TaskQueued {
			logger(ctx).Info("resolve task not queued, skipped", slog.String("status", task.Status.String()))
			return nil
		}
		if mergeId != nil && !acceptsSubmissions(mc.Status) {
			superseded = true
			return s.stores.Tasks.UpdateStatus(ctx, taskId, entity.TaskTerminated)
		}

		if err := s.stores.Tasks.UpdateStatus(ctx, taskId, entity.TaskResolving); err != nil {
			return fmt.Errorf("tasks.UpdateStatus: %w", err)
		}
		started = true

		if mergeId != nil {
			return s.transition(ctx, &mc, entity.ConflictResolving)
		}
		return nil
	})
	if err != nil {
		return entity.MergeConflict{}, false, err
	}

	if superseded {
		logger(ctx).Info("episode no longer accepts resolutions", slog.String("status", mc.Status.String()))
		s.publishFinal(ctx, entity.Progress{TaskId: taskId, Status: entity.TaskTerminated})
	}
	return mc, started, nil
}

type chunkOutcome struct {
	text   string
	score  float64
	source entity.ResolutionSource
}

func (s *ResolutionService) resolveFile(
	ctx context.Context,
	taskId string,
	mc entity.MergeConflict,
	job ResolveJob,
) (entity.TaskResult, error) {
	units := conflict.Units(job.File)

	conflicted := 0
	for _, u := range units {
		if u.Conflicted {
			conflicted++
		}
	}
	if conflicted == 0 && conflict.HasMarkers(job.File) {
		return entity.TaskResult{}, domain.NewError(errcodes.ResolutionFailure,
			fmt.Sprintf("%s: conflict markers are malformed, no chunk could be identified", job.FilePath))
	}

	var (
		out        strings.Builder
		score      = 1.0
		unresolved int
		index      int
	)
	for _, u := range units {
		if !u.Conflicted {
			if conflict.HasMarkers(u.Text) {
				unresolved++
			}
			out.WriteString(u.Text)
			continue
		}

		outcome, err := s.resolveChunk(ctx, taskId, job.FilePath, u.Text)
		if err != nil {
			return entity.TaskResult{}, err
		}
		if err := s.record(ctx, taskId, mc, job, index, outcome); err != nil {
			return entity.TaskResult{}, err
		}

		out.WriteString(outcome.text)
		score = math.Min(score, outcome.score)
		index++
	}

	logger(ctx).Info("file resolved",
		slog.Int("chunks", conflicted),
		slog.Int("unresolved", unresolved),
		slog.Float64("confidence", score),
	)

	return entity.TaskResult{
		ResolvedCode:    out.String(),
		ConfidenceScore: score,
		Unresolved:      unresolved,
		Branch:          mc.ResolvedCodeBranch,
	}, nil
}

func (s *ResolutionService) resolveChunk(ctx context.Context, taskId, filePath, chunk string) (chunkOutcome, error) {
	if res, ok := conflict.Resolve(chunk); ok {
		for _, r := range res.Rules {
			metrics.HeuristicRules.WithLabelValues(string(r)).Inc()
		}
		return chunkOutcome{text: res.Text, score: 1, source: entity.SourceHeuristic}, nil
	}

	if err := s.checkpoint(ctx, taskId); err != nil {
		return chunkOutcome{}, err
	}

	startTime := time.Now()
	res, err := s.resolver.Resolve(ctx, filePath, chunk)
	metrics.FallbackDuration.Observe(time.Since(startTime).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return chunkOutcome{}, domain.WrapError(err, errcodes.CancellationError, "AI fallback interrupted")
		}
		metrics.FallbackCalls.WithLabelValues("error").Inc()
		if domain.HasCode(err, errcodes.ResolutionFailure) {
			return chunkOutcome{}, err
		}
		return chunkOutcome{}, domain.WrapError(err, errcodes.ResolutionFailure, "AI fallback failed")
	}

	if math.IsNaN(res.ConfidenceScore) || res.ConfidenceScore < 0 || res.ConfidenceScore > 1 {
		metrics.FallbackCalls.WithLabelValues("invalid").Inc()
		return chunkOutcome{}, domain.NewError(errcodes.ResolutionFailure,
			fmt.Sprintf("AI fallback returned confidence %v outside [0,1]", res.ConfidenceScore))
	}
	if conflict.HasMarkers(res.ResolvedCode) {
		metrics.FallbackCalls.WithLabelValues("invalid").Inc()
		return chunkOutcome{}, domain.NewError(errcodes.ResolutionFailure, "AI fallback left conflict markers behind")
	}

	metrics.FallbackCalls.WithLabelValues("ok").Inc()
	return chunkOutcome{text: res.ResolvedCode, score: res.ConfidenceScore, source: entity.SourceAI}, nil
}

// record persists one chunk resolution and publishes it. The task row is locked for the write
// so a concurrent termination either lands before it, and the write is refused, or after it.
// In the latter case the termination message may already be out, so the task is checked
// again before publishing. Subscribers stop at the termination message either way.
func (s *ResolutionService) record(
	ctx context.Context,
	taskId string,
	mc entity.MergeConflict,
	job ResolveJob,
	index int,
	outcome chunkOutcome,
) error {
	if err := ctx.Err(); err != nil {
		return domain.WrapError(err, errcodes.CancellationError, "task interrupted")
	}

	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		task, err := s.stores.Tasks.LockById(ctx, taskId)
		if err != nil {
			return fmt.Errorf("tasks.LockById: %w", err)
		}
		if task.Status != entity.TaskResolving {
			return domain.NewError(errcodes.CancellationError,
				fmt.Sprintf("task %s is %s", taskId, task.Status))
		}

		_, err = s.stores.ResolvedCodes.Create(ctx, entity.ResolvedCode{
			MergeConflictId:    job.MergeId,
			TaskId:             taskId,
			FilePath:           job.FilePath,
			ResolvedCodeBranch: mc.ResolvedCodeBranch,
			ChunkIndex:         index,
			ResolvedCode:       outcome.text,
			ConfidenceScore:    outcome.score,
			Source:             outcome.source,
		})
		if err != nil {
			return fmt.Errorf("resolvedCodes.Create: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.checkpoint(ctx, taskId); err != nil {
		return err
	}

	score := outcome.score
	if err := s.notifier.Publish(ctx, entity.Progress{
		TaskId:          taskId,
		Status:          entity.TaskResolving,
		FilePath:        job.FilePath,
		ChunkIndex:      &index,
		ResolvedCode:    outcome.text,
		ConfidenceScore: &score,
		Source:          outcome.source,
	}); err != nil {
		logger(ctx).Warn("publish progress", slog.Any("error", err))
	}
	return nil
}

func (s *ResolutionService) complete(ctx context.Context, taskId string, job ResolveJob, result entity.TaskResult) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to encode task result")
	}
	payload := string(encoded)

	var done bool
	err = s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var (
			mc  entity.MergeConflict
			err error
		)
		if job.MergeId != nil {
			if mc, err = s.stores.Conflicts.LockById(ctx, *job.MergeId); err != nil {
				return fmt.Errorf("conflicts.LockById: %w", err)
			}
		}
		task, err := s.stores.Tasks.LockById(ctx, taskId)
		if err != nil {
			return fmt.Errorf("tasks.LockById: %w", err)
		}
		if task.Status != entity.TaskResolving {
			return nil
		}

		if err := s.stores.Tasks.Finish(ctx, taskId, entity.TaskResolved, &payload, nil); err != nil {
			return fmt.Errorf("tasks.Finish: %w", err)
		}
		done = true

		if job.MergeId != nil && job.Final && mc.Status == entity.ConflictResolving {
			return s.transition(ctx, &mc, entity.ConflictResolved)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !done {
		logger(ctx).Info("task terminated before completion, result dropped")
		return nil
	}

	score := result.ConfidenceScore
	s.publishFinal(ctx, entity.Progress{
		TaskId:          taskId,
		Status:          entity.TaskResolved,
		FilePath:        job.FilePath,
		ResolvedCode:    result.ResolvedCode,
		ConfidenceScore: &score,
	})
	return nil
}
