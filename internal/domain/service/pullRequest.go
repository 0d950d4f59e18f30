package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/internal/domain/event"
	"github.com/int-code/git-sleuth/internal/domain/value"
	"github.com/int-code/git-sleuth/internal/metrics"
	"github.com/int-code/git-sleuth/pkg/contextx"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

// PullRequestService is the conflict lifecycle state machine. It is the only writer of
// merge conflict status in response to pull request activity.
type PullRequestService struct {
	supervisor
	prober Prober
}

func NewPullRequestService(stores Stores, prober Prober, queue JobQueue, notifier Notifier) *PullRequestService {
	return &PullRequestService{
		supervisor: supervisor{
			stores:   stores,
			queue:    queue,
			notifier: notifier,
		},
		prober: prober,
	}
}

// HandleEvent applies one pull_request delivery.
//
// The snapshot and any supersession are committed first, cancellations go out right after,
// and only then is mergeability probed, so a slow probe never holds row locks.
func (s *PullRequestService) HandleEvent(ctx context.Context, ev event.PullRequestEvent) error {
	ctx = contextx.WithLogAttrs(ctx,
		slog.String("repo", ev.Repository.FullName),
		slog.Int("pr_number", ev.Number),
		slog.String("action", ev.Action),
	)

	repo, err := s.repository(ctx, ev)
	if err != nil {
		return err
	}
	if repo.Status == entity.RepositoryRemoved {
		logger(ctx).Info("event for removed repository ignored")
		return nil
	}

	var (
		pr         entity.PullRequest
		stale      bool
		terminated []string
	)
	err = s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if pr, stale, err = s.record(ctx, repo, ev); err != nil || stale {
			return err
		}

		switch ev.Action {
		case event.ActionSynchronize:
			terminated, err = s.supersede(ctx, pr)
		case event.ActionClosed:
			terminated, err = s.close(ctx, pr)
		case event.ActionReopened:
			err = s.reopen(ctx, pr)
		}
		return err
	})
	if err != nil {
		return err
	}
	s.cancel(ctx, terminated)

	if ev.Action == event.ActionClosed {
		return nil
	}

	// a stale delivery never supersedes, but mergeability is always derived afresh
	return s.reconcile(ctx, repo, pr.Id)
}

func (s *PullRequestService) repository(ctx context.Context, ev event.PullRequestEvent) (entity.Repository, error) {
	repo, err := s.stores.Repositories.GetByGithubId(ctx, ev.Repository.Id)
	if err == nil {
		return repo, nil
	}
	if !domain.HasCode(err, errcodes.NotFound) {
		return entity.Repository{}, fmt.Errorf("repositories.GetByGithubId: %w", err)
	}

	repo, err = s.stores.Repositories.Upsert(ctx, entity.Repository{
		GithubId:       ev.Repository.Id,
		InstallationId: ev.Installation.Id,
		Name:           ev.Repository.Name,
		FullName:       ev.Repository.FullName,
		Status:         entity.RepositoryActive,
	})
	if err != nil {
		return entity.Repository{}, fmt.Errorf("repositories.Upsert: %w", err)
	}
	return repo, nil
}

// record stores the delivery as the pull request's snapshot. It reports stale when the stored
// snapshot is newer than the delivery, leaving the row untouched.
func (s *PullRequestService) record(
	ctx context.Context,
	repo entity.Repository,
	ev event.PullRequestEvent,
) (entity.PullRequest, bool, error) {
	incoming := pullRequestFromEvent(repo, ev)

	pr, err := s.stores.PullRequests.LockByGithubId(ctx, ev.PullRequest.Id)
	switch {
	case domain.HasCode(err, errcodes.NotFound):
		created, err := s.stores.PullRequests.Create(ctx, incoming)
		if err != nil {
			return entity.PullRequest{}, false, fmt.Errorf("pullRequests.Create: %w", err)
		}
		return created, false, nil
	case err != nil:
		return entity.PullRequest{}, false, fmt.Errorf("pullRequests.LockByGithubId: %w", err)
	}

	if pr.IsNewerThan(ev.PullRequest.UpdatedAt) {
		logger(ctx).Info("stale pull request event", slog.Int64("pr_id", pr.Id))
		return pr, true, nil
	}

	incoming.Id = pr.Id
	incoming.Mergeable = pr.Mergeable
	incoming.CreatedAt = pr.CreatedAt
	if err := s.stores.PullRequests.UpdateSnapshot(ctx, incoming); err != nil {
		return entity.PullRequest{}, false, fmt.Errorf("pullRequests.UpdateSnapshot: %w", err)
	}
	return incoming, false, nil
}

// supersede terminates the work in flight for an active episode built on another head. The
// episode itself is settled by reconcile once the new head has been probed. A redelivered
// synchronize for the episode's own head changes nothing.
func (s *PullRequestService) supersede(ctx context.Context, pr entity.PullRequest) ([]string, error) {
	mc, found, err := s.activeConflict(ctx, pr.Id)
	if err != nil || !found {
		return nil, err
	}
	if mc.HeadSha == pr.HeadSha {
		logger(ctx).Info("synchronize for the current head, nothing superseded", slog.Int64("merge_id", mc.Id))
		return nil, nil
	}
	return s.terminateActive(ctx, mc.Id)
}

func (s *PullRequestService) close(ctx context.Context, pr entity.PullRequest) ([]string, error) {
	mc, found, err := s.activeConflict(ctx, pr.Id)
	if err != nil {
		return nil, err
	}
	if !found {
		// conflict-free close, kept for audit
		_, err := s.openConflict(ctx, pr, entity.ConflictClosed)
		return nil, err
	}

	ids, err := s.terminateActive(ctx, mc.Id)
	if err != nil {
		return nil, err
	}
	return ids, s.transition(ctx, &mc, entity.ConflictClosed)
}

// reopen brings back the latest closed episode. Its terminated tasks stay terminated.
func (s *PullRequestService) reopen(ctx context.Context, pr entity.PullRequest) error {
	if _, found, err := s.activeConflict(ctx, pr.Id); err != nil || found {
		return err
	}

	mc, err := s.stores.Conflicts.LockLatestByPr(ctx, pr.Id, entity.ConflictClosed)
	if domain.HasCode(err, errcodes.NotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("conflicts.LockLatestByPr: %w", err)
	}
	return s.transition(ctx, &mc, entity.ConflictOpen)
}

// reconcile probes mergeability and settles the active episode against it. An unmergeable head
// other than the episode's gets a new episode. For the episode's own head a resolution is only
// dispatched when none has started yet or the last one escalated, so redeliveries are no-ops.
func (s *PullRequestService) reconcile(ctx context.Context, repo entity.Repository, prId int64) error {
	pr, err := s.stores.PullRequests.GetById(ctx, prId)
	if err != nil {
		return fmt.Errorf("pullRequests.GetById: %w", err)
	}
	if pr.State == entity.PullRequestStateClosed {
		logger(ctx).Info("closed pull request not probed", slog.Int64("pr_id", pr.Id))
		return nil
	}

	owner, name, _ := strings.Cut(repo.FullName, "/")
	mergeable, probeErr := s.prober.Probe(ctx, ProbeRequest{
		Owner:          owner,
		Repo:           name,
		Number:         pr.Number,
		InstallationId: pr.InstallationId,
	})
	if probeErr != nil && errors.Is(probeErr, context.Canceled) {
		return probeErr
	}
	if probeErr != nil {
		mergeable = entity.MergeableUnknown
	}

	var (
		terminated []string
		job        *Job
		mergeId    int64
	)
	err = s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		pr, err := s.stores.PullRequests.LockById(ctx, prId)
		if err != nil {
			return fmt.Errorf("pullRequests.LockById: %w", err)
		}
		if pr.State == entity.PullRequestStateClosed {
			return nil
		}
		if err := s.stores.PullRequests.SetMergeable(ctx, pr.Id, mergeable); err != nil {
			return fmt.Errorf("pullRequests.SetMergeable: %w", err)
		}

		mc, found, err := s.activeConflict(ctx, pr.Id)
		if err != nil {
			return err
		}

		switch {
		case probeErr != nil:
			if !found {
				_, err := s.openConflict(ctx, pr, entity.ConflictEscalated)
				return err
			}
			if terminated, err = s.terminateActive(ctx, mc.Id); err != nil {
				return err
			}
			return s.transition(ctx, &mc, entity.ConflictEscalated)

		case mergeable == entity.MergeableTrue:
			if !found {
				return nil
			}
			if terminated, err = s.terminateActive(ctx, mc.Id); err != nil {
				return err
			}
			return s.transition(ctx, &mc, entity.ConflictOverwritten)

		case mergeable != entity.MergeableFalse:
			return nil
		}

		if found && mc.HeadSha != pr.HeadSha {
			if terminated, err = s.terminateActive(ctx, mc.Id); err != nil {
				return err
			}
			if err := s.transition(ctx, &mc, entity.ConflictTerminated); err != nil {
				return err
			}
			found = false
		}

		if !found {
			if mc, err = s.openConflict(ctx, pr, entity.ConflictOpen); err != nil {
				return err
			}
		} else {
			if mc.Status == entity.ConflictResolving {
				logger(ctx).Info("resolution already under way", slog.Int64("merge_id", mc.Id))
				return nil
			}
			inFlight, err := s.stores.Tasks.LockActiveByMerge(ctx, mc.Id)
			if err != nil {
				return fmt.Errorf("tasks.LockActiveByMerge: %w", err)
			}
			if len(inFlight) > 0 {
				logger(ctx).Info("resolution already in flight", slog.Int64("merge_id", mc.Id))
				return nil
			}
		}

		task, err := s.stores.Tasks.Create(ctx, entity.Task{
			Id:      value.NewTaskID().String(),
			Type:    entity.TaskDispatchResolution,
			Status:  entity.TaskQueued,
			PrId:    &pr.Id,
			MergeId: &mc.Id,
		})
		if err != nil {
			return fmt.Errorf("tasks.Create: %w", err)
		}

		mergeId = mc.Id
		job = &Job{
			TaskId:  task.Id,
			Type:    task.Type,
			Payload: DispatchJob{MergeId: mc.Id},
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cancel(ctx, terminated)

	if job != nil {
		if err := s.enqueue(ctx, *job, &mergeId); err != nil {
			return err
		}
		logger(ctx).Info("resolution queued", slog.Int64("merge_id", mergeId), slog.String("task_id", job.TaskId))
	}

	return probeErr
}

func (s *PullRequestService) activeConflict(ctx context.Context, prId int64) (entity.MergeConflict, bool, error) {
	mc, err := s.stores.Conflicts.LockActiveByPr(ctx, prId)
	switch {
	case domain.HasCode(err, errcodes.NotFound):
		return entity.MergeConflict{}, false, nil
	case err != nil:
		return entity.MergeConflict{}, false, fmt.Errorf("conflicts.LockActiveByPr: %w", err)
	}
	return mc, true, nil
}

func (s *PullRequestService) openConflict(
	ctx context.Context,
	pr entity.PullRequest,
	status entity.MergeConflictStatus,
) (entity.MergeConflict, error) {
	mc, err := s.stores.Conflicts.Create(ctx, entity.MergeConflict{
		PrId:               pr.Id,
		Status:             status,
		HeadSha:            pr.HeadSha,
		ResolvedCodeBranch: value.NewResolvedCodeBranch(),
	})
	if err != nil {
		return entity.MergeConflict{}, fmt.Errorf("conflicts.Create: %w", err)
	}

	logger(ctx).Info("merge conflict created",
		slog.Int64("merge_id", mc.Id),
		slog.String("status", status.String()),
	)
	metrics.ConflictTransitions.WithLabelValues(status.String()).Inc()

	return mc, nil
}

func pullRequestFromEvent(repo entity.Repository, ev event.PullRequestEvent) entity.PullRequest {
	p := ev.PullRequest
	return entity.PullRequest{
		RepoId:         repo.Id,
		Number:         ev.Number,
		InstallationId: ev.Installation.Id,
		Url:            p.Url,
		GithubId:       p.Id,
		NodeId:         p.NodeId,
		State:          p.State,
		Title:          p.Title,
		HeadRef:        p.Head.Ref,
		HeadSha:        p.Head.Sha,
		BaseRef:        p.Base.Ref,
		ClosedAt:       p.ClosedAt,
		MergedAt:       p.MergedAt,
		Mergeable:      entity.MergeableUnknown,
		Commits:        p.Commits,
		Details:        string(ev.Raw),
		EventUpdatedAt: p.UpdatedAt,
	}
}

// ProcessEvent is the worker entry point for a queued pull_request delivery.
func (s *PullRequestService) ProcessEvent(ctx context.Context, taskId string, job PullRequestJob) error {
	return s.run(ctx, taskId, func(ctx context.Context) error {
		ev, err := event.Parse(event.NamePullRequest, job.Body)
		if err != nil {
			return err
		}
		pr, ok := ev.(event.PullRequestEvent)
		if !ok {
			logger(ctx).Info("pull_request action not handled", slog.String("event", ev.Name()))
			return nil
		}
		return s.HandleEvent(ctx, pr)
	})
}
