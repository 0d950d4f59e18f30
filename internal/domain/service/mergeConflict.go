package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

type MergeConflictService struct {
	supervisor
}

func NewMergeConflictService(stores Stores, queue JobQueue, notifier Notifier) *MergeConflictService {
	return &MergeConflictService{
		supervisor: supervisor{
			stores:   stores,
			queue:    queue,
			notifier: notifier,
		},
	}
}

// Details returns what the apply-resolution automation needs to push an episode's results.
func (s *MergeConflictService) Details(ctx context.Context, id int64) (entity.MergeConflictDetails, error) {
	mc, err := s.stores.Conflicts.GetById(ctx, id)
	if err != nil {
		return entity.MergeConflictDetails{}, fmt.Errorf("conflicts.GetById: %w", err)
	}
	pr, err := s.stores.PullRequests.GetById(ctx, mc.PrId)
	if err != nil {
		return entity.MergeConflictDetails{}, fmt.Errorf("pullRequests.GetById: %w", err)
	}
	repo, err := s.stores.Repositories.GetById(ctx, pr.RepoId)
	if err != nil {
		return entity.MergeConflictDetails{}, fmt.Errorf("repositories.GetById: %w", err)
	}
	paths, err := s.stores.Conflicts.ListFilePaths(ctx, mc.Id)
	if err != nil {
		return entity.MergeConflictDetails{}, fmt.Errorf("conflicts.ListFilePaths: %w", err)
	}

	return entity.MergeConflictDetails{
		MergeConflict: mc,
		HeadRef:       pr.HeadRef,
		BaseRef:       pr.BaseRef,
		RepoName:      repo.FullName,
		FilePaths:     paths,
	}, nil
}

// Decide records the accept or reject decision on a resolved or escalated episode.
func (s *MergeConflictService) Decide(
	ctx context.Context,
	id int64,
	decision entity.MergeConflictStatus,
) (entity.MergeConflict, error) {
	if decision != entity.ConflictAccepted && decision != entity.ConflictRejected {
		return entity.MergeConflict{}, domain.NewError(errcodes.ValidationError,
			fmt.Sprintf("decision must be %s or %s", entity.ConflictAccepted, entity.ConflictRejected))
	}

	var (
		mc         entity.MergeConflict
		terminated []string
	)
	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if mc, err = s.stores.Conflicts.LockById(ctx, id); err != nil {
			return fmt.Errorf("conflicts.LockById: %w", err)
		}
		if mc.Status != entity.ConflictResolved && mc.Status != entity.ConflictEscalated {
			return domain.NewError(errcodes.Conflict,
				fmt.Sprintf("merge conflict %d is %s, only resolved or escalated episodes take a decision", id, mc.Status))
		}
		if terminated, err = s.terminateActive(ctx, mc.Id); err != nil {
			return err
		}
		return s.transition(ctx, &mc, decision)
	})
	if err != nil {
		return entity.MergeConflict{}, err
	}
	s.cancel(ctx, terminated)

	logger(ctx).Info("merge conflict decided", slog.Int64("merge_id", id), slog.String("decision", decision.String()))
	return mc, nil
}
