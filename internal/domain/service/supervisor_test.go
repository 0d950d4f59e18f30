package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"validation", domain.NewError(errcodes.ValidationError, "bad"), true},
		{"timeout", domain.NewError(errcodes.TimeoutError, "slow"), true},
		{"upstream", domain.NewError(errcodes.UpstreamError, "422"), true},
		{"resolution", domain.NewError(errcodes.ResolutionFailure, "engine"), true},
		{"cancellation", domain.NewError(errcodes.CancellationError, "terminated"), true},
		{"not found", domain.NewError(errcodes.NotFound, "gone"), true},
		{"wrapped", fmt.Errorf("installer: %w", domain.NewError(errcodes.UpstreamError, "403")), true},
		{"conflict", domain.NewError(errcodes.Conflict, "race"), false},
		{"internal", domain.NewError(errcodes.InternalServerError, "db"), false},
		{"foreign", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPermanent(tt.err))
		})
	}
}

func TestSupervisorTransition(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	s := supervisor{stores: store.stores(), queue: &fakeQueue{}, notifier: newFakeNotifier()}

	mc, err := store.stores().Conflicts.Create(ctx, entity.MergeConflict{PrId: 1, Status: entity.ConflictOpen})
	require.NoError(t, err)

	require.NoError(t, s.transition(ctx, &mc, entity.ConflictResolving))
	assert.Equal(t, entity.ConflictResolving, mc.Status)
	assert.Equal(t, entity.ConflictResolving, store.conflict(mc.Id).Status)

	require.NoError(t, s.transition(ctx, &mc, entity.ConflictResolving), "same status is a no-op")

	err = s.transition(ctx, &mc, entity.ConflictOpen)
	assert.True(t, domain.HasCode(err, errcodes.Conflict))
	assert.Equal(t, entity.ConflictResolving, store.conflict(mc.Id).Status)
}

func TestSupervisorFailTaskIgnoresFinishedTasks(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	s := supervisor{stores: store.stores(), queue: &fakeQueue{}, notifier: newFakeNotifier()}
	store.putTask(entity.Task{Id: "t", Status: entity.TaskTerminated})

	failed, err := s.failTask(ctx, "t", nil, errors.New("late"))
	require.NoError(t, err)
	assert.False(t, failed)
	assert.Equal(t, entity.TaskTerminated, store.task("t").Status)
}

func TestSupervisorAbortRequeuesAfterInterruption(t *testing.T) {
	store := newMemStore()
	s := supervisor{stores: store.stores(), queue: &fakeQueue{}, notifier: newFakeNotifier()}
	store.putTask(entity.Task{Id: "t", Status: entity.TaskResolving})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.checkpoint(ctx, "t")
	require.True(t, domain.HasCode(err, errcodes.CancellationError))
	assert.False(t, s.abort(ctx, "t", nil, err))
	assert.Equal(t, entity.TaskQueued, store.task("t").Status)
}
