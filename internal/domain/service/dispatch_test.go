package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/internal/domain/event"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

type fakeDispatcher struct {
	requests []DispatchRequest
	err      error
}

func (d *fakeDispatcher) DispatchResolution(_ context.Context, req DispatchRequest) error {
	d.requests = append(d.requests, req)
	return d.err
}

// openedEpisode drives an unmergeable opened event and returns the episode and its dispatch task.
func openedEpisode(t *testing.T, h *harness) (entity.MergeConflict, entity.Task) {
	t.Helper()

	h.probes(probeResult{mergeable: entity.MergeableFalse})
	require.NoError(t, h.prs.HandleEvent(context.Background(), prEvent(event.ActionOpened, t0, "sha1")))

	mc := h.requireOneActiveConflict(t, h.pullRequest(t).Id)
	queued := h.store.tasksWith(entity.TaskQueued, entity.TaskDispatchResolution)
	require.Len(t, queued, 1)
	return mc, queued[0]
}

func TestDispatch_Success(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	mc, task := openedEpisode(t, h)
	dispatcher := &fakeDispatcher{}
	svc := NewDispatchService(h.store.stores(), dispatcher, h.queue, h.notifier)

	require.NoError(t, svc.Dispatch(ctx, task.Id, DispatchJob{MergeId: mc.Id}))

	require.Len(t, dispatcher.requests, 1)
	assert.Equal(t, DispatchRequest{
		FullName:       "acme/widgets",
		InstallationId: 77,
		HeadRef:        "feature",
		BaseRef:        "main",
		MergeId:        mc.Id,
	}, dispatcher.requests[0])
	assert.Equal(t, entity.TaskResolved, h.store.task(task.Id).Status)
	assert.Equal(t, entity.ConflictResolving, h.store.conflict(mc.Id).Status)
}

func TestDispatch_RejectedEscalates(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	mc, task := openedEpisode(t, h)
	dispatcher := &fakeDispatcher{err: domain.NewError(errcodes.UpstreamError, "github returned 422")}
	svc := NewDispatchService(h.store.stores(), dispatcher, h.queue, h.notifier)

	err := svc.Dispatch(ctx, task.Id, DispatchJob{MergeId: mc.Id})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))

	failed := h.store.task(task.Id)
	assert.Equal(t, entity.TaskFailed, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Contains(t, *failed.Error, "422")
	assert.Equal(t, entity.ConflictEscalated, h.store.conflict(mc.Id).Status)
}

func TestDispatch_TransientErrorRequeues(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	mc, task := openedEpisode(t, h)
	dispatcher := &fakeDispatcher{err: errors.New("connection reset by peer")}
	svc := NewDispatchService(h.store.stores(), dispatcher, h.queue, h.notifier)

	err := svc.Dispatch(ctx, task.Id, DispatchJob{MergeId: mc.Id})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))

	assert.Equal(t, entity.TaskQueued, h.store.task(task.Id).Status)
	assert.Equal(t, entity.ConflictResolving, h.store.conflict(mc.Id).Status)
}

func TestDispatch_TerminatedTaskSkipped(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	mc, task := openedEpisode(t, h)
	h.store.setTaskStatus(task.Id, entity.TaskTerminated)
	dispatcher := &fakeDispatcher{}
	svc := NewDispatchService(h.store.stores(), dispatcher, h.queue, h.notifier)

	require.NoError(t, svc.Dispatch(ctx, task.Id, DispatchJob{MergeId: mc.Id}))

	assert.Empty(t, dispatcher.requests)
	assert.Equal(t, entity.TaskTerminated, h.store.task(task.Id).Status)
	assert.Equal(t, entity.ConflictOpen, h.store.conflict(mc.Id).Status)
}

func TestDispatch_InactiveEpisodeDropped(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	mc, task := openedEpisode(t, h)
	h.store.setConflictStatus(mc.Id, entity.ConflictOverwritten)
	dispatcher := &fakeDispatcher{}
	svc := NewDispatchService(h.store.stores(), dispatcher, h.queue, h.notifier)

	require.NoError(t, svc.Dispatch(ctx, task.Id, DispatchJob{MergeId: mc.Id}))

	assert.Empty(t, dispatcher.requests)
	assert.Equal(t, entity.TaskTerminated, h.store.task(task.Id).Status)
}

func TestDispatch_InterruptedContextRequeues(t *testing.T) {
	h := newHarness()
	mc, task := openedEpisode(t, h)
	dispatcher := &fakeDispatcher{}
	svc := NewDispatchService(h.store.stores(), dispatcher, h.queue, h.notifier)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Dispatch(ctx, task.Id, DispatchJob{MergeId: mc.Id})
	assert.True(t, domain.HasCode(err, errcodes.CancellationError))
	assert.Empty(t, dispatcher.requests)
	assert.Equal(t, entity.TaskQueued, h.store.task(task.Id).Status)
}
