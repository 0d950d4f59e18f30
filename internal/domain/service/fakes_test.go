package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

// memStore is an in-memory stand-in for the relational store. It enforces the same partial
// unique indexes as the schema and rolls a transaction back when fn fails.
type memStore struct {
	mu        sync.Mutex
	seq       int64
	clock     time.Time
	repos     map[int64]entity.Repository
	prs       map[int64]entity.PullRequest
	conflicts map[int64]entity.MergeConflict
	tasks     map[string]entity.Task
	resolved  []entity.ResolvedCode
}

type memTxKey struct{}

func newMemStore() *memStore {
	return &memStore{
		clock:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		repos:     map[int64]entity.Repository{},
		prs:       map[int64]entity.PullRequest{},
		conflicts: map[int64]entity.MergeConflict{},
		tasks:     map[string]entity.Task{},
	}
}

func (s *memStore) stores() Stores {
	return Stores{
		Tx:            s,
		Repositories:  memRepositories{s},
		PullRequests:  memPullRequests{s},
		Conflicts:     memConflicts{s},
		Tasks:         memTasks{s},
		ResolvedCodes: memResolvedCodes{s},
	}
}

func (s *memStore) nextId() int64 {
	s.seq++
	return s.seq
}

func (s *memStore) now() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	repos, prs := maps.Clone(s.repos), maps.Clone(s.prs)
	conflicts, tasks := maps.Clone(s.conflicts), maps.Clone(s.tasks)
	resolved := slices.Clone(s.resolved)
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.mu.Lock()
		s.repos, s.prs, s.conflicts, s.tasks, s.resolved = repos, prs, conflicts, tasks, resolved
		s.mu.Unlock()
		return err
	}
	return nil
}

func notFound(what string, id any) error {
	return domain.NewError(errcodes.NotFound, fmt.Sprintf("%s %v not found", what, id))
}

// conflictsOf returns the pull request's episodes, oldest first.
func (s *memStore) conflictsOf(prId int64) []entity.MergeConflict {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []entity.MergeConflict
	for _, mc := range s.conflicts {
		if mc.PrId == prId {
			out = append(out, mc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

func (s *memStore) tasksWith(status entity.TaskStatus, typ entity.TaskType) []entity.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []entity.Task
	for _, t := range s.tasks {
		if t.Status == status && (typ == "" || t.Type == typ) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *memStore) task(id string) entity.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[id]
}

func (s *memStore) conflict(id int64) entity.MergeConflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conflicts[id]
}

func (s *memStore) putTask(t entity.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.Id] = t
}

func (s *memStore) setTaskStatus(id string, status entity.TaskStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tasks[id]
	t.Status = status
	s.tasks[id] = t
}

func (s *memStore) setConflictStatus(id int64, status entity.MergeConflictStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mc := s.conflicts[id]
	mc.Status = status
	s.conflicts[id] = mc
}

type memRepositories struct{ s *memStore }

func (r memRepositories) Upsert(_ context.Context, repo entity.Repository) (entity.Repository, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, existing := range r.s.repos {
		if existing.GithubId == repo.GithubId {
			repo.Id, repo.CreatedAt = id, existing.CreatedAt
			r.s.repos[id] = repo
			return repo, nil
		}
	}
	repo.Id = r.s.nextId()
	repo.CreatedAt = r.s.now()
	r.s.repos[repo.Id] = repo
	return repo, nil
}

func (r memRepositories) MarkRemoved(_ context.Context, githubId int64) (entity.Repository, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, repo := range r.s.repos {
		if repo.GithubId == githubId {
			repo.Status = entity.RepositoryRemoved
			r.s.repos[id] = repo
			return repo, nil
		}
	}
	return entity.Repository{}, notFound("repository", githubId)
}

func (r memRepositories) GetById(_ context.Context, id int64) (entity.Repository, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	repo, ok := r.s.repos[id]
	if !ok {
		return entity.Repository{}, notFound("repository", id)
	}
	return repo, nil
}

func (r memRepositories) GetByGithubId(_ context.Context, githubId int64) (entity.Repository, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, repo := range r.s.repos {
		if repo.GithubId == githubId {
			return repo, nil
		}
	}
	return entity.Repository{}, notFound("repository", githubId)
}

type memPullRequests struct{ s *memStore }

func (r memPullRequests) Create(_ context.Context, pr entity.PullRequest) (entity.PullRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.prs {
		if existing.GithubId == pr.GithubId {
			return entity.PullRequest{}, domain.NewError(errcodes.Conflict, "pull request exists")
		}
	}
	pr.Id = r.s.nextId()
	pr.CreatedAt = r.s.now()
	pr.UpdatedAt = pr.CreatedAt
	r.s.prs[pr.Id] = pr
	return pr, nil
}

func (r memPullRequests) GetById(_ context.Context, id int64) (entity.PullRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	pr, ok := r.s.prs[id]
	if !ok {
		return entity.PullRequest{}, notFound("pull request", id)
	}
	return pr, nil
}

func (r memPullRequests) LockById(ctx context.Context, id int64) (entity.PullRequest, error) {
	return r.GetById(ctx, id)
}

func (r memPullRequests) LockByGithubId(_ context.Context, githubId int64) (entity.PullRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, pr := range r.s.prs {
		if pr.GithubId == githubId {
			return pr, nil
		}
	}
	return entity.PullRequest{}, notFound("pull request", githubId)
}

func (r memPullRequests) UpdateSnapshot(_ context.Context, pr entity.PullRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.prs[pr.Id]; !ok {
		return notFound("pull request", pr.Id)
	}
	pr.UpdatedAt = r.s.now()
	r.s.prs[pr.Id] = pr
	return nil
}

func (r memPullRequests) SetMergeable(_ context.Context, id int64, mergeable entity.Mergeable) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	pr, ok := r.s.prs[id]
	if !ok {
		return notFound("pull request", id)
	}
	pr.Mergeable = mergeable
	r.s.prs[id] = pr
	return nil
}

type memConflicts struct{ s *memStore }

func (r memConflicts) Create(_ context.Context, mc entity.MergeConflict) (entity.MergeConflict, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if mc.Status.IsActive() {
		for _, existing := range r.s.conflicts {
			if existing.PrId == mc.PrId && existing.Status.IsActive() {
				return entity.MergeConflict{}, domain.NewError(errcodes.Conflict, "pull request already has an active conflict")
			}
		}
	}
	mc.Id = r.s.nextId()
	mc.CreatedAt = r.s.now()
	mc.UpdatedAt = mc.CreatedAt
	r.s.conflicts[mc.Id] = mc
	return mc, nil
}

func (r memConflicts) GetById(_ context.Context, id int64) (entity.MergeConflict, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	mc, ok := r.s.conflicts[id]
	if !ok {
		return entity.MergeConflict{}, notFound("merge conflict", id)
	}
	return mc, nil
}

func (r memConflicts) LockById(ctx context.Context, id int64) (entity.MergeConflict, error) {
	return r.GetById(ctx, id)
}

func (r memConflicts) LockActiveByPr(_ context.Context, prId int64) (entity.MergeConflict, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, mc := range r.s.conflicts {
		if mc.PrId == prId && mc.Status.IsActive() {
			return mc, nil
		}
	}
	return entity.MergeConflict{}, notFound("active merge conflict for pull request", prId)
}

func (r memConflicts) LockLatestByPr(
	_ context.Context,
	prId int64,
	status entity.MergeConflictStatus,
) (entity.MergeConflict, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var (
		latest entity.MergeConflict
		found  bool
	)
	for _, mc := range r.s.conflicts {
		if mc.PrId == prId && mc.Status == status && (!found || mc.Id > latest.Id) {
			latest, found = mc, true
		}
	}
	if !found {
		return entity.MergeConflict{}, notFound("merge conflict for pull request", prId)
	}
	return latest, nil
}

func (r memConflicts) UpdateStatus(_ context.Context, id int64, from, to entity.MergeConflictStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	mc, ok := r.s.conflicts[id]
	if !ok {
		return notFound("merge conflict", id)
	}
	if mc.Status != from {
		return domain.NewError(errcodes.Conflict, fmt.Sprintf("merge conflict %d is %s", id, mc.Status))
	}
	if to.IsActive() {
		for _, other := range r.s.conflicts {
			if other.Id != id && other.PrId == mc.PrId && other.Status.IsActive() {
				return domain.NewError(errcodes.Conflict, "pull request already has an active conflict")
			}
		}
	}
	mc.Status = to
	mc.UpdatedAt = r.s.now()
	r.s.conflicts[id] = mc
	return nil
}

func (r memConflicts) ListFilePaths(_ context.Context, id int64) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var paths []string
	for _, rc := range r.s.resolved {
		if rc.MergeConflictId != nil && *rc.MergeConflictId == id && !slices.Contains(paths, rc.FilePath) {
			paths = append(paths, rc.FilePath)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

type memTasks struct{ s *memStore }

func (r memTasks) Create(_ context.Context, task entity.Task) (entity.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tasks[task.Id]; ok {
		return entity.Task{}, domain.NewError(errcodes.Conflict, "task exists")
	}
	if task.MergeId != nil && task.Status.IsActive() {
		for _, t := range r.s.tasks {
			if t.MergeId != nil && *t.MergeId == *task.MergeId && t.Status.IsActive() {
				return entity.Task{}, domain.NewError(errcodes.Conflict, "merge conflict already has an active task")
			}
		}
	}
	task.JobId = task.Id
	task.CreatedAt = r.s.now()
	task.UpdatedAt = task.CreatedAt
	r.s.tasks[task.Id] = task
	return task, nil
}

func (r memTasks) GetById(_ context.Context, id string) (entity.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tasks[id]
	if !ok {
		return entity.Task{}, notFound("task", id)
	}
	return t, nil
}

func (r memTasks) LockById(ctx context.Context, id string) (entity.Task, error) {
	return r.GetById(ctx, id)
}

func (r memTasks) LockActiveByMerge(_ context.Context, mergeId int64) ([]entity.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []entity.Task
	for _, t := range r.s.tasks {
		if t.MergeId != nil && *t.MergeId == mergeId && t.Status.IsActive() {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memTasks) UpdateStatus(_ context.Context, id string, status entity.TaskStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tasks[id]
	if !ok {
		return notFound("task", id)
	}
	t.Status = status
	t.UpdatedAt = r.s.now()
	r.s.tasks[id] = t
	return nil
}

func (r memTasks) Finish(_ context.Context, id string, status entity.TaskStatus, result, errText *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tasks[id]
	if !ok {
		return notFound("task", id)
	}
	t.Status = status
	t.Result = result
	t.Error = errText
	t.UpdatedAt = r.s.now()
	r.s.tasks[id] = t
	return nil
}

func (r memTasks) ListStale(_ context.Context, updatedBefore time.Time) ([]entity.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []entity.Task
	for _, t := range r.s.tasks {
		if t.Status.IsActive() && t.UpdatedAt.Before(updatedBefore) {
			out = append(out, t)
		}
	}
	return out, nil
}

type memResolvedCodes struct{ s *memStore }

func (r memResolvedCodes) Create(_ context.Context, rc entity.ResolvedCode) (entity.ResolvedCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rc.Id = r.s.nextId()
	rc.CreatedAt = r.s.now()
	r.s.resolved = append(r.s.resolved, rc)
	return rc, nil
}

type probeResult struct {
	mergeable entity.Mergeable
	err       error
}

type fakeProber struct {
	mu      sync.Mutex
	results []probeResult
	calls   []ProbeRequest
}

func (p *fakeProber) Probe(_ context.Context, req ProbeRequest) (entity.Mergeable, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, req)
	if len(p.results) == 0 {
		return entity.MergeableFalse, nil
	}
	r := p.results[0]
	p.results = p.results[1:]
	return r.mergeable, r.err
}

type fakeQueue struct {
	mu        sync.Mutex
	jobs      []Job
	cancelled []string
	err       error
	refuse    func(Job) bool
}

func (q *fakeQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return q.err
	}
	if q.refuse != nil && q.refuse(job) {
		return errors.New("queue refused " + job.TaskId)
	}
	// the queue keys jobs by task id
	for _, j := range q.jobs {
		if j.TaskId == job.TaskId {
			return nil
		}
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Cancel(_ context.Context, taskId string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, taskId)
}

func (q *fakeQueue) jobsOf(typ entity.TaskType) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Job
	for _, j := range q.jobs {
		if j.Type == typ {
			out = append(out, j)
		}
	}
	return out
}

type notice struct {
	msg  entity.Progress
	done bool
}

// fakeNotifier keeps every message and fans them out to live subscribers.
type fakeNotifier struct {
	mu        sync.Mutex
	published []entity.Progress
	done      []string
	subs      map[string][]chan notice

	// onSubscribe runs right after a subscription is registered.
	onSubscribe func()
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{subs: map[string][]chan notice{}}
}

func (n *fakeNotifier) Publish(_ context.Context, msg entity.Progress) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.published = append(n.published, msg)
	for _, ch := range n.subs[msg.TaskId] {
		ch <- notice{msg: msg}
	}
	return nil
}

func (n *fakeNotifier) Done(_ context.Context, taskId string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.done = append(n.done, taskId)
	for _, ch := range n.subs[taskId] {
		ch <- notice{done: true}
	}
	return nil
}

func (n *fakeNotifier) Subscribe(_ context.Context, taskId string) (Subscription, error) {
	ch := make(chan notice, 64)

	n.mu.Lock()
	n.subs[taskId] = append(n.subs[taskId], ch)
	hook := n.onSubscribe
	n.mu.Unlock()

	if hook != nil {
		hook()
	}
	return fakeSubscription{ch: ch}, nil
}

func (n *fakeNotifier) messagesFor(taskId string) []entity.Progress {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []entity.Progress
	for _, m := range n.published {
		if m.TaskId == taskId {
			out = append(out, m)
		}
	}
	return out
}

func (n *fakeNotifier) doneFor(taskId string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Contains(n.done, taskId)
}

type fakeSubscription struct {
	ch chan notice
}

func (s fakeSubscription) Next(ctx context.Context) (entity.Progress, bool, error) {
	select {
	case <-ctx.Done():
		return entity.Progress{}, false, ctx.Err()
	case n := <-s.ch:
		return n.msg, n.done, nil
	}
}

func (s fakeSubscription) Close() error { return nil }
