package server

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/internal/domain/service"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

const secret = "It's a Secret to Everybody"

type routerMock struct{ mock.Mock }

func (m *routerMock) Route(ctx context.Context, name string, body []byte) (service.RouteResult, error) {
	args := m.Called(ctx, name, body)
	return args.Get(0).(service.RouteResult), args.Error(1)
}

type resolutionsMock struct{ mock.Mock }

func (m *resolutionsMock) Submit(ctx context.Context, sub service.Submission) (entity.Task, error) {
	args := m.Called(ctx, sub)
	return args.Get(0).(entity.Task), args.Error(1)
}

type tasksMock struct {
	mock.Mock
	messages []entity.Progress
}

func (m *tasksMock) Get(ctx context.Context, id string) (service.TaskView, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(service.TaskView), args.Error(1)
}

func (m *tasksMock) Stream(ctx context.Context, id string, emit func(entity.Progress) error) error {
	args := m.Called(ctx, id)
	for _, msg := range m.messages {
		if err := emit(msg); err != nil {
			return err
		}
	}
	return args.Error(0)
}

type conflictsMock struct{ mock.Mock }

func (m *conflictsMock) Details(ctx context.Context, id int64) (entity.MergeConflictDetails, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(entity.MergeConflictDetails), args.Error(1)
}

func (m *conflictsMock) Decide(
	ctx context.Context,
	id int64,
	decision entity.MergeConflictStatus,
) (entity.MergeConflict, error) {
	args := m.Called(ctx, id, decision)
	return args.Get(0).(entity.MergeConflict), args.Error(1)
}

type fixture struct {
	router      *routerMock
	resolutions *resolutionsMock
	tasks       *tasksMock
	conflicts   *conflictsMock
	handler     http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		router:      &routerMock{},
		resolutions: &resolutionsMock{},
		tasks:       &tasksMock{},
		conflicts:   &conflictsMock{},
	}
	r := chi.NewRouter()
	NewServer(f.router, f.resolutions, f.tasks, f.conflicts, secret).RegisterRoutes(r)
	f.handler = r
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func webhookRequest(event, body, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(headerEvent, event)
	if signature != "" {
		req.Header.Set(headerSignature, signature)
	}
	return req
}

func TestVerifySignature(t *testing.T) {
	body := []byte("Hello, World!")

	// reference vector from GitHub's webhook documentation
	require.NoError(t, verifySignature([]byte(secret), body,
		"sha256=757107ea0eb2509fc211221cce984b8a37570b6d7586c22c46f4379c8b043e17"))

	assert.Error(t, verifySignature([]byte(secret), body, ""))
	assert.Error(t, verifySignature([]byte(secret), body, "sha1=abc"))
	assert.Error(t, verifySignature([]byte(secret), body, "sha256=zz"))
	assert.Error(t, verifySignature([]byte("other"), body,
		"sha256=757107ea0eb2509fc211221cce984b8a37570b6d7586c22c46f4379c8b043e17"))
}

func TestPostWebhook_RejectsUnsigned(t *testing.T) {
	tests := []struct {
		name      string
		signature string
	}{
		{name: "missing", signature: ""},
		{name: "mismatched", signature: sign(`{"other":true}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			rec := f.do(webhookRequest("pull_request", `{"action":"opened"}`, tt.signature))

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), string(errcodes.Unauthorized))
			f.router.AssertNotCalled(t, "Route", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestPostWebhook_Queued(t *testing.T) {
	f := newFixture()
	body := `{"action":"opened"}`
	f.router.On("Route", mock.Anything, "pull_request", []byte(body)).
		Return(service.RouteResult{TaskId: "task-1"}, nil)

	rec := f.do(webhookRequest("pull_request", body, sign(body)))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status":"queued","task_id":"task-1"}`, rec.Body.String())
	f.router.AssertExpectations(t)
}

func TestPostWebhook_Ignored(t *testing.T) {
	f := newFixture()
	body := `{"zen":"Keep it logically awesome."}`
	f.router.On("Route", mock.Anything, "ping", []byte(body)).Return(service.RouteResult{Ignored: true}, nil)

	rec := f.do(webhookRequest("ping", body, sign(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ignored"}`, rec.Body.String())
}

func TestPostWebhook_InvalidPayload(t *testing.T) {
	f := newFixture()
	body := `{"action":`
	f.router.On("Route", mock.Anything, "pull_request", []byte(body)).
		Return(service.RouteResult{}, domain.NewError(errcodes.ValidationError, "malformed payload"))

	rec := f.do(webhookRequest("pull_request", body, sign(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"ValidationError","message":"malformed payload"}}`, rec.Body.String())
}

func TestPostResolveConflicts(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		f := newFixture()
		mergeId := int64(7)
		f.resolutions.On("Submit", mock.Anything, service.Submission{
			TaskId:   "abc",
			MergeId:  &mergeId,
			FilePath: "main.go",
			File:     "package main\n",
			Final:    true,
		}).Return(entity.Task{Id: "abc", Status: entity.TaskQueued}, nil)

		req := httptest.NewRequest(http.MethodPost, "/resolve_conflicts",
			strings.NewReader(`{"file":"package main\n","file_path":"main.go","task_id":"abc","merge_id":7,"final":true}`))
		rec := f.do(req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.JSONEq(t, `{"task_id":"abc","status":"queued"}`, rec.Body.String())
	})

	t.Run("missing file path", func(t *testing.T) {
		f := newFixture()

		req := httptest.NewRequest(http.MethodPost, "/resolve_conflicts", strings.NewReader(`{"file":"x"}`))
		rec := f.do(req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		f.resolutions.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	})

	t.Run("concurrent submission", func(t *testing.T) {
		f := newFixture()
		f.resolutions.On("Submit", mock.Anything, mock.Anything).
			Return(entity.Task{}, domain.NewError(errcodes.Conflict, "merge conflict 7 already has an active task"))

		req := httptest.NewRequest(http.MethodPost, "/resolve_conflicts",
			strings.NewReader(`{"file":"x","file_path":"a.go","merge_id":7}`))
		rec := f.do(req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestGetTask(t *testing.T) {
	f := newFixture()
	errText := "AI fallback failed"
	f.tasks.On("Get", mock.Anything, "t1").Return(service.TaskView{
		Task: entity.Task{Id: "t1", Type: entity.TaskResolveConflict, Status: entity.TaskFailed, Error: &errText},
	}, nil)
	f.tasks.On("Get", mock.Anything, "missing").
		Return(service.TaskView{}, domain.NewError(errcodes.NotFound, "task not found"))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/get-task/t1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"failed"`)
	assert.Contains(t, rec.Body.String(), `"error":"AI fallback failed"`)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/get-task/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/get-task/not%20valid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTaskStream(t *testing.T) {
	f := newFixture()
	score := 0.9
	f.tasks.messages = []entity.Progress{
		{TaskId: "t1", Status: entity.TaskResolving, FilePath: "a.go", ResolvedCode: "x", ConfidenceScore: &score},
		{TaskId: "t1", Status: entity.TaskResolved, FilePath: "a.go"},
	}
	f.tasks.On("Stream", mock.Anything, "t1").Return(nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/tasks/t1/stream", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	var lines []string
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"status":"resolving"`)
	assert.Contains(t, lines[1], `"status":"resolved"`)
	assert.Equal(t, "[DONE]", lines[2])
}

func TestGetTaskStream_TimeoutBeforeFirstMessage(t *testing.T) {
	f := newFixture()
	f.tasks.On("Stream", mock.Anything, "t1").
		Return(domain.NewError(errcodes.TimeoutError, "no completion before stream timeout"))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/tasks/t1/stream", nil))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestMergeConflictEndpoints(t *testing.T) {
	f := newFixture()
	f.conflicts.On("Details", mock.Anything, int64(3)).Return(entity.MergeConflictDetails{
		MergeConflict: entity.MergeConflict{Id: 3, PrId: 1, Status: entity.ConflictResolved, ResolvedCodeBranch: "auto-fix-x"},
		HeadRef:       "feature",
		BaseRef:       "main",
		FilePaths:     []string{"a.go", "b.go"},
	}, nil)
	f.conflicts.On("Decide", mock.Anything, int64(3), entity.ConflictAccepted).
		Return(entity.MergeConflict{Id: 3, PrId: 1, Status: entity.ConflictAccepted}, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/merge-conflicts/3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"file_paths":["a.go","b.go"]`)
	assert.Contains(t, rec.Body.String(), `"resolved_code_branch":"auto-fix-x"`)

	rec = f.do(httptest.NewRequest(http.MethodPost, "/merge-conflicts/3/decision",
		strings.NewReader(`{"decision":"accepted"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"accepted"`)

	rec = f.do(httptest.NewRequest(http.MethodPost, "/merge-conflicts/3/decision",
		strings.NewReader(`{"decision":"resolved"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/merge-conflicts/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusOf_HidesInternalErrors(t *testing.T) {
	status, body := statusOf(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal error", body.Message)

	status, _ = statusOf(domain.NewError(errcodes.UpstreamError, "github returned 500"))
	assert.Equal(t, http.StatusBadGateway, status)
}
