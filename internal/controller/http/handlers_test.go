package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountentity "github.com/vadim/neo-publish/internal/domain/account/entity"
	accountpolicy "github.com/vadim/neo-publish/internal/domain/account/policy"
	analysisentity "github.com/vadim/neo-publish/internal/domain/analysis/entity"
	analyticsentity "github.com/vadim/neo-publish/internal/domain/analytics/entity"
	analyticspolicy "github.com/vadim/neo-publish/internal/domain/analytics/policy"
	taskentity "github.com/vadim/neo-publish/internal/domain/task/entity"
	taskpolicy "github.com/vadim/neo-publish/internal/domain/task/policy"
	"github.com/vadim/neo-publish/internal/domain/task/service"
	"github.com/vadim/neo-publish/internal/httpx/middleware"
	"github.com/vadim/neo-publish/internal/platform"
	"github.com/vadim/neo-publish/internal/queue"
	"github.com/vadim/neo-publish/internal/storage"
)

const testUser = "user-1"

type routes interface {
	RegisterRoutes(r chi.Router)
}

// serve routes one request, authenticated as testUser unless anonymous
func serve(t *testing.T, h routes, method, target string, body any, header ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	r := chi.NewRouter()
	h.RegisterRoutes(r)

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	if req.Header.Get("X-Anonymous") == "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), testUser))
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- tasks ---

type fakeTasks struct {
	createIn  taskpolicy.CreateTaskInput
	createOut *taskpolicy.CreateTaskOutput
	createErr error
	listIn    service.ListInput
	details   *taskpolicy.TaskDetails
	err       error
}

func (f *fakeTasks) CreateTask(_ context.Context, in taskpolicy.CreateTaskInput) (*taskpolicy.CreateTaskOutput, error) {
	f.createIn = in
	return f.createOut, f.createErr
}

func (f *fakeTasks) ListTasks(_ context.Context, in service.ListInput) (*service.ListOutput, error) {
	f.listIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &service.ListOutput{Tasks: []taskentity.Task{{ID: "t1"}}, Page: 1, Limit: 20, Total: 1, TotalPages: 1}, nil
}

func (f *fakeTasks) GetTask(context.Context, string, string) (*taskpolicy.TaskDetails, error) {
	return f.details, f.err
}

func (f *fakeTasks) CancelTask(_ context.Context, _, id string) (*taskentity.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &taskentity.Task{ID: id, Status: taskentity.StatusCancelled}, nil
}

func validTask() map[string]any {
	return map[string]any{
		"contentType":        "VIDEO",
		"title":              "新品发布",
		"targetPlatforms":    []string{"douyin", "WEIBO"},
		"selectedAccountIds": []string{"acc1", "acc2"},
		"idempotencyKey":     "body-key",
	}
}

func TestCreateTask(t *testing.T) {
	at := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	tests := []struct {
		name    string
		body    any
		header  []string
		out     *taskpolicy.CreateTaskOutput
		err     error
		status  int
		message string
		fields  map[string]string
	}{
		{
			name:    "created",
			body:    validTask(),
			out:     &taskpolicy.CreateTaskOutput{Task: &taskentity.Task{ID: "t1", PublishType: taskentity.PublishTypeImmediate}},
			status:  http.StatusCreated,
			message: "Task created and queued for publishing",
		},
		{
			name:    "scheduled",
			body:    validTask(),
			out:     &taskpolicy.CreateTaskOutput{Task: &taskentity.Task{ID: "t1", PublishType: taskentity.PublishTypeScheduled, ScheduledAt: &at}},
			status:  http.StatusCreated,
			message: "Task scheduled for " + at.Format(time.RFC3339),
		},
		{
			name:    "replayed",
			body:    validTask(),
			out:     &taskpolicy.CreateTaskOutput{Task: &taskentity.Task{ID: "t1"}, Existing: true},
			status:  http.StatusOK,
			message: "Task already submitted",
		},
		{
			name:   "blank title",
			body:   map[string]any{"contentType": "VIDEO", "title": "  ", "targetPlatforms": []string{"douyin"}, "selectedAccountIds": []string{"a"}},
			status: http.StatusBadRequest,
			fields: map[string]string{"title": "notblank"},
		},
		{
			name:   "unknown platform and content type",
			body:   map[string]any{"contentType": "AUDIO", "title": "x", "targetPlatforms": []string{"myspace"}, "selectedAccountIds": []string{"a"}},
			status: http.StatusBadRequest,
			fields: map[string]string{"contentType": "oneof=VIDEO IMAGE TEXT", "targetPlatforms[0]": "platform"},
		},
		{
			name:   "scheduled without time",
			body:   map[string]any{"contentType": "TEXT", "title": "x", "targetPlatforms": []string{"douyin"}, "selectedAccountIds": []string{"a"}, "publishType": "scheduled"},
			status: http.StatusBadRequest,
			fields: map[string]string{"scheduledAt": "required_if=PublishType scheduled"},
		},
		{
			name:   "malformed json",
			body:   "{",
			status: http.StatusBadRequest,
		},
		{
			name:   "platform without account",
			body:   validTask(),
			err:    fmt.Errorf("%w: WEIBO", taskentity.ErrPlatformUncovered),
			status: http.StatusBadRequest,
		},
		{
			name:   "broker down",
			body:   validTask(),
			err:    fmt.Errorf("%w: %w", taskentity.ErrSubmissionFailed, queue.ErrBrokerUnavailable),
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "anonymous",
			body:   validTask(),
			header: []string{"X-Anonymous", "1"},
			status: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeTasks{createOut: tt.out, createErr: tt.err}
			rec, env := serve(t, NewTaskHandler(f), http.MethodPost, "/social/tasks", tt.body, tt.header...)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.message != "" {
				assert.Equal(t, tt.message, env.Message)
			}
			if tt.fields != nil {
				assert.Equal(t, tt.fields, env.Fields)
			}
		})
	}
}

func TestCreateTaskInput(t *testing.T) {
	f := &fakeTasks{createOut: &taskpolicy.CreateTaskOutput{Task: &taskentity.Task{ID: "t1"}}}

	body := validTask()
	body["title"] = "  新品发布 "
	rec, _ := serve(t, NewTaskHandler(f), http.MethodPost, "/social/tasks", body, "Idempotency-Key", "header-key")
	require.Equal(t, http.StatusCreated, rec.Code)

	in := f.createIn
	assert.Equal(t, testUser, in.UserID)
	assert.Equal(t, "header-key", in.IdempotencyKey)
	assert.Equal(t, "新品发布", in.Title)
	assert.Equal(t, taskentity.PublishTypeImmediate, in.PublishType)
	assert.Equal(t, []platform.Platform{platform.Douyin, platform.Weibo}, in.TargetPlatforms)

	_, _ = serve(t, NewTaskHandler(f), http.MethodPost, "/social/tasks", validTask())
	assert.Equal(t, "body-key", f.createIn.IdempotencyKey)
}

func TestCreateTaskLimit(t *testing.T) {
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	f := &fakeTasks{}
	h := NewTaskHandler(f, deny)

	rec, _ := serve(t, h, http.MethodPost, "/social/tasks", validTask())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec, _ = serve(t, h, http.MethodGet, "/social/tasks", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "listing is not limited")
}

func TestListTasks(t *testing.T) {
	f := &fakeTasks{}
	rec, env := serve(t, NewTaskHandler(f), http.MethodGet, "/social/tasks?status=processing&page=2&limit=5&mvpId=m1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, f.listIn.Status)
	assert.Equal(t, taskentity.StatusProcessing, *f.listIn.Status)
	assert.Equal(t, 2, f.listIn.Page)
	assert.Equal(t, 5, f.listIn.Limit)
	assert.Equal(t, "m1", f.listIn.MvpID)

	var out ListTasksResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Len(t, out.Tasks, 1)
	assert.Equal(t, int64(1), out.Pagination.Total)

	rec, _ = serve(t, NewTaskHandler(f), http.MethodGet, "/social/tasks?page=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.err = taskentity.ErrInvalidStatus
	rec, _ = serve(t, NewTaskHandler(f), http.MethodGet, "/social/tasks?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTask(t *testing.T) {
	f := &fakeTasks{details: &taskpolicy.TaskDetails{Task: &taskentity.Task{ID: "t1"}}}
	rec, env := serve(t, NewTaskHandler(f), http.MethodGet, "/social/tasks/t1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.JSONEq(t, `"t1"`, string(out["id"]))
	assert.JSONEq(t, `[]`, string(out["publishLogs"]))

	f.err = taskentity.ErrTaskNotFound
	rec, env = serve(t, NewTaskHandler(f), http.MethodGet, "/social/tasks/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "task not found", env.Error)
}

func TestCancelTask(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{nil, http.StatusOK},
		{taskentity.ErrTaskCompleted, http.StatusBadRequest},
		{taskentity.ErrTaskCancelled, http.StatusBadRequest},
		{taskentity.ErrTaskNotFound, http.StatusNotFound},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec, env := serve(t, NewTaskHandler(&fakeTasks{err: tt.err}), http.MethodDelete, "/social/tasks/t1", nil)
		assert.Equal(t, tt.status, rec.Code, tt.err)
		if tt.err == nil {
			assert.Equal(t, "Task cancelled successfully", env.Message)
		}
	}
}

// --- accounts ---

type fakeAccounts struct {
	addIn    accountpolicy.AddAccountInput
	listIn   accountpolicy.ListAccountsInput
	out      *accountpolicy.AddAccountOutput
	err      error
	verified string
}

func (f *fakeAccounts) AddAccount(_ context.Context, in accountpolicy.AddAccountInput) (*accountpolicy.AddAccountOutput, error) {
	f.addIn = in
	return f.out, f.err
}

func (f *fakeAccounts) GetAccount(_ context.Context, _, id string) (*accountentity.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &accountentity.Account{ID: id, Cookie: "secret"}, nil
}

func (f *fakeAccounts) ListAccounts(_ context.Context, in accountpolicy.ListAccountsInput) ([]accountentity.Account, error) {
	f.listIn = in
	return []accountentity.Account{{ID: "acc1", Cookie: "secret"}}, f.err
}

func (f *fakeAccounts) UpdateCookie(context.Context, string, string, string) (*accountpolicy.AddAccountOutput, error) {
	return f.out, f.err
}

func (f *fakeAccounts) RequestVerification(_ context.Context, _, id string) (*queue.JobHandle, error) {
	f.verified = id
	if f.err != nil {
		return nil, f.err
	}
	return &queue.JobHandle{ID: queue.VerifyJobID(id), Queue: queue.Verify, State: queue.JobWaiting}, nil
}

func (f *fakeAccounts) DeleteAccount(context.Context, string, string) error {
	return f.err
}

func TestCreateAccount(t *testing.T) {
	stored := &accountentity.Account{ID: "acc1", Status: accountentity.StatusPendingVerification, Cookie: "sealed"}
	job := &queue.JobHandle{ID: "verify:acc1", Queue: queue.Verify}
	body := map[string]any{
		"platform":          "xiaohongshu",
		"platformAccountId": " 1001 ",
		"platformUsername":  "shop",
		"cookieString":      "sid=abc",
	}

	tests := []struct {
		name    string
		body    any
		out     *accountpolicy.AddAccountOutput
		err     error
		status  int
		message string
	}{
		{"created", body, &accountpolicy.AddAccountOutput{Account: stored, Job: job}, nil, http.StatusCreated, ""},
		{"verification not queued", body, &accountpolicy.AddAccountOutput{Account: stored}, queue.ErrBrokerUnavailable, http.StatusCreated, "账号已保存，验证任务排队失败，请稍后重试"},
		{"duplicate", body, nil, accountentity.ErrAccountExists, http.StatusConflict, ""},
		{"missing cookie", map[string]any{"platform": "douyin", "platformAccountId": "1"}, nil, nil, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeAccounts{out: tt.out, err: tt.err}
			rec, env := serve(t, NewAccountHandler(f, discardLogger()), http.MethodPost, "/social/accounts", tt.body)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.message, env.Message)
			assert.NotContains(t, rec.Body.String(), "sealed")
		})
	}

	f := &fakeAccounts{out: &accountpolicy.AddAccountOutput{Account: stored, Job: job}}
	_, _ = serve(t, NewAccountHandler(f, discardLogger()), http.MethodPost, "/social/accounts", body)
	assert.Equal(t, platform.Xiaohongshu, f.addIn.Platform)
	assert.Equal(t, "1001", f.addIn.PlatformAccountID)
	assert.Equal(t, "sid=abc", f.addIn.Cookie)
	assert.Equal(t, testUser, f.addIn.UserID)
}

func TestListAccounts(t *testing.T) {
	f := &fakeAccounts{}
	rec, _ := serve(t, NewAccountHandler(f, discardLogger()), http.MethodGet, "/social/accounts?platform=bilibili&status=active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")

	require.NotNil(t, f.listIn.Platform)
	require.NotNil(t, f.listIn.Status)
	assert.Equal(t, platform.Bilibili, *f.listIn.Platform)
	assert.Equal(t, accountentity.StatusActive, *f.listIn.Status)

	rec, _ = serve(t, NewAccountHandler(f, discardLogger()), http.MethodGet, "/social/accounts?platform=orkut", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountByID(t *testing.T) {
	rec, _ := serve(t, NewAccountHandler(&fakeAccounts{}, discardLogger()), http.MethodGet, "/social/accounts/acc1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = serve(t, NewAccountHandler(&fakeAccounts{err: accountentity.ErrAccountNotFound}, discardLogger()), http.MethodGet, "/social/accounts/x", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = serve(t, NewAccountHandler(&fakeAccounts{}, discardLogger()), http.MethodDelete, "/social/accounts/acc1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = serve(t, NewAccountHandler(&fakeAccounts{err: accountentity.ErrAccountInUse}, discardLogger()), http.MethodDelete, "/social/accounts/acc1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	out := &accountpolicy.AddAccountOutput{Account: &accountentity.Account{ID: "acc1"}}
	rec, _ = serve(t, NewAccountHandler(&fakeAccounts{out: out}, discardLogger()), http.MethodPatch, "/social/accounts/acc1", map[string]string{"cookieString": "sid=new"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = serve(t, NewAccountHandler(&fakeAccounts{out: out}, discardLogger()), http.MethodPatch, "/social/accounts/acc1", map[string]string{"cookieString": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f := &fakeAccounts{}
	rec, env := serve(t, NewAccountHandler(f, discardLogger()), http.MethodPost, "/social/accounts/acc1/verify", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "acc1", f.verified)

	var job queue.JobHandle
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, queue.Verify, job.Queue)
}

// --- analytics ---

type fakeAnalytics struct {
	trendIn analyticspolicy.RequestTrendsInput
	limit   int
	watch   *analyticspolicy.WatchCompetitorOutput
	err     error
}

func (f *fakeAnalytics) RequestTrends(_ context.Context, in analyticspolicy.RequestTrendsInput) (*queue.JobHandle, error) {
	f.trendIn = in
	return &queue.JobHandle{ID: "trend:1", Queue: queue.Trend}, f.err
}

func (f *fakeAnalytics) ListTrends(_ context.Context, _ *platform.Platform, limit int) ([]analyticsentity.TrendItem, error) {
	f.limit = limit
	return nil, f.err
}

func (f *fakeAnalytics) WatchCompetitor(context.Context, analyticspolicy.WatchCompetitorInput) (*analyticspolicy.WatchCompetitorOutput, error) {
	return f.watch, f.err
}

func (f *fakeAnalytics) ListWatches(context.Context, string) ([]analyticsentity.CompetitorWatch, error) {
	return nil, f.err
}

func TestTrends(t *testing.T) {
	f := &fakeAnalytics{}
	h := NewAnalyticsHandler(f, discardLogger())

	rec, _ := serve(t, h, http.MethodPost, "/analytics/trends", map[string]string{"platform": "weibo", "keyword": "咖啡"}, "Idempotency-Key", "k1")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, platform.Weibo, f.trendIn.Platform)
	assert.Equal(t, "k1", f.trendIn.IdempotencyKey)

	rec, _ = serve(t, h, http.MethodPost, "/analytics/trends", map[string]string{"platform": "friendster"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := serve(t, h, http.MethodGet, "/analytics/trends?limit=5", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, f.limit)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestWatchCompetitor(t *testing.T) {
	w := &analyticsentity.CompetitorWatch{ID: "w1", CompetitorName: "对手", Platform: platform.Douyin}
	body := map[string]string{"competitorName": "对手", "platform": "douyin", "accountUrl": "https://www.douyin.com/user/1"}

	tests := []struct {
		name   string
		out    *analyticspolicy.WatchCompetitorOutput
		err    error
		status int
	}{
		{"created", &analyticspolicy.WatchCompetitorOutput{Watch: w, Job: &queue.JobHandle{ID: "j"}}, nil, http.StatusCreated},
		{"existing", &analyticspolicy.WatchCompetitorOutput{Watch: w, Existing: true}, nil, http.StatusOK},
		{"stored without job", &analyticspolicy.WatchCompetitorOutput{Watch: w}, queue.ErrBrokerUnavailable, http.StatusCreated},
		{"blank name", nil, analyticsentity.ErrEmptyCompetitorName, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAnalyticsHandler(&fakeAnalytics{watch: tt.out, err: tt.err}, discardLogger())
			rec, _ := serve(t, h, http.MethodPost, "/analytics/competitors", body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec, env := serve(t, NewAnalyticsHandler(&fakeAnalytics{}, discardLogger()), http.MethodGet, "/analytics/competitors", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

// --- analysis ---

type fakeAnalysis struct {
	err error
}

func (f *fakeAnalysis) Verify(context.Context, analysisentity.Request) (*analysisentity.VerifiedAnalysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &analysisentity.VerifiedAnalysis{}, nil
}

func (f *fakeAnalysis) Analyze(context.Context, analysisentity.Request) (*analysisentity.Analysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &analysisentity.Analysis{}, nil
}

func TestAnalysis(t *testing.T) {
	idea := map[string]string{"ideaTitle": "社区咖啡", "ideaDescription": "面向写字楼的精品咖啡"}

	tests := []struct {
		name   string
		path   string
		body   any
		err    error
		status int
		msg    string
	}{
		{"verified", "/business-plan/intelligent-analysis-verified", idea, nil, http.StatusOK, ""},
		{"single", "/business-plan/intelligent-analysis", idea, nil, http.StatusOK, ""},
		{"blank title", "/business-plan/intelligent-analysis-verified", map[string]string{"ideaTitle": " ", "ideaDescription": "d"}, nil, http.StatusBadRequest, "缺少创意标题或描述"},
		{"missing description", "/business-plan/intelligent-analysis", map[string]string{"ideaTitle": "t"}, nil, http.StatusBadRequest, ""},
		{"all providers failed", "/business-plan/intelligent-analysis-verified", idea, analysisentity.ErrAllProvidersFailed, http.StatusBadGateway, "所有AI模型调用失败"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := serve(t, NewAnalysisHandler(&fakeAnalysis{err: tt.err}), http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.msg != "" {
				assert.Equal(t, tt.msg, env.Error)
			}
		})
	}
}

// --- queues ---

type fakeQueues struct {
	health    *queue.Health
	status    *queue.JobStatus
	cancelled bool
	name      queue.Name
	cleaned   int
	cleanErr  error
}

func (f *fakeQueues) GetQueueHealth(context.Context) (*queue.Health, error) {
	return f.health, nil
}

func (f *fakeQueues) GetJobStatus(_ context.Context, n queue.Name, _ string) (*queue.JobStatus, error) {
	f.name = n
	return f.status, nil
}

func (f *fakeQueues) CancelJob(_ context.Context, n queue.Name, _ string) (bool, error) {
	f.name = n
	return f.cancelled, nil
}

func (f *fakeQueues) CleanQueues(context.Context) error {
	if f.cleanErr != nil {
		return f.cleanErr
	}
	f.cleaned++
	return nil
}

func TestCleanQueues(t *testing.T) {
	f := &fakeQueues{}
	h := NewQueueHandler(f)

	rec, env := serve(t, h, http.MethodDelete, "/queues", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Queues cleaned", env.Message)
	assert.Equal(t, 1, f.cleaned)

	f.cleanErr = fmt.Errorf("cleaning queues: %w", queue.ErrBrokerUnavailable)
	rec, _ = serve(t, h, http.MethodDelete, "/queues", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 1, f.cleaned)
}

func TestQueues(t *testing.T) {
	f := &fakeQueues{health: &queue.Health{IsHealthy: false}}
	h := NewQueueHandler(f)

	rec, _ := serve(t, h, http.MethodGet, "/queues/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = serve(t, h, http.MethodGet, "/queues/publish/jobs/j1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, queue.Publish, f.name)

	f.status = &queue.JobStatus{ID: "j1", Queue: queue.Verify, State: queue.JobActive, Progress: 60}
	rec, env := serve(t, h, http.MethodGet, "/queues/social:verify/jobs/j1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, queue.Verify, f.name)

	var status queue.JobStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, 60, status.Progress)

	rec, _ = serve(t, h, http.MethodGet, "/queues/email/jobs/j1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = serve(t, h, http.MethodDelete, "/queues/trend/jobs/j1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.cancelled = true
	rec, _ = serve(t, h, http.MethodDelete, "/queues/competitor/jobs/j1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, queue.Competitor, f.name)
}

// --- media ---

type fakeUploader struct {
	got storage.UploadInput
	err error
}

func (f *fakeUploader) Upload(_ context.Context, in storage.UploadInput) (*storage.UploadOutput, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return &storage.UploadOutput{Key: "publish/k.png", URL: "http://minio/media/publish/k.png", Size: in.Size}, nil
}

func multipartBody(t *testing.T, contentType string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="cover.png"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func TestMediaUpload(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		err         error
		status      int
	}{
		{"stored", "image/png", nil, http.StatusCreated},
		{"unsupported", "application/pdf", nil, http.StatusBadRequest},
		{"storage down", "image/png", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUploader{err: tt.err}
			body, ct := multipartBody(t, tt.contentType)

			r := chi.NewRouter()
			NewMediaHandler(up, discardLogger()).RegisterRoutes(r)
			req := httptest.NewRequest(http.MethodPost, "/media/upload", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "connection refused")
			if tt.status == http.StatusCreated {
				assert.Equal(t, "cover.png", up.got.Filename)
				assert.Contains(t, rec.Body.String(), "http://minio/media/publish/k.png")
			}
		})
	}
}

// --- swagger ---

func TestSwaggerSpecJSON(t *testing.T) {
	spec := []byte(`
openapi: 3.0.3
info:
  title: demo
paths:
  /social/tasks:
    post:
      responses:
        201:
          description: created
        "400":
          description: bad request
`)
	h, err := NewSwaggerHandler("demo", spec)
	require.NoError(t, err)

	r := chi.NewRouter()
	h.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs/openapi.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])

	responses := doc["paths"].(map[string]any)["/social/tasks"].(map[string]any)["post"].(map[string]any)["responses"].(map[string]any)
	assert.Contains(t, responses, "201")
	assert.Contains(t, responses, "400")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))
	assert.Contains(t, rec.Body.String(), `url: "\/docs\/openapi.json"`)

	_, err = NewSwaggerHandler("broken", []byte("a: [1,"))
	assert.Error(t, err)
}
