package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskdeck/internal/middleware"
	"github.com/hitoshi/taskdeck/internal/model"
)

// --- モック定義 ---

type mockTaskService struct {
	listTasksFn  func(ctx context.Context, userID string) ([]*model.Task, error)
	getTaskFn    func(ctx context.Context, userID, taskID string) (*model.Task, error)
	createTaskFn func(ctx context.Context, userID, title, body string) (*model.Task, error)
	updateTaskFn func(ctx context.Context, userID, taskID, title, body string) (*model.Task, error)
	deleteTaskFn func(ctx context.Context, userID, taskID string) error
}

func (m *mockTaskService) ListTasks(ctx context.Context, userID string) ([]*model.Task, error) {
	if m.listTasksFn != nil {
		return m.listTasksFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockTaskService) GetTask(ctx context.Context, userID, taskID string) (*model.Task, error) {
	if m.getTaskFn != nil {
		return m.getTaskFn(ctx, userID, taskID)
	}
	return nil, nil
}

func (m *mockTaskService) CreateTask(ctx context.Context, userID, title, body string) (*model.Task, error) {
	if m.createTaskFn != nil {
		return m.createTaskFn(ctx, userID, title, body)
	}
	return nil, nil
}

func (m *mockTaskService) UpdateTask(ctx context.Context, userID, taskID, title, body string) (*model.Task, error) {
	if m.updateTaskFn != nil {
		return m.updateTaskFn(ctx, userID, taskID, title, body)
	}
	return nil, nil
}

func (m *mockTaskService) DeleteTask(ctx context.Context, userID, taskID string) error {
	if m.deleteTaskFn != nil {
		return m.deleteTaskFn(ctx, userID, taskID)
	}
	return nil
}

var _ TaskServiceInterface = (*mockTaskService)(nil)

// testTaskRouter はchiルーター経由でハンドラーをマウントする。
// URLパラメータの解決にchiのルートコンテキストが必要なため。
func testTaskRouter(svc *mockTaskService) http.Handler {
	h := NewTaskHandler(svc, nil, middleware.UserIDFromContext)
	r := chi.NewRouter()
	r.Get("/tasks", h.List)
	r.Post("/tasks", h.Create)
	r.Get("/tasks/{id}", h.Get)
	r.Post("/tasks/{id}", h.Update)
	r.Post("/tasks/{id}/delete", h.Delete)
	return r
}

func authedRequest(method, target string, form url.Values) *http.Request {
	var req *http.Request
	if form != nil {
		req = formRequest(method, target, form)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
}

// --- 一覧のテスト ---

func TestTaskList_ReturnsOwnTasks(t *testing.T) {
	now := time.Now()
	svc := &mockTaskService{
		listTasksFn: func(ctx context.Context, userID string) ([]*model.Task, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q, want user-1", userID)
			}
			return []*model.Task{
				{ID: "task-1", UserID: "user-1", Title: "買い物", CreatedAt: now, UpdatedAt: now},
				{ID: "task-2", UserID: "user-1", Title: "掃除", CreatedAt: now, UpdatedAt: now},
			}, nil
		},
	}
	router := testTaskRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodGet, "/tasks", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body struct {
		Tasks []taskResponse `json:"tasks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Tasks) != 2 {
		t.Fatalf("len(tasks) = %d, want 2", len(body.Tasks))
	}
	if body.Tasks[0].Title != "買い物" {
		t.Errorf("title = %q, want 買い物", body.Tasks[0].Title)
	}
}

func TestTaskList_Empty_ReturnsEmptyArray(t *testing.T) {
	svc := &mockTaskService{
		listTasksFn: func(ctx context.Context, userID string) ([]*model.Task, error) {
			return []*model.Task{}, nil
		},
	}
	router := testTaskRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodGet, "/tasks", nil))

	var body struct {
		Tasks []taskResponse `json:"tasks"`
	}
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Tasks == nil {
		t.Error("tasks should be an empty array, not null")
	}
}

func TestTaskList_Unauthenticated_Returns401(t *testing.T) {
	router := testTaskRouter(&mockTaskService{})

	// ユーザーIDをコンテキストに入れない
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// --- 個別取得のテスト ---

func TestTaskGet_ReturnsTask(t *testing.T) {
	svc := &mockTaskService{
		getTaskFn: func(ctx context.Context, userID, taskID string) (*model.Task, error) {
			if taskID != "task-1" {
				t.Errorf("taskID = %q, want task-1", taskID)
			}
			return &model.Task{ID: "task-1", UserID: userID, Title: "買い物", Body: "<p>牛乳</p>"}, nil
		},
	}
	router := testTaskRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodGet, "/tasks/task-1", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.ID != "task-1" || body.Body != "<p>牛乳</p>" {
		t.Errorf("unexpected task body: %+v", body)
	}
}

// 存在しないタスクも他ユーザーのタスクも、同じ一覧へのリダイレクトになる。
func TestTaskGet_NotFoundOrForeign_RedirectsToList(t *testing.T) {
	svc := &mockTaskService{
		getTaskFn: func(ctx context.Context, userID, taskID string) (*model.Task, error) {
			return nil, model.NewTaskNotFoundError()
		},
	}
	router := testTaskRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodGet, "/tasks/nope", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if loc := resp.Header.Get("Location"); loc != "/tasks" {
		t.Errorf("Location = %q, want /tasks", loc)
	}
}

// --- 作成のテスト ---

func TestTaskCreate_RedirectsToList(t *testing.T) {
	var gotTitle, gotBody string
	svc := &mockTaskService{
		createTaskFn: func(ctx context.Context, userID, title, body string) (*model.Task, error) {
			gotTitle, gotBody = title, body
			return &model.Task{ID: "task-new", UserID: userID, Title: title, Body: body}, nil
		},
	}
	router := testTaskRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodPost, "/tasks", url.Values{
		"title": {"買い物"},
		"body":  {"牛乳を買う"},
	}))

	resp := w.Result()
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if loc := resp.Header.Get("Location"); loc != "/tasks" {
		t.Errorf("Location = %q, want /tasks", loc)
	}
	if gotTitle != "買い物" || gotBody != "牛乳を買う" {
		t.Errorf("service received title=%q body=%q", gotTitle, gotBody)
	}
}

func TestTaskCreate_ValidationError_Returns400(t *testing.T) {
	svc := &mockTaskService{
		createTaskFn: func(ctx context.Context, userID, title, body string) (*model.Task, error) {
			return nil, model.NewValidationError("タイトルは必須です")
		},
	}
	router := testTaskRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodPost, "/tasks", url.Values{
		"title": {""},
	}))

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	var body apiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != model.ErrCodeValidationFailed {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeValidationFailed)
	}
}

// --- 更新のテスト ---

func TestTaskUpdate_RedirectsToList(t *testing.T) {
	var gotTaskID string
	svc := &mockTaskService{
		updateTaskFn: func(ctx context.Context, userID, taskID, title, body string) (*model.Task, error) {
			gotTaskID = taskID
			return &model.Task{ID: taskID, UserID: userID, Title: title, Body: body}, nil
		},
	}
	router := testTaskRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodPost, "/tasks/task-1", url.Values{
		"title": {"新タイトル"},
		"body":  {"新本文"},
	}))

	resp := w.Result()
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if gotTaskID != "task-1" {
		t.Errorf("taskID = %q, want task-1", gotTaskID)
	}
}

func TestTaskUpdate_NotFoundOrForeign_RedirectsToList(t *testing.T) {
	svc := &mockTaskService{
		updateTaskFn: func(ctx context.Context, userID, taskID, title, body string) (*model.Task, error) {
			return nil, model.NewTaskNotFoundError()
		},
	}
	router := testTaskRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodPost, "/tasks/foreign", url.Values{
		"title": {"乗っ取り"},
	}))

	resp := w.Result()
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if loc := resp.Header.Get("Location"); loc != "/tasks" {
		t.Errorf("Location = %q, want /tasks", loc)
	}
}

// --- 削除のテスト ---

func TestTaskDelete_RedirectsToList(t *testing.T) {
	var gotUserID, gotTaskID string
	svc := &mockTaskService{
		deleteTaskFn: func(ctx context.Context, userID, taskID string) error {
			gotUserID, gotTaskID = userID, taskID
			return nil
		},
	}
	router := testTaskRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodPost, "/tasks/task-1/delete", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if gotUserID != "user-1" || gotTaskID != "task-1" {
		t.Errorf("service received userID=%q taskID=%q", gotUserID, gotTaskID)
	}
}

func TestTaskDelete_NotFoundOrForeign_RedirectsToList(t *testing.T) {
	svc := &mockTaskService{
		deleteTaskFn: func(ctx context.Context, userID, taskID string) error {
			return model.NewTaskNotFoundError()
		},
	}
	router := testTaskRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodPost, "/tasks/foreign/delete", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if loc := resp.Header.Get("Location"); loc != "/tasks" {
		t.Errorf("Location = %q, want /tasks", loc)
	}
}
