package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskdeck/internal/metrics"
	"github.com/hitoshi/taskdeck/internal/model"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	ListTasks(ctx context.Context, userID string) ([]*model.Task, error)
	GetTask(ctx context.Context, userID, taskID string) (*model.Task, error)
	CreateTask(ctx context.Context, userID, title, body string) (*model.Task, error)
	UpdateTask(ctx context.Context, userID, taskID, title, body string) (*model.Task, error)
	DeleteTask(ctx context.Context, userID, taskID string) error
}

// UserIDResolver はリクエストコンテキストから認証済みユーザーIDを取得する。
// middleware.UserIDFromContextを差し替え可能にするための型。
type UserIDResolver func(ctx context.Context) (string, error)

// TaskHandler はタスクCRUDのHTTPハンドラー。
// セッションミドルウェアを通過したリクエストのみが到達する前提で、
// ユーザーIDは常にコンテキストから取得する。
type TaskHandler struct {
	service    TaskServiceInterface
	metrics    metrics.MetricsCollector
	resolveUID UserIDResolver
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface, collector metrics.MetricsCollector, resolver UserIDResolver) *TaskHandler {
	return &TaskHandler{
		service:    service,
		metrics:    collector,
		resolveUID: resolver,
	}
}

// taskResponse はタスクのJSON表現。
type taskResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:        t.ID,
		Title:     t.Title,
		Body:      t.Body,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// List はユーザーのタスク一覧を返す。
// GET /tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := h.resolveUID(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	tasks, err := h.service.ListTasks(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.recordOperation("list")

	responses := make([]taskResponse, len(tasks))
	for i, t := range tasks {
		responses[i] = toTaskResponse(t)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tasks": responses,
	})
}

// Get は指定IDのタスクを返す。
// GET /tasks/{id}
// 存在しないタスクと他ユーザーのタスクはいずれも一覧へのリダイレクトになる。
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := h.resolveUID(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	taskID := chi.URLParam(r, "id")
	task, err := h.service.GetTask(r.Context(), userID, taskID)
	if err != nil {
		h.redirectOrError(w, r, err)
		return
	}

	h.recordOperation("get")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toTaskResponse(task))
}

// Create はタスクを作成する。
// POST /tasks （フォームエンコード: title, body）
// 成功時は一覧へリダイレクトする。
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := h.resolveUID(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	_, err = h.service.CreateTask(r.Context(), userID, r.FormValue("title"), r.FormValue("body"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.recordOperation("create")
	http.Redirect(w, r, "/tasks", http.StatusSeeOther)
}

// Update は指定IDのタスクを更新する。
// POST /tasks/{id} （フォームエンコード: title, body）
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := h.resolveUID(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	taskID := chi.URLParam(r, "id")
	_, err = h.service.UpdateTask(r.Context(), userID, taskID, r.FormValue("title"), r.FormValue("body"))
	if err != nil {
		h.redirectOrError(w, r, err)
		return
	}

	h.recordOperation("update")
	http.Redirect(w, r, "/tasks", http.StatusSeeOther)
}

// Delete は指定IDのタスクを削除する。
// POST /tasks/{id}/delete
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := h.resolveUID(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	taskID := chi.URLParam(r, "id")
	if err := h.service.DeleteTask(r.Context(), userID, taskID); err != nil {
		h.redirectOrError(w, r, err)
		return
	}

	h.recordOperation("delete")
	http.Redirect(w, r, "/tasks", http.StatusSeeOther)
}

// redirectOrError はタスク未検出を一覧へのリダイレクトとして処理し、
// それ以外のエラーを統一フォーマットで返す。
// 「存在しない」と「他ユーザー所有」の区別はここでも作らない。
func (h *TaskHandler) redirectOrError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeNotFoundOrForbidden {
		http.Redirect(w, r, "/tasks", http.StatusSeeOther)
		return
	}
	handleServiceError(w, err)
}

func (h *TaskHandler) recordOperation(operation string) {
	if h.metrics != nil {
		h.metrics.RecordTaskOperation(operation)
	}
}

// --- エラーレスポンス ---

// apiErrorResponse はAPIエラーのJSON表現。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, internalError())
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthenticated, model.ErrCodeUserNotFound:
		return http.StatusUnauthorized
	case model.ErrCodeDuplicateRegistration:
		return http.StatusConflict
	case model.ErrCodeNotFoundOrForbidden:
		return http.StatusNotFound
	case model.ErrCodeValidationFailed:
		return http.StatusBadRequest
	case model.ErrCodeUpstreamIdentity:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func internalError() *model.APIError {
	return &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
