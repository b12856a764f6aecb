// Package task はタスク管理のドメインロジックを提供する。
package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/repository"
	"github.com/hitoshi/taskdeck/internal/security"
)

// maxTitleLength はタスクタイトルの最大長（文字数）。
const maxTitleLength = 200

// Service はタスクCRUDのサービス層。
// すべての操作は呼び出し元ユーザーのIDを必須とし、所有権の無いタスクは
// 存在しないタスクと同一に扱う。
type Service struct {
	taskRepo  repository.TaskRepository
	sanitizer security.ContentSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(taskRepo repository.TaskRepository, sanitizer security.ContentSanitizerService) *Service {
	return &Service{
		taskRepo:  taskRepo,
		sanitizer: sanitizer,
	}
}

// ListTasks はユーザーのタスク一覧を作成日時降順で返す。
func (s *Service) ListTasks(ctx context.Context, userID string) ([]*model.Task, error) {
	tasks, err := s.taskRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	return tasks, nil
}

// GetTask は指定IDのタスクを返す。
// 存在しない場合と他ユーザー所有の場合は同一のNotFoundエラーになる。
func (s *Service) GetTask(ctx context.Context, userID, taskID string) (*model.Task, error) {
	task, err := s.taskRepo.FindByIDAndUser(ctx, taskID, userID)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if task == nil {
		return nil, model.NewTaskNotFoundError()
	}
	return task, nil
}

// CreateTask はタスクを作成する。
// タイトルは必須で、タイトル・本文とも保存前にサニタイズされる。
func (s *Service) CreateTask(ctx context.Context, userID, title, body string) (*model.Task, error) {
	title = s.sanitizer.SanitizeStrict(strings.TrimSpace(title))
	if title == "" {
		return nil, model.NewValidationError("タイトルは必須です")
	}
	if len([]rune(title)) > maxTitleLength {
		return nil, model.NewValidationError("タイトルが長すぎます")
	}

	now := time.Now()
	task := &model.Task{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Body:      s.sanitizer.Sanitize(body),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}

	return task, nil
}

// UpdateTask は指定IDのタスクのタイトルと本文を更新する。
// 該当行の有無はUPDATE文のWHERE句（id AND user_id）のみで判定し、
// 事前のSELECTによるチェックは行わない。
func (s *Service) UpdateTask(ctx context.Context, userID, taskID, title, body string) (*model.Task, error) {
	title = s.sanitizer.SanitizeStrict(strings.TrimSpace(title))
	if title == "" {
		return nil, model.NewValidationError("タイトルは必須です")
	}
	if len([]rune(title)) > maxTitleLength {
		return nil, model.NewValidationError("タイトルが長すぎます")
	}

	task := &model.Task{
		ID:        taskID,
		UserID:    userID,
		Title:     title,
		Body:      s.sanitizer.Sanitize(body),
		UpdatedAt: time.Now(),
	}

	updated, err := s.taskRepo.Update(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	if !updated {
		return nil, model.NewTaskNotFoundError()
	}

	// 更新後の状態を返す
	result, err := s.taskRepo.FindByIDAndUser(ctx, taskID, userID)
	if err != nil {
		return nil, fmt.Errorf("タスクの再取得に失敗しました: %w", err)
	}
	if result == nil {
		return nil, model.NewTaskNotFoundError()
	}
	return result, nil
}

// DeleteTask は指定IDのタスクを削除する。
// 該当行の有無はDELETE文のWHERE句（id AND user_id）のみで判定する。
func (s *Service) DeleteTask(ctx context.Context, userID, taskID string) error {
	deleted, err := s.taskRepo.Delete(ctx, taskID, userID)
	if err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewTaskNotFoundError()
	}
	return nil
}
