// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, task, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeDuplicateRegistration = "DUPLICATE_REGISTRATION"
	ErrCodeUnauthenticated       = "UNAUTHENTICATED"
	ErrCodeNotFoundOrForbidden   = "NOT_FOUND_OR_FORBIDDEN"
	ErrCodeUpstreamIdentity      = "UPSTREAM_IDENTITY_FAILURE"
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
)

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// 「メールアドレスが存在しない」と「パスワードが違う」を区別しない。
// アカウント列挙攻撃を防ぐため、外部から観測可能な差異を作らないこと。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewDuplicateRegistrationError は登録済みメールアドレスでの再登録エラーを生成する。
func NewDuplicateRegistrationError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateRegistration,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインページからログインしてください。",
	}
}

// NewUnauthenticatedError は未認証エラーを生成する。
// セッションが存在しない場合と期限切れの場合を区別しない。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
// 他ユーザーのタスクへのアクセスも同一のエラーとして扱い、存在を漏らさない。
func NewTaskNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFoundOrForbidden,
		Message:  "指定されたタスクが見つかりません。",
		Category: "task",
		Action:   "タスク一覧を確認してください。",
	}
}

// NewUpstreamIdentityError は外部IdPとの認証フロー失敗エラーを生成する。
func NewUpstreamIdentityError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamIdentity,
		Message:  "外部プロバイダーでの認証に失敗しました。",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
