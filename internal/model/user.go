// Package model はドメインモデルを定義する。
package model

import "time"

// 認証ソースを表す定数。
// AuthSourceLocal はメールアドレスとパスワードによるローカル認証、
// それ以外は外部IdPのプロバイダー名（例: "google"）が入る。
const (
	AuthSourceLocal  = "local"
	AuthSourceGoogle = "google"
)

// User はサービス利用ユーザーを表す。
// PasswordHashはローカルアカウントの場合のみbcryptダイジェストを保持し、
// フェデレーションアカウントの場合は空文字列となる。
// 平文パスワードをこの構造体に載せてはならない。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	AuthSource   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsLocal はローカル認証アカウントかどうかを返す。
func (u *User) IsLocal() bool {
	return u.AuthSource == AuthSourceLocal
}

// Identity は外部IdPとの紐付け情報を表す。
// 複数のIdP（Google, GitHub等）に対応可能な構造。
// ProviderUserIDはIdPが発行するsubject識別子であり、秘密情報ではない。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// クライアントはセッションIDのみをCookieで保持し、
// ユーザー情報はリクエストごとにDBから再取得する。
// 有効期限は作成時刻からの固定ウィンドウ（デフォルト12時間、スライディングしない）。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
