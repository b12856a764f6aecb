// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/taskdeck/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は指定メールアドレスのユーザーを取得する。見つからない場合はnilを返す。
	// メールアドレスは認証ソースをまたいだアカウント紐付けキーとなる。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はローカルユーザーを作成する。
	// emailの一意性はusersテーブルのUNIQUE制約のみで保証され、
	// 制約違反の場合はErrDuplicateEmailを返す。事前の存在チェックは行わない。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// フェデレーション認証の初回ログインで使用する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create はidentityを作成する。
	// 既存ローカルアカウントへの外部IdP紐付け（アカウントリンク）で使用する。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	// クリーンアップジョブから呼ばれる。正当性はFindByIDの期限判定が担うため、
	// このメソッドは衛生処理にすぎない。
	DeleteExpired(ctx context.Context) (int64, error)
}

// TaskRepository はタスクデータの永続化インターフェース。
// 所有権チェックはすべてのメソッドでuserIDを条件に含めることで実現し、
// 他ユーザーのタスクと存在しないタスクを区別しない。
type TaskRepository interface {
	// FindByIDAndUser は指定IDかつ指定ユーザー所有のタスクを取得する。
	// 該当しない場合（存在しない、または他ユーザー所有）はnilを返す。
	FindByIDAndUser(ctx context.Context, id, userID string) (*model.Task, error)

	// ListByUserID はユーザーのタスク一覧を作成日時降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Task, error)

	// Create はタスクを作成する。
	Create(ctx context.Context, task *model.Task) error

	// Update は指定IDかつ指定ユーザー所有のタスクを更新する。
	// 該当行が無い場合はfalseを返す。
	Update(ctx context.Context, task *model.Task) (bool, error)

	// Delete は指定IDかつ指定ユーザー所有のタスクを削除する。
	// 該当行が無い場合はfalseを返す。
	Delete(ctx context.Context, id, userID string) (bool, error)
}
