package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher はパスワードの一方向ハッシュ化と照合を提供する。
// bcryptを使用し、ソルトは呼び出しごとにランダム生成されダイジェストに埋め込まれる。
// 同じ平文でも呼び出しごとに異なるダイジェストになる。
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher はPasswordHasherを生成する。
// costが範囲外の場合はデフォルトコスト（10）を使用する。
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash は平文パスワードからソルト付きbcryptダイジェストを計算する。
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify は平文パスワードをダイジェストと照合する。
// ダイジェストが不正な形式の場合（フェデレーションアカウントの空文字列を含む）は
// パニックやエラーにせず常にfalseを返す。
// 比較はbcrypt内部の定数時間比較に委譲する。
func (h *PasswordHasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
