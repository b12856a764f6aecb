package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

// PostgresUserRepoはUserRepositoryインターフェースを満たすことを検証
func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

// PostgresIdentityRepoはIdentityRepositoryインターフェースを満たすことを検証
func TestPostgresIdentityRepo_ImplementsInterface(t *testing.T) {
	var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
}

// NewPostgresUserRepoが正しく初期化されることを検証
func TestNewPostgresUserRepo_Initializes(t *testing.T) {
	repo := NewPostgresUserRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// NewPostgresIdentityRepoが正しく初期化されることを検証
func TestNewPostgresIdentityRepo_Initializes(t *testing.T) {
	repo := NewPostgresIdentityRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// UNIQUE制約違反(23505)の判定を検証する。
// 重複登録の判定はこの変換のみに依存するため、pq.Errorの
// ラップ有無にかかわらず検出できることを確認する。
func TestIsUniqueViolation(t *testing.T) {
	uniqueErr := &pq.Error{Code: "23505", Constraint: "users_email_key"}

	if !isUniqueViolation(uniqueErr) {
		t.Error("expected 23505 to be detected as unique violation")
	}

	wrapped := fmt.Errorf("failed to insert user: %w", uniqueErr)
	if !isUniqueViolation(wrapped) {
		t.Error("expected wrapped 23505 to be detected as unique violation")
	}

	otherPqErr := &pq.Error{Code: "23503"} // foreign_key_violation
	if isUniqueViolation(otherPqErr) {
		t.Error("23503 should not be detected as unique violation")
	}

	if isUniqueViolation(errors.New("connection refused")) {
		t.Error("plain error should not be detected as unique violation")
	}

	if isUniqueViolation(nil) {
		t.Error("nil should not be detected as unique violation")
	}
}
