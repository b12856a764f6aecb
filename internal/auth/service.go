// Package auth は認証のドメインロジックを提供する。
// ローカル認証（メールアドレス+パスワード）、フェデレーション認証（外部IdP）、
// セッションのライフサイクル管理を含む。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/repository"
)

// dummyDigest は存在しないメールアドレスでのログイン試行時に照合する
// ダミーのbcryptダイジェスト。ルックアップ失敗時もハッシュ計算を行うことで、
// 応答時間からメールアドレスの存在有無を推測されにくくする。
const dummyDigest = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
// Emailはプロバイダーによって検証済みであることを前提とする。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string // "google" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int           // セッション有効期間（秒）。デフォルトは12時間。
	Timeout       time.Duration // 認証操作全体のタイムアウト。0の場合は無制限。
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	hasher      *PasswordHasher
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	hasher *PasswordHasher,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		hasher:      hasher,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// Login はメールアドレスとパスワードでローカル認証を行い、セッションを発行する。
// 「メールアドレスが存在しない」と「パスワードが違う」は外部から区別できない
// 単一のInvalidCredentialsとして返す。bcrypt照合は存在しないユーザーに対しても
// ダミーダイジェストで実行する。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, error) {
	ctx, cancel := s.boundContext(ctx)
	defer cancel()

	if email == "" || password == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	if user == nil {
		s.hasher.Verify(password, dummyDigest)
		return nil, model.NewInvalidCredentialsError()
	}

	// フェデレーションアカウントのPasswordHashは空文字列であり、
	// Verifyは不正形式のダイジェストに対して常にfalseを返す。
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("local user logged in", slog.String("user_id", user.ID))
	return session, nil
}

// Register はローカルユーザーを新規作成し、即座にセッションを発行する（登録後自動ログイン）。
// メールアドレスの一意性はusersテーブルのUNIQUE制約のみで保証し、
// 制約違反をDuplicateRegistrationとして返す。事前の存在チェックは行わない。
func (s *Service) Register(ctx context.Context, email, password string) (*model.Session, error) {
	ctx, cancel := s.boundContext(ctx)
	defer cancel()

	if email == "" {
		return nil, model.NewValidationError("メールアドレスは必須です")
	}
	if password == "" {
		return nil, model.NewValidationError("パスワードは必須です")
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: digest,
		AuthSource:   model.AuthSourceLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewDuplicateRegistrationError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("new local user registered",
		slog.String("user_id", user.ID),
	)
	return session, nil
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// ユーザーの特定は次の優先順位で行う:
//  1. identities (provider, provider_user_id) の一致 → 既存ユーザー
//  2. メールアドレスの一致 → 既存ユーザーにidentityを紐付け（アカウントリンク）
//  3. どちらも無し → usersとidentitiesを同一トランザクションで新規作成
//
// メールアドレスは認証ソースをまたいで高々1ユーザーに対応する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	ctx, cancel := s.boundContext(ctx)
	defer cancel()

	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	userID, err := s.resolveFederatedUser(ctx, userInfo)
	if err != nil {
		return nil, err
	}

	// セッションを発行
	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// resolveFederatedUser はOAuthユーザー情報からローカルのユーザーIDを特定する。
// 必要に応じてユーザー作成またはアカウントリンクを行う。
func (s *Service) resolveFederatedUser(ctx context.Context, userInfo *OAuthUserInfo) (string, error) {
	// identitiesテーブルで既存ユーザーを検索
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return "", fmt.Errorf("failed to find identity: %w", err)
	}
	if identity != nil {
		slog.Info("existing federated user logged in",
			slog.String("user_id", identity.UserID),
			slog.String("provider", userInfo.Provider),
		)
		return identity.UserID, nil
	}

	// メールアドレスで既存ユーザー（ローカル登録を含む）を検索し、
	// 見つかればそのユーザーにidentityを紐付ける。
	existing, err := s.userRepo.FindByEmail(ctx, userInfo.Email)
	if err != nil {
		return "", fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return s.linkIdentity(ctx, existing, userInfo)
	}

	// 新規ユーザー: usersレコードとidentitiesレコードを同時に作成
	newUser := s.newFederatedUser(userInfo)
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         newUser.ID,
		Provider:       userInfo.Provider,
		ProviderUserID: userInfo.ProviderUserID,
		CreatedAt:      newUser.CreatedAt,
	}

	if err := s.userRepo.CreateWithIdentity(ctx, newUser, newIdentity); err != nil {
		// 同一メールアドレスの登録が並行して完了した場合は
		// UNIQUE制約違反になるため、既存ユーザーへのリンクにフォールバックする。
		if errors.Is(err, repository.ErrDuplicateEmail) {
			raced, findErr := s.userRepo.FindByEmail(ctx, userInfo.Email)
			if findErr != nil {
				return "", fmt.Errorf("failed to find user after duplicate: %w", findErr)
			}
			if raced == nil {
				return "", fmt.Errorf("duplicate email reported but user not found: %s", userInfo.Email)
			}
			return s.linkIdentity(ctx, raced, userInfo)
		}
		return "", fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new federated user created",
		slog.String("user_id", newUser.ID),
		slog.String("provider", userInfo.Provider),
	)
	return newUser.ID, nil
}

// linkIdentity は既存ユーザーに外部IdPのidentityを紐付ける。
// ローカルアカウントへの紐付けは、IdPで検証済みのメールアドレスを根拠に
// パスワード無しでそのアカウントとして認証できるようになることを意味するため、
// 監査用に警告ログを残す。
func (s *Service) linkIdentity(ctx context.Context, user *model.User, userInfo *OAuthUserInfo) (string, error) {
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       userInfo.Provider,
		ProviderUserID: userInfo.ProviderUserID,
		CreatedAt:      time.Now(),
	}
	if err := s.identRepo.Create(ctx, newIdentity); err != nil {
		return "", fmt.Errorf("failed to link identity: %w", err)
	}

	slog.Warn("federated identity linked to existing account by email",
		slog.String("user_id", user.ID),
		slog.String("provider", userInfo.Provider),
		slog.String("auth_source", user.AuthSource),
	)
	return user.ID, nil
}

// newFederatedUser はOAuthユーザー情報から新規ユーザーを構築する。
// PasswordHashは空のままとし、PasswordHasherを通ることは決してない。
func (s *Service) newFederatedUser(userInfo *OAuthUserInfo) *model.User {
	now := time.Now()
	return &model.User{
		ID:         uuid.New().String(),
		Email:      userInfo.Email,
		Name:       userInfo.Name,
		AuthSource: userInfo.Provider,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションにはユーザーIDのみが紐付いており、ユーザー情報は毎回DBから再取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, model.NewUnauthenticatedError()
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthenticatedError()
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
// 有効期限は作成時刻からの固定ウィンドウであり、アクセスによって延長されない。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// boundContext は認証操作用にタイムアウト付きコンテキストを生成する。
// ハッシュ計算やDBラウンドトリップの遅延でリクエストが無期限に
// ハングしないよう、サービス層で上限を設ける。
func (s *Service) boundContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.Timeout)
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
