// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/taskdeck/internal/metrics"
	"github.com/hitoshi/taskdeck/internal/model"
)

const (
	sessionCookieName = "session_id"
	oauthStateCookie  = "oauth_state"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string) (*model.Session, error)
	Register(ctx context.Context, email, password string) (*model.Session, error)
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はローカル認証とOAuth認証のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	metrics metrics.MetricsCollector
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, collector metrics.MetricsCollector, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		metrics: collector,
		config:  config,
	}
}

// LoginLocal はメールアドレスとパスワードでのログインを処理する。
// POST /login （フォームエンコード: email, password）
// 成功時はセッションCookieを設定して/tasksへリダイレクトする。
// 失敗時は/loginへリダイレクトする。失敗理由の内訳はレスポンスに含めない。
func (h *AuthHandler) LoginLocal(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	password := r.FormValue("password")

	start := time.Now()
	session, err := h.service.Login(r.Context(), email, password)
	h.recordAuthLatency(start)
	if err != nil {
		h.recordLoginFailure("local")
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeInvalidCredentials {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		slog.Error("login failed", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusInternalServerError, internalError())
		return
	}

	h.recordLoginSuccess("local")
	h.recordSessionCreated()
	h.setSessionCookie(w, session.ID)
	http.Redirect(w, r, "/tasks", http.StatusSeeOther)
}

// Register は新規ユーザー登録を処理する。
// POST /register （フォームエンコード: email, password）
// 成功時はそのままログイン状態になり/tasksへリダイレクトする。
// 重複メールアドレスは既存アカウントの存在を示唆しないよう、
// エラー詳細を返さずログインページへリダイレクトする。
// 入力不備（空のメールアドレス・パスワード）は登録フォームへ戻す。
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	password := r.FormValue("password")

	start := time.Now()
	session, err := h.service.Register(r.Context(), email, password)
	h.recordAuthLatency(start)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.Code {
			case model.ErrCodeDuplicateRegistration:
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			case model.ErrCodeValidationFailed:
				http.Redirect(w, r, "/register", http.StatusSeeOther)
				return
			}
		}
		slog.Error("registration failed", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusInternalServerError, internalError())
		return
	}

	if h.metrics != nil {
		h.metrics.RecordRegistration(model.AuthSourceLocal)
	}
	h.recordSessionCreated()
	h.setSessionCookie(w, session.ID)
	http.Redirect(w, r, "/tasks", http.StatusSeeOther)
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusInternalServerError, internalError())
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	url := h.service.GetLoginURL(state)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// GoogleCallback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("query_state", state),
		)
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("stateパラメータが不正です"))
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("認可コードがありません"))
		return
	}

	// 3. 認証処理
	start := time.Now()
	session, err := h.service.HandleCallback(r.Context(), code)
	h.recordAuthLatency(start)
	if err != nil {
		// IdP側の失敗はエラー詳細を返さず公開ランディングページへ戻す
		h.recordLoginFailure("google")
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	// 4. セッションCookieを設定してアプリ本体へ
	h.recordLoginSuccess("google")
	h.recordSessionCreated()
	h.setSessionCookie(w, session.ID)
	http.Redirect(w, r, "/tasks", http.StatusSeeOther)
}

// Logout はセッションを破棄する。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		// セッションをDBから削除。失敗してもCookieはクリアする。
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
		}
	}

	h.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), cookie.Value)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			writeAPIErrorResponse(w, http.StatusUnauthorized, apiErr)
			return
		}
		slog.Error("failed to get current user", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":          user.ID,
		"email":       user.Email,
		"name":        user.Name,
		"auth_source": user.AuthSource,
	})
}

// setSessionCookie はセッションIDをHTTP Only Cookieとして設定する。
// Cookieに入るのは不透明なセッションIDのみで、ユーザー情報は含まれない。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) recordLoginSuccess(method string) {
	if h.metrics != nil {
		h.metrics.RecordLoginSuccess(method)
	}
}

func (h *AuthHandler) recordLoginFailure(method string) {
	if h.metrics != nil {
		h.metrics.RecordLoginFailure(method)
	}
}

func (h *AuthHandler) recordSessionCreated() {
	if h.metrics != nil {
		h.metrics.RecordSessionsCreated()
	}
}

func (h *AuthHandler) recordAuthLatency(start time.Time) {
	if h.metrics != nil {
		h.metrics.RecordAuthLatency(time.Since(start))
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
