package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"testing"

	"github.com/hitoshi/taskdeck/internal/auth"
	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/repository"
	"github.com/hitoshi/taskdeck/internal/security"
	"github.com/hitoshi/taskdeck/internal/task"
)

// --- 統合テスト用のインメモリリポジトリ ---

// integrationStore は統合テスト用の共有状態を保持する。
// 実サービス（auth.Service / task.Service）をDB無しで動かすための
// インメモリ実装で、リポジトリインターフェースの契約に従う。
type integrationStore struct {
	users    map[string]*model.User // keyed by email
	sessions map[string]*model.Session
	tasks    map[string]*model.Task
}

func newIntegrationStore() *integrationStore {
	return &integrationStore{
		users:    make(map[string]*model.User),
		sessions: make(map[string]*model.Session),
		tasks:    make(map[string]*model.Task),
	}
}

type memUserRepo struct{ store *integrationStore }

func (r *memUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	for _, u := range r.store.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if u, ok := r.store.users[email]; ok {
		return u, nil
	}
	return nil, nil
}

func (r *memUserRepo) Create(ctx context.Context, user *model.User) error {
	if _, ok := r.store.users[user.Email]; ok {
		return repository.ErrDuplicateEmail
	}
	r.store.users[user.Email] = user
	return nil
}

func (r *memUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	return r.Create(ctx, user)
}

type memIdentityRepo struct{}

func (r *memIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	return nil, nil
}

func (r *memIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	return nil
}

type memSessionRepo struct{ store *integrationStore }

func (r *memSessionRepo) Create(ctx context.Context, session *model.Session) error {
	r.store.sessions[session.ID] = session
	return nil
}

func (r *memSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if s, ok := r.store.sessions[id]; ok {
		return s, nil
	}
	return nil, nil
}

func (r *memSessionRepo) DeleteByID(ctx context.Context, id string) error {
	delete(r.store.sessions, id)
	return nil
}

func (r *memSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

type memTaskRepo struct{ store *integrationStore }

func (r *memTaskRepo) FindByIDAndUser(ctx context.Context, id, userID string) (*model.Task, error) {
	if t, ok := r.store.tasks[id]; ok && t.UserID == userID {
		return t, nil
	}
	return nil, nil
}

func (r *memTaskRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Task, error) {
	var tasks []*model.Task
	for _, t := range r.store.tasks {
		if t.UserID == userID {
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func (r *memTaskRepo) Create(ctx context.Context, t *model.Task) error {
	r.store.tasks[t.ID] = t
	return nil
}

func (r *memTaskRepo) Update(ctx context.Context, t *model.Task) (bool, error) {
	existing, ok := r.store.tasks[t.ID]
	if !ok || existing.UserID != t.UserID {
		return false, nil
	}
	r.store.tasks[t.ID] = t
	return true, nil
}

func (r *memTaskRepo) Delete(ctx context.Context, id, userID string) (bool, error) {
	existing, ok := r.store.tasks[id]
	if !ok || existing.UserID != userID {
		return false, nil
	}
	delete(r.store.tasks, id)
	return true, nil
}

type stubOAuthProvider struct{}

func (p *stubOAuthProvider) GetLoginURL(state string) string {
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (p *stubOAuthProvider) ExchangeCode(ctx context.Context, code string) (*auth.OAuthUserInfo, error) {
	return nil, model.NewUpstreamIdentityError()
}

// newIntegrationRouter は実サービスをインメモリリポジトリの上に
// ワイヤリングしたルーターを構築する。
func newIntegrationRouter(store *integrationStore) http.Handler {
	userRepo := &memUserRepo{store: store}
	sessionRepo := &memSessionRepo{store: store}
	taskRepo := &memTaskRepo{store: store}

	authService := auth.NewService(
		&stubOAuthProvider{},
		auth.NewPasswordHasher(4), // テストはコストを下げて実行
		userRepo,
		&memIdentityRepo{},
		sessionRepo,
		auth.ServiceConfig{SessionMaxAge: 43200},
	)
	taskService := task.NewService(taskRepo, security.NewContentSanitizer())

	return NewRouter(&RouterDeps{
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: "http://localhost:3000",
		AuthService:       authService,
		AuthConfig: AuthHandlerConfig{
			BaseURL:       "http://localhost:3000",
			SessionMaxAge: 43200,
		},
		TaskService: taskService,
	})
}

// withCSRF は変更系リクエストにCSRFのCookieとヘッダーのペアを付与する。
func withCSRF(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "integration-csrf"})
	req.Header.Set("X-CSRF-Token", "integration-csrf")
	return req
}

// 登録 → 自動ログイン → タスク作成 → 一覧に自分のタスクが1件 →
// ログアウト → 一覧がログインページへリダイレクト、の一連の流れを
// 実サービス構成のルーターで検証する。
func TestIntegration_RegisterCreateListLogout(t *testing.T) {
	store := newIntegrationStore()
	router := newIntegrationRouter(store)

	// 1. 登録（CSRF免除パス）すると自動ログインで/tasksへ
	registerReq := formRequest(http.MethodPost, "/register", url.Values{
		"email":    {"hanako@example.com"},
		"password": {"correct horse"},
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, registerReq)

	resp := w.Result()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("register status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if loc := resp.Header.Get("Location"); loc != "/tasks" {
		t.Fatalf("register Location = %q, want /tasks", loc)
	}
	sessionCookie := findCookie(resp, "session_id")
	if sessionCookie == nil || sessionCookie.Value == "" {
		t.Fatal("registration should auto-login and set a session cookie")
	}

	// 2. セッションCookieでタスクを作成
	createReq := withCSRF(formRequest(http.MethodPost, "/tasks", url.Values{
		"title": {"牛乳を買う"},
		"body":  {"<p>帰りにスーパーで</p><script>alert(1)</script>"},
	}))
	createReq.AddCookie(sessionCookie)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, createReq)

	if w.Result().StatusCode != http.StatusSeeOther {
		t.Fatalf("create status = %d, want %d", w.Result().StatusCode, http.StatusSeeOther)
	}

	// 3. 一覧に自分のタスクが1件、本文はサニタイズ済み
	listReq := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	listReq.AddCookie(sessionCookie)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, listReq)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	var listBody struct {
		Tasks []taskResponse `json:"tasks"`
	}
	if err := json.NewDecoder(w.Result().Body).Decode(&listBody); err != nil {
		t.Fatalf("failed to decode list response: %v", err)
	}
	if len(listBody.Tasks) != 1 {
		t.Fatalf("len(tasks) = %d, want 1", len(listBody.Tasks))
	}
	if listBody.Tasks[0].Title != "牛乳を買う" {
		t.Errorf("title = %q, want 牛乳を買う", listBody.Tasks[0].Title)
	}
	if listBody.Tasks[0].Body != "<p>帰りにスーパーで</p>" {
		t.Errorf("body = %q, script tag should be sanitized away", listBody.Tasks[0].Body)
	}

	// 4. ログアウトでセッションが破棄され、Cookieがクリアされる
	logoutReq := withCSRF(httptest.NewRequest(http.MethodPost, "/logout", nil))
	logoutReq.AddCookie(sessionCookie)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, logoutReq)

	resp = w.Result()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("logout status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if loc := resp.Header.Get("Location"); loc != "/login" {
		t.Errorf("logout Location = %q, want /login", loc)
	}
	cleared := findCookie(resp, "session_id")
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Error("logout should expire the session cookie")
	}

	// 5. 破棄済みセッションでの一覧はログインページへリダイレクト
	staleReq := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	staleReq.AddCookie(sessionCookie)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, staleReq)

	resp = w.Result()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("stale list status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if loc := resp.Header.Get("Location"); loc != "/login" {
		t.Errorf("stale list Location = %q, want /login", loc)
	}
}

// 登録済みメールアドレスでの再登録は、フルスタック経由でも
// エラー詳細なしでログインページへのリダイレクトになる。
func TestIntegration_DuplicateRegister_RedirectsToLogin(t *testing.T) {
	store := newIntegrationStore()
	router := newIntegrationRouter(store)

	form := url.Values{
		"email":    {"taro@example.com"},
		"password": {"pw123"},
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, formRequest(http.MethodPost, "/register", form))
	if w.Result().StatusCode != http.StatusSeeOther {
		t.Fatalf("first register status = %d, want %d", w.Result().StatusCode, http.StatusSeeOther)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, formRequest(http.MethodPost, "/register", form))

	resp := w.Result()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("second register status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if loc := resp.Header.Get("Location"); loc != "/login" {
		t.Errorf("second register Location = %q, want /login", loc)
	}
	if findCookie(resp, "session_id") != nil {
		t.Error("duplicate registration must not create a session")
	}
}

// 登録したパスワードで再ログインでき、間違ったパスワードでは
// ログインページへ戻されることをフルスタックで検証する。
func TestIntegration_LoginAfterRegister(t *testing.T) {
	store := newIntegrationStore()
	router := newIntegrationRouter(store)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, formRequest(http.MethodPost, "/register", url.Values{
		"email":    {"jiro@example.com"},
		"password": {"open sesame"},
	}))
	if w.Result().StatusCode != http.StatusSeeOther {
		t.Fatalf("register status = %d, want %d", w.Result().StatusCode, http.StatusSeeOther)
	}

	// 正しいパスワードで再ログイン
	w = httptest.NewRecorder()
	router.ServeHTTP(w, formRequest(http.MethodPost, "/login", url.Values{
		"email":    {"jiro@example.com"},
		"password": {"open sesame"},
	}))
	resp := w.Result()
	if loc := resp.Header.Get("Location"); loc != "/tasks" {
		t.Errorf("login Location = %q, want /tasks", loc)
	}
	if findCookie(resp, "session_id") == nil {
		t.Error("successful login should set a session cookie")
	}

	// 間違ったパスワードはログインページへ
	w = httptest.NewRecorder()
	router.ServeHTTP(w, formRequest(http.MethodPost, "/login", url.Values{
		"email":    {"jiro@example.com"},
		"password": {"wrong"},
	}))
	resp = w.Result()
	if loc := resp.Header.Get("Location"); loc != "/login" {
		t.Errorf("failed login Location = %q, want /login", loc)
	}
	if findCookie(resp, "session_id") != nil {
		t.Error("failed login must not set a session cookie")
	}
}
