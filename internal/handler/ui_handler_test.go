package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/storyman/internal/middleware"
	"github.com/hitoshi/storyman/internal/model"
	"github.com/hitoshi/storyman/internal/session"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

// --- モック ---

type mockFeed struct {
	storiesFunc func() []model.Story
	getFunc     func(storyID string) (model.Story, bool)
	createFunc  func(ctx context.Context, sess *session.Session, draft model.StoryDraft) (*model.Story, error)
	removeFunc  func(ctx context.Context, sess *session.Session, storyID string) error
}

func (m *mockFeed) Stories() []model.Story {
	return m.storiesFunc()
}

func (m *mockFeed) Get(storyID string) (model.Story, bool) {
	return m.getFunc(storyID)
}

func (m *mockFeed) Create(ctx context.Context, sess *session.Session, draft model.StoryDraft) (*model.Story, error) {
	return m.createFunc(ctx, sess, draft)
}

func (m *mockFeed) Remove(ctx context.Context, sess *session.Session, storyID string) error {
	return m.removeFunc(ctx, sess, storyID)
}

type mockSessions struct {
	currentFunc        func() *session.Session
	signupFunc         func(ctx context.Context, username, password, name string) (*session.Session, error)
	loginFunc          func(ctx context.Context, username, password string) (*session.Session, error)
	logoutFunc         func()
	addFavoriteFunc    func(ctx context.Context, story model.Story) error
	removeFavoriteFunc func(ctx context.Context, story model.Story) error
}

func (m *mockSessions) Current() *session.Session {
	if m.currentFunc == nil {
		return nil
	}
	return m.currentFunc()
}

func (m *mockSessions) Signup(ctx context.Context, username, password, name string) (*session.Session, error) {
	return m.signupFunc(ctx, username, password, name)
}

func (m *mockSessions) Login(ctx context.Context, username, password string) (*session.Session, error) {
	return m.loginFunc(ctx, username, password)
}

func (m *mockSessions) Logout() {
	if m.logoutFunc != nil {
		m.logoutFunc()
	}
}

func (m *mockSessions) AddFavorite(ctx context.Context, story model.Story) error {
	return m.addFavoriteFunc(ctx, story)
}

func (m *mockSessions) RemoveFavorite(ctx context.Context, story model.Story) error {
	return m.removeFavoriteFunc(ctx, story)
}

// passthroughSanitizer はテスト用のサニタイザー。入力をそのまま返す。
type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(raw string) string { return raw }

type mockFavicons struct {
	getFunc func(ctx context.Context, host string) ([]byte, string)
}

func (m *mockFavicons) Get(ctx context.Context, host string) ([]byte, string) {
	if m.getFunc == nil {
		return nil, ""
	}
	return m.getFunc(ctx, host)
}

// newTestRouter はモック依存を組み込んだルーターを構築する。
func newTestRouter(t *testing.T, feedSvc FeedService, sessions SessionService, favicons FaviconProvider) http.Handler {
	t.Helper()

	if favicons == nil {
		favicons = &mockFavicons{}
	}

	ui, err := NewUIHandler(feedSvc, sessions, passthroughSanitizer{}, favicons, newTestLogger())
	if err != nil {
		t.Fatalf("NewUIHandler がエラーを返した: %v", err)
	}

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:            rate.Limit(1000),
		Burst:           1000,
		CleanupInterval: time.Minute,
	}, newTestLogger())
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		UI:          ui,
		RateLimiter: rl,
		Gatherer:    prometheus.NewRegistry(),
	})
}

func emptyFeed() *mockFeed {
	return &mockFeed{
		storiesFunc: func() []model.Story { return nil },
		getFunc:     func(storyID string) (model.Story, bool) { return model.Story{}, false },
	}
}

// --- テスト ---

func TestFeedPage(t *testing.T) {
	feedSvc := &mockFeed{
		storiesFunc: func() []model.Story {
			return []model.Story{
				{ID: "a", Title: "Interesting Article", URL: "https://example.com/a", Author: "Alice", Username: "alice"},
			}
		},
	}
	router := newTestRouter(t, feedSvc, &mockSessions{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータス = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Interesting Article") {
		t.Error("フィードページにストーリータイトルが含まれていない")
	}
	if !strings.Contains(body, "example.com") {
		t.Error("フィードページにホスト名が含まれていない")
	}
	// 未ログイン時はログインリンクが表示される
	if !strings.Contains(body, "/login") {
		t.Error("フィードページにログインリンクが含まれていない")
	}
}

func TestFeedPage_SecurityHeaders(t *testing.T) {
	router := newTestRouter(t, emptyFeed(), &mockSessions{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("Content-Security-Policyヘッダーが付与されていない")
	}
}

func TestLogin(t *testing.T) {
	var gotUsername, gotPassword string
	sessions := &mockSessions{
		loginFunc: func(ctx context.Context, username, password string) (*session.Session, error) {
			gotUsername, gotPassword = username, password
			return session.New(model.User{Username: username}, "tok", nil, nil), nil
		},
	}
	router := newTestRouter(t, emptyFeed(), sessions, nil)

	form := url.Values{"username": {"alice"}, "password": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if gotUsername != "alice" || gotPassword != "secret" {
		t.Errorf("Login(%q, %q), want (alice, secret)", gotUsername, gotPassword)
	}
	if rec.Code != http.StatusSeeOther {
		t.Errorf("ステータス = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if got := rec.Header().Get("Location"); got != "/" {
		t.Errorf("リダイレクト先 = %q, want /", got)
	}
}

func TestLogin_Failure(t *testing.T) {
	sessions := &mockSessions{
		loginFunc: func(ctx context.Context, username, password string) (*session.Session, error) {
			return nil, model.NewAuthFailedError()
		},
	}
	router := newTestRouter(t, emptyFeed(), sessions, nil)

	form := url.Values{"username": {"alice"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ステータス = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(rec.Body.String(), "認証に失敗しました") {
		t.Error("失敗メッセージがフォームに表示されていない")
	}
}

func TestSignup_Failure(t *testing.T) {
	sessions := &mockSessions{
		signupFunc: func(ctx context.Context, username, password, name string) (*session.Session, error) {
			return nil, model.NewRegistrationFailedError("Username already taken")
		},
	}
	router := newTestRouter(t, emptyFeed(), sessions, nil)

	form := url.Values{"username": {"alice"}, "password": {"pw"}, "name": {"Alice"}}
	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("ステータス = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestLogout(t *testing.T) {
	var loggedOut bool
	sessions := &mockSessions{
		currentFunc: func() *session.Session {
			return session.New(model.User{Username: "alice"}, "tok", nil, nil)
		},
		logoutFunc: func() { loggedOut = true },
	}
	router := newTestRouter(t, emptyFeed(), sessions, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))

	if !loggedOut {
		t.Error("Logout が呼び出されていない")
	}
	if rec.Code != http.StatusSeeOther {
		t.Errorf("ステータス = %d, want %d", rec.Code, http.StatusSeeOther)
	}
}

func TestMyStoriesPage_RequiresLogin(t *testing.T) {
	router := newTestRouter(t, emptyFeed(), &mockSessions{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stories/my", nil))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("ステータス = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if got := rec.Header().Get("Location"); got != "/login" {
		t.Errorf("リダイレクト先 = %q, want /login", got)
	}
}

func TestMyStoriesPage(t *testing.T) {
	sess := session.New(
		model.User{Username: "alice"},
		"tok",
		[]model.Story{{ID: "m1", Title: "My Story", URL: "https://example.com/m", Username: "alice"}},
		nil,
	)
	sessions := &mockSessions{
		currentFunc: func() *session.Session { return sess },
	}
	router := newTestRouter(t, emptyFeed(), sessions, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stories/my", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータス = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "My Story") {
		t.Error("自分の投稿一覧にストーリーが含まれていない")
	}
	// 自分の投稿一覧では削除ボタンが表示される
	if !strings.Contains(body, "/stories/m1/delete") {
		t.Error("削除フォームが含まれていない")
	}
}

func TestSubmit(t *testing.T) {
	sess := session.New(model.User{Username: "alice"}, "tok", nil, nil)
	sessions := &mockSessions{
		currentFunc: func() *session.Session { return sess },
	}
	var gotDraft model.StoryDraft
	feedSvc := &mockFeed{
		storiesFunc: func() []model.Story { return nil },
		createFunc: func(ctx context.Context, s *session.Session, draft model.StoryDraft) (*model.Story, error) {
			gotDraft = draft
			return &model.Story{ID: "new", Title: draft.Title, Username: "alice"}, nil
		},
	}
	router := newTestRouter(t, feedSvc, sessions, nil)

	form := url.Values{
		"title":  {"New Story"},
		"author": {"Alice"},
		"url":    {"https://example.com/new"},
	}
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if gotDraft.Title != "New Story" || gotDraft.URL != "https://example.com/new" {
		t.Errorf("ドラフト = %+v, want New Story / https://example.com/new", gotDraft)
	}
	if rec.Code != http.StatusSeeOther {
		t.Errorf("ステータス = %d, want %d", rec.Code, http.StatusSeeOther)
	}
}

// TestSubmit_Failure は投稿失敗時に入力値を保持してフォームを再表示することを検証する。
func TestSubmit_Failure(t *testing.T) {
	sess := session.New(model.User{Username: "alice"}, "tok", nil, nil)
	sessions := &mockSessions{
		currentFunc: func() *session.Session { return sess },
	}
	feedSvc := &mockFeed{
		storiesFunc: func() []model.Story { return nil },
		createFunc: func(ctx context.Context, s *session.Session, draft model.StoryDraft) (*model.Story, error) {
			return nil, model.NewServiceError(500, "boom")
		},
	}
	router := newTestRouter(t, feedSvc, sessions, nil)

	form := url.Values{
		"title":  {"Kept Title"},
		"author": {"Alice"},
		"url":    {"https://example.com/kept"},
	}
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("ステータス = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Kept Title") {
		t.Error("失敗時に入力値が保持されていない")
	}
}

func TestToggleFavorite_Add(t *testing.T) {
	sess := session.New(model.User{Username: "alice"}, "tok", nil, nil)
	var added *model.Story
	sessions := &mockSessions{
		currentFunc: func() *session.Session { return sess },
		addFavoriteFunc: func(ctx context.Context, story model.Story) error {
			added = &story
			return nil
		},
	}
	feedSvc := &mockFeed{
		storiesFunc: func() []model.Story { return nil },
		getFunc: func(storyID string) (model.Story, bool) {
			return model.Story{ID: storyID, Title: "Target"}, true
		},
	}
	router := newTestRouter(t, feedSvc, sessions, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stories/s1/favorite", nil))

	if added == nil || added.ID != "s1" {
		t.Errorf("AddFavorite に渡されたストーリー = %+v, want s1", added)
	}
	if got := rec.Header().Get("Location"); got != "/" {
		t.Errorf("リダイレクト先 = %q, want /", got)
	}
}

// TestToggleFavorite_RemoveFromFavoritesView はお気に入り一覧からの解除が
// 元のビューにリダイレクトされることを検証する。
func TestToggleFavorite_RemoveFromFavoritesView(t *testing.T) {
	sess := session.New(
		model.User{Username: "alice"},
		"tok",
		nil,
		[]model.Story{{ID: "s1", Title: "Fav"}},
	)
	var removed bool
	sessions := &mockSessions{
		currentFunc: func() *session.Session { return sess },
		removeFavoriteFunc: func(ctx context.Context, story model.Story) error {
			removed = true
			return nil
		},
	}
	// フィードから消えたストーリーでもお気に入りからは解除できる
	feedSvc := &mockFeed{
		storiesFunc: func() []model.Story { return nil },
		getFunc:     func(storyID string) (model.Story, bool) { return model.Story{}, false },
	}
	router := newTestRouter(t, feedSvc, sessions, nil)

	form := url.Values{"from": {"favorites"}}
	req := httptest.NewRequest(http.MethodPost, "/stories/s1/favorite", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if !removed {
		t.Error("RemoveFavorite が呼び出されていない")
	}
	if got := rec.Header().Get("Location"); got != "/stories/favorites" {
		t.Errorf("リダイレクト先 = %q, want /stories/favorites", got)
	}
}

func TestToggleFavorite_UnknownStory(t *testing.T) {
	sess := session.New(model.User{Username: "alice"}, "tok", nil, nil)
	sessions := &mockSessions{
		currentFunc: func() *session.Session { return sess },
	}
	router := newTestRouter(t, emptyFeed(), sessions, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stories/missing/favorite", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("ステータス = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestDeleteStory(t *testing.T) {
	sess := session.New(model.User{Username: "alice"}, "tok", nil, nil)
	sessions := &mockSessions{
		currentFunc: func() *session.Session { return sess },
	}
	var removedID string
	feedSvc := &mockFeed{
		storiesFunc: func() []model.Story { return nil },
		removeFunc: func(ctx context.Context, s *session.Session, storyID string) error {
			removedID = storyID
			return nil
		},
	}
	router := newTestRouter(t, feedSvc, sessions, nil)

	form := url.Values{"from": {"my"}}
	req := httptest.NewRequest(http.MethodPost, "/stories/s1/delete", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if removedID != "s1" {
		t.Errorf("削除対象 = %q, want s1", removedID)
	}
	if got := rec.Header().Get("Location"); got != "/stories/my" {
		t.Errorf("リダイレクト先 = %q, want /stories/my", got)
	}
}

func TestFavicon(t *testing.T) {
	favicons := &mockFavicons{
		getFunc: func(ctx context.Context, host string) ([]byte, string) {
			if host == "example.com" {
				return []byte("png-bytes"), "image/png"
			}
			return nil, ""
		},
	}
	router := newTestRouter(t, emptyFeed(), &mockSessions{}, favicons)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/favicons/example.com", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータス = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", got)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/favicons/unknown.example", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("未取得ホストのステータス = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, emptyFeed(), &mockSessions{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("ステータス = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, emptyFeed(), &mockSessions{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("ステータス = %d, want %d", rec.Code, http.StatusOK)
	}
}
