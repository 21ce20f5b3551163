package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storyman/internal/model"
	"github.com/hitoshi/storyman/internal/session"
)

// FeedService はUIハンドラーが必要とするフィード操作のインターフェース。
type FeedService interface {
	Stories() []model.Story
	Get(storyID string) (model.Story, bool)
	Create(ctx context.Context, sess *session.Session, draft model.StoryDraft) (*model.Story, error)
	Remove(ctx context.Context, sess *session.Session, storyID string) error
}

// SessionService はUIハンドラーが必要とするセッション操作のインターフェース。
type SessionService interface {
	Current() *session.Session
	Signup(ctx context.Context, username, password, name string) (*session.Session, error)
	Login(ctx context.Context, username, password string) (*session.Session, error)
	Logout()
	AddFavorite(ctx context.Context, story model.Story) error
	RemoveFavorite(ctx context.Context, story model.Story) error
}

// TextSanitizer はテキストサニタイズのインターフェース。
// security.TextSanitizerServiceの部分集合として定義する。
type TextSanitizer interface {
	Sanitize(raw string) string
}

// FaviconProvider はホストごとのfavicon取得のインターフェース。
type FaviconProvider interface {
	Get(ctx context.Context, host string) (data []byte, mimeType string)
}

// UIHandler はローカルUIの全ページを描画するHTTPハンドラー。
type UIHandler struct {
	feed      FeedService
	sessions  SessionService
	sanitizer TextSanitizer
	favicons  FaviconProvider
	logger    *slog.Logger
	templates *templateSet
}

// NewUIHandler はUIHandlerを生成する。
// テンプレートのパースに失敗した場合はエラーを返す。
func NewUIHandler(
	feedSvc FeedService,
	sessions SessionService,
	sanitizer TextSanitizer,
	favicons FaviconProvider,
	logger *slog.Logger,
) (*UIHandler, error) {
	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &UIHandler{
		feed:      feedSvc,
		sessions:  sessions,
		sanitizer: sanitizer,
		favicons:  favicons,
		logger:    logger,
		templates: templates,
	}, nil
}

// --- ビューモデル ---

// storyView はテンプレートに渡すストーリーの表示用データ。
// テキストはすべてサニタイズ済み。
type storyView struct {
	ID         string
	Title      string
	URL        string
	Host       string
	Author     string
	Username   string
	IsFavorite bool
	IsOwn      bool
}

// pageData は全ページ共通のテンプレートデータ。
type pageData struct {
	Title        string
	LoggedIn     bool
	Username     string
	Name         string
	MemberSince  string
	ErrorMessage string
	ErrorAction  string
	Stories      []storyView
	ShowDelete   bool
	From         string
	FormTitle    string
	FormAuthor   string
	FormURL      string
}

// toStoryView はストーリーを表示用データに変換する。
// URLがパースできずホスト名を導出できない場合はホスト名なしで表示する。
func (h *UIHandler) toStoryView(st model.Story, sess *session.Session) storyView {
	host, err := st.HostName()
	if err != nil {
		h.logger.Warn("ストーリーのホスト名を導出できません",
			slog.String("story_id", st.ID),
			slog.String("url", st.URL),
			slog.String("error", err.Error()),
		)
		host = ""
	}

	view := storyView{
		ID:       st.ID,
		Title:    h.sanitizer.Sanitize(st.Title),
		URL:      st.URL,
		Host:     host,
		Author:   h.sanitizer.Sanitize(st.Author),
		Username: h.sanitizer.Sanitize(st.Username),
	}
	if sess != nil {
		view.IsFavorite = sess.IsFavorite(st.ID)
		view.IsOwn = st.Username == sess.User.Username
	}
	return view
}

// toStoryViews はストーリーのスライスを表示用データに変換する。
func (h *UIHandler) toStoryViews(stories []model.Story, sess *session.Session) []storyView {
	views := make([]storyView, 0, len(stories))
	for _, st := range stories {
		views = append(views, h.toStoryView(st, sess))
	}
	return views
}

// basePageData はセッション状態を反映した共通テンプレートデータを生成する。
func (h *UIHandler) basePageData(title string, sess *session.Session) pageData {
	data := pageData{Title: title}
	if sess != nil {
		data.LoggedIn = true
		data.Username = sess.User.Username
		data.Name = h.sanitizer.Sanitize(sess.User.Name)
	}
	return data
}

// setError はAPIエラーからユーザー向けメッセージを設定する。
func (data *pageData) setError(err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		data.ErrorMessage = apiErr.Message
		data.ErrorAction = apiErr.Action
		return
	}
	data.ErrorMessage = "予期しないエラーが発生しました。"
	data.ErrorAction = "しばらく待ってから再度お試しください。"
}

// render はテンプレートを描画する。
// 描画失敗はこの時点でヘッダー送信済みの可能性があるためログのみ残す。
func (h *UIHandler) render(w http.ResponseWriter, page string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.execute(w, page, data); err != nil {
		h.logger.Error("テンプレートの描画に失敗しました",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
	}
}

// --- ページハンドラー ---

// FeedPage は共有フィードを表示する。
// GET /
func (h *UIHandler) FeedPage(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current()
	data := h.basePageData("フィード", sess)
	data.Stories = h.toStoryViews(h.feed.Stories(), sess)
	h.render(w, "feed", data)
}

// MyStoriesPage は自分の投稿一覧を表示する。
// GET /stories/my
func (h *UIHandler) MyStoriesPage(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current()
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	data := h.basePageData("自分の投稿", sess)
	data.Stories = h.toStoryViews(sess.Stories(), sess)
	data.ShowDelete = true
	data.From = "my"
	h.render(w, "feed", data)
}

// FavoritesPage はお気に入り一覧を表示する。
// GET /stories/favorites
func (h *UIHandler) FavoritesPage(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current()
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	data := h.basePageData("お気に入り", sess)
	data.Stories = h.toStoryViews(sess.Favorites(), sess)
	data.From = "favorites"
	h.render(w, "feed", data)
}

// ProfilePage はプロフィールを表示する。
// GET /profile
func (h *UIHandler) ProfilePage(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current()
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	data := h.basePageData("プロフィール", sess)
	if !sess.User.CreatedAt.IsZero() {
		data.MemberSince = sess.User.CreatedAt.Format("2006-01-02")
	}
	h.render(w, "profile", data)
}

// LoginPage はログイン・サインアップフォームを表示する。
// GET /login
func (h *UIHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if h.sessions.Current() != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, "login", h.basePageData("ログイン", nil))
}

// Login はログインフォームの送信を処理する。
// 失敗時は以前のセッション状態に影響を与えず、フォームを再表示する。
// POST /login
func (h *UIHandler) Login(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	if _, err := h.sessions.Login(r.Context(), username, password); err != nil {
		data := h.basePageData("ログイン", nil)
		data.setError(err)
		w.WriteHeader(http.StatusUnauthorized)
		h.render(w, "login", data)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Signup はサインアップフォームの送信を処理する。
// POST /signup
func (h *UIHandler) Signup(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")
	name := r.FormValue("name")

	if _, err := h.sessions.Signup(r.Context(), username, password, name); err != nil {
		data := h.basePageData("ログイン", nil)
		data.setError(err)
		w.WriteHeader(http.StatusBadRequest)
		h.render(w, "login", data)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout はセッションを破棄し、保存済み資格情報を消去する。
// POST /logout
func (h *UIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// SubmitPage はストーリー投稿フォームを表示する。
// GET /submit
func (h *UIHandler) SubmitPage(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current()
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	h.render(w, "submit", h.basePageData("ストーリーを投稿", sess))
}

// Submit はストーリー投稿フォームの送信を処理する。
// 失敗時はローカルコレクションを変更せず、入力値を保持してフォームを再表示する。
// POST /submit
func (h *UIHandler) Submit(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current()
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	draft := model.StoryDraft{
		Title:  r.FormValue("title"),
		Author: r.FormValue("author"),
		URL:    r.FormValue("url"),
	}

	if _, err := h.feed.Create(r.Context(), sess, draft); err != nil {
		data := h.basePageData("ストーリーを投稿", sess)
		data.setError(err)
		data.FormTitle = draft.Title
		data.FormAuthor = draft.Author
		data.FormURL = draft.URL
		w.WriteHeader(http.StatusBadGateway)
		h.render(w, "submit", data)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// DeleteStory はストーリーを削除する。
// POST /stories/{id}/delete
func (h *UIHandler) DeleteStory(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current()
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	storyID := chi.URLParam(r, "id")
	if err := h.feed.Remove(r.Context(), sess, storyID); err != nil {
		h.logger.Error("ストーリーの削除に失敗しました",
			slog.String("story_id", storyID),
			slog.String("error", err.Error()),
		)
	}

	http.Redirect(w, r, backTo(r), http.StatusSeeOther)
}

// ToggleFavorite はストーリーのお気に入り状態を切り替える。
// フィードから消えたストーリーでもお気に入り一覧からは解除できるよう、
// フィードに見つからない場合はセッションのお気に入りからも探す。
// POST /stories/{id}/favorite
func (h *UIHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current()
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	storyID := chi.URLParam(r, "id")
	story, ok := h.feed.Get(storyID)
	if !ok {
		for _, f := range sess.Favorites() {
			if f.ID == storyID {
				story = f
				ok = true
				break
			}
		}
	}
	if !ok {
		http.NotFound(w, r)
		return
	}

	var err error
	if sess.IsFavorite(storyID) {
		err = h.sessions.RemoveFavorite(r.Context(), story)
	} else {
		err = h.sessions.AddFavorite(r.Context(), story)
	}
	if err != nil {
		h.logger.Error("お気に入りの切り替えに失敗しました",
			slog.String("story_id", storyID),
			slog.String("error", err.Error()),
		)
	}

	http.Redirect(w, r, backTo(r), http.StatusSeeOther)
}

// Favicon はストーリーのリンク先ホストのfaviconを配信する。
// GET /favicons/{host}
func (h *UIHandler) Favicon(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")
	data, mimeType := h.favicons.Get(r.Context(), host)
	if data == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(data)
}

// backTo は操作後に戻るパスを返す。
// fromパラメータで指定されたビューに戻り、未指定時はフィードに戻る。
func backTo(r *http.Request) string {
	switch r.FormValue("from") {
	case "my":
		return "/stories/my"
	case "favorites":
		return "/stories/favorites"
	default:
		return "/"
	}
}
