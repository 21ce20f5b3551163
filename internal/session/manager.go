package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/storyman/internal/api"
	"github.com/hitoshi/storyman/internal/model"
)

// Credentials は再訪時の自動ログインのために永続化する資格情報のペア。
// トークンは不透明な文字列として扱い、中身を解釈しない。
type Credentials struct {
	Token    string
	Username string
}

// CredentialStore は資格情報の永続化インターフェース。
// credstore.FileStoreが実装する。テストではフェイクに差し替える。
type CredentialStore interface {
	// Load は保存済みの資格情報を返す。未保存の場合はnilを返す。
	Load() (*Credentials, error)
	// Save は資格情報を保存する。
	Save(creds Credentials) error
	// Clear は保存済みの資格情報を消去する。未保存でもエラーにしない。
	Clear() error
}

// AuthAPI はセッション管理が必要とするAPIクライアントのインターフェース。
// api.Clientの部分集合として定義する。
type AuthAPI interface {
	Signup(ctx context.Context, username, password, name string) (*api.AuthResult, error)
	Login(ctx context.Context, username, password string) (*api.AuthResult, error)
	GetUser(ctx context.Context, token, username string) (*api.UserResult, error)
	AddFavorite(ctx context.Context, token, username, storyID string) error
	RemoveFavorite(ctx context.Context, token, username, storyID string) error
}

// Manager はプロセス内で唯一の「現在のセッション」スロットを管理する。
// ログイン・サインアップ・復元はスロットを丸ごと差し替え、
// 失敗時は以前のスロットに影響を与えない。
type Manager struct {
	api    AuthAPI
	store  CredentialStore
	logger *slog.Logger

	mu      sync.RWMutex
	current *Session
}

// NewManager はManagerの新しいインスタンスを生成する。
func NewManager(authAPI AuthAPI, store CredentialStore, logger *slog.Logger) *Manager {
	return &Manager{
		api:    authAPI,
		store:  store,
		logger: logger,
	}
}

// Current は現在のセッションを返す。未ログインの場合はnilを返す。
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Signup は新しいアカウントを登録し、現在のセッションを差し替える。
// 成功時は資格情報を永続化する。失敗時は以前のセッションに影響を与えない。
func (m *Manager) Signup(ctx context.Context, username, password, name string) (*Session, error) {
	result, err := m.api.Signup(ctx, username, password, name)
	if err != nil {
		return nil, err
	}
	return m.install(result), nil
}

// Login は資格情報をトークンに交換し、現在のセッションを差し替える。
// 成功時は資格情報を永続化する。失敗時は以前のセッションに影響を与えない。
func (m *Manager) Login(ctx context.Context, username, password string) (*Session, error) {
	result, err := m.api.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return m.install(result), nil
}

// install は認証結果からセッションを構築してスロットに設定し、資格情報を保存する。
// 資格情報の保存失敗はセッション確立を妨げない（次回の自動ログインが効かないだけ）。
func (m *Manager) install(result *api.AuthResult) *Session {
	sess := New(result.User, result.Token, result.Stories, result.Favorites)

	if err := m.store.Save(Credentials{Token: result.Token, Username: result.User.Username}); err != nil {
		m.logger.Warn("資格情報の保存に失敗しました",
			slog.String("username", result.User.Username),
			slog.String("error", err.Error()),
		)
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	m.logger.Info("セッションを確立しました",
		slog.String("username", result.User.Username),
	)
	return sess
}

// Restore は保存済みの資格情報からセッションの再構築を試みる。
// 起動時の自動ログイン用であり、いかなる失敗（資格情報なし、トークン失効、
// ネットワーク障害）でもエラーを返さずnilを返す。呼び出し元は未ログイン状態で続行する。
func (m *Manager) Restore(ctx context.Context) *Session {
	creds, err := m.store.Load()
	if err != nil {
		m.logger.Warn("保存済み資格情報の読み込みに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if creds == nil || creds.Token == "" || creds.Username == "" {
		return nil
	}

	result, err := m.api.GetUser(ctx, creds.Token, creds.Username)
	if err != nil {
		m.logger.Info("保存済み資格情報からのセッション復元に失敗しました",
			slog.String("username", creds.Username),
			slog.String("error", err.Error()),
		)
		return nil
	}

	sess := New(result.User, creds.Token, result.Stories, result.Favorites)

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	m.logger.Info("保存済み資格情報からセッションを復元しました",
		slog.String("username", creds.Username),
	)
	return sess
}

// Logout は現在のセッションを破棄し、保存済みの資格情報を消去する。
func (m *Manager) Logout() {
	m.mu.Lock()
	sess := m.current
	m.current = nil
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		m.logger.Warn("保存済み資格情報の消去に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	if sess != nil {
		m.logger.Info("ログアウトしました",
			slog.String("username", sess.User.Username),
		)
	}
}

// AddFavorite はストーリーをお気に入りに追加する。
// サーバーの確認応答の後にのみローカルコレクションを変更する。
// 呼び出しが失敗した場合、お気に入りは変更されない。
func (m *Manager) AddFavorite(ctx context.Context, story model.Story) error {
	sess := m.Current()
	if sess == nil {
		return model.NewNotLoggedInError()
	}

	if err := m.api.AddFavorite(ctx, sess.Token, sess.User.Username, story.ID); err != nil {
		return err
	}

	sess.addFavorite(story)
	return nil
}

// RemoveFavorite はストーリーをお気に入りから削除する。
// サーバーの確認応答の後にのみローカルコレクションを変更する。
// 呼び出しが失敗した場合、お気に入りは変更されない。
func (m *Manager) RemoveFavorite(ctx context.Context, story model.Story) error {
	sess := m.Current()
	if sess == nil {
		return model.NewNotLoggedInError()
	}

	if err := m.api.RemoveFavorite(ctx, sess.Token, sess.User.Username, story.ID); err != nil {
		return err
	}

	sess.removeFavorite(story.ID)
	return nil
}
