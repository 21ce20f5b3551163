// Package session は認証済みユーザーのセッション管理を提供する。
// ログイン・サインアップ・保存済み資格情報からの復元と、
// お気に入りコレクションの同期を含む。
package session

import (
	"sync"

	"github.com/hitoshi/storyman/internal/model"
)

// Session は認証済みユーザーのインメモリ表現。
// ユーザー情報、認可トークン、ユーザー自身の投稿とお気に入りを保持する。
// 投稿とお気に入りは識別子で管理する独立したコレクションであり、
// フィードとのインスタンス共有はしない。
// コレクションの変更はこのパッケージとfeedパッケージの操作経由に限定される。
type Session struct {
	User  model.User
	Token string

	mu        sync.RWMutex
	stories   []model.Story // 自分の投稿（新しい順）
	favorites []model.Story
}

// New はサーバーから取得したユーザーレコードとトークンからSessionを生成する。
func New(user model.User, token string, stories, favorites []model.Story) *Session {
	return &Session{
		User:      user,
		Token:     token,
		stories:   stories,
		favorites: favorites,
	}
}

// Stories は自分の投稿のコピーを返す。
func (s *Session) Stories() []model.Story {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Story, len(s.stories))
	copy(out, s.stories)
	return out
}

// Favorites はお気に入りのコピーを返す。
func (s *Session) Favorites() []model.Story {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Story, len(s.favorites))
	copy(out, s.favorites)
	return out
}

// IsFavorite はストーリーがお気に入りに含まれるかを識別子で判定する。
// フィードへの所属とは無関係なローカル判定であり、ネットワークアクセスしない。
func (s *Session) IsFavorite(storyID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.favorites {
		if f.ID == storyID {
			return true
		}
	}
	return false
}

// AddAuthored は自分の投稿の先頭にストーリーを追加する。
// 同じ識別子が既にある場合は何もしない。
// feedパッケージが投稿成功後の同期で呼び出す。
func (s *Session) AddAuthored(story model.Story) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.stories {
		if st.ID == story.ID {
			return
		}
	}
	s.stories = append([]model.Story{story}, s.stories...)
}

// Forget は指定識別子のストーリーを投稿とお気に入りの両方から取り除く。
// 含まれていないコレクションに対しては何もしない。
// feedパッケージが削除成功後の同期で呼び出す。
func (s *Session) Forget(storyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stories = removeByID(s.stories, storyID)
	s.favorites = removeByID(s.favorites, storyID)
}

// addFavorite はお気に入りにストーリーを追加する。
// 同じ識別子が既にある場合は何もしない。
func (s *Session) addFavorite(story model.Story) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.favorites {
		if f.ID == story.ID {
			return
		}
	}
	s.favorites = append(s.favorites, story)
}

// removeFavorite はお気に入りから指定識別子のストーリーを取り除く。
func (s *Session) removeFavorite(storyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.favorites = removeByID(s.favorites, storyID)
}

// removeByID は識別子が一致しない要素のみを残したスライスを返す。
func removeByID(stories []model.Story, storyID string) []model.Story {
	out := stories[:0]
	for _, st := range stories {
		if st.ID != storyID {
			out = append(out, st)
		}
	}
	return out
}
