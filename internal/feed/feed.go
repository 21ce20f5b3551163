// Package feed はサーバーと同期する共有ストーリーコレクションを提供する。
// 起動時の全件取得、投稿（先頭への追加）、削除と、
// セッション側コレクションとの識別子ベースの整合性維持を行う。
package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/storyman/internal/model"
	"github.com/hitoshi/storyman/internal/session"
)

// StoryAPI はフィードが必要とするAPIクライアントのインターフェース。
// api.Clientの部分集合として定義する。
type StoryAPI interface {
	GetStories(ctx context.Context) ([]model.Story, error)
	CreateStory(ctx context.Context, token string, draft model.StoryDraft) (*model.Story, error)
	DeleteStory(ctx context.Context, token, storyID string) error
}

// Feed は全ユーザーに見える共有ストーリーコレクション。
// 新しい順（新規投稿は先頭に追加）で保持し、識別子の重複を含まない。
// 取得時はサーバーが返した順序をそのまま保持する。
// 変更はこのパッケージの操作経由に限定され、外部からは読み取りのみ。
type Feed struct {
	api    StoryAPI
	logger *slog.Logger

	mu      sync.RWMutex
	stories []model.Story
}

// FetchAll はサーバーから全ストーリーを取得してFeedを構築する。
// 認証不要。取得失敗時はエラーを返し、リトライは呼び出し元に委ねる。
// サーバーが重複識別子を返した場合は最初の出現のみを残す。
func FetchAll(ctx context.Context, storyAPI StoryAPI, logger *slog.Logger) (*Feed, error) {
	stories, err := storyAPI.GetStories(ctx)
	if err != nil {
		return nil, err
	}

	f := &Feed{
		api:    storyAPI,
		logger: logger,
	}

	seen := make(map[string]bool, len(stories))
	for _, st := range stories {
		if seen[st.ID] {
			logger.Warn("フィードに重複した識別子が含まれています",
				slog.String("story_id", st.ID),
			)
			continue
		}
		seen[st.ID] = true
		f.stories = append(f.stories, st)
	}

	logger.Info("フィードを取得しました",
		slog.Int("count", len(f.stories)),
	)
	return f, nil
}

// Stories はフィードのストーリー列のコピーを返す。
func (f *Feed) Stories() []model.Story {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]model.Story, len(f.stories))
	copy(out, f.stories)
	return out
}

// Get は識別子でストーリーを検索する。
func (f *Feed) Get(storyID string) (model.Story, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, st := range f.stories {
		if st.ID == storyID {
			return st, true
		}
	}
	return model.Story{}, false
}

// Len はフィードのストーリー数を返す。
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.stories)
}

// Create は新しいストーリーを投稿する。
// 有効なセッションが必要。サーバーの成功応答の後にのみ、
// フィードの先頭とセッションの投稿一覧の先頭に追加する。
// 失敗時はローカルコレクションを一切変更しない。
func (f *Feed) Create(ctx context.Context, sess *session.Session, draft model.StoryDraft) (*model.Story, error) {
	if sess == nil {
		return nil, model.NewNotLoggedInError()
	}

	story, err := f.api.CreateStory(ctx, sess.Token, draft)
	if err != nil {
		return nil, err
	}

	f.prepend(*story)
	sess.AddAuthored(*story)

	f.logger.Info("ストーリーを投稿しました",
		slog.String("story_id", story.ID),
		slog.String("username", sess.User.Username),
	)
	return story, nil
}

// Remove はストーリーを削除する。
// 有効なセッションが必要。サーバーの成功応答の後にのみ、
// フィード・セッションの投稿一覧・お気に入りの3コレクションすべてから
// 識別子一致で取り除く（削除前にお気に入り登録されている場合があるため）。
// 失敗時はローカルコレクションを一切変更しない。
func (f *Feed) Remove(ctx context.Context, sess *session.Session, storyID string) error {
	if sess == nil {
		return model.NewNotLoggedInError()
	}

	if err := f.api.DeleteStory(ctx, sess.Token, storyID); err != nil {
		return err
	}

	f.mu.Lock()
	kept := f.stories[:0]
	for _, st := range f.stories {
		if st.ID != storyID {
			kept = append(kept, st)
		}
	}
	f.stories = kept
	f.mu.Unlock()

	sess.Forget(storyID)

	f.logger.Info("ストーリーを削除しました",
		slog.String("story_id", storyID),
		slog.String("username", sess.User.Username),
	)
	return nil
}

// prepend はフィードの先頭にストーリーを追加する。
// 同じ識別子が既にある場合は何もしない（重複識別子を含まない不変条件）。
func (f *Feed) prepend(story model.Story) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, st := range f.stories {
		if st.ID == story.ID {
			return
		}
	}
	f.stories = append([]model.Story{story}, f.stories...)
}
