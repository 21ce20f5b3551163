package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/storyman/internal/model"
)

// storyRecord はサービスが返すストーリーのワイヤ表現。
type storyRecord struct {
	StoryID   string `json:"storyId"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	URL       string `json:"url"`
	Username  string `json:"username"`
	CreatedAt string `json:"createdAt"`
}

// toModel はワイヤ表現をドメインモデルに変換する。
// createdAtがパースできない場合はゼロ値のまま警告ログを出す
// （表示専用の属性であり、取得全体を失敗させない）。
func (r storyRecord) toModel(logger *slog.Logger) model.Story {
	createdAt, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil && r.CreatedAt != "" {
		logger.Warn("ストーリーの作成日時をパースできません",
			slog.String("story_id", r.StoryID),
			slog.String("created_at", r.CreatedAt),
		)
	}
	return model.Story{
		ID:        r.StoryID,
		Title:     r.Title,
		Author:    r.Author,
		URL:       r.URL,
		Username:  r.Username,
		CreatedAt: createdAt,
	}
}

// toModels はワイヤ表現のスライスをドメインモデルに変換する。
// サーバーが返した順序をそのまま保持する。
func toModels(records []storyRecord, logger *slog.Logger) []model.Story {
	stories := make([]model.Story, 0, len(records))
	for _, r := range records {
		stories = append(stories, r.toModel(logger))
	}
	return stories
}

// GetStories はサービス上の全ストーリーを取得する。
// 認証不要。サーバーが返した順序をそのまま返す。
func (c *Client) GetStories(ctx context.Context) ([]model.Story, error) {
	status, body, err := c.do(ctx, "get_stories", http.MethodGet, "/stories", nil, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, model.NewServiceError(status, errorDetail(body))
	}

	var payload struct {
		Stories []storyRecord `json:"stories"`
	}
	if err := decode(body, &payload); err != nil {
		return nil, err
	}

	return toModels(payload.Stories, c.logger), nil
}

// createStoryRequest はストーリー投稿リクエストのボディ。
type createStoryRequest struct {
	Token string `json:"token"`
	Story struct {
		Author string `json:"author"`
		Title  string `json:"title"`
		URL    string `json:"url"`
	} `json:"story"`
}

// CreateStory は新しいストーリーを投稿する。
// 有効なトークンが必要。成功時はサーバーが採番したストーリーを返す。
func (c *Client) CreateStory(ctx context.Context, token string, draft model.StoryDraft) (*model.Story, error) {
	req := createStoryRequest{Token: token}
	req.Story.Author = draft.Author
	req.Story.Title = draft.Title
	req.Story.URL = draft.URL

	status, body, err := c.do(ctx, "create_story", http.MethodPost, "/stories", nil, req)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, model.NewAuthFailedError()
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, model.NewServiceError(status, errorDetail(body))
	}

	var payload struct {
		Story storyRecord `json:"story"`
	}
	if err := decode(body, &payload); err != nil {
		return nil, err
	}

	story := payload.Story.toModel(c.logger)
	return &story, nil
}

// tokenRequest はトークンのみを含むリクエストボディ。
// DELETE系エンドポイントで使用する。
type tokenRequest struct {
	Token string `json:"token"`
}

// DeleteStory はストーリーを削除する。
// 有効なトークンが必要で、削除できるのは自分が投稿したストーリーのみ。
func (c *Client) DeleteStory(ctx context.Context, token, storyID string) error {
	status, body, err := c.do(ctx, "delete_story", http.MethodDelete, "/stories/"+storyID, nil, tokenRequest{Token: token})
	if err != nil {
		return err
	}

	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.NewAuthFailedError()
	case status == http.StatusNotFound:
		return model.NewStoryNotFoundError(storyID)
	default:
		return model.NewServiceError(status, errorDetail(body))
	}
}
