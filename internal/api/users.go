package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/storyman/internal/model"
)

// userRecord はサービスが返すユーザーのワイヤ表現。
// ストーリーとお気に入りの配列を含む。
type userRecord struct {
	Username  string        `json:"username"`
	Name      string        `json:"name"`
	CreatedAt string        `json:"createdAt"`
	Stories   []storyRecord `json:"stories"`
	Favorites []storyRecord `json:"favorites"`
}

// AuthResult は認証系エンドポイントの結果。
// ユーザー情報、発行されたトークン、ユーザー自身の投稿とお気に入りを含む。
type AuthResult struct {
	User      model.User
	Token     string
	Stories   []model.Story
	Favorites []model.Story
}

// UserResult はユーザー取得エンドポイントの結果。
type UserResult struct {
	User      model.User
	Stories   []model.Story
	Favorites []model.Story
}

// toUserModel はユーザーのワイヤ表現をドメインモデルに変換する。
func (r userRecord) toUserModel(logger *slog.Logger) model.User {
	createdAt, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil && r.CreatedAt != "" {
		logger.Warn("ユーザーの作成日時をパースできません",
			slog.String("username", r.Username),
			slog.String("created_at", r.CreatedAt),
		)
	}
	return model.User{
		Username:  r.Username,
		Name:      r.Name,
		CreatedAt: createdAt,
	}
}

// signupRequest はアカウント登録リクエストのボディ。
type signupRequest struct {
	User struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Name     string `json:"name"`
	} `json:"user"`
}

// Signup は新しいアカウントを登録し、トークンを取得する。
// ユーザー名が既に使用されている場合などはREGISTRATION_FAILEDを返す。
func (c *Client) Signup(ctx context.Context, username, password, name string) (*AuthResult, error) {
	var req signupRequest
	req.User.Username = username
	req.User.Password = password
	req.User.Name = name

	status, body, err := c.do(ctx, "signup", http.MethodPost, "/signup", nil, req)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK && status != http.StatusCreated {
		return nil, model.NewRegistrationFailedError(errorDetail(body))
	}

	return c.decodeAuthResult(body)
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	User struct {
		Username string `json:"username"`
		Password string `json:"password"`
	} `json:"user"`
}

// Login は資格情報をトークンに交換する。
// パスワード不一致・未知のユーザー名はいずれもAUTH_FAILEDを返す。
func (c *Client) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	var req loginRequest
	req.User.Username = username
	req.User.Password = password

	status, body, err := c.do(ctx, "login", http.MethodPost, "/login", nil, req)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
		return c.decodeAuthResult(body)
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		// サービスは未知のユーザー名に404を返すが、
		// 呼び出し元にとってはどちらも認証失敗として扱う
		return nil, model.NewAuthFailedError()
	default:
		return nil, model.NewServiceError(status, errorDetail(body))
	}
}

// decodeAuthResult は認証系レスポンスをAuthResultに変換する。
func (c *Client) decodeAuthResult(body []byte) (*AuthResult, error) {
	var payload struct {
		User  userRecord `json:"user"`
		Token string     `json:"token"`
	}
	if err := decode(body, &payload); err != nil {
		return nil, err
	}

	return &AuthResult{
		User:      payload.User.toUserModel(c.logger),
		Token:     payload.Token,
		Stories:   toModels(payload.User.Stories, c.logger),
		Favorites: toModels(payload.User.Favorites, c.logger),
	}, nil
}

// GetUser はユーザー情報を投稿・お気に入り込みで取得する。
// 保存済みトークンによるセッション復元で使用する。
func (c *Client) GetUser(ctx context.Context, token, username string) (*UserResult, error) {
	query := url.Values{}
	query.Set("token", token)

	status, body, err := c.do(ctx, "get_user", http.MethodGet, "/users/"+username, query, nil)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		// 下のデコードへ
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, model.NewAuthFailedError()
	case http.StatusNotFound:
		return nil, model.NewUserNotFoundError(username)
	default:
		return nil, model.NewServiceError(status, errorDetail(body))
	}

	var payload struct {
		User userRecord `json:"user"`
	}
	if err := decode(body, &payload); err != nil {
		return nil, err
	}

	return &UserResult{
		User:      payload.User.toUserModel(c.logger),
		Stories:   toModels(payload.User.Stories, c.logger),
		Favorites: toModels(payload.User.Favorites, c.logger),
	}, nil
}

// AddFavorite はストーリーをユーザーのお気に入りに追加する。
func (c *Client) AddFavorite(ctx context.Context, token, username, storyID string) error {
	return c.updateFavorite(ctx, http.MethodPost, token, username, storyID)
}

// RemoveFavorite はストーリーをユーザーのお気に入りから削除する。
func (c *Client) RemoveFavorite(ctx context.Context, token, username, storyID string) error {
	return c.updateFavorite(ctx, http.MethodDelete, token, username, storyID)
}

// updateFavorite はお気に入りの追加・削除エンドポイントを呼び出す。
func (c *Client) updateFavorite(ctx context.Context, method, token, username, storyID string) error {
	operation := "add_favorite"
	if method == http.MethodDelete {
		operation = "remove_favorite"
	}

	path := "/users/" + username + "/favorites/" + storyID
	status, body, err := c.do(ctx, operation, method, path, nil, tokenRequest{Token: token})
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
