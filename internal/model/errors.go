// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, story, network, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNetworkError       = "NETWORK_ERROR"
	ErrCodeServiceError       = "SERVICE_ERROR"
	ErrCodeAuthFailed         = "AUTH_FAILED"
	ErrCodeRegistrationFailed = "REGISTRATION_FAILED"
	ErrCodeStoryNotFound      = "STORY_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeInvalidStoryURL    = "INVALID_STORY_URL"
	ErrCodeNotLoggedIn        = "NOT_LOGGED_IN"
)

// CodeOf はエラーチェーンからAPIErrorのコードを取り出す。
// APIErrorが含まれない場合は空文字列を返す。
func CodeOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// HasCode はエラーチェーンに指定コードのAPIErrorが含まれるかを判定する。
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}

// NewNetworkError はトランスポート層の失敗を表すエラーを生成する。
func NewNetworkError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeNetworkError,
		Message:  fmt.Sprintf("ストーリーサービスへの接続に失敗しました: %s", reason),
		Category: "network",
		Action:   "ネットワーク接続を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewServiceError はサービス側の非成功レスポンスを表すエラーを生成する。
func NewServiceError(statusCode int, detail string) *APIError {
	return &APIError{
		Code:     ErrCodeServiceError,
		Message:  fmt.Sprintf("ストーリーサービスがエラーを返しました (HTTP %d): %s", statusCode, detail),
		Category: "system",
		Action:   "入力内容を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewAuthFailedError は認証失敗エラーを生成する。
// ログイン時の資格情報不正と、無効なトークンによる認可失敗の両方で使用する。
func NewAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  "認証に失敗しました。",
		Category: "auth",
		Action:   "ユーザー名とパスワードを確認して再度ログインしてください。",
	}
}

// NewRegistrationFailedError はサインアップ失敗エラーを生成する。
func NewRegistrationFailedError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeRegistrationFailed,
		Message:  fmt.Sprintf("アカウント登録に失敗しました: %s", detail),
		Category: "auth",
		Action:   "別のユーザー名を選ぶか、入力内容を確認してください。",
	}
}

// NewStoryNotFoundError はストーリー未検出エラーを生成する。
func NewStoryNotFoundError(storyID string) *APIError {
	return &APIError{
		Code:     ErrCodeStoryNotFound,
		Message:  fmt.Sprintf("指定されたストーリーが見つかりません: %s", storyID),
		Category: "story",
		Action:   "ストーリーは既に削除されている可能性があります。一覧を再読み込みしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("ユーザーが見つかりません: %s", username),
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidStoryURLError はストーリーURLがパースできない場合のエラーを生成する。
func NewInvalidStoryURLError(rawURL string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStoryURL,
		Message:  fmt.Sprintf("ストーリーのURLを解釈できません: %s", rawURL),
		Category: "validation",
		Action:   "http:// または https:// で始まる正しいURLを指定してください。",
	}
}

// NewNotLoggedInError は未ログイン状態で認可が必要な操作を行った場合のエラーを生成する。
func NewNotLoggedInError() *APIError {
	return &APIError{
		Code:     ErrCodeNotLoggedIn,
		Message:  "ログインしていません。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}
