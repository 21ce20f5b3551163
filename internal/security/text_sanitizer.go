// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はリモートサービス由来のテキスト
// （ストーリーのタイトル・著者名・ユーザー名など）からマークアップを除去し、
// ローカルUIに表示しても安全なプレーンテキストにする。
// サービス側の検証を信頼せず、表示経路で多層防御する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はテキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizerService interface {
	// Sanitize はテキストからすべてのHTMLタグを除去したプレーンテキストを返す。
	// 前後の空白も取り除く。同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、スレッドセーフに処理する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// 許可タグを一切持たないポリシーを使用するため、scriptタグはもちろん
// 装飾目的のタグもすべて除去される。表示時のエスケープはhtml/templateが行うので、
// ここでの関心はタグ構造の除去のみ。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はテキストからすべてのHTMLタグを除去したプレーンテキストを返す。
// bluemondayはエンティティ化した結果を返すため、表示前にアンエスケープして
// html/templateの二重エスケープを避ける。
func (s *textSanitizer) Sanitize(raw string) string {
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
