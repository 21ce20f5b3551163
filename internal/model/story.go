// Package model はドメインモデルを定義する。
package model

import (
	"net/url"
	"time"
)

// Story はストーリー共有サービスに投稿された1件のリンクを表す。
// サーバーから取得したレコードを元に構築され、構築後は変更しない。
// 「変更」はコレクションからの削除・差し替えで表現する。
type Story struct {
	ID        string
	Title     string
	Author    string
	URL       string
	Username  string // 投稿したユーザー名
	CreatedAt time.Time
}

// HostName はストーリーのURLからホスト名を導出する。
// スキームとパスは破棄し、ネットワークロケーション部のみを返す。
// 毎回パースする純粋な計算でありキャッシュしない。
// URLがパースできない場合やホストを持たない場合はエラーを返す。
func (s *Story) HostName() (string, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return "", NewInvalidStoryURLError(s.URL)
	}
	if u.Host == "" {
		return "", NewInvalidStoryURLError(s.URL)
	}
	return u.Host, nil
}

// StoryDraft は投稿フォームから受け取る未送信のストーリーデータを表す。
// サーバーがIDと投稿者・作成日時を採番するため、それらは含まない。
type StoryDraft struct {
	Title  string
	Author string
	URL    string
}
