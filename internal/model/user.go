// Package model はドメインモデルを定義する。
package model

import "time"

// User はストーリー共有サービスのアカウントを表す。
// Usernameはサービス全体で一意であり、セッション確立後は変化しない。
type User struct {
	Username  string
	Name      string
	CreatedAt time.Time
}
