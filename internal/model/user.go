// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Profile はコミュニティメンバーのプロフィールを表す。
// DisplayName・AvatarURLはNULL許容で、未設定の場合は空文字列になる。
type Profile struct {
	ID          string
	DisplayName string
	Headline    string
	AvatarURL   string
	GithubURL   string
	LinkedinURL string
}

// DisplayNameOrDefault は表示名を返す。未設定の場合は"Anonymous"。
func (p *Profile) DisplayNameOrDefault() string {
	if p == nil || strings.TrimSpace(p.DisplayName) == "" {
		return AnonymousName
	}
	return p.DisplayName
}

// Initial はアバター未設定時に表示する頭文字を返す。名前がない場合とnilの場合は"?"。
func (p *Profile) Initial() string {
	if p == nil {
		return "?"
	}
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		return "?"
	}
	r := []rune(name)
	return strings.ToUpper(string(r[0]))
}

// Session はユーザーのログインセッションを表す。
// セッションの発行は外部の認証基盤が行い、本サービスは参照のみ行う。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Actor は認証済みの操作者を表す。匿名の場合はnil。
type Actor struct {
	ID string
}
