// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Principal は認証済みの利用者を表す。
// IDは外部認証プロバイダーのsubject識別子で、Profile.OwnerIDと対応する。
type Principal struct {
	ID    string
	Email string
	Name  string
}

// EmailLocalPart はメールアドレスの@より前の部分を返す。
// @を含まない場合はメールアドレス全体を返す。
func (p Principal) EmailLocalPart() string {
	local, _, _ := strings.Cut(p.Email, "@")
	return local
}

// Session はログインセッションを表す。
// IsAdminはセッション発行時に1回だけ評価される。
type Session struct {
	ID        string
	Principal Principal
	IsAdmin   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}
