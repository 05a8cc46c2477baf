// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は利用者が入力した投稿本文と自己紹介文からHTMLを除去し、
// プレーンテキストとして保存できる形にする。
// bluemondayのStrictPolicyでタグを取り除いた後、エンティティを元の文字に戻す。
// 表示時のエスケープはクライアント側の責務とする。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はコンテンツのサニタイズ機能のインターフェースを定義する。
// 投稿と自己紹介文の保存前に使用される。
type ContentSanitizerService interface {
	// Sanitize は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
	// script, style, iframeなどは内容ごと除去する。
	// ' & " などの文字はエンティティではなく元の文字のまま返す。
	// 前後の空白は除去される。空文字列の入力には空文字列を返す。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタグを除去したプレーンテキストを返す。
// bluemondayの出力はHTMLエスケープ済みのため、保存前にアンエスケープする。
func (s *contentSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
