// Package model はドメインモデルを定義する。
package model

import "time"

// Post はフィードに投稿された更新情報を表す。
// OwnerIDは作成後に変更できない。
type Post struct {
	ID           string
	OwnerID      string
	Content      string
	ImageURL     *string
	ExternalLink *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PostUpdate は投稿の部分更新を表す。
// OwnerIDは含まない（不変）。
type PostUpdate struct {
	Content      *string
	ImageURL     *string
	ExternalLink *string
}

// IsEmpty は更新対象のフィールドが1つも指定されていないかを返す。
func (u PostUpdate) IsEmpty() bool {
	return u.Content == nil && u.ImageURL == nil && u.ExternalLink == nil
}

// Apply は部分更新を投稿に適用する。
func (u PostUpdate) Apply(p *Post) {
	if u.Content != nil {
		p.Content = *u.Content
	}
	if u.ImageURL != nil {
		p.ImageURL = optional(*u.ImageURL)
	}
	if u.ExternalLink != nil {
		p.ExternalLink = optional(*u.ExternalLink)
	}
}

// UnknownOwnerName はオーナーを解決できなかった投稿に表示する名前。
const UnknownOwnerName = "Unknown User"

// FeedEntry は投稿とオーナーの表示情報を結合したフィード表示用モデル。
type FeedEntry struct {
	Post
	OwnerName           string
	OwnerEmail          string
	OwnerClassification Classification
}
