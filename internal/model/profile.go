// Package model はドメインモデルを定義する。
package model

import "time"

// BusinessCategory は管理者が設定する事業カテゴリを表す。
// 空文字列は未設定を意味する。
type BusinessCategory string

const (
	CategoryFarm        BusinessCategory = "Farm"
	CategoryRestaurant  BusinessCategory = "Restaurant"
	CategoryAgritourism BusinessCategory = "Agritourism"
	CategoryChef        BusinessCategory = "Chef"
	CategoryOther       BusinessCategory = "Other"
)

// Valid はカテゴリが定義済みの値（または未設定）であるかを返す。
func (c BusinessCategory) Valid() bool {
	switch c {
	case "", CategoryFarm, CategoryRestaurant, CategoryAgritourism, CategoryChef, CategoryOther:
		return true
	default:
		return false
	}
}

// Profile は事業者のディレクトリエントリを表す。
// OwnerIDは認証主体の識別子で、定常状態では1オーナーにつき1件のみ存在する。
type Profile struct {
	ID               string
	OwnerID          string
	DisplayName      string
	Biography        string
	WebsiteURL       *string
	ContactEmail     *string
	BusinessCategory BusinessCategory
	CreatedByAdmin   bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProfileUpdate はプロフィールの部分更新を表す。
// nilのフィールドは既存の値を維持する。
// WebsiteURLとContactEmailに空文字列を指定した場合は値をクリアする。
type ProfileUpdate struct {
	DisplayName      *string
	Biography        *string
	WebsiteURL       *string
	ContactEmail     *string
	BusinessCategory *BusinessCategory
}

// IsEmpty は更新対象のフィールドが1つも指定されていないかを返す。
func (u ProfileUpdate) IsEmpty() bool {
	return u.DisplayName == nil && u.Biography == nil && u.WebsiteURL == nil &&
		u.ContactEmail == nil && u.BusinessCategory == nil
}

// Apply は部分更新をプロフィールに適用する。
func (u ProfileUpdate) Apply(p *Profile) {
	if u.DisplayName != nil {
		p.DisplayName = *u.DisplayName
	}
	if u.Biography != nil {
		p.Biography = *u.Biography
	}
	if u.WebsiteURL != nil {
		p.WebsiteURL = optional(*u.WebsiteURL)
	}
	if u.ContactEmail != nil {
		p.ContactEmail = optional(*u.ContactEmail)
	}
	if u.BusinessCategory != nil {
		p.BusinessCategory = *u.BusinessCategory
	}
}

// Classification は自己紹介文から算出される表示用カテゴリ。永続化しない。
type Classification struct {
	Label        string
	DisplayColor string
}

// StringValue はオプショナルな文字列を値に変換する。nilは空文字列になる。
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// optional は空文字列をnilとして扱うポインタを返す。
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// OptionalString は空文字列をnilとして扱うポインタを返す。
func OptionalString(s string) *string {
	return optional(s)
}
