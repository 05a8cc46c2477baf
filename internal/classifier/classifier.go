// Package classifier は自己紹介文から事業カテゴリのラベルを導出する。
//
// 分類結果は永続化せず、表示のたびに算出する。自己紹介文が変われば
// 再分類は自動的に反映される。ディレクトリ一覧、プロフィール画面、
// 管理ダッシュボードのすべてがこのパッケージを経由する。
package classifier

import (
	"strings"

	"github.com/hitoshi/farmchef/internal/model"
)

// 表示ラベル
const (
	LabelFarm        = "Farm"
	LabelRestaurant  = "Restaurant"
	LabelAgritourism = "Agritourism"
	LabelMember      = "Member"
)

type rule struct {
	label    string
	color    string
	keywords []string
}

// rules は優先順位順に評価される。最初に一致したルールが採用される。
var rules = []rule{
	{label: LabelFarm, color: "green", keywords: []string{"farm", "agricol", "produc", "azienda agricola"}},
	{label: LabelRestaurant, color: "orange", keywords: []string{"restaurant", "chef", "cucina", "ristorante"}},
	{label: LabelAgritourism, color: "blue", keywords: []string{"agriturism", "turism"}},
}

var member = model.Classification{Label: LabelMember, DisplayColor: "gray"}

// Classify は自己紹介文を大文字小文字を区別せずに部分一致で判定し、
// ラベルと表示色を返す。どのキーワードにも一致しない場合はMemberを返す。
func Classify(biography string) model.Classification {
	if biography == "" {
		return member
	}
	lower := strings.ToLower(biography)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return model.Classification{Label: r.label, DisplayColor: r.color}
			}
		}
	}
	return member
}

// Labels は全ラベルを優先順位順に返す。
func Labels() []string {
	return []string{LabelFarm, LabelRestaurant, LabelAgritourism, LabelMember}
}
