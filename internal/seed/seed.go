// Package seed は開発・デモ用のプロフィールと投稿を生成する。
// 生成はサービス層を経由するため、サニタイズとリンク検証が本番と同じく適用される。
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/hitoshi/farmchef/internal/classifier"
	"github.com/hitoshi/farmchef/internal/model"
	"github.com/hitoshi/farmchef/internal/post"
	"github.com/hitoshi/farmchef/internal/profile"
)

// ownerIDPrefix はシードデータのオーナーIDの接頭辞。
const ownerIDPrefix = "seed_user_"

// ProfileCreator はプロフィール作成の操作を定義する。
type ProfileCreator interface {
	CreateProfile(ctx context.Context, in profile.ProfileInput) (*model.Profile, error)
}

// PostCreator は投稿作成の操作を定義する。
type PostCreator interface {
	CreatePost(ctx context.Context, principal model.Principal, in post.PostInput) (*model.Post, error)
}

// Options はシード生成の設定。
type Options struct {
	// Profiles は作成するプロフィール数。0以下の場合は8。
	Profiles int
	// PostsPerProfile はプロフィールごとの投稿数。負の場合は0として扱う。
	PostsPerProfile int
	// RandSeed は乱数の種。同じ値なら同じ内容を生成する。
	RandSeed int64
}

// Result は生成結果の集計。
type Result struct {
	Profiles int
	Posts    int
	ByLabel  map[string]int
}

// template は分類ラベルごとの自己紹介文の雛形。
type template struct {
	label   string
	bios    []string
	openers []string
}

// templates は分類ラベルの優先順位順に並ぶ。プロフィールは順番に割り当てる。
var templates = []template{
	{
		label: classifier.LabelFarm,
		bios: []string{
			"Family farm near %s growing heirloom %s.",
			"Azienda agricola in %s, we produce %s and olive oil.",
		},
		openers: []string{"Harvest update:", "Fresh from the field:", "This week on the farm:"},
	},
	{
		label: classifier.LabelRestaurant,
		bios: []string{
			"Chef-owned restaurant in %s cooking seasonal %s.",
			"Ristorante in %s, our cucina follows the market and loves %s.",
		},
		openers: []string{"Looking for suppliers:", "On tonight's menu:", "Kitchen note:"},
	},
	{
		label: classifier.LabelAgritourism,
		bios: []string{
			"Agriturismo outside %s with rooms, orchards and %s tastings.",
			"Rural turismo in %s: stay with us and pick your own %s.",
		},
		openers: []string{"Weekend stays:", "Guests this month:", "Open house:"},
	},
	{
		label: classifier.LabelMember,
		bios: []string{
			"Food lover based in %s, always hunting for good %s.",
			"Sourcing consultant from %s with a soft spot for %s.",
		},
		openers: []string{"Question for the network:", "Sharing a find:", "Recommendation:"},
	},
}

// Run はプロフィールと投稿を生成して保存する。
// 4件以上のプロフィールを生成する場合、全ての分類ラベルが少なくとも1件含まれる。
func Run(ctx context.Context, profiles ProfileCreator, posts PostCreator, opts Options) (*Result, error) {
	if opts.Profiles <= 0 {
		opts.Profiles = 8
	}
	if opts.PostsPerProfile < 0 {
		opts.PostsPerProfile = 0
	}

	faker := gofakeit.New(opts.RandSeed)
	result := &Result{ByLabel: make(map[string]int)}

	for i := 0; i < opts.Profiles; i++ {
		tmpl := templates[i%len(templates)]
		in := buildProfileInput(faker, tmpl)

		p, err := profiles.CreateProfile(ctx, in)
		if err != nil {
			return result, fmt.Errorf("failed to seed profile %d: %w", i, err)
		}
		result.Profiles++
		result.ByLabel[classifier.Classify(p.Biography).Label]++

		principal := model.Principal{
			ID:    p.OwnerID,
			Email: model.StringValue(p.ContactEmail),
			Name:  p.DisplayName,
		}
		for j := 0; j < opts.PostsPerProfile; j++ {
			if _, err := posts.CreatePost(ctx, principal, buildPostInput(faker, tmpl)); err != nil {
				return result, fmt.Errorf("failed to seed post for profile %s: %w", p.ID, err)
			}
			result.Posts++
		}
	}

	slog.Info("seed data created",
		slog.Int("profiles", result.Profiles),
		slog.Int("posts", result.Posts),
	)
	return result, nil
}

func buildProfileInput(f *gofakeit.Faker, tmpl template) profile.ProfileInput {
	bio := fmt.Sprintf(f.RandomString(tmpl.bios), f.City(), strings.ToLower(f.Vegetable()))
	return profile.ProfileInput{
		OwnerID:      ownerIDPrefix + f.UUID(),
		DisplayName:  f.Company(),
		Biography:    bio,
		WebsiteURL:   f.URL(),
		ContactEmail: f.Email(),
	}
}

func buildPostInput(f *gofakeit.Faker, tmpl template) post.PostInput {
	in := post.PostInput{
		Content: fmt.Sprintf("%s %s", f.RandomString(tmpl.openers), f.Sentence(12)),
	}
	if f.Bool() {
		in.ExternalLink = f.URL()
	}
	return in
}
