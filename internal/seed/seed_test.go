package seed

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/farmchef/internal/classifier"
	"github.com/hitoshi/farmchef/internal/model"
	"github.com/hitoshi/farmchef/internal/post"
	"github.com/hitoshi/farmchef/internal/profile"
)

type recordingProfiles struct {
	inputs []profile.ProfileInput
	err    error
}

func (r *recordingProfiles) CreateProfile(ctx context.Context, in profile.ProfileInput) (*model.Profile, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.inputs = append(r.inputs, in)
	return &model.Profile{
		ID:           "p-" + in.OwnerID,
		OwnerID:      in.OwnerID,
		DisplayName:  in.DisplayName,
		Biography:    in.Biography,
		ContactEmail: model.OptionalString(in.ContactEmail),
	}, nil
}

type recordingPosts struct {
	owners []string
	inputs []post.PostInput
}

func (r *recordingPosts) CreatePost(ctx context.Context, principal model.Principal, in post.PostInput) (*model.Post, error) {
	r.owners = append(r.owners, principal.ID)
	r.inputs = append(r.inputs, in)
	return &model.Post{ID: "post", OwnerID: principal.ID, Content: in.Content}, nil
}

func TestRun_CoversEveryLabel(t *testing.T) {
	profiles := &recordingProfiles{}
	posts := &recordingPosts{}

	result, err := Run(context.Background(), profiles, posts, Options{Profiles: 8, PostsPerProfile: 2, RandSeed: 42})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Profiles != 8 || result.Posts != 16 {
		t.Errorf("result = %+v, want 8 profiles and 16 posts", result)
	}
	for _, label := range classifier.Labels() {
		if result.ByLabel[label] != 2 {
			t.Errorf("ByLabel[%s] = %d, want 2", label, result.ByLabel[label])
		}
	}
}

func TestRun_PostsBelongToSeededOwners(t *testing.T) {
	profiles := &recordingProfiles{}
	posts := &recordingPosts{}

	if _, err := Run(context.Background(), profiles, posts, Options{Profiles: 2, PostsPerProfile: 3, RandSeed: 1}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	owners := map[string]bool{}
	for _, in := range profiles.inputs {
		if !strings.HasPrefix(in.OwnerID, ownerIDPrefix) {
			t.Errorf("OwnerID = %q, want prefix %q", in.OwnerID, ownerIDPrefix)
		}
		if in.DisplayName == "" {
			t.Error("DisplayName should not be empty")
		}
		owners[in.OwnerID] = true
	}
	for _, owner := range posts.owners {
		if !owners[owner] {
			t.Errorf("post owner %q is not a seeded profile", owner)
		}
	}
	for _, in := range posts.inputs {
		if strings.TrimSpace(in.Content) == "" {
			t.Error("post content should not be empty")
		}
	}
}

func TestRun_SameSeedSameData(t *testing.T) {
	first := &recordingProfiles{}
	second := &recordingProfiles{}

	Run(context.Background(), first, &recordingPosts{}, Options{Profiles: 3, RandSeed: 7})
	Run(context.Background(), second, &recordingPosts{}, Options{Profiles: 3, RandSeed: 7})

	for i := range first.inputs {
		if first.inputs[i] != second.inputs[i] {
			t.Errorf("input %d differs: %+v vs %+v", i, first.inputs[i], second.inputs[i])
		}
	}
}

func TestRun_Defaults(t *testing.T) {
	profiles := &recordingProfiles{}
	posts := &recordingPosts{}

	result, err := Run(context.Background(), profiles, posts, Options{Profiles: 0, PostsPerProfile: -1})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Profiles != 8 {
		t.Errorf("Profiles = %d, want 8", result.Profiles)
	}
	if result.Posts != 0 {
		t.Errorf("Posts = %d, want 0", result.Posts)
	}
}

func TestRun_StopsOnProfileError(t *testing.T) {
	profiles := &recordingProfiles{err: errors.New("store unavailable")}

	result, err := Run(context.Background(), profiles, &recordingPosts{}, Options{Profiles: 3})
	if err == nil {
		t.Fatal("expected error")
	}
	if result.Profiles != 0 {
		t.Errorf("Profiles = %d, want 0", result.Profiles)
	}
}
