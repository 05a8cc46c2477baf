package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

func TestPostImagePath(t *testing.T) {
	now := time.UnixMilli(1767225600123)

	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"通常のファイル名", "raccolto.jpg", "posts/1767225600123_raccolto.jpg"},
		{"空白と記号を置換", "my photo (1).png", "posts/1767225600123_my_photo_1_.png"},
		{"ディレクトリ部分を除去", "../../etc/passwd", "posts/1767225600123_passwd"},
		{"Windowsパス", `C:\Users\chef\piatto.jpeg`, "posts/1767225600123_piatto.jpeg"},
		{"空のファイル名", "", "posts/1767225600123_image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PostImagePath(tt.filename, now); got != tt.want {
				t.Errorf("PostImagePath(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}

func TestDisabledUploader(t *testing.T) {
	_, err := DisabledUploader{}.Upload(context.Background(), strings.NewReader("x"), "posts/1_x.jpg", UploadOptions{})
	if !errors.Is(err, ErrUploadDisabled) {
		t.Errorf("err = %v, want ErrUploadDisabled", err)
	}
}

type mockUploadAPI struct {
	gotParams uploader.UploadParams
	result    *uploader.UploadResult
	err       error
}

func (m *mockUploadAPI) Upload(_ context.Context, _ interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
	m.gotParams = params
	return m.result, m.err
}

func TestCloudinaryUploader_Upload(t *testing.T) {
	mock := &mockUploadAPI{result: &uploader.UploadResult{SecureURL: "https://res.cloudinary.com/demo/image/upload/farmchef/posts/1_a.jpg"}}
	u := &CloudinaryUploader{api: mock, folder: "farmchef"}

	res, err := u.Upload(context.Background(), strings.NewReader("img"), "posts/1_a.jpg", UploadOptions{Upsert: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.PublicURL != mock.result.SecureURL {
		t.Errorf("PublicURL = %q, want %q", res.PublicURL, mock.result.SecureURL)
	}
	if mock.gotParams.PublicID != "posts/1_a" {
		t.Errorf("PublicID = %q, want %q", mock.gotParams.PublicID, "posts/1_a")
	}
	if mock.gotParams.Folder != "farmchef" {
		t.Errorf("Folder = %q, want %q", mock.gotParams.Folder, "farmchef")
	}
	if mock.gotParams.Overwrite == nil || !*mock.gotParams.Overwrite {
		t.Error("Overwrite should be true for upsert")
	}
}

func TestCloudinaryUploader_Errors(t *testing.T) {
	tests := []struct {
		name   string
		result *uploader.UploadResult
		err    error
	}{
		{"transport error", nil, errors.New("timeout")},
		{"api error", &uploader.UploadResult{Error: api.ErrorResp{Message: "Invalid image file"}}, nil},
		{"empty url", &uploader.UploadResult{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &CloudinaryUploader{api: &mockUploadAPI{result: tt.result, err: tt.err}}
			if _, err := u.Upload(context.Background(), strings.NewReader("x"), "posts/1_x.jpg", UploadOptions{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewCloudinaryUploader_InvalidURL(t *testing.T) {
	if _, err := NewCloudinaryUploader("not-a-cloudinary-url", ""); err == nil {
		t.Error("expected configuration error")
	}
}
