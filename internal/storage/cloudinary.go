package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// uploadAPI はCloudinaryのアップロードAPIのうち使用する部分。
type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, uploadParams uploader.UploadParams) (*uploader.UploadResult, error)
}

// CloudinaryUploader はCloudinaryにアセットをアップロードする。
type CloudinaryUploader struct {
	api    uploadAPI
	folder string
}

// NewCloudinaryUploader はCLOUDINARY_URL形式の接続文字列からCloudinaryUploaderを生成する。
// folderが空でない場合、すべてのアセットはその配下に保存される。
func NewCloudinaryUploader(cloudinaryURL, folder string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("cloudinary configuration error: %w", err)
	}
	return &CloudinaryUploader{api: &cld.Upload, folder: folder}, nil
}

// Upload はアセットをアップロードし、HTTPSの公開URLを返す。
// Cloudinaryが拡張子を自動付与するため、PublicIDからは拡張子を除く。
func (u *CloudinaryUploader) Upload(ctx context.Context, r io.Reader, objectPath string, opts UploadOptions) (*UploadResult, error) {
	publicID := strings.TrimSuffix(objectPath, path.Ext(objectPath))

	params := uploader.UploadParams{
		PublicID:       publicID,
		Folder:         u.folder,
		Overwrite:      api.Bool(opts.Upsert),
		UniqueFilename: api.Bool(false),
		Transformation: "c_limit,w_1600,h_1600,q_auto",
	}

	result, err := u.api.Upload(ctx, r, params)
	if err != nil {
		return nil, fmt.Errorf("failed to upload to cloudinary: %w", err)
	}
	if result.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary rejected upload: %s", result.Error.Message)
	}
	if result.SecureURL == "" {
		return nil, fmt.Errorf("cloudinary returned no URL for %s", publicID)
	}

	return &UploadResult{PublicURL: result.SecureURL}, nil
}

// compile-time interface check
var _ Uploader = (*CloudinaryUploader)(nil)
