package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// 对象键前缀
const (
	UploadPrefix    = "uploads"   // 用户上传的图片：uploads/<key>/<毫秒>.jpg
	GeneratedPrefix = "generated" // 画图结果与提示词：generated/<key>/<毫秒>.{png,json}
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("storage: object not found")

// Storage 图片等二进制对象的存储接口
type Storage interface {
	// Upload 上传对象，返回可访问的 URL
	Upload(ctx context.Context, key string, data io.Reader, contentType string) (string, error)

	// Download 下载对象，不存在时返回 ErrNotFound
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetPresignedDownloadURL 获取预签名下载URL
	GetPresignedDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error)

	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)

	// GetStorageType 获取存储类型
	GetStorageType() string
}

// StorageType 存储类型
type StorageType string

const (
	StorageTypeLocal StorageType = "local" // 本地文件系统
	StorageTypeOSS   StorageType = "oss"   // 阿里云OSS
	StorageTypeS3    StorageType = "s3"    // AWS S3 / MinIO
)
