package storagefactory

import (
	"context"
	"fmt"

	"chatrelay/internal/config"
	"chatrelay/internal/pkg/storage"
	"chatrelay/internal/pkg/storage/local"
	"chatrelay/internal/pkg/storage/oss"
	"chatrelay/internal/pkg/storage/s3"
)

// NewStorage 根据配置创建存储实例
func NewStorage(ctx context.Context, cfg *config.StorageConfig) (storage.Storage, error) {
	switch cfg.Type {
	case "local":
		if cfg.Local == nil {
			return nil, fmt.Errorf("local storage config is required")
		}
		s, err := local.NewLocalStorage(cfg.Local.BasePath, cfg.Local.BaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "oss":
		if cfg.OSS == nil {
			return nil, fmt.Errorf("OSS storage config is required")
		}
		s, err := oss.NewOSSStorage(
			cfg.OSS.Endpoint,
			cfg.OSS.Bucket,
			cfg.OSS.AccessKeyID,
			cfg.OSS.AccessKeySecret,
			cfg.OSS.PresignExpiry,
		)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "s3", "minio":
		if cfg.S3 == nil {
			return nil, fmt.Errorf("S3 storage config is required")
		}
		s, err := s3.NewS3Storage(ctx,
			cfg.S3.Endpoint,
			cfg.S3.Region,
			cfg.S3.Bucket,
			cfg.S3.AccessKeyID,
			cfg.S3.AccessKeySecret,
			cfg.S3.PresignExpiry,
		)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
