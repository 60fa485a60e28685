package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"chatrelay/internal/pkg/storage"
)

// defaultPresignExpiry 未配置时的预签名有效期（秒）
const defaultPresignExpiry = 3600

// S3Storage 兼容 S3 协议的对象存储（AWS S3 / MinIO）
type S3Storage struct {
	client        *s3.Client
	presign       *s3.PresignClient
	bucket        string
	presignExpiry int // 预签名URL过期时间（秒）
}

// NewS3Storage 创建 S3 存储，endpoint 为空时使用 AWS 默认地址
func NewS3Storage(ctx context.Context, endpoint, region, bucket, accessKeyID, accessKeySecret string, presignExpiry int) (*S3Storage, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, accessKeySecret, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	if presignExpiry <= 0 {
		presignExpiry = defaultPresignExpiry
	}
	return &S3Storage{
		client:        client,
		presign:       s3.NewPresignClient(client),
		bucket:        bucket,
		presignExpiry: presignExpiry,
	}, nil
}

// Upload 上传对象，返回预签名的访问URL
// 非 HTTPS 的 MinIO 无法对不可 Seek 的流签名，图片体积小，先读入内存
func (s *S3Storage) Upload(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	body, ok := data.(io.ReadSeeker)
	if !ok {
		buf, err := io.ReadAll(data)
		if err != nil {
			return "", fmt.Errorf("failed to read upload body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return s.GetPresignedDownloadURL(ctx, key, time.Duration(s.presignExpiry)*time.Second)
}

// Download 下载文件
func (s *S3Storage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	return out.Body, nil
}

// GetPresignedDownloadURL 获取预签名下载URL，有效期不超过配置值
func (s *S3Storage) GetPresignedDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	expiry := expiresIn
	if limit := time.Duration(s.presignExpiry) * time.Second; limit > 0 && limit < expiresIn {
		expiry = limit
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned download URL: %w", err)
	}
	return req.URL, nil
}

// Exists 检查文件是否存在
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return true, nil
}

// GetStorageType 获取存储类型
func (s *S3Storage) GetStorageType() string {
	return string(storage.StorageTypeS3)
}
