package storage

import (
	"context"
	"fmt"
	"time"

	"MusicManager/config"
	"MusicManager/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 封装了 MinIO 客户端
type MinioClient struct {
	client     *minio.Client
	bucketName string
	region     string
}

// NewMinioClient 创建一个新的 MinIO 客户端
func NewMinioClient(cfg *config.Config) (*MinioClient, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	return &MinioClient{
		client:     client,
		bucketName: cfg.MinioBucket,
		region:     cfg.MinioRegion,
	}, nil
}

// InitMinio 创建客户端并确保存储桶存在
func InitMinio(ctx context.Context, cfg *config.Config) (*MinioClient, error) {
	logger.Info("正在连接 MinIO 服务器",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket),
		logger.String("region", cfg.MinioRegion))

	m, err := NewMinioClient(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	logger.Info("MinIO 客户端初始化成功", logger.String("bucket", m.bucketName))
	return m, nil
}

// EnsureBucket 检查存储桶是否存在，不存在则创建
func (m *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if exists {
		return nil
	}

	if err := m.client.MakeBucket(ctx, m.bucketName, minio.MakeBucketOptions{Region: m.region}); err != nil {
		return fmt.Errorf("创建存储桶失败: %w", err)
	}
	logger.Info("成功创建存储桶", logger.String("bucket", m.bucketName))
	return nil
}

// Bucket 获取存储桶名称
func (m *MinioClient) Bucket() string {
	return m.bucketName
}
