package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/minio/minio-go/v7"

	"MusicManager/core/audio"
	"MusicManager/logger"
)

const payloadPrefix = "tracks/"

// ObjectKey 曲目原始负载的对象名
//
// 不带扩展名：容器取决于负载是否经过转码，记录在对象的 Content-Type 中。
func ObjectKey(trackID string) string {
	return path.Join(payloadPrefix, trackID)
}

// MinioPayloadStore 以存储桶对象保存原始音频负载
type MinioPayloadStore struct {
	m *MinioClient
}

// NewMinioPayloadStore 创建 MinIO 音频存储
func NewMinioPayloadStore(m *MinioClient) *MinioPayloadStore {
	return &MinioPayloadStore{m: m}
}

// Name 日志中的存储名称
func (s *MinioPayloadStore) Name() string { return "minio" }

// Get 读取曲目负载，对象不存在视为未命中而不是错误
func (s *MinioPayloadStore) Get(ctx context.Context, trackID string) ([]byte, bool, error) {
	obj, err := s.m.client.GetObject(ctx, s.m.bucketName, ObjectKey(trackID), minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("读取对象 %s 失败: %w", ObjectKey(trackID), err)
	}
	return data, true, nil
}

// Put 上传曲目负载
func (s *MinioPayloadStore) Put(ctx context.Context, trackID string, payload []byte) error {
	key := ObjectKey(trackID)
	_, err := s.m.client.PutObject(ctx, s.m.bucketName, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: audio.SniffContentType(payload),
	})
	if err != nil {
		logger.Error("上传音频对象失败",
			logger.String("key", key),
			logger.Int("size", len(payload)),
			logger.ErrorField(err))
		return err
	}
	logger.Debug("音频对象上传成功", logger.String("key", key), logger.Int("size", len(payload)))
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
