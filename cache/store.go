package cache

import (
	"context"
)

// PayloadStore 在进程外镜像原始音频负载，未命中返回 (nil, false, nil)
type PayloadStore interface {
	Get(ctx context.Context, trackID string) ([]byte, bool, error)
	Put(ctx context.Context, trackID string, payload []byte) error
	Name() string
}
