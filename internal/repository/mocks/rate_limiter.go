package mocks

import (
	"context"
	"time"

	"github.com/amanhasank/together-stream/internal/repository"
	"github.com/stretchr/testify/mock"
)

// RateLimiter 是 repository.RateLimiter 的 testify mock。
type RateLimiter struct {
	mock.Mock
}

var _ repository.RateLimiter = (*RateLimiter)(nil)

func (m *RateLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}
