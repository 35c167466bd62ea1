package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/amanhasank/together-stream/internal/tasks"
)

// RoomSweeper 删除空闲房间，由 service.RoomService 实现
type RoomSweeper interface {
	SweepIdle(ctx context.Context, ttl time.Duration) (int, error)
}

// RoomSweepHandler 处理周期性的空闲房间回收任务
type RoomSweepHandler struct {
	rooms RoomSweeper
}

// NewRoomSweepHandler 创建 Handler 实例
func NewRoomSweepHandler(rooms RoomSweeper) *RoomSweepHandler {
	if rooms == nil {
		panic("RoomSweeper cannot be nil for RoomSweepHandler")
	}
	return &RoomSweepHandler{rooms: rooms}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *RoomSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	retry, _ := asynq.GetRetryCount(ctx)
	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     retry,
	})

	payload, err := tasks.ParseRoomSweepPayload(t.Payload())
	if err != nil {
		logCtx.WithError(err).Error("Failed to parse room sweep payload")
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	removed, err := h.rooms.SweepIdle(ctx, payload.IdleTTL)
	if err != nil {
		logCtx.WithError(err).Error("Room sweep failed")
		return fmt.Errorf("sweep idle rooms: %w", err)
	}
	if removed > 0 {
		logCtx.WithField("removed", removed).Info("Idle rooms reclaimed")
	} else {
		logCtx.Debug("Room sweep complete, nothing to reclaim")
	}
	return nil
}
