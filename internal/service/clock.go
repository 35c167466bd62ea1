package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Clock 返回当前时间，测试中可以替换。
type Clock func() time.Time

func unixMillis(t time.Time) int64 { return t.UnixNano() / int64(time.Millisecond) }

// systemEntryID 生成系统通知的确定性 ID，例如 leave-1700000000000-<connId>。
func systemEntryID(kind string, at time.Time, subject string) string {
	return fmt.Sprintf("%s-%d-%s", kind, unixMillis(at), subject)
}

// randomSuffix 9 位随机串，用于聊天消息 ID。
func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}
