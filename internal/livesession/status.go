package livesession

import (
	"strings"
	"time"

	"github.com/lk2023060901/danmu-live-session/pkg/util/merr"
)

// Status 表示直播会话的生命周期状态。
type Status int32

const (
	StatusReady Status = iota
	StatusOpened
	StatusBreaked
	StatusClosed
)

var statusNames = map[Status]string{
	StatusReady:   "READY",
	StatusOpened:  "OPENED",
	StatusBreaked: "BREAKED",
	StatusClosed:  "CLOSED",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Live 表示会话是否仍处于注册表管理范围内（ready/opened/breaked）。
func (s Status) Live() bool {
	return s == StatusReady || s == StatusOpened || s == StatusBreaked
}

// ParseStatus 将存储层中的状态字符串解析为 Status，大小写不敏感。
func ParseStatus(s string) (Status, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for status, name := range statusNames {
		if name == upper {
			return status, nil
		}
	}
	return StatusReady, merr.WrapErrParameterInvalidMsg("unknown live session status %q", s)
}

// Field 为通知订阅方的会话字段名。
type Field string

const (
	FieldStatus    Field = "status"
	FieldStartedAt Field = "started_at"
)

// BreakConfig 描述会话自动在 open/break 间切换的节奏。
// Interval 为一次 open 持续多久后进入 break，Duration 为 break 持续多久后重新 open。
type BreakConfig struct {
	Interval time.Duration
	Duration time.Duration
}

// SessionRecord 为持久化层返回的会话快照。
type SessionRecord struct {
	ID          string
	Title       string
	OrganizerID int64
	Status      Status
	BreakConfig *BreakConfig
	StartedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TransitionLogRecord 为一次已提交的状态迁移，只追加不修改。
type TransitionLogRecord struct {
	SessionID      string
	From           Status
	To             Status
	TransitionedAt time.Time
}
