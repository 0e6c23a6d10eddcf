package notify

import (
	"io"
	"sync"

	"github.com/lk2023060901/danmu-live-session/internal/json"
	"github.com/lk2023060901/danmu-live-session/pkg/util/merr"
)

// Frame 为 WriterSubscriber 写出的一行 JSON。
type Frame struct {
	Op      uint32 `json:"op"`
	Payload any    `json:"payload"`
}

// WriterSubscriber 将推送编码为逐行 JSON 写入 io.Writer，适用于日志旁路或命令行演示。
type WriterSubscriber struct {
	id uint64

	mu sync.Mutex
	w  io.Writer
}

var _ Subscriber = (*WriterSubscriber)(nil)

func NewWriterSubscriber(id uint64, w io.Writer) *WriterSubscriber {
	return &WriterSubscriber{id: id, w: w}
}

func (s *WriterSubscriber) ID() uint64 {
	return s.id
}

func (s *WriterSubscriber) Send(op uint32, msg any) error {
	data, err := json.Marshal(Frame{Op: op, Payload: msg})
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return merr.WrapErrIoFailed("notify-writer", err)
	}
	return nil
}
