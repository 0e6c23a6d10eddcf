package notify

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lk2023060901/danmu-live-session/internal/json"
)

const (
	// defaultSendQueueSize 为每个连接的发送队列容量。
	defaultSendQueueSize = 64
	defaultWriteTimeout  = 5 * time.Second
)

type outboundMessage struct {
	op  uint32
	msg any
}

// WSSubscriber 将推送以 JSON 文本帧写入 websocket 连接。
//
// Send 只把消息放入发送队列，由独立的发送协程按顺序编码写出，
// 避免多个投递协程并发写同一连接。写失败时取消上下文，连接随之失效。
type WSSubscriber struct {
	id   uint64
	conn *websocket.Conn

	ctx       context.Context
	cancel    context.CancelFunc
	sendQueue chan outboundMessage
	closeOnce sync.Once
}

var _ Subscriber = (*WSSubscriber)(nil)

// NewWSSubscriber 包装一个已完成升级的连接并启动发送协程。parent 为 nil 时使用 context.Background()。
func NewWSSubscriber(parent context.Context, id uint64, conn *websocket.Conn) *WSSubscriber {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	s := &WSSubscriber{
		id:        id,
		conn:      conn,
		ctx:       ctx,
		cancel:    cancel,
		sendQueue: make(chan outboundMessage, defaultSendQueueSize),
	}
	go s.sendLoop()
	return s
}

func (s *WSSubscriber) ID() uint64 {
	return s.id
}

// Context 在连接关闭或写失败后结束。
func (s *WSSubscriber) Context() context.Context {
	return s.ctx
}

func (s *WSSubscriber) Send(op uint32, msg any) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case s.sendQueue <- outboundMessage{op: op, msg: msg}:
		return nil
	}
}

// Close 取消上下文并关闭底层连接，可重复调用。
func (s *WSSubscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.conn.Close()
	})
	return err
}

// ReadLoop 丢弃客户端发来的数据，直到连接断开，用于感知对端关闭。
func (s *WSSubscriber) ReadLoop() error {
	defer s.cancel()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return err
		}
	}
}

func (s *WSSubscriber) sendLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.sendQueue:
			data, err := json.Marshal(Frame{Op: msg.op, Payload: msg.msg})
			if err != nil {
				s.cancel()
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.cancel()
				return
			}
		}
	}
}
