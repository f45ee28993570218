package outbound

import (
	"hash/fnv"
	"sync"

	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/message"
	"github.com/treeforest/easyrelay/relay"
	log "github.com/treeforest/logger"
)

const (
	// 至少容纳一次完整 Sync 回复触发的 GetBlock 请求
	defQueueSize = 2 * message.MaxSyncHashes
	defWorkers   = 4
)

// ErrClosed 发送器已关闭
var ErrClosed = errors.New("outbound sender closed")

// Transport 将编码后的消息投递给指定地址的节点
type Transport interface {
	SendTo(addr string, data []byte) error
}

// Sender 异步发送器。Send 只负责入队，由后台协程编码并投递，
// 投递失败只记录日志。同一目标地址的请求总是由同一个协程按入队顺序投递。
type Sender struct {
	transport Transport
	from      string
	queues    []chan relay.Request

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewSender 创建并启动发送器。from 为写入消息中的本节点地址，
// queueSize 为每个投递协程的队列长度。
func NewSender(transport Transport, from string, queueSize, workers int) *Sender {
	if queueSize <= 0 {
		queueSize = defQueueSize
	}
	if workers <= 0 {
		workers = defWorkers
	}
	s := &Sender{
		transport: transport,
		from:      from,
		queues:    make([]chan relay.Request, workers),
	}
	s.wg.Add(workers)
	for i := range s.queues {
		s.queues[i] = make(chan relay.Request, queueSize)
		go s.work(s.queues[i])
	}
	return s
}

// queueOf 按目标地址选择投递队列
func (s *Sender) queueOf(to string) chan relay.Request {
	h := fnv.New32a()
	_, _ = h.Write([]byte(to))
	return s.queues[h.Sum32()%uint32(len(s.queues))]
}

// Send 请求入队，队列已满时丢弃该请求
func (s *Sender) Send(req relay.Request) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.queueOf(req.To) <- req:
	default:
		log.Warnf("outbound queue full, dropping %s to %s", req.Message.Kind(), req.To)
	}
	return nil
}

// Close 停止接收新的请求，等待已入队的请求处理完毕
func (s *Sender) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, queue := range s.queues {
		close(queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Sender) work(queue <-chan relay.Request) {
	defer s.wg.Done()
	for req := range queue {
		s.deliver(req)
	}
}

func (s *Sender) deliver(req relay.Request) {
	data, err := message.Encode(s.from, req.Message)
	if err != nil {
		log.Errorf("encode %s for %s failed: %v", req.Message.Kind(), req.To, err)
		return
	}
	if err = s.transport.SendTo(req.To, data); err != nil {
		log.Debugf("send %s to %s failed: %v", req.Message.Kind(), req.To, err)
	}
}
