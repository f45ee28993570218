package relay

import (
	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/message"
)

// ErrUnknownSender 消息声明的发送方不在节点目录中
var ErrUnknownSender = errors.New("sender is not a known peer")

// Handle 按消息类型分发入站消息。peers 为处理本条消息时的节点目录快照，
// 不为 nil 时消息声明的发送方必须是目录中的节点，否则丢弃该消息。
// 发送方地址由对方自行填写，只能证明其属于当前成员。
func (r *Relay) Handle(from string, msg message.Message, peers map[string]PeerInfo) error {
	if peers != nil {
		if _, ok := peers[from]; !ok || from == r.env.LocalAddress() {
			return errors.Wrapf(ErrUnknownSender, "%s", from)
		}
	}
	switch m := msg.(type) {
	case *message.GetSync:
		return r.ReceivedGetSync(from, m)
	case *message.Sync:
		return r.ReceivedSync(from, m)
	case *message.GetBlock:
		return r.ReceivedGetBlock(from, m)
	case *message.Block:
		return r.ReceivedBlock(from, m, peers)
	case *message.SyncBlock:
		return r.ReceivedBlock(from, message.NewBlock(m.Data), nil)
	case *message.Transaction:
		return r.ReceivedTransaction(from, m, peers)
	case *message.GetMemoryPool:
		return r.ReceivedGetMemoryPool(from)
	case *message.MemoryPool:
		return r.ReceivedMemoryPool(m)
	case nil:
		return message.ErrNilMessage
	}
	return errors.Wrapf(message.ErrUnknownKind, "%T", msg)
}
