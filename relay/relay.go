package relay

import (
	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/message"
	log "github.com/treeforest/logger"
)

// Relay 区块与交易的中继服务：决定向哪些节点广播、何时接收入站的链数据，
// 以及如何与其它节点协商缺失的区块。
type Relay struct {
	env      *Environment
	outbound Outbound
	maxSync  uint64
}

type Option func(r *Relay)

// WithMaxSyncHashes 设置单次 Sync 回复的区块哈希上限
func WithMaxSyncHashes(n uint64) Option {
	return func(r *Relay) {
		if n > 0 {
			r.maxSync = n
		}
	}
}

func New(env *Environment, outbound Outbound, opts ...Option) *Relay {
	log.Debug("instantiating the block relay")
	r := &Relay{
		env:      env,
		outbound: outbound,
		maxSync:  message.MaxSyncHashes,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LocalAddress 返回本节点地址
func (r *Relay) LocalAddress() string {
	return r.env.LocalAddress()
}

func (r *Relay) send(to string, msg message.Message) error {
	if err := r.outbound.Send(Request{To: to, Message: msg}); err != nil {
		return errors.Wrapf(err, "send %s to %s", msg.Kind(), to)
	}
	return nil
}

// Update 向同步节点发送 GetSync，请求本节点缺失的区块。引导节点不主动同步。
func (r *Relay) Update(syncNode string) error {
	if r.env.IsBootnode() {
		return nil
	}
	if syncNode == "" {
		log.Info("no sync node is registered, blocks could not be synced")
		return nil
	}

	var locator []message.Hash
	err := r.env.ReadStorage(func(s Storage) error {
		var err error
		locator, err = s.BlockLocatorHashes()
		return err
	})
	if err != nil {
		log.Infof("block locator hashes unavailable, blocks could not be synced: %v", err)
		return nil
	}

	return r.send(syncNode, message.NewGetSync(locator))
}
