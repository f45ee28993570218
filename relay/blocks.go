package relay

import (
	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/message"
	log "github.com/treeforest/logger"
)

var errKnownBlock = errors.New("block already known")

// ReceivedBlock 处理其它节点发来的区块。peers 为 nil 时表示区块来自同步回复，
// 此时只入链，不再广播。
func (r *Relay) ReceivedBlock(remote string, msg *message.Block, peers map[string]PeerInfo) error {
	consensus := r.env.Consensus()

	block, err := consensus.DecodeBlock(msg.Data)
	if err != nil {
		return errors.Wrapf(err, "decode block from %s", remote)
	}
	hash := block.Hash()
	log.Infof("received block at height %d (time %d) with hash %s", block.Height(), block.Time(), hash)

	var known bool
	_ = r.env.ReadStorage(func(s Storage) error {
		known = s.BlockExists(hash)
		return nil
	})
	if known {
		return nil
	}

	err = r.env.WriteStorage(func(s Storage, p MemoryPool) error {
		// 其它协程可能已经在这期间写入了该区块
		if s.BlockExists(hash) {
			return errKnownBlock
		}
		return consensus.ReceiveBlock(s, p, block, msg.Data)
	})
	if err == errKnownBlock {
		return nil
	}
	if err != nil {
		log.Warnf("block %s from %s rejected: %v", hash, remote, err)
		return nil
	}

	if peers == nil {
		return nil
	}
	return r.PropagateBlock(msg.Data, remote, peers)
}

// ReceivedGetBlock 回复对方请求的区块，本节点没有该区块时不回复
func (r *Relay) ReceivedGetBlock(remote string, msg *message.GetBlock) error {
	var data []byte
	err := r.env.ReadStorage(func(s Storage) error {
		var err error
		data, err = s.GetBlock(msg.BlockHash)
		return err
	})
	if err != nil {
		log.Debugf("block %s requested by %s not available: %v", msg.BlockHash, remote, err)
		return nil
	}
	return r.send(remote, message.NewSyncBlock(data))
}
