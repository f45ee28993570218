package relay

import (
	"github.com/treeforest/easyrelay/message"
	log "github.com/treeforest/logger"
)

// PropagateBlock 将区块广播给除出块节点与本节点之外的所有节点
func (r *Relay) PropagateBlock(data []byte, miner string, peers map[string]PeerInfo) error {
	log.Debug("propagating a block to peers")
	return r.fanOut(miner, peers, func() message.Message {
		return message.NewBlock(data)
	})
}

// PropagateTransaction 将交易广播给除发送方与本节点之外的所有节点
func (r *Relay) PropagateTransaction(data []byte, sender string, peers map[string]PeerInfo) error {
	log.Debug("propagating a transaction to peers")
	return r.fanOut(sender, peers, func() message.Message {
		return message.NewTransaction(data)
	})
}

func (r *Relay) fanOut(origin string, peers map[string]PeerInfo, newMsg func() message.Message) error {
	local := r.env.LocalAddress()
	for addr := range peers {
		if addr == origin || addr == local {
			continue
		}
		if err := r.send(addr, newMsg()); err != nil {
			return err
		}
	}
	return nil
}
