package node

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/chain"
	"github.com/treeforest/easyrelay/relay"
	log "github.com/treeforest/logger"
)

// 区块头等非交易数据预留的空间
const blockOverhead = 1024

// Miner 将交易池中的交易打包成新区块，写入本地链后广播给其它节点
type Miner struct {
	env           *relay.Environment
	relay         *relay.Relay
	consensus     *chain.Consensus
	rewardAddress string // 获取出块奖励的地址
	reward        uint64
	peers         func() map[string]relay.PeerInfo
}

func NewMiner(env *relay.Environment, r *relay.Relay, consensus *chain.Consensus, rewardAddress string, reward uint64,
	peers func() map[string]relay.PeerInfo) *Miner {
	return &Miner{
		env:           env,
		relay:         r,
		consensus:     consensus,
		rewardAddress: rewardAddress,
		reward:        reward,
		peers:         peers,
	}
}

// Mine 在最新区块之后产生一个区块
func (m *Miner) Mine() (*chain.Block, error) {
	var (
		block *chain.Block
		data  []byte
	)
	err := m.env.WriteStorage(func(s relay.Storage, p relay.MemoryPool) error {
		tipHash, err := s.HashAt(s.CurrentHeight())
		if err != nil {
			return errors.Wrap(err, "latest block hash")
		}
		tipData, err := s.GetBlock(tipHash)
		if err != nil {
			return errors.Wrap(err, "latest block")
		}
		tip, err := chain.UnmarshalBlock(tipData)
		if err != nil {
			return err
		}

		txs, err := m.collect(s, p, tip.Height()+1)
		if err != nil {
			return err
		}
		block = chain.NewBlock(tip, txs)
		if data, err = block.Marshal(); err != nil {
			return errors.Wrap(err, "marshal block")
		}
		return m.consensus.ReceiveBlock(s, p, block, data)
	})
	if err != nil {
		return nil, err
	}

	log.Infof("mining block success, height: %d", block.Height())
	if err = m.relay.PropagateBlock(data, m.relay.LocalAddress(), m.peers()); err != nil {
		return block, err
	}
	return block, nil
}

// collect 选出可以打包的交易，第一笔为 coinbase 交易。
// 交易池中已失效的交易会被移除。
func (m *Miner) collect(s relay.Storage, p relay.MemoryPool, height uint64) ([]*chain.Transaction, error) {
	params := m.consensus.Params()
	coinbase := chain.NewCoinbaseTransaction(m.reward, m.rewardAddress, []byte(fmt.Sprintf("height %d", height)))
	txs := []*chain.Transaction{coinbase}
	size := blockOverhead

	for _, entry := range p.Entries() {
		if params.MaxTransactionsPerBlock > 0 && len(txs) >= params.MaxTransactionsPerBlock {
			break
		}
		if params.MaxBlockSize > 0 && size+entry.Size > params.MaxBlockSize {
			break
		}
		tx, ok := entry.Transaction.(*chain.Transaction)
		if !ok || tx.IsCoinbase() {
			p.Remove(entry.Transaction.ID())
			continue
		}
		valid, err := m.consensus.VerifyTransaction(tx, s)
		if err != nil {
			return nil, err
		}
		if !valid {
			log.Debugf("dropping stale transaction %s from memory pool", tx.ID())
			p.Remove(tx.ID())
			continue
		}
		txs = append(txs, tx)
		size += entry.Size
	}
	return txs, nil
}
