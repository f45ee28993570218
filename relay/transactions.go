package relay

import (
	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/message"
	log "github.com/treeforest/logger"
)

// ReceivedTransaction 验证交易，放入交易池并广播给其它节点。
// 无法解析、不合法或 coinbase 交易都直接丢弃。
func (r *Relay) ReceivedTransaction(source string, msg *message.Transaction, peers map[string]PeerInfo) error {
	consensus := r.env.Consensus()

	tx, err := consensus.DecodeTransaction(msg.Bytes)
	if err != nil {
		log.Debugf("dropping unparseable transaction from %s: %v", source, err)
		return nil
	}

	var valid bool
	err = r.env.ReadStorage(func(s Storage) error {
		var err error
		valid, err = consensus.VerifyTransaction(tx, s)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "verify transaction %s", tx.ID())
	}
	if !valid {
		log.Warnf("received a transaction that was invalid: %s", tx.ID())
		return nil
	}
	if tx.IsCoinbase() {
		log.Warnf("received a transaction that was a coinbase transaction: %s", tx.ID())
		return nil
	}

	entry := PoolEntry{Transaction: tx, Size: len(msg.Bytes)}
	var (
		txid     message.Hash
		inserted bool
	)
	err = r.env.WithPool(func(s Storage, p MemoryPool) error {
		var err error
		txid, inserted, err = p.Insert(s, entry)
		return err
	})
	if err != nil {
		log.Debugf("transaction %s not added to memory pool: %v", tx.ID(), err)
		return nil
	}
	if !inserted {
		return nil
	}

	log.Infof("transaction %s added to memory pool", txid)
	return r.PropagateTransaction(msg.Bytes, source, peers)
}

// ReceivedGetMemoryPool 将交易池中的交易一次性发给对方，交易池为空时不回复
func (r *Relay) ReceivedGetMemoryPool(remote string) error {
	var entries []PoolEntry
	_ = r.env.WithPool(func(_ Storage, p MemoryPool) error {
		entries = p.Entries()
		return nil
	})

	txs := make([][]byte, 0, len(entries))
	for _, entry := range entries {
		b, err := entry.Transaction.Marshal()
		if err != nil {
			log.Warnf("marshal pooled transaction %s failed: %v", entry.Transaction.ID(), err)
			continue
		}
		txs = append(txs, b)
	}
	if len(txs) == 0 {
		return nil
	}

	return r.send(remote, message.NewMemoryPool(txs))
}

// ReceivedMemoryPool 将对方交易池中的交易直接放入本地交易池，不再逐个验证。
// 任意一笔交易解析失败都会中止处理剩余的交易。
func (r *Relay) ReceivedMemoryPool(msg *message.MemoryPool) error {
	consensus := r.env.Consensus()

	for i, b := range msg.Transactions {
		tx, err := consensus.DecodeTransaction(b)
		if err != nil {
			return errors.Wrapf(err, "decode memory pool transaction %d", i)
		}

		entry := PoolEntry{Transaction: tx, Size: len(b)}
		_ = r.env.WithPool(func(s Storage, p MemoryPool) error {
			txid, inserted, err := p.Insert(s, entry)
			if err != nil {
				log.Debugf("memory pool transaction %s skipped: %v", tx.ID(), err)
				return nil
			}
			if inserted {
				log.Debugf("transaction added to memory pool with txid: %s", txid)
			}
			return nil
		})
	}

	return nil
}
