package mempool

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/message"
	"github.com/treeforest/easyrelay/relay"
)

const (
	defPoolCap = 10000
)

var (
	ErrConfirmed = errors.New("transaction already confirmed")
	ErrConflict  = errors.New("transaction input already spent in pool")
	ErrFull      = errors.New("memory pool is full")
)

// Spender 交易花费的输出。实现了该接口的交易会参与交易池内的双花检查。
type Spender interface {
	Spends() []string
}

// Pool 交易池
type Pool struct {
	locker  sync.RWMutex
	entries map[message.Hash]relay.PoolEntry
	order   []message.Hash          // 放入顺序
	spent   map[string]message.Hash // outpoint => txid
	cap     int                     // 最大容量
	bytes   int
}

var _ relay.MemoryPool = (*Pool)(nil)

func New(capacity int) *Pool {
	if capacity <= 0 {
		capacity = defPoolCap
	}
	return &Pool{
		entries: map[message.Hash]relay.PoolEntry{},
		spent:   map[string]message.Hash{},
		cap:     capacity,
	}
}

// Insert 将交易放入交易池。交易已在池中时返回 inserted=false。
func (pool *Pool) Insert(storage relay.Storage, entry relay.PoolEntry) (message.Hash, bool, error) {
	id := entry.Transaction.ID()

	pool.locker.Lock()
	defer pool.locker.Unlock()

	if _, ok := pool.entries[id]; ok {
		return id, false, nil
	}
	if storage != nil && storage.TransactionExists(id) {
		return id, false, errors.Wrapf(ErrConfirmed, "txid %s", id)
	}
	if len(pool.entries) >= pool.cap {
		return id, false, ErrFull
	}

	var spends []string
	if sp, ok := entry.Transaction.(Spender); ok {
		spends = sp.Spends()
		for _, outpoint := range spends {
			if other, used := pool.spent[outpoint]; used {
				return id, false, errors.Wrapf(ErrConflict, "%s spent by %s", outpoint, other)
			}
		}
	}

	pool.entries[id] = entry
	pool.order = append(pool.order, id)
	for _, outpoint := range spends {
		pool.spent[outpoint] = id
	}
	pool.bytes += entry.Size
	return id, true, nil
}

// Entries 按放入顺序返回交易池中所有交易的快照
func (pool *Pool) Entries() []relay.PoolEntry {
	pool.locker.RLock()
	defer pool.locker.RUnlock()

	entries := make([]relay.PoolEntry, 0, len(pool.entries))
	for _, id := range pool.order {
		entries = append(entries, pool.entries[id])
	}
	return entries
}

func (pool *Pool) Get(id message.Hash) (relay.PoolEntry, bool) {
	pool.locker.RLock()
	defer pool.locker.RUnlock()
	entry, ok := pool.entries[id]
	return entry, ok
}

// Remove 移除交易，通常在交易被打包进区块之后调用
func (pool *Pool) Remove(ids ...message.Hash) {
	pool.locker.Lock()
	defer pool.locker.Unlock()

	removed := 0
	for _, id := range ids {
		entry, ok := pool.entries[id]
		if !ok {
			continue
		}
		if sp, ok := entry.Transaction.(Spender); ok {
			for _, outpoint := range sp.Spends() {
				if pool.spent[outpoint] == id {
					delete(pool.spent, outpoint)
				}
			}
		}
		pool.bytes -= entry.Size
		delete(pool.entries, id)
		removed++
	}
	if removed == 0 {
		return
	}

	order := pool.order[:0]
	for _, id := range pool.order {
		if _, ok := pool.entries[id]; ok {
			order = append(order, id)
		}
	}
	pool.order = order
}

func (pool *Pool) Size() int {
	pool.locker.RLock()
	defer pool.locker.RUnlock()
	return len(pool.entries)
}

// Bytes 交易池中交易的序列化总大小
func (pool *Pool) Bytes() int {
	pool.locker.RLock()
	defer pool.locker.RUnlock()
	return pool.bytes
}
