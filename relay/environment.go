package relay

import (
	"sync"
)

// Environment 节点共享上下文。存储与交易池只能通过加锁的访问器使用，
// 加锁顺序固定为先存储后交易池。
type Environment struct {
	storageLock sync.RWMutex
	storage     Storage

	poolLock sync.Mutex
	pool     MemoryPool

	consensus    Consensus
	localAddress string
	bootnode     bool
}

func NewEnvironment(storage Storage, pool MemoryPool, consensus Consensus, localAddress string, bootnode bool) *Environment {
	return &Environment{
		storage:      storage,
		pool:         pool,
		consensus:    consensus,
		localAddress: localAddress,
		bootnode:     bootnode,
	}
}

func (e *Environment) Consensus() Consensus {
	return e.consensus
}

func (e *Environment) LocalAddress() string {
	return e.localAddress
}

func (e *Environment) IsBootnode() bool {
	return e.bootnode
}

// ReadStorage 共享读
func (e *Environment) ReadStorage(fn func(s Storage) error) error {
	e.storageLock.RLock()
	defer e.storageLock.RUnlock()
	return fn(e.storage)
}

// WriteStorage 独占写存储，同时持有交易池
func (e *Environment) WriteStorage(fn func(s Storage, p MemoryPool) error) error {
	e.storageLock.Lock()
	defer e.storageLock.Unlock()
	e.poolLock.Lock()
	defer e.poolLock.Unlock()
	return fn(e.storage, e.pool)
}

// WithPool 独占交易池，同时共享读存储
func (e *Environment) WithPool(fn func(s Storage, p MemoryPool) error) error {
	e.storageLock.RLock()
	defer e.storageLock.RUnlock()
	e.poolLock.Lock()
	defer e.poolLock.Unlock()
	return fn(e.storage, e.pool)
}
