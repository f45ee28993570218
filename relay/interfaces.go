package relay

import (
	"github.com/treeforest/easyrelay/message"
)

// Block 由共识引擎解码得到的区块视图
type Block interface {
	Hash() message.Hash
	PrevHash() message.Hash
	Height() uint64
	Time() int64
	TransactionIDs() []message.Hash
}

// Transaction 由共识引擎解码得到的交易视图
type Transaction interface {
	ID() message.Hash
	// IsCoinbase 交易是否铸造新的价值，此类交易不允许通过节点间广播传入
	IsCoinbase() bool
	Marshal() ([]byte, error)
}

// PoolEntry 交易池条目
type PoolEntry struct {
	Transaction Transaction
	Size        int
}

// Storage 区块链存储
type Storage interface {
	BlockExists(hash message.Hash) bool
	// GetBlock 返回序列化后的区块
	GetBlock(hash message.Hash) ([]byte, error)
	BlockLocatorHashes() ([]message.Hash, error)
	// LatestSharedHash 返回 locator 中本节点也拥有的最新区块哈希
	LatestSharedHash(locator []message.Hash) (message.Hash, error)
	HeightOf(hash message.Hash) (uint64, error)
	CurrentHeight() uint64
	HashAt(height uint64) (message.Hash, error)

	PutBlock(block Block, data []byte) error
	TransactionExists(id message.Hash) bool
}

// Consensus 共识引擎，负责解码与合法性检查
type Consensus interface {
	DecodeBlock(data []byte) (Block, error)
	DecodeTransaction(data []byte) (Transaction, error)
	VerifyTransaction(tx Transaction, storage Storage) (bool, error)
	// ReceiveBlock 验证区块，成功后写入存储并从交易池中移除已确认的交易
	ReceiveBlock(storage Storage, pool MemoryPool, block Block, data []byte) error
}

// MemoryPool 交易池
type MemoryPool interface {
	// Insert 放入交易池，inserted 为 false 表示交易已经存在
	Insert(storage Storage, entry PoolEntry) (id message.Hash, inserted bool, err error)
	Entries() []PoolEntry
	Remove(ids ...message.Hash)
}

// Request 发往单个节点的消息
type Request struct {
	To      string
	Message message.Message
}

// Outbound 发送消息，不等待对方确认
type Outbound interface {
	Send(req Request) error
}

// PeerInfo 节点目录中的节点信息
type PeerInfo struct {
	Name    string
	Address string
	Meta    []byte
}
