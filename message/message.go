package message

import "fmt"

// MaxSyncHashes 一次 Sync 回复最多携带的区块哈希数量
const MaxSyncHashes = 4000

// Kind 消息类型
type Kind uint8

const (
	KindGetSync Kind = iota + 1
	KindSync
	KindGetBlock
	KindBlock
	KindSyncBlock
	KindTransaction
	KindGetMemoryPool
	KindMemoryPool
)

var kindNames = map[Kind]string{
	KindGetSync:       "GetSync",
	KindSync:          "Sync",
	KindGetBlock:      "GetBlock",
	KindBlock:         "Block",
	KindSyncBlock:     "SyncBlock",
	KindTransaction:   "Transaction",
	KindGetMemoryPool: "GetMemoryPool",
	KindMemoryPool:    "MemoryPool",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Message 节点间传递的消息。实现仅限于本包中定义的类型。
type Message interface {
	Kind() Kind
	isMessage()
}

// GetSync 请求对方返回本节点缺失的区块哈希
type GetSync struct {
	BlockLocatorHashes []Hash
}

// Sync GetSync 的回复，为空表示双方链状态一致
type Sync struct {
	BlockHashes []Hash
}

// GetBlock 按哈希请求单个区块
type GetBlock struct {
	BlockHash Hash
}

// Block 新区块广播
type Block struct {
	Data []byte
}

// SyncBlock GetBlock 的回复
type SyncBlock struct {
	Data []byte
}

// Transaction 新交易广播
type Transaction struct {
	Bytes []byte
}

// GetMemoryPool 请求对方交易池中的交易
type GetMemoryPool struct{}

// MemoryPool GetMemoryPool 的回复
type MemoryPool struct {
	Transactions [][]byte
}

func NewGetSync(hashes []Hash) *GetSync { return &GetSync{BlockLocatorHashes: hashes} }

func NewSync(hashes []Hash) *Sync { return &Sync{BlockHashes: hashes} }

func NewGetBlock(hash Hash) *GetBlock { return &GetBlock{BlockHash: hash} }

func NewBlock(data []byte) *Block { return &Block{Data: data} }

func NewSyncBlock(data []byte) *SyncBlock { return &SyncBlock{Data: data} }

func NewTransaction(b []byte) *Transaction { return &Transaction{Bytes: b} }

func NewGetMemoryPool() *GetMemoryPool { return &GetMemoryPool{} }

func NewMemoryPool(txs [][]byte) *MemoryPool { return &MemoryPool{Transactions: txs} }

func (*GetSync) Kind() Kind       { return KindGetSync }
func (*Sync) Kind() Kind          { return KindSync }
func (*GetBlock) Kind() Kind      { return KindGetBlock }
func (*Block) Kind() Kind         { return KindBlock }
func (*SyncBlock) Kind() Kind     { return KindSyncBlock }
func (*Transaction) Kind() Kind   { return KindTransaction }
func (*GetMemoryPool) Kind() Kind { return KindGetMemoryPool }
func (*MemoryPool) Kind() Kind    { return KindMemoryPool }

func (*GetSync) isMessage()       {}
func (*Sync) isMessage()          {}
func (*GetBlock) isMessage()      {}
func (*Block) isMessage()         {}
func (*SyncBlock) isMessage()     {}
func (*Transaction) isMessage()   {}
func (*GetMemoryPool) isMessage() {}
func (*MemoryPool) isMessage()    {}

// New 根据消息类型创建空消息
func New(kind Kind) (Message, bool) {
	switch kind {
	case KindGetSync:
		return &GetSync{}, true
	case KindSync:
		return &Sync{}, true
	case KindGetBlock:
		return &GetBlock{}, true
	case KindBlock:
		return &Block{}, true
	case KindSyncBlock:
		return &SyncBlock{}, true
	case KindTransaction:
		return &Transaction{}, true
	case KindGetMemoryPool:
		return &GetMemoryPool{}, true
	case KindMemoryPool:
		return &MemoryPool{}, true
	}
	return nil, false
}
