package chain

import (
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/merkle"
	"github.com/treeforest/easyrelay/message"
	"github.com/treeforest/easyrelay/relay"
	"golang.org/x/crypto/blake2b"
)

type Header struct {
	_          struct{} `cbor:",toarray"`
	Version    uint32       // 版本号
	PrevHash   message.Hash // 上一个区块哈希
	MerkleRoot message.Hash // 默克尔树根哈希
	Height     uint64       // 区块高度
	Time       int64        // 区块产生时的时间戳
	Nonce      uint64
}

type Block struct {
	_            struct{} `cbor:",toarray"`
	Header       Header
	Transactions []*Transaction

	hash message.Hash
}

var _ relay.Block = (*Block)(nil)

// NewBlock 在 prev 之后构造新区块，prev 为 nil 时构造创世区块
func NewBlock(prev *Block, txs []*Transaction) *Block {
	header := Header{Version: 1, Time: time.Now().UnixNano()}
	if prev != nil {
		header.PrevHash = prev.Hash()
		header.Height = prev.Height() + 1
		if header.Time < prev.Header.Time {
			header.Time = prev.Header.Time
		}
	}
	b := &Block{Header: header, Transactions: txs}
	b.Header.MerkleRoot = merkle.Root(b.TransactionIDs())
	b.hash = b.CalculateHash()
	return b
}

// CalculateHash 区块哈希为区块头编码的哈希
func (b *Block) CalculateHash() message.Hash {
	data, err := encMode.Marshal(&b.Header)
	if err != nil {
		panic(err)
	}
	return blake2b.Sum256(data)
}

func (b *Block) Hash() message.Hash {
	if b.hash.IsZero() {
		return b.CalculateHash()
	}
	return b.hash
}

func (b *Block) PrevHash() message.Hash {
	return b.Header.PrevHash
}

func (b *Block) Height() uint64 {
	return b.Header.Height
}

func (b *Block) Time() int64 {
	return b.Header.Time
}

func (b *Block) TransactionIDs() []message.Hash {
	ids := make([]message.Hash, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		ids = append(ids, tx.ID())
	}
	return ids
}

func (b *Block) Marshal() ([]byte, error) {
	return encMode.Marshal(b)
}

// UnmarshalBlock 解码区块
func UnmarshalBlock(data []byte) (*Block, error) {
	b := &Block{}
	if err := cbor.Unmarshal(data, b); err != nil {
		return nil, errors.Wrap(err, "unmarshal block")
	}
	for i, tx := range b.Transactions {
		if tx == nil {
			return nil, errors.Errorf("unmarshal block: nil transaction %d", i)
		}
		tx.id = tx.CalculateHash()
	}
	b.hash = b.CalculateHash()
	return b, nil
}
