package chain

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/message"
	"github.com/treeforest/easyrelay/relay"
	"golang.org/x/crypto/blake2b"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
}

// Outpoint 引用上一笔交易的某个输出
type Outpoint struct {
	_     struct{} `cbor:",toarray"`
	TxId  message.Hash
	Index uint32
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxId, o.Index)
}

type TxInput struct {
	_         struct{} `cbor:",toarray"`
	Prev      Outpoint
	ScriptSig []byte // 解锁脚本，由外部验证
}

type TxOutput struct {
	_       struct{} `cbor:",toarray"`
	Value   uint64
	Address string
}

type Transaction struct {
	_       struct{} `cbor:",toarray"`
	Inputs  []TxInput
	Outputs []TxOutput
	// ValueBalance 输入与输出的差额，为负表示该交易铸造了新的价值（coinbase）
	ValueBalance int64
	Memo         []byte
	Time         int64 // 交易时间戳

	id message.Hash
}

var _ relay.Transaction = (*Transaction)(nil)

// NewTransaction 普通转账交易
func NewTransaction(inputs []TxInput, outputs []TxOutput, fee uint64) *Transaction {
	tx := &Transaction{
		Inputs:       inputs,
		Outputs:      outputs,
		ValueBalance: int64(fee),
		Time:         time.Now().UnixNano(),
	}
	tx.id = tx.CalculateHash()
	return tx
}

// NewCoinbaseTransaction coinbase 交易
func NewCoinbaseTransaction(reward uint64, address string, memo []byte) *Transaction {
	tx := &Transaction{
		Outputs:      []TxOutput{{Value: reward, Address: address}},
		ValueBalance: -int64(reward),
		Memo:         memo,
		Time:         time.Now().UnixNano(),
	}
	tx.id = tx.CalculateHash()
	return tx
}

// CalculateHash 计算交易哈希
func (tx *Transaction) CalculateHash() message.Hash {
	data, err := encMode.Marshal(tx)
	if err != nil {
		// 交易中只有定长与切片字段，编码不会失败
		panic(err)
	}
	return blake2b.Sum256(data)
}

func (tx *Transaction) ID() message.Hash {
	if tx.id.IsZero() {
		return tx.CalculateHash()
	}
	return tx.id
}

func (tx *Transaction) IsCoinbase() bool {
	return tx.ValueBalance < 0
}

// Spends 交易花费的输出
func (tx *Transaction) Spends() []string {
	spends := make([]string, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		spends = append(spends, in.Prev.String())
	}
	return spends
}

func (tx *Transaction) Marshal() ([]byte, error) {
	return encMode.Marshal(tx)
}

// UnmarshalTransaction 解码交易
func UnmarshalTransaction(data []byte) (*Transaction, error) {
	tx := &Transaction{}
	if err := cbor.Unmarshal(data, tx); err != nil {
		return nil, errors.Wrap(err, "unmarshal transaction")
	}
	tx.id = tx.CalculateHash()
	return tx, nil
}
