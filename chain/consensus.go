package chain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/merkle"
	"github.com/treeforest/easyrelay/message"
	"github.com/treeforest/easyrelay/relay"
	log "github.com/treeforest/logger"
)

var (
	ErrInvalidBlock       = errors.New("invalid block")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrUnknownParent      = errors.New("unknown parent block")
	ErrTooLarge           = errors.New("payload too large")
)

// Params 共识参数
type Params struct {
	MaxBlockSize            int           `yaml:"max_block_size"`
	MaxTransactionSize      int           `yaml:"max_transaction_size"`
	MaxTransactionsPerBlock int           `yaml:"max_transactions_per_block"`
	MaxFutureDrift          time.Duration `yaml:"max_future_drift"` // 允许的时间戳超前量
}

func DefaultParams() Params {
	return Params{
		MaxBlockSize:            2 << 20,
		MaxTransactionSize:      64 << 10,
		MaxTransactionsPerBlock: 4096,
		MaxFutureDrift:          2 * time.Hour,
	}
}

// Consensus 区块与交易的解码与合法性检查
type Consensus struct {
	params Params
	now    func() time.Time
}

var _ relay.Consensus = (*Consensus)(nil)

func New(params Params) *Consensus {
	return &Consensus{params: params, now: time.Now}
}

func (c *Consensus) Params() Params {
	return c.params
}

func (c *Consensus) DecodeBlock(data []byte) (relay.Block, error) {
	if c.params.MaxBlockSize > 0 && len(data) > c.params.MaxBlockSize {
		return nil, errors.Wrapf(ErrTooLarge, "block of %d bytes", len(data))
	}
	return UnmarshalBlock(data)
}

func (c *Consensus) DecodeTransaction(data []byte) (relay.Transaction, error) {
	if c.params.MaxTransactionSize > 0 && len(data) > c.params.MaxTransactionSize {
		return nil, errors.Wrapf(ErrTooLarge, "transaction of %d bytes", len(data))
	}
	return UnmarshalTransaction(data)
}

// VerifyTransaction 检查交易结构，且交易尚未被打包进区块
func (c *Consensus) VerifyTransaction(tx relay.Transaction, storage relay.Storage) (bool, error) {
	t, ok := tx.(*Transaction)
	if !ok {
		return false, errors.Errorf("unsupported transaction type %T", tx)
	}
	if err := c.checkTransaction(t); err != nil {
		log.Debugf("transaction %s: %v", t.ID(), err)
		return false, nil
	}
	if storage.TransactionExists(t.ID()) {
		log.Debugf("transaction %s already confirmed", t.ID())
		return false, nil
	}
	return true, nil
}

func (c *Consensus) checkTransaction(tx *Transaction) error {
	if len(tx.Outputs) == 0 {
		return errors.Wrap(ErrInvalidTransaction, "no outputs")
	}
	var total uint64
	for i, out := range tx.Outputs {
		if out.Value == 0 || out.Address == "" {
			return errors.Wrapf(ErrInvalidTransaction, "output %d", i)
		}
		total += out.Value
	}

	if tx.IsCoinbase() {
		if len(tx.Inputs) != 0 {
			return errors.Wrap(ErrInvalidTransaction, "coinbase with inputs")
		}
		if uint64(-tx.ValueBalance) != total {
			return errors.Wrap(ErrInvalidTransaction, "coinbase value mismatch")
		}
	} else {
		if len(tx.Inputs) == 0 {
			return errors.Wrap(ErrInvalidTransaction, "no inputs")
		}
		seen := make(map[Outpoint]struct{}, len(tx.Inputs))
		for _, in := range tx.Inputs {
			if _, dup := seen[in.Prev]; dup {
				return errors.Wrapf(ErrInvalidTransaction, "duplicate input %s", in.Prev)
			}
			seen[in.Prev] = struct{}{}
		}
	}

	if c.params.MaxTransactionSize > 0 {
		data, err := tx.Marshal()
		if err != nil {
			return errors.Wrap(err, "marshal transaction")
		}
		if len(data) > c.params.MaxTransactionSize {
			return errors.Wrapf(ErrTooLarge, "transaction of %d bytes", len(data))
		}
	}
	if c.params.MaxFutureDrift > 0 && tx.Time > c.now().Add(c.params.MaxFutureDrift).UnixNano() {
		return errors.Wrap(ErrInvalidTransaction, "timestamp too far in the future")
	}
	return nil
}

// ReceiveBlock 验证区块并写入存储，之后从交易池中移除区块中的交易
func (c *Consensus) ReceiveBlock(storage relay.Storage, pool relay.MemoryPool, block relay.Block, data []byte) error {
	b, ok := block.(*Block)
	if !ok {
		return errors.Errorf("unsupported block type %T", block)
	}
	if err := c.verifyBlock(storage, b); err != nil {
		return err
	}
	if err := storage.PutBlock(b, data); err != nil {
		return errors.Wrapf(err, "store block %s", b.Hash())
	}
	pool.Remove(b.TransactionIDs()...)
	log.Infof("block %s accepted at height %d", b.Hash(), b.Height())
	return nil
}

func (c *Consensus) verifyBlock(storage relay.Storage, b *Block) error {
	if b.Header.Version != 1 {
		return errors.Wrapf(ErrInvalidBlock, "version %d", b.Header.Version)
	}
	if c.params.MaxFutureDrift > 0 && b.Header.Time > c.now().Add(c.params.MaxFutureDrift).UnixNano() {
		return errors.Wrap(ErrInvalidBlock, "timestamp too far in the future")
	}

	// 1. 检查父区块
	if b.Height() == 0 {
		if !b.PrevHash().IsZero() {
			return errors.Wrap(ErrInvalidBlock, "invalid prehash with genesis block")
		}
		if _, err := storage.HashAt(0); err == nil {
			return errors.Wrap(ErrInvalidBlock, "genesis block already exists")
		}
	} else {
		parentHeight, err := storage.HeightOf(b.PrevHash())
		if err != nil {
			return errors.Wrapf(ErrUnknownParent, "%s", b.PrevHash())
		}
		if parentHeight+1 != b.Height() {
			return errors.Wrapf(ErrInvalidBlock, "height %d after parent at %d", b.Height(), parentHeight)
		}
		parentData, err := storage.GetBlock(b.PrevHash())
		if err != nil {
			return errors.Wrap(err, "load parent block")
		}
		parent, err := UnmarshalBlock(parentData)
		if err != nil {
			return errors.Wrap(err, "decode parent block")
		}
		// 时间戳不能早于父区块
		if b.Header.Time < parent.Header.Time {
			return errors.Wrapf(ErrInvalidBlock, "time %d before parent %d", b.Header.Time, parent.Header.Time)
		}
	}

	// 2. 检查交易，第一个且只有第一个交易是 coinbase 交易
	if len(b.Transactions) == 0 {
		return errors.Wrap(ErrInvalidBlock, "no transactions")
	}
	if c.params.MaxTransactionsPerBlock > 0 && len(b.Transactions) > c.params.MaxTransactionsPerBlock {
		return errors.Wrapf(ErrInvalidBlock, "%d transactions", len(b.Transactions))
	}
	seen := make(map[message.Hash]struct{}, len(b.Transactions))
	for i, tx := range b.Transactions {
		if tx.IsCoinbase() != (i == 0) {
			return errors.Wrapf(ErrInvalidBlock, "misplaced coinbase at %d", i)
		}
		if err := c.checkTransaction(tx); err != nil {
			return errors.Wrapf(ErrInvalidBlock, "transaction %d: %v", i, err)
		}
		if _, dup := seen[tx.ID()]; dup {
			return errors.Wrapf(ErrInvalidBlock, "duplicate transaction %s", tx.ID())
		}
		seen[tx.ID()] = struct{}{}
		if storage.TransactionExists(tx.ID()) {
			return errors.Wrapf(ErrInvalidBlock, "transaction %s already confirmed", tx.ID())
		}
	}

	// 3. 检查默克尔根
	if root := merkle.Root(b.TransactionIDs()); root != b.Header.MerkleRoot {
		return errors.Wrapf(ErrInvalidBlock, "merkle root %s, required %s", b.Header.MerkleRoot, root)
	}
	return nil
}
