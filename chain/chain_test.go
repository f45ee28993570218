package chain_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/treeforest/easyrelay/chain"
	"github.com/treeforest/easyrelay/mempool"
	"github.com/treeforest/easyrelay/message"
	"github.com/treeforest/easyrelay/relay"
	"github.com/treeforest/easyrelay/store"
)

const miner = "1MinerAddress"

func coinbase(height uint64) *chain.Transaction {
	return chain.NewCoinbaseTransaction(50, miner, []byte(fmt.Sprintf("height %d", height)))
}

func transfer(prev message.Hash, to string) *chain.Transaction {
	return chain.NewTransaction(
		[]chain.TxInput{{Prev: chain.Outpoint{TxId: prev, Index: 0}}},
		[]chain.TxOutput{{Value: 10, Address: to}},
		1,
	)
}

// newChain 生成高度 0..tip 的区块
func newChain(tip uint64) []*chain.Block {
	blocks := make([]*chain.Block, 0, tip+1)
	var prev *chain.Block
	for h := uint64(0); h <= tip; h++ {
		b := chain.NewBlock(prev, []*chain.Transaction{coinbase(h)})
		blocks = append(blocks, b)
		prev = b
	}
	return blocks
}

func openStore(t *testing.T) *store.Store {
	s, err := store.OpenStorage(storage.NewMemStorage())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func receive(t *testing.T, c *chain.Consensus, s relay.Storage, p relay.MemoryPool, b *chain.Block) error {
	data, err := b.Marshal()
	require.NoError(t, err)
	decoded, err := c.DecodeBlock(data)
	require.NoError(t, err)
	return c.ReceiveBlock(s, p, decoded, data)
}

func TestTransactionEncoding(t *testing.T) {
	tx := transfer(message.Hash{1}, "1Bob")
	data, err := tx.Marshal()
	require.NoError(t, err)

	got, err := chain.UnmarshalTransaction(data)
	require.NoError(t, err)
	require.Equal(t, tx.ID(), got.ID())
	require.False(t, got.IsCoinbase())
	require.Equal(t, []string{fmt.Sprintf("%s:0", message.Hash{1})}, got.Spends())
	require.True(t, coinbase(0).IsCoinbase())

	_, err = chain.UnmarshalTransaction([]byte("not cbor"))
	require.Error(t, err)
}

func TestVerifyTransaction(t *testing.T) {
	c := chain.New(chain.DefaultParams())
	s := openStore(t)

	ok, err := c.VerifyTransaction(transfer(message.Hash{1}, "1Bob"), s)
	require.NoError(t, err)
	require.True(t, ok)

	noOutputs := chain.NewTransaction([]chain.TxInput{{}}, nil, 0)
	ok, err = c.VerifyTransaction(noOutputs, s)
	require.NoError(t, err)
	require.False(t, ok)

	in := chain.TxInput{Prev: chain.Outpoint{TxId: message.Hash{1}}}
	dup := chain.NewTransaction([]chain.TxInput{in, in}, []chain.TxOutput{{Value: 1, Address: "1Bob"}}, 0)
	ok, err = c.VerifyTransaction(dup, s)
	require.NoError(t, err)
	require.False(t, ok)

	// coinbase 交易本身结构合法，由中继层拒绝
	ok, err = c.VerifyTransaction(coinbase(1), s)
	require.NoError(t, err)
	require.True(t, ok)

	tooBig := chain.New(chain.Params{MaxTransactionSize: 8})
	ok, err = tooBig.VerifyTransaction(transfer(message.Hash{1}, "1Bob"), s)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyConfirmedTransaction(t *testing.T) {
	c := chain.New(chain.DefaultParams())
	s := openStore(t)
	pool := mempool.New(0)

	genesis := newChain(0)[0]
	tx := transfer(message.Hash{1}, "1Bob")
	b1 := chain.NewBlock(genesis, []*chain.Transaction{coinbase(1), tx})
	require.NoError(t, receive(t, c, s, pool, genesis))
	require.NoError(t, receive(t, c, s, pool, b1))

	ok, err := c.VerifyTransaction(tx, s)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReceiveBlock(t *testing.T) {
	c := chain.New(chain.DefaultParams())
	s := openStore(t)
	pool := mempool.New(0)

	blocks := newChain(2)
	tx := transfer(message.Hash{9}, "1Bob")
	_, inserted, err := pool.Insert(s, relay.PoolEntry{Transaction: tx, Size: 10})
	require.NoError(t, err)
	require.True(t, inserted)

	for _, b := range blocks {
		require.NoError(t, receive(t, c, s, pool, b))
	}
	b3 := chain.NewBlock(blocks[2], []*chain.Transaction{coinbase(3), tx})
	require.NoError(t, receive(t, c, s, pool, b3))

	require.Equal(t, uint64(3), s.CurrentHeight())
	require.True(t, s.BlockExists(b3.Hash()))
	require.True(t, s.TransactionExists(tx.ID()))
	require.Equal(t, 0, pool.Size())
}

func TestReceiveBlockRejects(t *testing.T) {
	c := chain.New(chain.DefaultParams())
	s := openStore(t)
	pool := mempool.New(0)

	blocks := newChain(1)

	err := receive(t, c, s, pool, blocks[1])
	require.True(t, errors.Is(err, chain.ErrUnknownParent))

	require.NoError(t, receive(t, c, s, pool, blocks[0]))

	err = receive(t, c, s, pool, newChain(0)[0])
	require.True(t, errors.Is(err, chain.ErrInvalidBlock))

	noCoinbase := chain.NewBlock(blocks[0], []*chain.Transaction{transfer(message.Hash{1}, "1Bob")})
	err = receive(t, c, s, pool, noCoinbase)
	require.True(t, errors.Is(err, chain.ErrInvalidBlock))

	badRoot := chain.NewBlock(blocks[0], []*chain.Transaction{coinbase(1)})
	badRoot.Header.MerkleRoot = message.Hash{0xaa}
	err = receive(t, c, s, pool, badRoot)
	require.True(t, errors.Is(err, chain.ErrInvalidBlock))

	require.NoError(t, receive(t, c, s, pool, blocks[1]))
	require.Equal(t, uint64(1), s.CurrentHeight())
}

func TestDecodeBlockTooLarge(t *testing.T) {
	c := chain.New(chain.Params{MaxBlockSize: 4})
	_, err := c.DecodeBlock(make([]byte, 5))
	require.True(t, errors.Is(err, chain.ErrTooLarge))
}

type recorder struct {
	mu   sync.Mutex
	reqs []relay.Request
}

func (r *recorder) Send(req relay.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return nil
}

// newNode 在 LevelDB 存储上组装中继服务，链高度为 tip
func newNode(t *testing.T, blocks []*chain.Block) (*relay.Relay, *recorder) {
	c := chain.New(chain.DefaultParams())
	s := openStore(t)
	pool := mempool.New(0)
	for _, b := range blocks {
		require.NoError(t, receive(t, c, s, pool, b))
	}
	out := &recorder{}
	return relay.New(relay.NewEnvironment(s, pool, c, "10.0.0.1:4499", false), out), out
}

func TestGetSyncScenario(t *testing.T) {
	blocks := newChain(12)
	locator := []message.Hash{blocks[10].Hash(), blocks[5].Hash(), blocks[0].Hash()}

	caughtUp, out := newNode(t, blocks[:11])
	require.NoError(t, caughtUp.ReceivedGetSync("peerA", message.NewGetSync(locator)))
	require.Len(t, out.reqs, 1)
	require.Empty(t, out.reqs[0].Message.(*message.Sync).BlockHashes)

	ahead, out := newNode(t, blocks)
	require.NoError(t, ahead.ReceivedGetSync("peerA", message.NewGetSync(locator)))
	require.Len(t, out.reqs, 1)
	require.Equal(t, "peerA", out.reqs[0].To)
	require.Equal(t, []message.Hash{blocks[11].Hash(), blocks[12].Hash()}, out.reqs[0].Message.(*message.Sync).BlockHashes)
}

func TestSyncRoundTrip(t *testing.T) {
	blocks := newChain(5)
	full, fullOut := newNode(t, blocks)
	behind, behindOut := newNode(t, blocks[:2])

	// behind 请求同步，full 回复缺失的区块哈希
	require.NoError(t, behind.Update("full"))
	getSync := behindOut.reqs[0].Message.(*message.GetSync)
	require.NoError(t, full.ReceivedGetSync("behind", getSync))
	reply := fullOut.reqs[0].Message.(*message.Sync)
	require.Len(t, reply.BlockHashes, 4)

	// behind 逐个请求区块并接收同步回复
	require.NoError(t, behind.ReceivedSync("full", reply))
	require.Len(t, behindOut.reqs, 5)
	for _, req := range behindOut.reqs[1:] {
		require.NoError(t, full.ReceivedGetBlock("behind", req.Message.(*message.GetBlock)))
	}
	for _, req := range fullOut.reqs[1:] {
		require.NoError(t, behind.Handle("full", req.Message, nil))
	}

	// 已同步到最新，再次同步时回复为空
	require.NoError(t, behind.Update("full"))
	require.NoError(t, full.ReceivedGetSync("behind", behindOut.reqs[len(behindOut.reqs)-1].Message.(*message.GetSync)))
	require.Empty(t, fullOut.reqs[len(fullOut.reqs)-1].Message.(*message.Sync).BlockHashes)
}

func TestGenesis(t *testing.T) {
	g := chain.Genesis()
	require.Equal(t, g.Hash(), chain.Genesis().Hash())
	require.Equal(t, uint64(0), g.Height())
	require.True(t, g.PrevHash().IsZero())

	c := chain.New(chain.DefaultParams())
	s := openStore(t)
	require.NoError(t, receive(t, c, s, mempool.New(0), g))
	hash, err := s.HashAt(0)
	require.NoError(t, err)
	require.Equal(t, g.Hash(), hash)
}
