package mempool

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/treeforest/easyrelay/message"
	"github.com/treeforest/easyrelay/relay"
)

type mockTx struct {
	id     message.Hash
	spends []string
}

func (tx *mockTx) ID() message.Hash         { return tx.id }
func (tx *mockTx) IsCoinbase() bool         { return false }
func (tx *mockTx) Marshal() ([]byte, error) { return tx.id[:], nil }
func (tx *mockTx) Spends() []string         { return tx.spends }

// confirmed 只实现交易池用到的 TransactionExists
type confirmed struct {
	relay.Storage
	ids map[message.Hash]bool
}

func (c *confirmed) TransactionExists(id message.Hash) bool { return c.ids[id] }

func entry(id byte, size int, spends ...string) relay.PoolEntry {
	return relay.PoolEntry{Transaction: &mockTx{id: message.Hash{id}, spends: spends}, Size: size}
}

func TestInsert(t *testing.T) {
	pool := New(0)
	storage := &confirmed{ids: map[message.Hash]bool{}}

	id, inserted, err := pool.Insert(storage, entry(1, 100))
	require.NoError(t, err)
	require.True(t, inserted)
	require.Equal(t, message.Hash{1}, id)

	id, inserted, err = pool.Insert(storage, entry(1, 100))
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, message.Hash{1}, id)

	require.Equal(t, 1, pool.Size())
	require.Equal(t, 100, pool.Bytes())
}

func TestInsertConfirmed(t *testing.T) {
	pool := New(0)
	storage := &confirmed{ids: map[message.Hash]bool{{2}: true}}

	_, inserted, err := pool.Insert(storage, entry(2, 10))
	require.True(t, errors.Is(err, ErrConfirmed))
	require.False(t, inserted)
	require.Equal(t, 0, pool.Size())
}

func TestInsertConflict(t *testing.T) {
	pool := New(0)

	_, _, err := pool.Insert(nil, entry(1, 10, "aa:0", "bb:1"))
	require.NoError(t, err)
	_, inserted, err := pool.Insert(nil, entry(2, 10, "bb:1"))
	require.True(t, errors.Is(err, ErrConflict))
	require.False(t, inserted)

	// 花费该输出的交易移除后可以再次花费
	pool.Remove(message.Hash{1})
	_, inserted, err = pool.Insert(nil, entry(2, 10, "bb:1"))
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestInsertFull(t *testing.T) {
	pool := New(2)
	for i := byte(1); i <= 2; i++ {
		_, _, err := pool.Insert(nil, entry(i, 1))
		require.NoError(t, err)
	}
	_, _, err := pool.Insert(nil, entry(3, 1))
	require.Equal(t, ErrFull, err)
}

func TestEntriesAndRemove(t *testing.T) {
	pool := New(0)
	for i := byte(1); i <= 4; i++ {
		_, _, err := pool.Insert(nil, entry(i, int(i)))
		require.NoError(t, err)
	}

	pool.Remove(message.Hash{2}, message.Hash{9})
	entries := pool.Entries()
	require.Len(t, entries, 3)
	for i, id := range []byte{1, 3, 4} {
		require.Equal(t, message.Hash{id}, entries[i].Transaction.ID())
	}
	require.Equal(t, 8, pool.Bytes())

	_, ok := pool.Get(message.Hash{2})
	require.False(t, ok)
	e, ok := pool.Get(message.Hash{3})
	require.True(t, ok)
	require.Equal(t, 3, e.Size)
}
