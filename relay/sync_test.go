package relay

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/treeforest/easyrelay/message"
)

func syncReply(t *testing.T, r *testRelay, to string) []message.Hash {
	reqs := r.out.requests()
	require.Len(t, reqs, 1)
	require.Equal(t, to, reqs[0].To)
	reply, ok := reqs[0].Message.(*message.Sync)
	require.True(t, ok)
	return reply.BlockHashes
}

func TestReceivedGetSyncCaughtUp(t *testing.T) {
	r := newTestRelay(10, false)

	err := r.ReceivedGetSync("10.0.0.2:4499", message.NewGetSync([]message.Hash{hashOf(10, 0)}))
	require.NoError(t, err)
	require.Empty(t, syncReply(t, r, "10.0.0.2:4499"))
}

func TestReceivedGetSyncBehind(t *testing.T) {
	r := newTestRelay(12, false)

	err := r.ReceivedGetSync("10.0.0.2:4499", message.NewGetSync([]message.Hash{hashOf(10, 0), hashOf(0, 0)}))
	require.NoError(t, err)
	require.Equal(t, []message.Hash{hashOf(11, 0), hashOf(12, 0)}, syncReply(t, r, "10.0.0.2:4499"))
}

func TestReceivedGetSyncCapped(t *testing.T) {
	r := newTestRelay(6000, false)
	shared := uint64(6000 - 5000)

	err := r.ReceivedGetSync("10.0.0.2:4499", message.NewGetSync([]message.Hash{hashOf(shared, 0)}))
	require.NoError(t, err)

	hashes := syncReply(t, r, "10.0.0.2:4499")
	require.Len(t, hashes, message.MaxSyncHashes)
	require.Equal(t, hashOf(shared+1, 0), hashes[0])
	require.Equal(t, hashOf(shared+message.MaxSyncHashes, 0), hashes[len(hashes)-1])
}

func TestReceivedGetSyncMaxOption(t *testing.T) {
	r := newTestRelay(20, false)
	r.Relay = New(r.env, r.out, WithMaxSyncHashes(5))

	require.NoError(t, r.ReceivedGetSync("10.0.0.2:4499", message.NewGetSync(nil)))
	hashes := syncReply(t, r, "10.0.0.2:4499")
	require.Equal(t, []message.Hash{hashOf(1, 0), hashOf(2, 0), hashOf(3, 0), hashOf(4, 0), hashOf(5, 0)}, hashes)
}

func TestReceivedGetSyncUnknownLocator(t *testing.T) {
	r := newTestRelay(3, false)

	// 没有共同区块时从创世区块开始
	err := r.ReceivedGetSync("10.0.0.2:4499", message.NewGetSync([]message.Hash{hashOf(7, 9)}))
	require.NoError(t, err)
	require.Equal(t, []message.Hash{hashOf(1, 0), hashOf(2, 0), hashOf(3, 0)}, syncReply(t, r, "10.0.0.2:4499"))
}

func TestReceivedGetSyncEmptyChain(t *testing.T) {
	r := newTestRelay(0, false)
	r.storage.chain = nil
	r.storage.heights = map[message.Hash]uint64{}

	require.NoError(t, r.ReceivedGetSync("10.0.0.2:4499", message.NewGetSync(nil)))
	require.Empty(t, syncReply(t, r, "10.0.0.2:4499"))
}

func TestReceivedSync(t *testing.T) {
	r := newTestRelay(0, false)
	hashes := []message.Hash{hashOf(1, 0), hashOf(2, 0), hashOf(1, 0)}

	require.NoError(t, r.ReceivedSync("10.0.0.2:4499", message.NewSync(hashes)))
	reqs := r.out.requests()
	require.Len(t, reqs, 3)
	for i, req := range reqs {
		require.Equal(t, "10.0.0.2:4499", req.To)
		require.Equal(t, message.NewGetBlock(hashes[i]), req.Message)
	}
}

func TestReceivedSyncEmpty(t *testing.T) {
	r := newTestRelay(0, false)

	require.NoError(t, r.ReceivedSync("10.0.0.2:4499", message.NewSync(nil)))
	require.Empty(t, r.out.requests())
}

func TestUpdate(t *testing.T) {
	r := newTestRelay(5, false)

	require.NoError(t, r.Update("10.0.0.2:4499"))
	reqs := r.out.requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "10.0.0.2:4499", reqs[0].To)
	require.Equal(t, message.NewGetSync([]message.Hash{hashOf(5, 0), hashOf(0, 0)}), reqs[0].Message)
}

func TestUpdateWithoutSyncNode(t *testing.T) {
	r := newTestRelay(5, false)
	require.NoError(t, r.Update(""))
	require.Empty(t, r.out.requests())
}

func TestUpdateBootnode(t *testing.T) {
	r := newTestRelay(5, true)
	require.NoError(t, r.Update("10.0.0.2:4499"))
	require.Empty(t, r.out.requests())
}
