package relay

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/message"
)

const localAddr = "10.0.0.1:4499"

var (
	errNotFound = errors.New("not found")
	errDecode   = errors.New("decode failed")
	errInvalid  = errors.New("invalid block")
)

type fakeBlock struct {
	hash   message.Hash
	prev   message.Hash
	height uint64
}

func (b *fakeBlock) Hash() message.Hash             { return b.hash }
func (b *fakeBlock) PrevHash() message.Hash         { return b.prev }
func (b *fakeBlock) Height() uint64                 { return b.height }
func (b *fakeBlock) Time() int64                    { return int64(b.height) }
func (b *fakeBlock) TransactionIDs() []message.Hash { return nil }

type fakeTx struct {
	id       message.Hash
	coinbase bool
	invalid  bool
	raw      []byte
}

func (t *fakeTx) ID() message.Hash         { return t.id }
func (t *fakeTx) IsCoinbase() bool         { return t.coinbase }
func (t *fakeTx) Marshal() ([]byte, error) { return t.raw, nil }

// hashOf 测试中的区块哈希由高度与分叉标记决定
func hashOf(height uint64, fork byte) message.Hash {
	var h message.Hash
	h[0] = fork
	h[1] = byte(height >> 24)
	h[2] = byte(height >> 16)
	h[3] = byte(height >> 8)
	h[4] = byte(height)
	return h
}

type fakeStorage struct {
	mu      sync.Mutex
	chain   []message.Hash
	blocks  map[message.Hash][]byte
	heights map[message.Hash]uint64
	txs     map[message.Hash]bool
}

// newFakeStorage 构造一条高度为 tip 的链
func newFakeStorage(tip uint64) *fakeStorage {
	s := &fakeStorage{
		blocks:  map[message.Hash][]byte{},
		heights: map[message.Hash]uint64{},
		txs:     map[message.Hash]bool{},
	}
	for h := uint64(0); h <= tip; h++ {
		hash := hashOf(h, 0)
		s.chain = append(s.chain, hash)
		s.blocks[hash] = []byte{byte(h)}
		s.heights[hash] = h
	}
	return s
}

func (s *fakeStorage) BlockExists(hash message.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blocks[hash]
	return ok
}

func (s *fakeStorage) GetBlock(hash message.Hash) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[hash]
	if !ok {
		return nil, errNotFound
	}
	return b, nil
}

func (s *fakeStorage) BlockLocatorHashes() ([]message.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chain) == 0 {
		return nil, errNotFound
	}
	return []message.Hash{s.chain[len(s.chain)-1], s.chain[0]}, nil
}

func (s *fakeStorage) LatestSharedHash(locator []message.Hash) (message.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, hash := range locator {
		if _, ok := s.heights[hash]; ok {
			return hash, nil
		}
	}
	if len(s.chain) == 0 {
		return message.ZeroHash, errNotFound
	}
	return s.chain[0], nil
}

func (s *fakeStorage) HeightOf(hash message.Hash) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.heights[hash]
	if !ok {
		return 0, errNotFound
	}
	return h, nil
}

func (s *fakeStorage) CurrentHeight() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.chain) - 1)
}

func (s *fakeStorage) HashAt(height uint64) (message.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if height >= uint64(len(s.chain)) {
		return message.ZeroHash, errNotFound
	}
	return s.chain[height], nil
}

func (s *fakeStorage) PutBlock(block Block, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chain = append(s.chain, block.Hash())
	s.blocks[block.Hash()] = data
	s.heights[block.Hash()] = block.Height()
	for _, id := range block.TransactionIDs() {
		s.txs[id] = true
	}
	return nil
}

func (s *fakeStorage) TransactionExists(id message.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs[id]
}

type fakeConsensus struct {
	mu       sync.Mutex
	blocks   map[string]*fakeBlock
	txs      map[string]*fakeTx
	reject   bool
	received int
	verified int
}

func newFakeConsensus() *fakeConsensus {
	return &fakeConsensus{blocks: map[string]*fakeBlock{}, txs: map[string]*fakeTx{}}
}

func (c *fakeConsensus) addBlock(data string, b *fakeBlock) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks[data] = b
	return []byte(data)
}

func (c *fakeConsensus) addTx(tx *fakeTx) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txs[string(tx.raw)] = tx
	return tx.raw
}

func (c *fakeConsensus) DecodeBlock(data []byte) (Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.blocks[string(data)]
	if !ok {
		return nil, errDecode
	}
	return b, nil
}

func (c *fakeConsensus) DecodeTransaction(data []byte) (Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.txs[string(data)]
	if !ok {
		return nil, errDecode
	}
	return tx, nil
}

func (c *fakeConsensus) VerifyTransaction(tx Transaction, _ Storage) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verified++
	return !tx.(*fakeTx).invalid, nil
}

func (c *fakeConsensus) ReceiveBlock(s Storage, p MemoryPool, block Block, data []byte) error {
	c.mu.Lock()
	c.received++
	reject := c.reject
	c.mu.Unlock()
	if reject {
		return errInvalid
	}
	if err := s.PutBlock(block, data); err != nil {
		return err
	}
	p.Remove(block.TransactionIDs()...)
	return nil
}

func (c *fakeConsensus) receivedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.received
}

type fakePool struct {
	entries map[message.Hash]PoolEntry
	order   []message.Hash
}

func newFakePool() *fakePool {
	return &fakePool{entries: map[message.Hash]PoolEntry{}}
}

func (p *fakePool) Insert(_ Storage, entry PoolEntry) (message.Hash, bool, error) {
	id := entry.Transaction.ID()
	if _, ok := p.entries[id]; ok {
		return id, false, nil
	}
	p.entries[id] = entry
	p.order = append(p.order, id)
	return id, true, nil
}

func (p *fakePool) Entries() []PoolEntry {
	entries := make([]PoolEntry, 0, len(p.order))
	for _, id := range p.order {
		if e, ok := p.entries[id]; ok {
			entries = append(entries, e)
		}
	}
	return entries
}

func (p *fakePool) Remove(ids ...message.Hash) {
	for _, id := range ids {
		delete(p.entries, id)
	}
}

type recordingOutbound struct {
	mu     sync.Mutex
	sent   []Request
	closed bool
}

func (o *recordingOutbound) Send(req Request) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errors.New("sender closed")
	}
	o.sent = append(o.sent, req)
	return nil
}

func (o *recordingOutbound) requests() []Request {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Request(nil), o.sent...)
}

func (o *recordingOutbound) countTo(addr string) int {
	n := 0
	for _, req := range o.requests() {
		if req.To == addr {
			n++
		}
	}
	return n
}

type testRelay struct {
	*Relay
	storage   *fakeStorage
	pool      *fakePool
	consensus *fakeConsensus
	out       *recordingOutbound
}

func newTestRelay(tip uint64, bootnode bool) *testRelay {
	storage := newFakeStorage(tip)
	pool := newFakePool()
	consensus := newFakeConsensus()
	out := &recordingOutbound{}
	env := NewEnvironment(storage, pool, consensus, localAddr, bootnode)
	return &testRelay{
		Relay:     New(env, out),
		storage:   storage,
		pool:      pool,
		consensus: consensus,
		out:       out,
	}
}

func peersOf(addrs ...string) map[string]PeerInfo {
	peers := make(map[string]PeerInfo, len(addrs))
	for _, addr := range addrs {
		peers[addr] = PeerInfo{Name: addr, Address: addr}
	}
	return peers
}
