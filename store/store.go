package store

import (
	"encoding/binary"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/treeforest/easyrelay/message"
	"github.com/treeforest/easyrelay/relay"
	log "github.com/treeforest/logger"
)

const (
	dbName             = "BLC"                       // 数据库名
	latestBlockHashKey = "__latest_block_hash_key__" // 最新区块哈希对应的key
	blockPrefix        = "b/"                        // hash => block
	heightPrefix       = "h/"                        // height => hash
	numberPrefix       = "n/"                        // hash => height
	txPrefix           = "t/"                        // txid => block hash

	// 已知区块哈希的 Bloom 过滤器容量与误判率
	filterCapacity = 1 << 20
	filterFpRate   = 0.001
)

var (
	ErrNotFound      = errors.New("not found")
	ErrEmptyChain    = errors.New("empty chain")
	ErrNotContiguous = errors.New("block does not extend the latest block")
)

// Store 基于 LevelDB 的区块链存储
type Store struct {
	db *leveldb.DB

	mu                sync.RWMutex
	latestBlockHash   message.Hash // 最新区块哈希值
	latestBlockHeight uint64
	empty             bool
	known             *bloom.BloomFilter // 已存储的区块哈希
}

var _ relay.Storage = (*Store)(nil)

// Open 打开 path 下的区块数据库，不存在时创建
func Open(path string) (*Store, error) {
	log.Debug("db path:", filepath.Join(path, dbName))
	db, err := leveldb.OpenFile(filepath.Join(path, dbName), &opt.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open leveldb [%s]", dbName)
	}
	return load(db)
}

// OpenStorage 在给定的 LevelDB 存储上打开，测试中使用内存存储
func OpenStorage(stor storage.Storage) (*Store, error) {
	db, err := leveldb.Open(stor, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open leveldb")
	}
	return load(db)
}

func load(db *leveldb.DB) (*Store, error) {
	s := &Store{
		db:    db,
		empty: true,
		known: bloom.NewWithEstimates(filterCapacity, filterFpRate),
	}
	if err := s.loadLatestBlock(); err != nil {
		_ = db.Close()
		return nil, err
	}

	iter := db.NewIterator(util.BytesPrefix([]byte(numberPrefix)), nil)
	for iter.Next() {
		s.known.Add(iter.Key()[len(numberPrefix):])
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "scan block hashes")
	}
	return s, nil
}

// loadLatestBlock 加载最新区块哈希与高度
func (s *Store) loadLatestBlock() error {
	value, err := s.db.Get([]byte(latestBlockHashKey), nil)
	if err == leveldb.ErrNotFound {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load latest block hash")
	}
	copy(s.latestBlockHash[:], value)

	value, err = s.db.Get(numberKey(s.latestBlockHash), nil)
	if err != nil {
		return errors.Wrap(err, "load latest block height")
	}
	s.latestBlockHeight = binary.BigEndian.Uint64(value)
	s.empty = false
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func blockKey(hash message.Hash) []byte {
	return append([]byte(blockPrefix), hash[:]...)
}

func numberKey(hash message.Hash) []byte {
	return append([]byte(numberPrefix), hash[:]...)
}

func heightKey(height uint64) []byte {
	key := make([]byte, len(heightPrefix)+8)
	copy(key, heightPrefix)
	binary.BigEndian.PutUint64(key[len(heightPrefix):], height)
	return key
}

func txKey(id message.Hash) []byte {
	return append([]byte(txPrefix), id[:]...)
}

func (s *Store) mayContain(hash message.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.known.Test(hash[:])
}

// LatestBlock 返回最新区块哈希与高度，链为空时 ok 为 false
func (s *Store) LatestBlock() (hash message.Hash, height uint64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestBlockHash, s.latestBlockHeight, !s.empty
}

func (s *Store) CurrentHeight() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestBlockHeight
}

func (s *Store) BlockExists(hash message.Hash) bool {
	if !s.mayContain(hash) {
		return false
	}
	ok, err := s.db.Has(blockKey(hash), nil)
	if err != nil {
		log.Warnf("check block %s failed: %v", hash, err)
		return false
	}
	return ok
}

func (s *Store) GetBlock(hash message.Hash) ([]byte, error) {
	if !s.mayContain(hash) {
		return nil, ErrNotFound
	}
	data, err := s.db.Get(blockKey(hash), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get block %s", hash)
	}
	return data, nil
}

func (s *Store) HeightOf(hash message.Hash) (uint64, error) {
	if !s.mayContain(hash) {
		return 0, ErrNotFound
	}
	value, err := s.db.Get(numberKey(hash), nil)
	if err == leveldb.ErrNotFound {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, errors.Wrapf(err, "get height of %s", hash)
	}
	return binary.BigEndian.Uint64(value), nil
}

func (s *Store) HashAt(height uint64) (message.Hash, error) {
	var hash message.Hash
	value, err := s.db.Get(heightKey(height), nil)
	if err == leveldb.ErrNotFound {
		return hash, ErrNotFound
	}
	if err != nil {
		return hash, errors.Wrapf(err, "get block hash at %d", height)
	}
	copy(hash[:], value)
	return hash, nil
}

func (s *Store) TransactionExists(id message.Hash) bool {
	ok, err := s.db.Has(txKey(id), nil)
	if err != nil {
		log.Warnf("check transaction %s failed: %v", id, err)
		return false
	}
	return ok
}

// PutBlock 写入区块，区块必须接在最新区块之后（或为创世区块）
func (s *Store) PutBlock(block relay.Block, data []byte) error {
	hash := block.Hash()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.empty {
		if block.Height() != 0 {
			return errors.Wrapf(ErrNotContiguous, "expected genesis, got height %d", block.Height())
		}
	} else if block.Height() != s.latestBlockHeight+1 || block.PrevHash() != s.latestBlockHash {
		return errors.Wrapf(ErrNotContiguous, "block %s at height %d", hash, block.Height())
	}

	height := make([]byte, 8)
	binary.BigEndian.PutUint64(height, block.Height())

	err := s.doTransaction(func(trans *leveldb.Transaction) error {
		wo := &opt.WriteOptions{Sync: true}
		if err := trans.Put(blockKey(hash), data, wo); err != nil {
			return errors.Wrap(err, "insert block")
		}
		if err := trans.Put(numberKey(hash), height, wo); err != nil {
			return errors.Wrap(err, "insert block hash-height")
		}
		if err := trans.Put(heightKey(block.Height()), hash[:], wo); err != nil {
			return errors.Wrap(err, "insert block height-hash")
		}
		for _, id := range block.TransactionIDs() {
			if err := trans.Put(txKey(id), hash[:], wo); err != nil {
				return errors.Wrap(err, "insert transaction index")
			}
		}
		if err := trans.Put([]byte(latestBlockHashKey), hash[:], wo); err != nil {
			return errors.Wrap(err, "update latest block hash")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.known.Add(hash[:])
	s.latestBlockHash = hash
	s.latestBlockHeight = block.Height()
	s.empty = false
	return nil
}

// doTransaction 事务操作
func (s *Store) doTransaction(fn func(trans *leveldb.Transaction) error) (err error) {
	trans, err := s.db.OpenTransaction()
	if err != nil {
		return errors.Wrap(err, "open transaction")
	}
	defer func() {
		if err != nil {
			// 事务提交失败，销毁事务
			trans.Discard()
		}
	}()

	if err = fn(trans); err != nil {
		return err
	}
	if err = trans.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}
