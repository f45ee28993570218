package store

import (
	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/message"
)

// 最近的 denseLocatorCount 个区块逐个列出，之后步长翻倍
const denseLocatorCount = 10

// BlockLocatorHashes 生成本节点的区块定位哈希：从最新区块开始，越往前越稀疏，
// 最后一个总是创世区块。
func (s *Store) BlockLocatorHashes() ([]message.Hash, error) {
	_, tip, ok := s.LatestBlock()
	if !ok {
		return nil, ErrEmptyChain
	}

	hashes := make([]message.Hash, 0, denseLocatorCount+16)
	step := uint64(1)
	height := tip
	for {
		hash, err := s.HashAt(height)
		if err != nil {
			return nil, errors.Wrapf(err, "locator hash at %d", height)
		}
		hashes = append(hashes, hash)
		if height == 0 {
			break
		}
		if len(hashes) >= denseLocatorCount {
			step *= 2
		}
		if height < step {
			height = 0
		} else {
			height -= step
		}
	}
	return hashes, nil
}

// LatestSharedHash 返回 locator 中第一个本节点也拥有的区块哈希。
// locator 按从新到旧排列，没有共同区块时返回创世区块。
func (s *Store) LatestSharedHash(locator []message.Hash) (message.Hash, error) {
	for _, hash := range locator {
		if _, err := s.HeightOf(hash); err == nil {
			return hash, nil
		}
	}
	if _, _, ok := s.LatestBlock(); !ok {
		return message.ZeroHash, ErrEmptyChain
	}
	return s.HashAt(0)
}
