package relay

import (
	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/message"
	log "github.com/treeforest/logger"
)

// ReceivedGetSync 根据对方的 locator 计算对方缺失的区块哈希并回复。
// 回复总会发送，空列表表示对方已经同步到最新。
func (r *Relay) ReceivedGetSync(remote string, msg *message.GetSync) error {
	hashes := make([]message.Hash, 0)

	err := r.env.ReadStorage(func(s Storage) error {
		shared, err := s.LatestSharedHash(msg.BlockLocatorHashes)
		if err != nil {
			log.Debugf("no shared block with %s: %v", remote, err)
			return nil
		}
		height, err := s.HeightOf(shared)
		if err != nil {
			log.Debugf("shared block %s has no height: %v", shared, err)
			return nil
		}

		current := s.CurrentHeight()
		if height >= current {
			return nil
		}
		maxHeight := current
		if height+r.maxSync < current {
			maxHeight = height + r.maxSync
		}

		for h := height + 1; h <= maxHeight; h++ {
			hash, err := s.HashAt(h)
			if err != nil {
				return errors.Wrapf(err, "block hash at height %d", h)
			}
			hashes = append(hashes, hash)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return r.send(remote, message.NewSync(hashes))
}

// ReceivedSync 对回复中的每个区块哈希发出 GetBlock 请求。
// 不记录在途请求，重复的请求由 ReceivedBlock 的存在性检查保证幂等。
func (r *Relay) ReceivedSync(remote string, msg *message.Sync) error {
	if len(msg.BlockHashes) == 0 {
		return nil
	}
	for _, hash := range msg.BlockHashes {
		if err := r.send(remote, message.NewGetBlock(hash)); err != nil {
			return err
		}
	}
	return nil
}
