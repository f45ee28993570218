package merkle

import (
	"bytes"
	"sort"

	"github.com/treeforest/easyrelay/message"
	"golang.org/x/crypto/blake2b"
)

type hashSlice []message.Hash

func (s hashSlice) Len() int           { return len(s) }
func (s hashSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s hashSlice) Less(i, j int) bool { return bytes.Compare(s[i][:], s[j][:]) == 1 }

// Root 计算交易哈希的默克尔根。叶子先排序，结果与交易顺序无关；
// 没有叶子时返回空哈希。
func Root(hashes []message.Hash) message.Hash {
	if len(hashes) == 0 {
		return message.ZeroHash
	}

	// 有序性
	level := make([]message.Hash, len(hashes))
	copy(level, hashes)
	sort.Sort(hashSlice(level))

	for len(level) > 1 {
		parents := make([]message.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := i + 1
			if right == len(level) {
				right = i // 不足偶数份，最后的元素自我复制一份计算哈希
			}
			parents = append(parents, calculateHash(level[i], level[right]))
		}
		level = parents
	}
	return level[0]
}

// calculateHash 计算哈希(按照有序排列数据)
func calculateHash(h1, h2 message.Hash) message.Hash {
	data := make([]byte, 0, 2*message.HashSize)
	if bytes.Compare(h1[:], h2[:]) == -1 {
		data = append(append(data, h1[:]...), h2[:]...)
	} else {
		data = append(append(data, h2[:]...), h1[:]...)
	}
	return blake2b.Sum256(data)
}
