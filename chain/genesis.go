package chain

import (
	"github.com/treeforest/easyrelay/merkle"
)

const (
	genesisTime    = 1640995200 * 1e9 // 2022-01-01 00:00:00 UTC
	genesisReward  = 50
	genesisAddress = "1GenesisRewardAddress"
)

// Genesis 所有节点共享的创世区块，内容固定
func Genesis() *Block {
	coinbase := &Transaction{
		Outputs:      []TxOutput{{Value: genesisReward, Address: genesisAddress}},
		ValueBalance: -genesisReward,
		Memo:         []byte("easyrelay genesis"),
		Time:         genesisTime,
	}
	coinbase.id = coinbase.CalculateHash()

	b := &Block{
		Header:       Header{Version: 1, Time: genesisTime},
		Transactions: []*Transaction{coinbase},
	}
	b.Header.MerkleRoot = merkle.Root(b.TransactionIDs())
	b.hash = b.CalculateHash()
	return b
}
