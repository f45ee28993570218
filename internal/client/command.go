package client

import (
	"encoding/json"
	"flag"
	"fmt"

	"github.com/treeforest/easyrelay/chain"
	"github.com/treeforest/easyrelay/message"
	log "github.com/treeforest/logger"
)

// Run 执行命令行子命令，args 不包含程序名
func (c *HttpClient) Run(args []string) {
	if len(args) < 1 {
		Usage()
		return
	}

	cmdBlock := flag.NewFlagSet("block", flag.ExitOnError)
	hash := cmdBlock.String("hash", "", "区块哈希")
	cmdSend := flag.NewFlagSet("send", flag.ExitOnError)
	prev := cmdSend.String("prev", "", "花费的交易哈希")
	index := cmdSend.Uint("index", 0, "花费的交易输出序号")
	to := cmdSend.String("to", "", "转账目标地址")
	amount := cmdSend.Uint64("amount", 0, "转账金额")
	fee := cmdSend.Uint64("fee", 0, "支付的手续费")

	var (
		v   interface{}
		err error
	)
	switch args[0] {
	case "height":
		v, err = c.Height()
	case "peers":
		v, err = c.Peers()
	case "txpool":
		v, err = c.TxPool()
	case "block":
		if cmdBlock.Parse(args[1:]) != nil || *hash == "" {
			Usage()
			return
		}
		h, e := message.ParseHash(*hash)
		if e != nil {
			log.Fatalf("invalid hash: %v", e)
		}
		v, err = c.Block(h)
	case "send":
		if cmdSend.Parse(args[1:]) != nil || *prev == "" || *to == "" || *amount == 0 {
			Usage()
			return
		}
		h, e := message.ParseHash(*prev)
		if e != nil {
			log.Fatalf("invalid prev hash: %v", e)
		}
		tx := chain.NewTransaction(
			[]chain.TxInput{{Prev: chain.Outpoint{TxId: h, Index: uint32(*index)}}},
			[]chain.TxOutput{{Value: *amount, Address: *to}},
			*fee,
		)
		v, err = c.SendTx(tx)
	default:
		Usage()
		return
	}
	if err != nil {
		log.Fatalf("%s failed: %v", args[0], err)
	}

	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("marshal output failed: %v", err)
	}
	fmt.Println(string(out))
}
