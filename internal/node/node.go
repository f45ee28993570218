package node

import (
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/chain"
	"github.com/treeforest/easyrelay/config"
	"github.com/treeforest/easyrelay/mempool"
	"github.com/treeforest/easyrelay/message"
	"github.com/treeforest/easyrelay/outbound"
	"github.com/treeforest/easyrelay/pkg/graceful"
	"github.com/treeforest/easyrelay/relay"
	"github.com/treeforest/easyrelay/store"
	"github.com/treeforest/easyrelay/transport"
	log "github.com/treeforest/logger"
)

// Node 区块链中继节点。负责接收并转发交易与区块，以及定期向其它节点同步区块。
type Node struct {
	conf      *config.Config
	store     *store.Store
	pool      *mempool.Pool
	transport *transport.Transport
	sender    *outbound.Sender
	env       *relay.Environment
	relay     *relay.Relay
	http      *HttpServer
	miner     *Miner // 非出块节点为 nil
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func New(conf *config.Config) (*Node, error) {
	st, err := store.Open(conf.LevelDBPath)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}

	consensus := chain.New(conf.Consensus)
	pool := mempool.New(conf.MaxPoolSize)
	if err = installGenesis(st, pool, consensus); err != nil {
		_ = st.Close()
		return nil, err
	}

	tconf := transport.DefaultConfig()
	tconf.Port = conf.Port
	tconf.Endpoint = conf.Endpoint
	tconf.BootstrapPeers = conf.BootstrapPeers
	tconf.Bootnode = conf.Bootnode
	tr, err := transport.New(tconf)
	if err != nil {
		_ = st.Close()
		return nil, errors.Wrap(err, "start transport")
	}

	local := tr.LocalAddress()
	sender := outbound.NewSender(tr, local, conf.SendQueueSize, conf.SendWorkers)
	env := relay.NewEnvironment(st, pool, consensus, local, conf.Bootnode)
	r := relay.New(env, sender, relay.WithMaxSyncHashes(conf.MaxSyncBlocks))

	n := &Node{
		conf:      conf,
		store:     st,
		pool:      pool,
		transport: tr,
		sender:    sender,
		env:       env,
		relay:     r,
		stop:      make(chan struct{}),
	}
	n.http = NewHttpServer(conf.HttpServerPort, env, r, tr.Peers)
	if conf.Miner {
		n.miner = NewMiner(env, r, consensus, conf.RewardAddress, conf.BlockReward, tr.Peers)
	}
	return n, nil
}

// installGenesis 空链时写入创世区块
func installGenesis(st *store.Store, pool relay.MemoryPool, consensus *chain.Consensus) error {
	if _, _, ok := st.LatestBlock(); ok {
		return nil
	}
	genesis := chain.Genesis()
	data, err := genesis.Marshal()
	if err != nil {
		return errors.Wrap(err, "marshal genesis block")
	}
	if err = consensus.ReceiveBlock(st, pool, genesis, data); err != nil {
		return errors.Wrap(err, "install genesis block")
	}
	return nil
}

func (n *Node) Relay() *relay.Relay {
	return n.relay
}

func (n *Node) LocalAddress() string {
	return n.transport.LocalAddress()
}

// Start 连接引导节点并启动后台任务
func (n *Node) Start() error {
	if _, err := n.transport.Join(n.conf.BootstrapPeers); err != nil {
		return errors.Wrap(err, "join bootstrap peers")
	}

	n.wg.Add(2)
	go n.dispatch()
	go n.syncLoop()
	if n.miner != nil {
		n.wg.Add(1)
		go n.mining()
	}
	go func() {
		if err := n.http.Run(); err != nil {
			log.Errorf("http server stopped: %v", err)
		}
	}()

	// 加入网络后先拉取交易池，再同步一次区块
	if peer := selectPeer(n.transport.Peers(), n.LocalAddress()); peer != "" {
		if err := n.sender.Send(relay.Request{To: peer, Message: message.NewGetMemoryPool()}); err != nil {
			log.Warnf("request memory pool from %s failed: %v", peer, err)
		}
		n.update(peer)
	}
	return nil
}

// Run 启动节点并阻塞直到收到退出信号
func (n *Node) Run() {
	if err := n.Start(); err != nil {
		log.Fatalf("start node failed: %v", err)
	}
	graceful.Stop(func() {
		log.Info("graceful stopping...")
		n.Stop()
	})
}

func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stop)
		n.http.Stop()
		if err := n.transport.Close(); err != nil {
			log.Warnf("close transport failed: %v", err)
		}
		n.wg.Wait()
		n.sender.Close()
		if err := n.store.Close(); err != nil {
			log.Warnf("close store failed: %v", err)
		}
	})
}

// dispatch 逐条处理入站消息。每条消息经独立的连接到达，同步回复的区块可能乱序；
// 父区块尚未到达的区块会被拒绝，由之后的同步轮次补齐。
func (n *Node) dispatch() {
	defer n.wg.Done()
	for {
		select {
		case <-n.stop:
			return
		case in := <-n.transport.Inbound():
			// 每条消息使用最新的节点目录
			if err := n.relay.Handle(in.From, in.Message, n.transport.Peers()); err != nil {
				log.Warnf("handle %s from %s failed: %v", in.Message.Kind(), in.From, err)
			}
		}
	}
}

func (n *Node) syncLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(time.Duration(n.conf.BlockSyncInterval) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			n.update(selectPeer(n.transport.Peers(), n.LocalAddress()))
		}
	}
}

// mining 按出块间隔在最新区块之后出块
func (n *Node) mining() {
	defer n.wg.Done()
	ticker := time.NewTicker(time.Duration(n.conf.BlockInterval) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			if _, err := n.miner.Mine(); err != nil {
				log.Warnf("mine block failed: %v", err)
			}
		}
	}
}

func (n *Node) update(peer string) {
	if err := n.relay.Update(peer); err != nil {
		log.Warnf("sync with %s failed: %v", peer, err)
	}
}

// selectPeer 随机选择一个非本节点的节点，没有可选节点时返回空
func selectPeer(peers map[string]relay.PeerInfo, local string) string {
	candidates := make([]string, 0, len(peers))
	for addr := range peers {
		if addr != local {
			candidates = append(candidates, addr)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	return candidates[rand.Intn(len(candidates))]
}
