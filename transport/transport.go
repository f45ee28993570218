package transport

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/memberlist"
	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/message"
	"github.com/treeforest/easyrelay/outbound"
	"github.com/treeforest/easyrelay/relay"
	log "github.com/treeforest/logger"
)

var (
	ErrUnknownPeer = errors.New("unknown peer")
	ErrClosed      = errors.New("transport closed")
)

const bootnodeMeta = "bootnode"

type Config struct {
	Name           string   // 节点名称，为空时随机生成
	BindAddr       string   // 监听地址
	Port           int      // 节点监听端口
	Endpoint       string   // 节点对外暴露的地址
	BootstrapPeers []string // 启动时连接的节点地址
	Bootnode       bool
	InboundSize    int // 接收队列长度
}

func DefaultConfig() Config {
	return Config{
		BindAddr:    "0.0.0.0",
		Port:        4499,
		InboundSize: 256,
	}
}

// Inbound 收到的消息以及发送方地址
type Inbound struct {
	From    string
	Message message.Message
}

// Transport 基于 memberlist 的节点网络。memberlist 负责成员发现，
// 消息通过 SendReliable 点对点发送。
type Transport struct {
	list     *memberlist.Memberlist
	conf     Config
	accept   chan Inbound
	stop     chan struct{}
	stopOnce sync.Once
}

var (
	_ memberlist.Delegate = (*Transport)(nil)
	_ outbound.Transport  = (*Transport)(nil)
)

func New(conf Config) (*Transport, error) {
	if conf.Name == "" {
		conf.Name = uuid.NewString()
	}
	if conf.InboundSize <= 0 {
		conf.InboundSize = 256
	}

	t := &Transport{
		conf:   conf,
		accept: make(chan Inbound, conf.InboundSize),
		stop:   make(chan struct{}),
	}

	mconf := memberlist.DefaultLANConfig()
	mconf.Name = conf.Name
	if conf.BindAddr != "" {
		mconf.BindAddr = conf.BindAddr
	}
	mconf.BindPort = conf.Port
	mconf.AdvertisePort = conf.Port
	if conf.Endpoint != "" {
		addr, port, err := resolveEndpoint(conf.Endpoint)
		if err != nil {
			return nil, err
		}
		mconf.AdvertiseAddr = addr
		mconf.AdvertisePort = port
	}
	mconf.Delegate = t
	mconf.LogOutput = logWriter{}

	list, err := memberlist.Create(mconf)
	if err != nil {
		return nil, errors.Wrap(err, "create memberlist")
	}
	t.list = list
	log.Infof("transport %s listening at %s", conf.Name, t.LocalAddress())
	return t, nil
}

// resolveEndpoint 将 host:port 解析为 memberlist 需要的 IP 与端口
func resolveEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return "", 0, errors.Wrapf(err, "endpoint %s", endpoint)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, errors.Wrapf(err, "endpoint %s", endpoint)
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), port, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return "", 0, errors.Wrapf(err, "resolve %s", host)
	}
	for _, ip := range ips {
		if ip.To4() != nil {
			return ip.String(), port, nil
		}
	}
	if len(ips) == 0 {
		return "", 0, errors.Errorf("resolve %s: no address", host)
	}
	return ips[0].String(), port, nil
}

// Join 连接引导节点，返回成功连接的节点数
func (t *Transport) Join(peers []string) (int, error) {
	if len(peers) == 0 {
		return 0, nil
	}
	n, err := t.list.Join(peers)
	if err != nil {
		return n, errors.Wrap(err, "join")
	}
	return n, nil
}

func (t *Transport) LocalAddress() string {
	return t.list.LocalNode().Address()
}

// Inbound 接收到的消息
func (t *Transport) Inbound() <-chan Inbound {
	return t.accept
}

// Peers 当前成员列表的快照（包含本节点）
func (t *Transport) Peers() map[string]relay.PeerInfo {
	members := t.list.Members()
	peers := make(map[string]relay.PeerInfo, len(members))
	for _, m := range members {
		addr := m.Address()
		peers[addr] = relay.PeerInfo{
			Name:    m.Name,
			Address: addr,
			Meta:    append([]byte(nil), m.Meta...),
		}
	}
	return peers
}

// IsBootnode 判断节点是否为引导节点
func IsBootnode(peer relay.PeerInfo) bool {
	return string(peer.Meta) == bootnodeMeta
}

// SendTo 将数据可靠地发送给地址为 addr 的成员
func (t *Transport) SendTo(addr string, data []byte) error {
	select {
	case <-t.stop:
		return ErrClosed
	default:
	}
	for _, m := range t.list.Members() {
		if m.Address() == addr {
			if err := t.list.SendReliable(m, data); err != nil {
				return errors.Wrapf(err, "send to %s", addr)
			}
			return nil
		}
	}
	return errors.Wrapf(ErrUnknownPeer, "%s", addr)
}

func (t *Transport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stop)
		if e := t.list.Leave(time.Second); e != nil {
			log.Warnf("leave failed: %v", e)
		}
		err = t.list.Shutdown()
	})
	return errors.WithStack(err)
}

// NodeMeta 节点元数据，引导节点会被标记
func (t *Transport) NodeMeta(limit int) []byte {
	if !t.conf.Bootnode || len(bootnodeMeta) > limit {
		return []byte{}
	}
	return []byte(bootnodeMeta)
}

// NotifyMsg 处理用户数据
func (t *Transport) NotifyMsg(data []byte) {
	if len(data) == 0 {
		return
	}
	from, msg, err := message.Decode(data)
	if err != nil {
		log.Warnf("NotifyMsg decode message failed: %v", err)
		return
	}
	select {
	case t.accept <- Inbound{From: from, Message: msg}:
	case <-t.stop:
	}
}

// GetBroadcasts 消息均为点对点发送，没有需要 gossip 的数据
func (t *Transport) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState 区块与交易池的同步通过 GetSync/GetMemoryPool 消息完成
func (t *Transport) LocalState(join bool) []byte {
	return []byte{}
}

func (t *Transport) MergeRemoteState(buf []byte, join bool) {}
