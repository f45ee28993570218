package config

import (
	"os"

	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/chain"
	"github.com/treeforest/easyrelay/message"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// 对外服务配置
	HttpServerPort int `yaml:"http_server_port"` // web监听端口

	// 区块链配置
	LevelDBPath string       `yaml:"leveldb_path"` // 区块链数据库路径
	Consensus   chain.Params `yaml:"consensus"`    // 共识参数
	MaxPoolSize int          `yaml:"max_pool_size"` // 交易池容量

	// 区块链节点配置
	Port              int      `yaml:"port"`                // 节点监听端口
	Endpoint          string   `yaml:"endpoint"`            // 节点对外暴露的地址
	BootstrapPeers    []string `yaml:"bootstrap_peers"`     // 启动时连接的区块链节点地址
	Bootnode          bool     `yaml:"bootnode"`            // 引导节点不主动同步区块
	BlockSyncInterval uint64   `yaml:"block_sync_interval"` // 同步间隔，单位秒
	MaxSyncBlocks     uint64   `yaml:"max_sync_blocks"`     // 单次 Sync 回复的最大区块哈希数

	// 出块配置
	Miner         bool   `yaml:"miner"`          // 是否出块
	RewardAddress string `yaml:"reward_address"` // 获取出块奖励的地址,若是出块节点，则必须填写该选项
	BlockReward   uint64 `yaml:"block_reward"`
	BlockInterval uint64 `yaml:"block_interval"` // 出块间隔，单位秒

	// 消息发送配置
	SendQueueSize int `yaml:"send_queue_size"`
	SendWorkers   int `yaml:"send_workers"`

	Debug bool `yaml:"debug"`
}

func DefaultConfig() *Config {
	return &Config{
		HttpServerPort:    8080,
		LevelDBPath:       ".",
		Consensus:         chain.DefaultParams(),
		MaxPoolSize:       10000,
		Port:              4499,
		Endpoint:          "localhost:4499",
		BootstrapPeers:    []string{},
		BlockSyncInterval: 10,
		MaxSyncBlocks:     message.MaxSyncHashes,
		BlockReward:       50,
		BlockInterval:     30,
		SendQueueSize:     2 * message.MaxSyncHashes,
		SendWorkers:       4,
	}
}

func (c *Config) Unmarshal(b []byte) error {
	return yaml.Unmarshal(b, c)
}

func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Load 读取配置文件，未填写的字段取默认值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	conf := DefaultConfig()
	if err = conf.Unmarshal(data); err != nil {
		return nil, errors.WithStack(err)
	}
	if err = conf.Validate(); err != nil {
		return nil, err
	}

	return conf, nil
}

// Validate 检查配置项
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("invalid port %d", c.Port)
	}
	if c.HttpServerPort < 0 || c.HttpServerPort > 65535 {
		return errors.Errorf("invalid http server port %d", c.HttpServerPort)
	}
	if c.BlockSyncInterval == 0 {
		return errors.New("block sync interval must be positive")
	}
	if c.MaxSyncBlocks == 0 || c.MaxSyncBlocks > message.MaxSyncHashes {
		return errors.Errorf("max sync blocks must be in (0, %d]", message.MaxSyncHashes)
	}
	if c.Miner && (c.RewardAddress == "" || c.BlockInterval == 0) {
		return errors.New("miner requires reward address and block interval")
	}
	// 一次 Sync 回复的 GetBlock 请求需要全部入队
	if c.SendQueueSize < 0 || (c.SendQueueSize > 0 && uint64(c.SendQueueSize) < c.MaxSyncBlocks) {
		return errors.Errorf("send queue size %d smaller than max sync blocks %d", c.SendQueueSize, c.MaxSyncBlocks)
	}
	return nil
}
