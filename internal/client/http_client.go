package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/chain"
	"github.com/treeforest/easyrelay/message"
	"gopkg.in/yaml.v3"
)

type Config struct {
	BaseUrl string `yaml:"base_url"` // 节点 http 服务地址
}

func DefaultConfig() *Config {
	return &Config{BaseUrl: "http://localhost:8080"}
}

// LoadConfig 读取客户端配置
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	c := DefaultConfig()
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, errors.WithStack(err)
	}
	return c, nil
}

// HttpClient 节点 http 接口的客户端
type HttpClient struct {
	baseUrl string
	client  *http.Client
}

func NewHttpClient(baseUrl string) *HttpClient {
	return &HttpClient{
		baseUrl: baseUrl,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type Height struct {
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
}

type Peer struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Local   bool   `json:"local"`
}

type PoolEntry struct {
	ID   string `json:"id"`
	Size int    `json:"size"`
}

type SendTxResult struct {
	ID     string `json:"id"`
	Pooled bool   `json:"pooled"`
}

func (c *HttpClient) Height() (*Height, error) {
	h := &Height{}
	if err := c.getJSON("/height", h); err != nil {
		return nil, err
	}
	return h, nil
}

func (c *HttpClient) Peers() ([]Peer, error) {
	var peers []Peer
	if err := c.getJSON("/peers", &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

func (c *HttpClient) TxPool() ([]PoolEntry, error) {
	var entries []PoolEntry
	if err := c.getJSON("/txpool", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Block 查询区块并解码
func (c *HttpClient) Block(hash message.Hash) (*chain.Block, error) {
	data, err := c.do(http.MethodGet, "/block/"+hash.String(), nil)
	if err != nil {
		return nil, err
	}
	return chain.UnmarshalBlock(data)
}

// SendTx 提交交易
func (c *HttpClient) SendTx(tx *chain.Transaction) (*SendTxResult, error) {
	data, err := tx.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshal transaction")
	}
	body, err := c.do(http.MethodPost, "/tx", data)
	if err != nil {
		return nil, err
	}
	result := &SendTxResult{}
	if err = json.Unmarshal(body, result); err != nil {
		return nil, errors.Wrap(err, "unmarshal response")
	}
	return result, nil
}

func (c *HttpClient) getJSON(path string, v interface{}) error {
	body, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(body, v); err != nil {
		return errors.Wrap(err, "unmarshal response")
	}
	return nil
}

func (c *HttpClient) do(method, path string, data []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.baseUrl+path, bytes.NewReader(data))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		return nil, errors.Errorf("%s %s: %s %s", method, path, resp.Status, e.Error)
	}
	return body, nil
}

// Usage 打印命令行用法
func Usage() {
	fmt.Println("Usage:")
	fmt.Printf("\theight -- 打印区块链高度\n")
	fmt.Printf("\tpeers -- 打印节点列表\n")
	fmt.Printf("\ttxpool -- 获取交易池内的交易信息\n")
	fmt.Printf("\tblock -hash HASH -- 打印区块信息\n")
	fmt.Printf("\tsend -prev TXID -index INDEX -to TO -amount AMOUNT -fee FEE -- 发起转账\n")
}
