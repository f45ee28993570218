package node

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/message"
	"github.com/treeforest/easyrelay/relay"
	log "github.com/treeforest/logger"
)

type HttpServer struct {
	port   int
	env    *relay.Environment
	relay  *relay.Relay
	peers  func() map[string]relay.PeerInfo
	server *http.Server
}

func NewHttpServer(port int, env *relay.Environment, r *relay.Relay, peers func() map[string]relay.PeerInfo) *HttpServer {
	s := &HttpServer{port: port, env: env, relay: r, peers: peers}
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Handler(),
	}
	return s
}

func (s *HttpServer) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/height", s.handleGetHeight)
	r.GET("/peers", s.handleGetPeers)
	r.GET("/txpool", s.handleGetTxPool)
	r.GET("/block/:hash", s.handleGetBlock)
	r.POST("/tx", s.handlePostTx)
	return r
}

func (s *HttpServer) Run() error {
	log.Infof("http server listening at %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server run failed")
	}
	return nil
}

func (s *HttpServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		log.Warnf("http server shutdown failed: %v", err)
	}
}

func (s *HttpServer) handleGetHeight(c *gin.Context) {
	type Response struct {
		Height uint64 `json:"height"`
		Hash   string `json:"hash"`
	}
	var resp Response
	err := s.env.ReadStorage(func(st relay.Storage) error {
		resp.Height = st.CurrentHeight()
		hash, err := st.HashAt(resp.Height)
		if err != nil {
			return err
		}
		resp.Hash = hash.String()
		return nil
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "not exist blockchain"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HttpServer) handleGetPeers(c *gin.Context) {
	type Peer struct {
		Name    string `json:"name"`
		Address string `json:"address"`
		Local   bool   `json:"local"`
	}
	peers := s.peers()
	resp := make([]Peer, 0, len(peers))
	for addr, p := range peers {
		resp = append(resp, Peer{Name: p.Name, Address: addr, Local: addr == s.relay.LocalAddress()})
	}
	sort.Slice(resp, func(i, j int) bool { return resp[i].Address < resp[j].Address })
	c.JSON(http.StatusOK, resp)
}

func (s *HttpServer) handleGetTxPool(c *gin.Context) {
	type Entry struct {
		ID   string `json:"id"`
		Size int    `json:"size"`
	}
	resp := make([]Entry, 0)
	_ = s.env.WithPool(func(_ relay.Storage, p relay.MemoryPool) error {
		for _, e := range p.Entries() {
			resp = append(resp, Entry{ID: e.Transaction.ID().String(), Size: e.Size})
		}
		return nil
	})
	c.JSON(http.StatusOK, resp)
}

func (s *HttpServer) handleGetBlock(c *gin.Context) {
	hash, err := message.ParseHash(c.Param("hash"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid block hash"})
		return
	}
	var data []byte
	err = s.env.ReadStorage(func(st relay.Storage) error {
		data, err = st.GetBlock(hash)
		return err
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "block not found"})
		return
	}
	c.Data(http.StatusOK, "application/cbor", data)
}

// handlePostTx 提交交易，与从网络收到的交易走相同的处理流程
func (s *HttpServer) handlePostTx(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tx, err := s.env.Consensus().DecodeTransaction(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unmarshal failed"})
		return
	}

	err = s.relay.ReceivedTransaction(s.relay.LocalAddress(), message.NewTransaction(data), s.peers())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	pooled := false
	_ = s.env.WithPool(func(_ relay.Storage, p relay.MemoryPool) error {
		for _, e := range p.Entries() {
			if e.Transaction.ID() == tx.ID() {
				pooled = true
				break
			}
		}
		return nil
	})

	type Response struct {
		ID     string `json:"id"`
		Pooled bool   `json:"pooled"`
	}
	c.JSON(http.StatusOK, Response{ID: tx.ID().String(), Pooled: pooled})
}
