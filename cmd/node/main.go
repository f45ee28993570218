package main

import (
	"flag"

	"github.com/treeforest/easyrelay/config"
	"github.com/treeforest/easyrelay/internal/node"
	log "github.com/treeforest/logger"
)

func main() {
	path := flag.String("conf", "config.yaml", "config file path")
	flag.Parse()

	conf, err := config.Load(*path)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if conf.Debug {
		log.SetLevel(log.DEBUG)
	}

	n, err := node.New(conf)
	if err != nil {
		log.Fatalf("create node failed: %v", err)
	}
	n.Run()
}
