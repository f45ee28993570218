package main

import (
	"flag"
	"os"

	"github.com/pkg/errors"
	"github.com/treeforest/easyrelay/internal/client"
	log "github.com/treeforest/logger"
)

func main() {
	path := flag.String("conf", "client.yaml", "client config file path")
	flag.Parse()

	conf, err := client.LoadConfig(*path)
	if err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			log.Fatalf("load config failed: %v", err)
		}
		conf = client.DefaultConfig()
	}

	client.NewHttpClient(conf.BaseUrl).Run(flag.Args())
}
