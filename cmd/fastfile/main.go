// Command fastfile serves a directory tree of static files over HTTP.
package main

import (
	"log"
	"os"

	"github.com/searchktools/fastfile/app"
	"github.com/searchktools/fastfile/config"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("app: %v", err)
	}

	if err := a.Run(); err != nil {
		log.Fatalf("fastfile: %v", err)
	}
}
