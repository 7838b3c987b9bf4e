package main

import (
	"flag"
	"runtime"

	"github.com/je4/mediaport/config"
)

var addr = flag.String("addr", "localhost:8080", "internal http service address")
var ext = flag.String("ext", "localhost:8080", "external http service address")
var ntpServer = flag.String("ntp", "localhost", "ntp server address")
var numWorker = flag.Int("workers", runtime.NumCPU(), "number of workers")
var debug = flag.Bool("debug", false, "debug mode")
var webFolder = flag.String("web", "", "web folder to serve the pages from")
var configPath = flag.String("config", "", "path to config file")

func loadConfig() (*config.Proxy, error) {
	flag.Parse()
	cfg, err := config.LoadProxy(*configPath)
	if err != nil {
		return nil, err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "web":
			cfg.WebFolder = *webFolder
		case "debug":
			cfg.Debug = *debug
		case "workers":
			cfg.NumWorkers = *numWorker
		case "ntp":
			cfg.NTP = *ntpServer
		case "addr":
			cfg.LocalAddr = *addr
		case "ext":
			cfg.ExternalAddr = *ext
		}
	})
	return cfg, nil
}
