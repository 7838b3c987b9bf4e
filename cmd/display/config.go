package main

import (
	"flag"

	"github.com/je4/mediaport/config"
)

var name = flag.String("name", "", "name of the display")
var proxy = flag.String("proxy", "", "address of the websocket proxy server")
var debug = flag.Bool("debug", false, "debug mode")
var configPath = flag.String("config", "", "path to config file")
var playerURL = flag.String("player", "", "url of the player page")
var noKiosk = flag.Bool("no-kiosk", false, "disable kiosk")
var logLevel = flag.String("loglevel", "", "log level")

func loadConfig() (*config.Display, error) {
	flag.Parse()
	cfg, err := config.LoadDisplay(*configPath)
	if err != nil {
		return nil, err
	}
	// only flags given on the command line override the files
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			cfg.Name = *name
		case "debug":
			cfg.Debug = *debug
		case "proxy":
			cfg.ProxyAddr = *proxy
		case "player":
			cfg.PlayerURL = *playerURL
		case "no-kiosk":
			cfg.Kiosk = !*noKiosk
		case "loglevel":
			cfg.LogLevel = *logLevel
		}
	})
	return cfg, nil
}
