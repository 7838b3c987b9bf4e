package config

import (
	"strings"

	"emperror.dev/errors"
	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

type Display struct {
	Name      string                 `toml:"name"`
	ProxyAddr string                 `toml:"proxy"`
	PlayerURL string                 `toml:"player"`
	Kiosk     bool                   `toml:"kiosk"`
	Debug     bool                   `toml:"debug"`
	LogLevel  string                 `toml:"loglevel"`
	NTP       bool                   `toml:"ntp"`
	Browser   map[string]interface{} `toml:"browser"`
}

// BrowserOptions returns the chrome flags. Without kiosk mode the browser
// gets a normal window.
func (cfg *Display) BrowserOptions() map[string]interface{} {
	opts := make(map[string]interface{}, len(cfg.Browser)+1)
	for k, v := range cfg.Browser {
		opts[k] = v
	}
	opts["kiosk"] = cfg.Kiosk
	if !cfg.Kiosk {
		opts["start-fullscreen"] = false
	}
	return opts
}

func (cfg *Display) Level() zerolog.Level {
	return level(cfg.LogLevel, cfg.Debug)
}

type Proxy struct {
	LocalAddr    string `toml:"localaddr"`
	ExternalAddr string `toml:"externaladdr"`
	NTP          string `toml:"ntp"`
	NumWorkers   int    `toml:"num_workers"`
	Debug        bool   `toml:"debug"`
	WebFolder    string `toml:"web_folder"`
	LogLevel     string `toml:"loglevel"`
	TLSCert      string `toml:"tls_cert"`
	TLSKey       string `toml:"tls_key"`
	ClientCA     string `toml:"client_ca"`
}

func (cfg *Proxy) Level() zerolog.Level {
	return level(cfg.LogLevel, cfg.Debug)
}

func level(name string, debug bool) zerolog.Level {
	if debug {
		return zerolog.DebugLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// LoadDisplay reads the embedded defaults and overlays the file at path, if any.
func LoadDisplay(path string) (*Display, error) {
	cfg := &Display{}
	if err := load(DisplayToml, path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadProxy reads the embedded defaults and overlays the file at path, if any.
func LoadProxy(path string) (*Proxy, error) {
	cfg := &Proxy{}
	if err := load(ProxyToml, path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(defaults []byte, path string, cfg any) error {
	// fill the default values
	if _, err := toml.Decode(string(defaults), cfg); err != nil {
		return errors.Wrap(err, "failed to load default config")
	}
	if path != "" {
		// enhance with the external file
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return errors.Wrapf(err, "failed to load config from %s", path)
		}
	}
	return nil
}
