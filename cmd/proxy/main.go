package main

import (
	"crypto/tls"
	"crypto/x509"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"emperror.dev/errors"
	"github.com/je4/mediaport/config"
	"github.com/je4/mediaport/pkg/proxy"
	"github.com/je4/mediaport/web"
	"github.com/je4/utils/v2/pkg/zLogger"
	"github.com/rs/zerolog"
)

// loadTLS returns nil if no certificate is configured. With a client CA,
// displays must present a certificate; its "ws:<name>" DNS name is checked
// against the connection name.
func loadTLS(cfg *config.Proxy) (*tls.Config, error) {
	if cfg.TLSCert == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load certificate %s", cfg.TLSCert)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if cfg.ClientCA != "" {
		pem, err := os.ReadFile(cfg.ClientCA)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot read client ca %s", cfg.ClientCA)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Errorf("no certificates in %s", cfg.ClientCA)
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return tlsConfig, nil
}

func main() {
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot load config")
	}
	logger = logger.Level(cfg.Level())

	var staticFS, templateFS fs.FS = web.StaticFS, web.TemplateFS
	if cfg.WebFolder != "" {
		staticFS = os.DirFS(filepath.Join(cfg.WebFolder, "static"))
		templateFS = os.DirFS(filepath.Join(cfg.WebFolder, "templates"))
	}
	tlsConfig, err := loadTLS(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot load tls config")
	}

	srv, err := proxy.NewHub(proxy.Options{
		Addr:         cfg.LocalAddr,
		ExternalAddr: cfg.ExternalAddr,
		NumWorkers:   cfg.NumWorkers,
		NTPServer:    cfg.NTP,
		Debug:        cfg.Debug,
	}, staticFS, templateFS, zLogger.ZLogger(&logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create server")
	}
	if err := srv.Start(tlsConfig); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	<-sigint
	logger.Info().Msg("Received shutdown signal")
	if err := srv.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop server")
	}
}
