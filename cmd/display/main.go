package main

import (
	"context"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"emperror.dev/errors"
	"github.com/gorilla/websocket"
	"github.com/je4/mediaport/pkg/browser"
	"github.com/je4/mediaport/pkg/client"
	"github.com/je4/mediaport/pkg/media"
	"github.com/je4/mediaport/pkg/port"
	"github.com/je4/utils/v2/pkg/zLogger"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot load config")
	}
	logger = logger.Level(cfg.Level())
	zlogger := zLogger.ZLogger(&logger)
	logger.Info().Msgf("Starting display with name %s", cfg.Name)

	br, err := browser.NewBrowser(cfg.BrowserOptions(), zlogger, func(s string, i ...interface{}) {
		logger.Debug().Msgf("browser: "+s, i...)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create browser")
	}
	if err := br.Run(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start browser")
	}
	defer br.Close()
	if err := br.InstallShims(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to install compatibility shims")
	}
	if cfg.PlayerURL != "" {
		u, err := url.Parse(cfg.PlayerURL)
		if err != nil {
			logger.Fatal().Err(err).Msgf("invalid player url %s", cfg.PlayerURL)
		}
		if err := br.Navigate(u); err != nil {
			logger.Error().Err(err).Msg("Failed to load player page")
		}
	}

	wsPath, err := url.JoinPath(cfg.ProxyAddr, cfg.Name)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create websocket path")
	}
	logger.Info().Msgf("Connecting to websocket proxy server at %s", wsPath)
	conn, _, err := websocket.DefaultDialer.Dial(wsPath, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to websocket proxy server")
	}

	comm := client.NewCommunication(conn, cfg.Name, zlogger)
	adapter := media.NewAdapter(br.Registry(), media.NewCompat(br.Natives()), zlogger)
	mediaPort := port.New(adapter, comm, zlogger)
	mediaPort.SetNavigator(br)
	mediaPort.SetInspector(br)
	if err := mediaPort.Subscribe(comm); err != nil {
		logger.Fatal().Err(err).Msg("Failed to subscribe media port")
	}
	if err := comm.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start communication")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	if cfg.NTP {
		g.Go(func() error {
			if _, err := comm.NTP(); err != nil {
				logger.Warn().Err(err).Msg("cannot measure clock offset")
			}
			return nil
		})
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			logger.Info().Msg("Received shutdown signal")
			return nil
		case <-comm.Done():
			return errors.New("proxy connection lost")
		}
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("display stopped")
	}

	mediaPort.Close()
	logger.Info().Msg("Closing communication")
	if err := comm.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop communication")
	}
}
