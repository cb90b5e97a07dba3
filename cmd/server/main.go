package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/zeusync/homestead/internal/config"
	"github.com/zeusync/homestead/internal/core/asset"
	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/transport"
	"github.com/zeusync/homestead/internal/injector"
	"github.com/zeusync/homestead/internal/server"
	"github.com/zeusync/homestead/pkg/concurrent"
)

func main() {
	path := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*path); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(path string) error {
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	app, cleanup, err := injector.InitializeApp(c)
	if err != nil {
		return err
	}
	defer cleanup()
	logger := app.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var listeners []transport.Listener

	ws := transport.NewWebSocketListener(c.Server.WebSocketAddr, c.Transport, logger)
	listeners = append(listeners, ws)
	httpServer := server.NewHTTPServer(c.Server.WebSocketAddr, app.Server, ws, logger)
	httpServer.Start()
	defer func() {
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Stop(shutdown); err != nil {
			logger.Warn("HTTP shutdown failed", log.Error(err))
		}
	}()

	if c.Server.QUICAddr != "" {
		tlsConfig, err := serverTLS(c.Server)
		if err != nil {
			return err
		}
		quic, err := transport.ListenQUIC(c.Server.QUICAddr, tlsConfig, c.Transport, logger)
		if err != nil {
			return err
		}
		listeners = append(listeners, quic)
	}

	go reloadOnHangup(ctx, app.Server, c.World.Assets, logger)

	err = app.Server.Run(ctx, listeners...)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func serverTLS(c server.Config) (*tls.Config, error) {
	if c.TLSCert != "" {
		return transport.LoadTLS(c.TLSCert, c.TLSKey)
	}
	return transport.SelfSignedTLS("localhost")
}

// reloadOnHangup re-reads every descriptor of the asset directory on SIGHUP
// and hands them to the server.
func reloadOnHangup(ctx context.Context, srv *server.Server, dir string, logger log.Log) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}
		files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
		if err != nil {
			logger.Error("Asset reload failed", log.Error(err))
			continue
		}
		for i, parsed := range concurrent.Each(files, 0, asset.LoadFile) {
			desc, err := parsed.Value, parsed.Err
			if err != nil {
				logger.Warn("Skipping descriptor", log.String("file", files[i]), log.Error(err))
				continue
			}
			if err = srv.Reload(desc); err != nil {
				logger.Warn("Reload refused", log.String("descriptor", desc.ID), log.Error(err))
			}
		}
	}
}
