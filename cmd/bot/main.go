package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/homestead/internal/bot"
	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/internal/core/transport"
	"github.com/zeusync/homestead/sdk/go/client"
)

func main() {
	defaults := bot.DefaultConfig()
	var (
		url      = flag.String("url", "ws://localhost:8080/ws", "websocket endpoint")
		quicAddr = flag.String("quic", "", "QUIC address; overrides -url")
		insecure = flag.Bool("insecure", true, "accept any QUIC server certificate")
		count    = flag.Int("count", 1, "number of bots")
		name     = flag.String("name", defaults.Name, "family name prefix")
		members  = flag.Int("members", defaults.Members, "members per family")
		every    = flag.Duration("every", defaults.Every, "time between actions")
		level    = flag.String("log", "info", "log level")
	)
	flag.Parse()

	lvl, err := log.ParseLevel(*level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
	logger := log.New(lvl)

	dial := client.WebSocket(*url, transport.DefaultConfig(), logger)
	if *quicAddr != "" {
		dial = client.QUIC(*quicAddr, transport.ClientTLS(*insecure), transport.DefaultConfig(), logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	for i := range *count {
		config := defaults
		config.Name = fmt.Sprintf("%s %d", *name, i+1)
		config.Members = *members
		config.Every = *every

		group.Go(func() error {
			cc := client.DefaultClientConfig()
			cc.Name = config.Name
			cc.LogLevel = lvl
			c := client.NewClientWithLogger(cc, dial, logger)
			defer func() { _ = c.Close() }()
			if err := c.Connect(ctx); err != nil {
				return fmt.Errorf("%s: %w", config.Name, err)
			}
			return bot.New(c, config, logger).Run(ctx)
		})
	}
	if err := group.Wait(); err != nil {
		logger.Error("Bots stopped", log.Error(err))
		os.Exit(1)
	}
}
