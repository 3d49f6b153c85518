package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/vmeet/signaling/registry"
	"github.com/vmeet/signaling/relay"
	httpServer "github.com/vmeet/signaling/server/http"
	websocketServer "github.com/vmeet/signaling/server/websocket"
	"github.com/vmeet/signaling/service"
	store "github.com/vmeet/signaling/storage/memory"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		apiListenAddr = fs.StringP("api-listen-addr", "a", ":4001", "api listen address")
		wsListenAddr  = fs.StringP("ws-listen-addr", "w", ":4002", "websocket signaling listen address")
		logLevel      = fs.StringP("log-level", "l", "debug", "log level")
		historyLimit  = fs.Int("history-limit", store.DefaultHistoryLimit, "per-room chat backlog cap, 0 for unbounded")
		staticDir     = fs.String("static-dir", "", "serve static assets from this directory (production mode)")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	memStore, err := store.NewMemStore(store.Config{HistoryLimit: *historyLimit})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create room store")
	}

	svc := service.NewService(service.Config{
		RoomStore: memStore,
		Relay:     relay.New(&logger),
		Registry:  registry.New(),
		Logger:    &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		RoomService: svc,
		ListenAddr:  *apiListenAddr,
		StaticDir:   *staticDir,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:         &logger,
		SessionService: svc,
		ListenAddr:     *wsListenAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
