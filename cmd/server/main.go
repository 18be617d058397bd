package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/typewire/typewire/internal/chat"
	"github.com/typewire/typewire/internal/config"
	"github.com/typewire/typewire/internal/group"
	"github.com/typewire/typewire/internal/observability"
	"github.com/typewire/typewire/internal/session"
	"github.com/typewire/typewire/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	announceEvery := flag.Duration("announce", 0, "Push demo room notices at this interval (0 = off)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		bootLog := observability.InitLogger("typewire", "info")
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	log := observability.InitLogger("typewire", cfg.Log.Level)
	observability.RegisterMetrics()

	dir := group.NewDirectory()
	events := group.NewEvents(dir, log)

	svc := chat.NewService(cfg.Chat, dir, log)
	typ, err := svc.SessionType(session.Settings{
		ActionField:             cfg.Session.ActionField,
		SendAuthentication:      cfg.Session.SendAuthentication,
		SendCompletion:          cfg.Session.SendCompletion,
		SendBroadcastCompletion: cfg.Session.SendBroadcastCompletion,
		Camelize:                cfg.Session.Camelize,
		LogExclude:              cfg.Session.LogExclude,
	})
	if err != nil {
		// Registration problems are configuration bugs; refuse to serve.
		log.Fatal().Err(err).Msg("invalid session type definition")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *announceEvery > 0 {
		chat.NewAnnouncer(events, cfg.Chat.Rooms, *announceEvery, log).Start(ctx)
	}

	server := ws.NewServer(cfg, dir, events, log)
	mux := http.NewServeMux()
	server.Handle(mux, "/ws", typ)
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		cancel()
		os.Exit(0)
	}()

	if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux, log); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
