package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/danmuck/peersync/internal/config"
	"github.com/danmuck/peersync/internal/node"
	"github.com/danmuck/peersync/internal/observability"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "peer config path (toml); defaults and env apply when empty")
	envFile := flag.String("env", ".env", "optional env file loaded before config")
	demo := flag.Bool("demo", false, "run two peers in-process over a loopback link (the default transport)")
	flag.Parse()

	envErr := config.LoadDotEnv(*envFile)
	observability.InitLogger("peerctl")
	if envErr != nil {
		log.Fatal().Err(envErr).Msg("failed to load env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load peer config")
	}
	log.Info().
		Str("path", *configPath).
		Str("peer", cfg.Peer.Name).
		Str("transport", string(cfg.Transport.Kind)).
		Msg("loaded peer config")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *demo || cfg.Transport.Kind == config.TransportLoopback {
		if err := runDemo(ctx, cfg); err != nil {
			log.Error().Err(err).Msg("demo stopped")
		}
		return
	}

	n, err := node.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build node")
	}
	if err := n.Run(ctx); err != nil {
		log.Error().Err(err).Msg("peer stopped")
	}
}
