package main

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/peersync/internal/config"
	"github.com/danmuck/peersync/internal/node"
	"github.com/rs/zerolog/log"
)

// runDemo runs a host and a client in one process. Once linked, the first
// node claims host and spawns an object so the replica path is visible in the
// logs and on the admin surface.
func runDemo(ctx context.Context, cfg config.Config) error {
	a, b, err := node.NewLoopbackPair(cfg)
	if err != nil {
		return err
	}
	errs := make(chan error, 2)
	go func() { errs <- a.Run(ctx) }()
	go func() { errs <- b.Run(ctx) }()

	if err := waitConnected(ctx, a); err != nil {
		return errors.Join(err, <-errs, <-errs)
	}
	host := a.Peer()
	if err := host.Do(ctx, host.BecomeHost); err != nil {
		log.Warn().Err(err).Msg("demo host claim failed")
	} else {
		var name string
		err := host.Do(ctx, func() error {
			var err error
			name, err = host.SpawnLocal()
			return err
		})
		if err != nil {
			log.Warn().Err(err).Msg("demo spawn failed")
		} else {
			log.Info().Str("object", name).Msg("demo object spawned")
		}
	}
	return errors.Join(<-errs, <-errs)
}

func waitConnected(ctx context.Context, n *node.Node) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if n.Peer().Snapshot().Connected {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
