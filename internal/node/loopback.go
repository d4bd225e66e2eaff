package node

import (
	"github.com/danmuck/peersync/internal/config"
	"github.com/danmuck/peersync/internal/transport/loopback"
)

// NewLoopbackPair builds two nodes joined by an in-process transport. Names
// get "-a" and "-b" suffixes and only the first node keeps the admin surface.
func NewLoopbackPair(cfg config.Config) (*Node, *Node, error) {
	cfgA, cfgB := cfg, cfg
	cfgA.Peer.Name = cfg.Peer.Name + "-a"
	cfgB.Peer.Name = cfg.Peer.Name + "-b"
	if cfgB.Peer.Seed != 0 {
		cfgB.Peer.Seed++
	}
	cfgB.AdminEnabled = false

	ta, tb := loopback.NewPair(cfgA.Peer.Name, cfgB.Peer.Name, cfg.Transport.Options)
	a, err := NewWithTransport(cfgA, ta)
	if err != nil {
		_ = ta.Close()
		return nil, nil, err
	}
	b, err := NewWithTransport(cfgB, tb)
	if err != nil {
		_ = ta.Close()
		_ = tb.Close()
		return nil, nil, err
	}
	return a, b, nil
}
