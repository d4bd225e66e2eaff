package config

import (
	"fmt"
	"os"
	"strings"
)

// Kinds accepted by Template.
var TemplateKinds = []string{"tcp-host", "tcp-client", "ws", "relay"}

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "tcp-host", "tcp":
		return tcpHostTemplate, nil
	case "tcp-client":
		return tcpClientTemplate, nil
	case "ws":
		return wsTemplate, nil
	case "relay":
		return relayTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const tcpHostTemplate = `name = "peer-a"
tick = "16ms"
heartbeat = "5s"
auto_connect = true

[sync]
broadcast_interval = "50ms"
effect_min = "1s"
effect_max = "5s"
blend_restart = 0.1
smoothing_window = "50ms"

[motion]
radius = 1.0
orbit_speed = 1.0
swing_limit = 30.0
swing_speed = 10.0

[admin]
enabled = true
listen = "127.0.0.1:7070"
cors_origins = ["http://localhost:3000"]

[transport]
kind = "tcp"
listen = "127.0.0.1:7777"
dial_timeout = "5s"
max_attempts = 5
`

const tcpClientTemplate = `name = "peer-b"
auto_connect = true

[admin]
enabled = true
listen = "127.0.0.1:7071"

[transport]
kind = "tcp"
peer = "127.0.0.1:7777"
dial_timeout = "5s"
max_attempts = 5
`

const wsTemplate = `name = "peer-a"
auto_connect = true

[admin]
enabled = true
listen = "127.0.0.1:7070"

[transport]
kind = "ws"
listen = "127.0.0.1:7780"
# peer = "ws://127.0.0.1:7781/peer"

[transport.ws]
path = "/peer"
`

const relayTemplate = `name = "peer-a"
auto_connect = true

[admin]
enabled = true
listen = "127.0.0.1:7070"

[transport]
kind = "relay"

[transport.relay]
addr = "127.0.0.1:6379"
db = 0
channel = "peersync:lobby"
announce_interval = "1s"
peer_timeout = "5s"
`
