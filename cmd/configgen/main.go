package main

import (
	"flag"
	"log"
	"strings"

	"github.com/danmuck/peersync/internal/config"
)

func main() {
	kind := flag.String("kind", "tcp-host", "config kind: "+strings.Join(config.TemplateKinds, "|"))
	output := flag.String("output", "peer.toml", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to -output)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = *output
		}
		cfg, err := config.Load(path)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated config at %s (peer=%s transport=%s)", path, cfg.Peer.Name, cfg.Transport.Kind)
		return
	}

	if err := config.WriteTemplate(*output, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, *output)
}
