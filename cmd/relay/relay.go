package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/ppecam/ppecam/server/config"
	"github.com/ppecam/ppecam/server/relay"
)

// The relay forwards browser requests to the two detection services,
// attaching the bearer credential server-side.
func main() {
	parser := argparse.NewParser("ppecam-relay", "Detection service relay")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file", Default: ""})
	port := parser.String("", "port", &argparse.Options{Help: "Override the relay listen address (eg :8089)", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.RelayPort = *port
	}

	bearer := os.Getenv("PPECAM_BEARER_TOKEN")
	if bearer == "" {
		logger.Warnf("PPECAM_BEARER_TOKEN is not set. Upstream calls will be unauthenticated.")
	}

	p := relay.NewRelay(logger, cfg.PersonDetectorURL, cfg.PPEDetectorURL, bearer)
	if err := p.ListenAndServe(cfg.RelayPort); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
