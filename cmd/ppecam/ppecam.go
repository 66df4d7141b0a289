package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/ppecam/ppecam/server"
	"github.com/ppecam/ppecam/server/config"
	"github.com/ppecam/ppecam/server/sampler"
	"github.com/ppecam/ppecam/server/session"
)

func main() {
	parser := argparse.NewParser("ppecam", "PPE compliance monitor")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file", Default: ""})
	port := parser.String("", "port", &argparse.Options{Help: "Override the HTTP listen address (eg :8088)", Default: ""})
	videoFile := parser.String("", "video", &argparse.Options{Help: "Analyze a video file, print the resulting stats, and exit", Default: ""})
	camera := parser.Int("", "camera", &argparse.Options{Help: "Capture device index for live mode", Default: -1})
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
	check(logger, err)
	if *port != "" {
		cfg.HTTPPort = *port
	}
	if *camera >= 0 {
		cfg.CameraDevice = *camera
	}

	// The upstream credential stays out of the config file
	bearer := os.Getenv("PPECAM_BEARER_TOKEN")

	srv, err := server.NewServer(logger, cfg, bearer)
	check(logger, err)

	if *videoFile != "" {
		analyzeFile(logger, srv, *videoFile)
		return
	}

	check(logger, srv.ListenAndServe(cfg.HTTPPort))
}

func analyzeFile(logger logs.Log, srv *server.Server, filename string) {
	source, err := sampler.NewVideoFileSource(filename, srv.Config.FileSampleCount, srv.Config.JPEGQuality)
	check(logger, err)
	defer source.Close()

	_, err = session.RunFile(context.Background(), logger, source, srv.Detector, srv.Reconciler, srv.Store)
	check(logger, err)

	stats := srv.Store.Stats(srv.Vocab.Classes)
	out, _ := json.MarshalIndent(stats, "", "\t")
	fmt.Printf("%v\n", string(out))
}

func check(logger logs.Log, err error) {
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
