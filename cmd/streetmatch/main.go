// Copyright 2025 The StreetMatch Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the street name matching server and CLI [DBG] application.

streetmatch decides whether two street names denote the same street (Exact),
a variant of it (Similar) or a different street (Different). A trained
classifier is combined with a decision policy on normalized string
similarity, and the model learns online from feedback sent with requests.

# Usage

Start the HTTP server with default settings:

	streetmatch

Use a custom config, enable debug mode and bind another address:

	streetmatch -config ./streetmatch.toml -d -http 0.0.0.0:8080

Serve MessagePack over stdin/stdout instead of HTTP:

	streetmatch -ipc

Run in CLI mode for interactive testing:

	streetmatch -c

# Model

On first start there is no persisted model, so one is trained from the
built-in seed pairs (or [model].seed_data) and saved to the model directory as
vocabulary.msgpack and model.msgpack. Later starts load those files. -retrain
discards them and trains again, appending the pairs recorded in the feedback
journal to the seed.

# Configuration

The config file is created with defaults at ~/.config/streetmatch/config.toml
if it doesn't exist:

	[model]
	strategy = "linear"

	[policy]
	kind = "levenshtein"
	similarity_floor = 0.6

Use the "forest" strategy with the "cosine" policy for the second pipeline.

# HTTP

	POST /compare    {"name1": "Main Rd", "name2": "Main Road", "feedback": 2}
	POST /geolocate  {"address": "Avenida 18 de Julio, Montevideo"}
	GET  /health
	GET  /api/info
	GET  /metrics

# IPC Protocol

	{"id": "r1", "a": "compare", "n1": "Main Rd", "n2": "main road"}
	{"id": "r1", "l": "Similar", "p": "Similar", "d": 2, "s": 0.78, "cs": 0.5, "cf": 0.93, "t": 85}

# Command Line Flags

	-config string
	    Path to config.toml
	-d  Enable debug mode with detailed logging
	-c  Run CLI -- useful for testing and debugging
	-ipc
	    Serve MessagePack over stdin/stdout
	-http string
	    Listen address, overrides [server] host and port
	-model string
	    Model directory, overrides [model].dir
	-retrain
	    Train a new model even if one is persisted
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/bastiangx/streetmatch/internal/cli"
	"github.com/bastiangx/streetmatch/internal/httpapi"
	"github.com/bastiangx/streetmatch/internal/logger"
	"github.com/bastiangx/streetmatch/internal/metrics"
	"github.com/bastiangx/streetmatch/internal/utils"
	"github.com/bastiangx/streetmatch/pkg/config"
	"github.com/bastiangx/streetmatch/pkg/geocode"
	"github.com/bastiangx/streetmatch/pkg/match"
	"github.com/bastiangx/streetmatch/pkg/normalize"
	"github.com/bastiangx/streetmatch/pkg/policy"
	"github.com/bastiangx/streetmatch/pkg/server"
	"github.com/bastiangx/streetmatch/pkg/store"
	"github.com/bastiangx/streetmatch/pkg/training"
)

const (
	Version = "0.1.0-beta"
	AppName = "streetmatch"
	gh      = "https://github.com/bastiangx/streetmatch"
)

// sigHandler returns a context cancelled on SIGINT or SIGTERM. A second
// signal exits immediately.
func sigHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		cancel()
		<-c
		os.Exit(1)
	}()
	return ctx
}

// options holds the parsed command line.
type options struct {
	configPath string
	debug      bool
	cli        bool
	ipc        bool
	httpAddr   string
	modelDir   string
	retrain    bool
}

// main parses flags and hands off to run. It does not implement matching
// logic itself.
func main() {
	ctx := sigHandler()

	var opts options
	showVersion := flag.Bool("version", false, "Show current version")
	flag.StringVar(&opts.configPath, "config", "", "Path to config.toml")
	flag.BoolVar(&opts.debug, "d", false, "Toggle debug mode")
	flag.BoolVar(&opts.cli, "c", false, "Run CLI -- useful for testing and debugging")
	flag.BoolVar(&opts.ipc, "ipc", false, "Serve MessagePack over stdin/stdout")
	flag.StringVar(&opts.httpAddr, "http", "", "Listen address (host:port), overrides [server]")
	flag.StringVar(&opts.modelDir, "model", "", "Model directory, overrides [model].dir")
	flag.BoolVar(&opts.retrain, "retrain", false, "Train a new model from seed and journaled feedback")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	logger.Setup(opts.debug)

	if err := run(ctx, opts); err != nil {
		log.Fatal(err)
	}
}

// run wires config, storage and the engine, then serves on one transport
// until it stops. Errors are returned so deferred cleanup always runs.
func run(ctx context.Context, flags options) error {
	cfg, activePath, err := config.LoadConfigWithPriority(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", config.GetActiveConfigPath(activePath), err)
	}
	log.Debugf("Using config file: (%s)", config.GetActiveConfigPath(activePath))

	configDir := filepath.Dir(activePath)
	if activePath == "" {
		if configDir, err = config.GetConfigDir(); err != nil {
			return fmt.Errorf("determine config dir: %w", err)
		}
	}
	pathResolver, err := utils.NewPathResolver(configDir)
	if err != nil {
		return fmt.Errorf("initialize path resolver: %w", err)
	}
	log.Debug("runtime", "info", pathResolver.GetRuntimeInfo())

	dir := flags.modelDir
	if dir == "" {
		dir = pathResolver.Resolve(cfg.ModelDir(configDir))
	}
	if err := utils.EnsureDir(dir); err != nil {
		return fmt.Errorf("create model dir %s: %w", dir, err)
	}

	tables, err := normalize.LoadTables(pathResolver.Resolve(cfg.Normalize.Tables))
	if err != nil {
		return fmt.Errorf("load normalization tables: %w", err)
	}
	norm := normalize.New(tables, cfg.NormalizeOptions())

	pol, err := policy.New(cfg.PolicyConfig())
	if err != nil {
		return fmt.Errorf("build decision policy: %w", err)
	}

	seed, err := training.LoadSeed(pathResolver.Resolve(cfg.Model.SeedData))
	if err != nil {
		return fmt.Errorf("load seed pairs: %w", err)
	}

	opts := match.Options{
		Normalizer: norm,
		Policy:     pol,
		Store:      store.NewFileStore(dir),
		Seed:       seed,
		Training:   cfg.TrainingOptions(),
		Retrain:    flags.retrain,
	}

	journaled := -1
	if cfg.Journal.Enabled {
		journal, err := store.OpenJournal(pathResolver.Resolve(cfg.JournalPath(dir)))
		if err != nil {
			return fmt.Errorf("open feedback journal: %w", err)
		}
		defer journal.Close()
		opts.Journal = journal

		if journaled, err = journal.Count(ctx); err != nil {
			return fmt.Errorf("count feedback journal: %w", err)
		}
		if flags.retrain {
			extra, err := journal.Examples(ctx)
			if err != nil {
				return fmt.Errorf("read feedback journal: %w", err)
			}
			log.Infof("Retraining with %d seed and %d journaled pairs", len(seed), len(extra))
			opts.Seed = append(opts.Seed, extra...)
		}
	}

	engine, res, err := match.Open(opts)
	if err != nil {
		return fmt.Errorf("open model: %w", err)
	}
	if res != nil {
		logTrainingReports(res)
		if flags.debug {
			training.Replay(res.Classifier, res.Extractor, opts.Seed)
		}
	}

	var geo geocode.Geocoder
	if cfg.Geocode.Enabled {
		geo = geocode.New(cfg.GeocodeConfig())
	}

	// CLI would be mainly used for testing and dbg purposes.
	if flags.cli {
		log.SetReportTimestamp(false)
		inputHandler := cli.NewInputHandler(engine)
		if err := inputHandler.Start(ctx); err != nil {
			return fmt.Errorf("CLI: %w", err)
		}
		return nil
	}

	mx := metrics.New()

	if flags.ipc {
		log.Debug("spawning IPC")
		showStartupInfo(engine.Info(), dir, "stdin/stdout", journaled)
		srv := server.NewServer(engine, geo, mx)
		if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("IPC server: %w", err)
		}
		return nil
	}

	serverCfg := &httpapi.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}
	if flags.httpAddr != "" {
		host, port, err := net.SplitHostPort(flags.httpAddr)
		if err != nil {
			return fmt.Errorf("invalid -http address %q: %w", flags.httpAddr, err)
		}
		if serverCfg.Port, err = strconv.Atoi(port); err != nil {
			return fmt.Errorf("invalid -http port %q: %w", port, err)
		}
		serverCfg.Host = host
	}

	srv, err := httpapi.NewServer(engine, geo, mx, serverCfg)
	if err != nil {
		return fmt.Errorf("create HTTP server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	showStartupInfo(engine.Info(), dir, net.JoinHostPort(serverCfg.Host, strconv.Itoa(serverCfg.Port)), journaled)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Shutdown: %v", err)
		}
	}
	return nil
}

// logTrainingReports prints the train and eval reports at info level even
// when the logger is set to warnings only.
func logTrainingReports(res *training.Result) {
	currentLevel := log.GetLevel()
	if currentLevel > log.InfoLevel {
		log.SetLevel(log.InfoLevel)
		defer log.SetLevel(currentLevel)
	}
	res.Train.Log("train")
	if res.Eval.Total > 0 {
		res.Eval.Log("eval")
	}
}

func printVersion() {
	banner := logger.NewWithConfig(os.Stderr, "", log.InfoLevel, false, false, log.TextFormatter)

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	banner.SetStyles(styles)

	banner.Print("")
	banner.Print("[ StreetMatch ] Tells street names apart")
	banner.Print("", "version", Version)
	banner.Print("")
	banner.Print("use -h or --help to see available options")
	banner.Print("Github Repo", "gh", gh)
}

// showStartupInfo displays some basic info about the init process.
func showStartupInfo(info match.Info, modelDir, listen string, journaled int) {
	pid := os.Getpid()
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)

	fmt.Fprintln(os.Stderr, "=============")
	fmt.Fprintln(os.Stderr, " StreetMatch ")
	fmt.Fprintln(os.Stderr, "=============")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", pid)
	log.Infof("model: %s + %s policy, %d features, %d updates", info.Kind, info.Policy, info.Dim, info.Updates)
	log.Infof("model dir: ( %s )", modelDir)
	if journaled >= 0 {
		log.Infof("feedback journal: %d events", journaled)
	}
	log.Infof("listening: %s", listen)
	log.Info("status: ready")
	fmt.Fprintln(os.Stderr, "=============")
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to exit")

	log.SetLevel(currentLevel)
}
