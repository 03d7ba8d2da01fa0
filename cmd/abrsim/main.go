// The abrsim command simulates an adaptive bitrate player against an HLS master playlist.
//
// A simulated session buffers segments from the variant catalog, switching variants
// as the bandwidth estimate changes. The buffered queue is served as a live playlist,
// and new estimates are posted over HTTP, optionally shared by a Raft cluster.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickb777/date/period"

	"github.com/agleyzer/abrsim/internal/bandwidth"
	"github.com/agleyzer/abrsim/internal/cluster"
	"github.com/agleyzer/abrsim/internal/diag"
	"github.com/agleyzer/abrsim/internal/evaluator"
	"github.com/agleyzer/abrsim/internal/parser"
	"github.com/agleyzer/abrsim/internal/player"
	"github.com/agleyzer/abrsim/internal/server"
	"github.com/agleyzer/abrsim/internal/variant"
)

const (
	version = "1.0.0"
)

// options holds the parsed command line.
type options struct {
	playlistURL  string
	port         int
	evaluator    string
	seed         int64
	bandwidth    bandwidth.Estimate
	config       evaluator.Config
	maxBuffer    time.Duration
	tick         time.Duration
	filter       string
	raftID       string
	raftBind     string
	peers        []string
	raftLogLevel string
}

func main() {
	// Parse command-line flags
	var (
		port           = flag.Int("port", 8080, "HTTP server port")
		verbose        = flag.Bool("verbose", false, "Enable verbose logging")
		showVersion    = flag.Bool("version", false, "Show version and exit")
		evaluatorKind  = flag.String("evaluator", "adaptive", "Variant selection strategy: adaptive, fixed or random")
		seed           = flag.Int64("seed", 0, "Seed for the random evaluator (0 uses the current time)")
		initialBW      = flag.String("bandwidth", "unknown", "Initial bandwidth estimate (e.g. '3M', '800k', 'unknown')")
		initialBitrate = flag.Int64("initial-bitrate", evaluator.DefaultMaxInitialBitrate, "Bitrate assumed while no estimate exists (bps)")
		minIncrease    = flag.String("min-increase", evaluator.DefaultMinDurationForQualityIncrease.String(), "Buffered media required before switching up (e.g. '10s', 'PT10S')")
		maxDecrease    = flag.String("max-decrease", evaluator.DefaultMaxDurationForQualityDecrease.String(), "Buffered media above which switching down is deferred")
		minRetain      = flag.String("min-retain", evaluator.DefaultMinDurationToRetainAfterDiscard.String(), "Media kept at the old quality when discarding to switch up")
		fraction       = flag.Float64("bandwidth-fraction", evaluator.DefaultBandwidthFraction, "Share of the estimate treated as usable")
		maxBuffer      = flag.String("max-buffer", "30s", "Maximum buffered media")
		tick           = flag.Duration("tick", time.Second, "Playback loop interval")
		filter         = flag.String("filter", "", "Variant filter expression over br, w, h, fps, id (e.g. 'h <= 720')")
		raftID         = flag.String("raft-id", "", "Raft node ID (enables cluster mode together with --raft-bind)")
		raftBind       = flag.String("raft-bind", "", "Raft bind address (host:port)")
		peers          = flag.String("peers", "", "Comma-separated Raft peer addresses, including this node")
		raftLogLevel   = flag.String("raft-log-level", "", "Raft log level (trace, debug, info, warn, error); silent if empty")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "ABRSim - Adaptive Bitrate Player Simulator v%s\n\n", version)
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <playlist-url>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Arguments:\n")
		fmt.Fprintf(os.Stderr, "  <playlist-url>    URL of the HLS master (or media) playlist\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s https://example.com/master.m3u8\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --bandwidth 5M --bandwidth-fraction 0.75 https://example.com/master.m3u8\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --filter 'h <= 720' --min-increase PT5S https://example.com/master.m3u8\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --raft-id node1 --raft-bind 127.0.0.1:7001 --peers 127.0.0.1:7001,127.0.0.1:7002 https://example.com/master.m3u8\n", os.Args[0])
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("ABRSim v%s\n", version)
		os.Exit(0)
	}

	// Check for playlist URL argument
	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: playlist URL is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	// Validate flags
	if *port < 1 || *port > 65535 {
		fmt.Fprintf(os.Stderr, "Error: port must be between 1 and 65535\n")
		os.Exit(1)
	}

	opts := options{
		playlistURL:  flag.Arg(0),
		port:         *port,
		evaluator:    *evaluatorKind,
		seed:         *seed,
		tick:         *tick,
		filter:       *filter,
		raftID:       *raftID,
		raftBind:     *raftBind,
		peers:        splitPeers(*peers),
		raftLogLevel: *raftLogLevel,
		config: evaluator.Config{
			MaxInitialBitrate: *initialBitrate,
			BandwidthFraction: *fraction,
		},
	}

	var err error
	if opts.bandwidth, err = bandwidth.ParseEstimate(*initialBW); err != nil {
		exitf("invalid --bandwidth: %v", err)
	}
	for _, d := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"min-increase", *minIncrease, &opts.config.MinDurationForQualityIncrease},
		{"max-decrease", *maxDecrease, &opts.config.MaxDurationForQualityDecrease},
		{"min-retain", *minRetain, &opts.config.MinDurationToRetainAfterDiscard},
		{"max-buffer", *maxBuffer, &opts.maxBuffer},
	} {
		if *d.dst, err = parseDuration(d.value); err != nil {
			exitf("invalid --%s: %v", d.name, err)
		}
	}
	if err := opts.config.Validate(); err != nil {
		exitf("invalid evaluator settings: %v", err)
	}
	if opts.tick <= 0 {
		exitf("--tick must be positive")
	}

	// Setup logger
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	logger.Info("ABRSim starting", "version", version)

	// Run the application
	if err := run(opts, logger); err != nil {
		logger.Error("application error", "error", err)
		os.Exit(1)
	}

	logger.Info("ABRSim stopped")
}

func run(opts options, logger *slog.Logger) error {
	// Load the variant catalog
	logger.Info("fetching source playlist", "url", opts.playlistURL)
	playlistInfo, err := parser.ParsePlaylist(opts.playlistURL)
	if err != nil {
		return fmt.Errorf("failed to parse playlist: %w", err)
	}

	variants, err := variant.Filter(playlistInfo.Variants, opts.filter)
	if err != nil {
		return fmt.Errorf("failed to filter variants: %w", err)
	}

	logger.Info("parsed playlist",
		"master", playlistInfo.IsMaster,
		"variants", len(variants),
		"targetDuration", playlistInfo.TargetDuration,
	)
	for i, v := range variants {
		logger.Info("variant",
			"index", i,
			"id", v.ID,
			"bandwidth", v.Bitrate,
			"resolution", v.Resolution(),
			"segments", len(v.Segments),
		)
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received signal", "signal", sig)
		cancel()
	}()

	// Bandwidth source: local meter, or the cluster's replicated estimate
	var (
		meter     bandwidth.Meter
		publisher server.Publisher
	)
	if opts.clusterMode() {
		manager, err := startCluster(ctx, opts, logger)
		if err != nil {
			return err
		}
		defer manager.Shutdown()
		meter, publisher = manager, manager
	} else {
		local := bandwidth.NewAtomicMeter(opts.bandwidth)
		meter, publisher = local, local
	}

	ev, err := newEvaluator(opts, meter, logger)
	if err != nil {
		return err
	}

	p, err := player.New(ev, meter, variants, opts.maxBuffer, logger)
	if err != nil {
		return fmt.Errorf("failed to create player: %w", err)
	}

	// Start playback in a goroutine
	go p.Run(ctx, opts.tick)

	// Create and start the HTTP server
	srv := server.New(p, publisher, opts.port, logger)

	logger.Info("simulated player ready",
		"playlist", fmt.Sprintf("http://localhost:%d/playlist.m3u8", opts.port),
		"master", fmt.Sprintf("http://localhost:%d/master.m3u8", opts.port),
		"bandwidth", fmt.Sprintf("http://localhost:%d/bandwidth", opts.port),
		"debug", fmt.Sprintf("http://localhost:%d/debug", opts.port),
		"evaluator", opts.evaluator,
	)

	// Start server (blocks until shutdown)
	return srv.Start(ctx)
}

func (o options) clusterMode() bool {
	return o.raftID != "" || o.raftBind != ""
}

// startCluster joins the Raft cluster and seeds it with the initial estimate when this node leads.
func startCluster(ctx context.Context, opts options, logger *slog.Logger) (*cluster.Manager, error) {
	peers := opts.peers
	if len(peers) == 0 {
		peers = []string{opts.raftBind}
	}

	manager, err := cluster.NewManager(cluster.Config{
		RaftID:       opts.raftID,
		BindAddr:     opts.raftBind,
		Peers:        peers,
		RaftLogLevel: opts.raftLogLevel,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster manager: %w", err)
	}

	if err := manager.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start cluster: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := manager.WaitForLeader(waitCtx); err != nil {
		manager.Shutdown()
		return nil, fmt.Errorf("waiting for cluster leader: %w", err)
	}

	logger.Info("cluster ready", "state", manager.State(), "leader", manager.LeaderAddr())

	if manager.IsLeader() && opts.bandwidth.IsKnown() && !manager.Estimate().IsKnown() {
		if err := manager.Publish(opts.bandwidth); err != nil {
			logger.Warn("failed to publish initial estimate", "error", err)
		}
	}

	return manager, nil
}

// newEvaluator builds the evaluator selected by --evaluator.
func newEvaluator(opts options, meter bandwidth.Meter, logger *slog.Logger) (evaluator.Evaluator, error) {
	switch opts.evaluator {
	case "adaptive":
		ev, err := evaluator.NewAdaptive(meter, opts.config, diag.NewLogObserver(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create adaptive evaluator: %w", err)
		}
		return ev, nil
	case "fixed":
		return evaluator.Fixed{}, nil
	case "random":
		seed := opts.seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		logger.Info("random evaluator", "seed", seed)
		return evaluator.NewRandom(seed), nil
	default:
		return nil, fmt.Errorf("unknown evaluator %q (want adaptive, fixed or random)", opts.evaluator)
	}
}

// parseDuration accepts Go durations ("10s", "1m30s") and ISO-8601 periods ("PT10S").
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	p, err := period.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("%q is neither a Go duration nor an ISO-8601 period: %w", s, err)
	}

	d, precise := p.Duration()
	if !precise {
		return 0, fmt.Errorf("period %q has no exact duration", s)
	}
	return d, nil
}

// splitPeers splits a comma-separated peer list, dropping blanks.
func splitPeers(s string) []string {
	var peers []string
	for _, peer := range strings.Split(s, ",") {
		if peer = strings.TrimSpace(peer); peer != "" {
			peers = append(peers, peer)
		}
	}
	return peers
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
