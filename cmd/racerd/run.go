package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ten2mushi/racer/pkg/racer/config"
	"github.com/ten2mushi/racer/pkg/racer/core"
	"github.com/ten2mushi/racer/pkg/racer/crypto"
	"github.com/ten2mushi/racer/pkg/racer/logging"
	"github.com/ten2mushi/racer/pkg/racer/peers"
	"github.com/ten2mushi/racer/pkg/racer/plato"
	"github.com/ten2mushi/racer/pkg/racer/round"
	"github.com/ten2mushi/racer/pkg/racer/sample"
	"github.com/ten2mushi/racer/pkg/racer/transport"
	"github.com/ten2mushi/racer/pkg/racer/vclock"
)

func runNode() error {
	cfg := config.Default()
	if _, err := os.Stat(*runConfigPath); err == nil {
		loaded, err := config.LoadFile(*runConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if *runNodeID != "" {
		cfg.Node.ID = *runNodeID
	}
	if *runRouterBind != "" {
		cfg.Node.RouterBind = *runRouterBind
	}
	if *runPublisher != "" {
		cfg.Node.PublisherBind = *runPublisher
	}
	if *runSelection != "" {
		cfg.Node.SelectionType = *runSelection
	}

	keyHex, err := os.ReadFile(*runKeyFile)
	if err != nil {
		return fmt.Errorf("read key file %s (run `racerd keygen` first): %w", *runKeyFile, err)
	}
	keyPair, err := crypto.ParsePrivateKeyHex(string(keyHex))
	if err != nil {
		return fmt.Errorf("parse key file %s: %w", *runKeyFile, err)
	}
	cfg.Node.ID = keyPair.Public.Hex()

	if err := cfg.Validate(); err != nil {
		return err
	}
	if headroom := cfg.Consensus.ByzantineHeadroom(); headroom < 1 {
		fmt.Fprintf(os.Stderr, "racerd: WARNING byzantine headroom is %d at the configured thresholds\n", headroom)
	}

	log := logging.NewLogrusLogger(cfg.Logging.Level)
	log.ToggleDebug(cfg.Logging.Level == "debug" || *runDebug)

	sink, err := logging.NewDeliveredLogger(cfg.LogDirFor(cfg.Node.ID), cfg.Logging.DeliveredFile, log)
	if err != nil {
		return fmt.Errorf("open delivered-log sink: %w", err)
	}
	defer sink.Close()

	peerReg := peers.New(cfg.Node.ID)
	for _, p := range cfg.Peers {
		peerReg.Add(peers.Info{ID: p.ID, RouterAddress: p.RouterAddress})
	}

	selector := sample.NewSelector(rand.New(rand.NewSource(time.Now().UnixNano())))
	selector.Policy = parseSelectionPolicy(cfg.Node.SelectionType)

	target, targetPublishFreq, minimum, maxTimeout, maxFreq := cfg.PlatoDurations()
	platoCfg := plato.Config{
		TargetLatency:             target,
		TargetPublishingFrequency: targetPublishFreq,
		MinimumLatency:            minimum,
		MaxGossipTimeout:          maxTimeout,
		MaxPublishingFrequency:    maxFreq,
		OwnLatencyWeight:          cfg.Plato.OwnLatencyWeight,
		RSIOverbought:             cfg.Plato.RSIOverbought,
		RSIOversold:               cfg.Plato.RSIOversold,
		UpPeriod:                  cfg.Plato.RSIUpPeriod,
		DownPeriod:                cfg.Plato.RSIDownPeriod,
		SmoothingWindowUp:         cfg.Plato.SmoothingWindowUp,
		SmoothingWindowDown:       cfg.Plato.SmoothingWindowDown,
	}
	if err := platoCfg.Validate(); err != nil {
		return fmt.Errorf("plato config: %w", err)
	}

	tr := transport.NewZMQTransport(cfg.Node.ID, cfg.Node.RouterBind, cfg.Node.PublisherBind)

	engine := core.NewEngine(
		keyPair,
		cfg.Consensus,
		round.NewRegistry(cfg.Consensus.MaxDelivered),
		peerReg,
		vclock.New(),
		selector,
		plato.NewController(platoCfg, rand.New(rand.NewSource(time.Now().UnixNano()+1))),
		tr,
		sink,
		log,
	)
	engine.SetAddresses(cfg.Node.RouterBind, cfg.Node.PublisherBind)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	log.Infof("node started id=%s router=%s publisher=%s peers=%d", cfg.Node.ID, cfg.Node.RouterBind, cfg.Node.PublisherBind, peerReg.Len())

	if *runDebug {
		go statusLoop(ctx, engine, log)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Infof("shutdown signal received")
	engine.Stop()
	return nil
}

func parseSelectionPolicy(selectionType string) sample.Policy {
	switch selectionType {
	case "random":
		return sample.Random
	case "poisson":
		return sample.Poisson
	default:
		return sample.Normal
	}
}

// statusLoop prints a periodic PLATO status line while --debug is set,
// per SPEC_FULL.md's PlatoStats debug-surface feature.
func statusLoop(ctx context.Context, engine *core.Engine, log logging.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := engine.PlatoStats()
			log.Infof("plato status latency=%s publishing_frequency=%s own_rsi_up=%.1f peer_rsi_up=%.1f recently_missed=%v",
				stats.Latency, stats.PublishingFrequency, stats.OwnRSIUp, stats.PeerRSIUp, stats.RecentlyMissedDelivery)
		}
	}
}
