package main

import (
	"fmt"

	"github.com/ten2mushi/racer/pkg/racer/config"
)

func runConfigValidate() error {
	cfg, err := config.LoadFile(*configValidatePath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Printf("configuration valid: %s\n\n", *configValidatePath)
	fmt.Println("node:")
	fmt.Printf("  id:              %s\n", cfg.Node.ID)
	fmt.Printf("  router_bind:     %s\n", cfg.Node.RouterBind)
	fmt.Printf("  publisher_bind:  %s\n", cfg.Node.PublisherBind)
	fmt.Printf("  selection_type:  %s\n", cfg.Node.SelectionType)
	fmt.Println()
	fmt.Println("consensus:")
	fmt.Printf("  echo_sample_size:     %d\n", cfg.Consensus.EchoSampleSize)
	fmt.Printf("  ready_sample_size:    %d\n", cfg.Consensus.ReadySampleSize)
	fmt.Printf("  delivery_sample_size: %d\n", cfg.Consensus.DeliverySampleSize)
	fmt.Printf("  ready_threshold:      %d\n", cfg.Consensus.ReadyThreshold)
	fmt.Printf("  feedback_threshold:   %d\n", cfg.Consensus.FeedbackThreshold)
	fmt.Printf("  delivery_threshold:   %d\n", cfg.Consensus.DeliveryThreshold)
	if headroom := cfg.Consensus.ByzantineHeadroom(); headroom < 1 {
		fmt.Printf("  WARNING: byzantine headroom is %d (delivery_sample_size - delivery_threshold); a single forged witness can force a false delivery\n", headroom)
	}
	fmt.Println()
	fmt.Println("plato:")
	fmt.Printf("  target_latency_ms: %d\n", cfg.Plato.TargetLatencyMs)
	fmt.Printf("  minimum_latency_ms: %d\n", cfg.Plato.MinimumLatencyMs)
	fmt.Println()
	fmt.Printf("peers: %d configured\n", len(cfg.Peers))
	for _, p := range cfg.Peers {
		fmt.Printf("  - %s @ %s\n", p.ID, p.RouterAddress)
	}
	return nil
}
