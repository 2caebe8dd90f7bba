// Package main is the entry point for the intersection controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nugget/intersection-controller/internal/broker"
	"github.com/nugget/intersection-controller/internal/buildinfo"
	"github.com/nugget/intersection-controller/internal/config"
	"github.com/nugget/intersection-controller/internal/connwatch"
	"github.com/nugget/intersection-controller/internal/controller"
	"github.com/nugget/intersection-controller/internal/intersections"
	"github.com/nugget/intersection-controller/internal/topics"
)

func main() {
	configDir := flag.String("configdir", "", "path to the config directory (searches standard locations if unset)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() > 0 && flag.Arg(0) == "version" {
		fmt.Println(buildinfo.String())
		for k, v := range buildinfo.BuildInfo() {
			fmt.Printf("  %-12s %s\n", k+":", v)
		}
		return
	}

	if err := run(logger, *configDir); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configDir string) error {
	dir, err := config.FindConfigDir(configDir)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", dir, err)
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))

	logger.Info("config loaded",
		"path", dir,
		"team_id", cfg.General.TeamID,
		"publisher_host", cfg.IO.Publisher.Host,
		"subscriber_host", cfg.IO.Subscriber.Host,
	)

	trafficLightDefs, err := cfg.TrafficLights.ToGroupDefs()
	if err != nil {
		return fmt.Errorf("traffic_lights.toml: %w", err)
	}
	blockDefs, err := cfg.TrafficLightsBlocks.ToBlockDefs()
	if err != nil {
		return fmt.Errorf("blocks.toml: %w", err)
	}
	trafficLights, err := intersections.NewBuilder(intersections.SystemClock{}).
		WithDefs(trafficLightDefs).
		WithBlocks(blockDefs).
		Finish()
	if err != nil {
		return fmt.Errorf("building traffic lights intersection: %w", err)
	}

	bridgeDefs, err := cfg.Bridge.ToGroupDefs()
	if err != nil {
		return fmt.Errorf("bridge.toml: %w", err)
	}
	bridgeIntersection, err := intersections.NewBuilder(intersections.SystemClock{}).
		WithDefs(bridgeDefs).
		Finish()
	if err != nil {
		return fmt.Errorf("building bridge intersection: %w", err)
	}

	publisherClient, err := broker.New(cfg.IO.Publisher, cfg.Protocols, cfg.General.TeamID, logger)
	if err != nil {
		return fmt.Errorf("building publisher client: %w", err)
	}
	disconnectTopic := topics.NewLifeCycleTopic(cfg.General.TeamID, topics.Controller, topics.OnDisconnect).String()
	publisherClient.SetLastWill(disconnectTopic, nil)

	subscriberClient, err := broker.New(cfg.IO.Subscriber, cfg.Protocols, cfg.General.TeamID, logger)
	if err != nil {
		return fmt.Errorf("building subscriber client: %w", err)
	}

	ctrl := controller.New(trafficLights, bridgeIntersection, publisherClient, subscriberClient, cfg.General.TeamID, cfg.Groups, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	watch := connwatch.NewManager(logger)
	watch.Watch(ctx, connwatch.WatcherConfig{
		Name:  "broker-publisher",
		Probe: func(probeCtx context.Context) error { return publisherClient.AwaitConnection(probeCtx) },
	})
	watch.Watch(ctx, connwatch.WatcherConfig{
		Name:  "broker-subscriber",
		Probe: func(probeCtx context.Context) error { return subscriberClient.AwaitConnection(probeCtx) },
	})
	defer watch.Stop()

	logger.Info("starting intersection controller", "version", buildinfo.Version)
	if err := ctrl.Run(ctx); err != nil {
		if ctx.Err() == nil {
			return err
		}
	}

	logger.Info("intersection controller stopped")
	return nil
}
