package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ruteri/land-registry/checkpoint"
	"github.com/ruteri/land-registry/cmd/flags"
	"github.com/ruteri/land-registry/common"
	"github.com/ruteri/land-registry/events"
	"github.com/ruteri/land-registry/governance"
	"github.com/ruteri/land-registry/httpserver"
	"github.com/ruteri/land-registry/interfaces"
	"github.com/ruteri/land-registry/marketplace"
	"github.com/ruteri/land-registry/metrics"
	"github.com/ruteri/land-registry/registry"
	"github.com/ruteri/land-registry/settlement"
	"github.com/ruteri/land-registry/storage"
	"github.com/urfave/cli/v2"
)

var flagList []cli.Flag = append([]cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	},
	&cli.StringFlag{
		Name:     "admin-address",
		Required: true,
		Usage:    "address allowed to mint parcels and fund accounts",
	},
	&cli.StringFlag{
		Name:  "escrow-address",
		Usage: "escrow identity holding listed parcels, derived from the admin address when empty",
	},
	&cli.Uint64Flag{
		Name:  "max-supply",
		Value: registry.DefaultMaxSupply,
		Usage: "maximum number of parcels that can ever be minted",
	},
	&cli.StringFlag{
		Name:  "listing-price-wei",
		Value: registry.DefaultListingPrice().String(),
		Usage: "asking price of freshly minted parcels, in wei",
	},
	&cli.StringFlag{
		Name:  "collection-name",
		Value: registry.DefaultName,
		Usage: "collection name",
	},
	&cli.StringFlag{
		Name:  "collection-symbol",
		Value: registry.DefaultSymbol,
		Usage: "collection symbol",
	},
	flags.RequireSignaturesFlag,
	flags.SignatureWindowFlag,
	&cli.StringSliceFlag{
		Name:  "checkpoint-backend",
		Usage: "storage location for checkpoints (file://, s3://, ipfs://, vault://, redis://), repeatable",
	},
	&cli.DurationFlag{
		Name:  "checkpoint-interval",
		Value: time.Minute,
		Usage: "how often to checkpoint when state changed",
	},
	&cli.StringFlag{
		Name:  "restore-checkpoint",
		Usage: "content id of a checkpoint to load on startup",
	},
	&cli.StringSliceFlag{
		Name:  "kafka-brokers",
		Usage: "Kafka seed brokers to publish change records to",
	},
	&cli.StringFlag{
		Name:  "kafka-topic",
		Value: "land-registry-events",
		Usage: "Kafka topic for change records",
	},
	&cli.IntFlag{
		Name:  "event-buffer",
		Value: 1024,
		Usage: "per-subscriber buffer of change records",
	},
	flags.LogServiceFlagFn("land-registry"),
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:   "land-server",
		Usage:  "Serve the land parcel registry and escrow marketplace",
		Flags:  flagList,
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func registryConfig(cCtx *cli.Context) (registry.Config, error) {
	admin, err := interfaces.NewAddressFromHex(cCtx.String("admin-address"))
	if err != nil {
		return registry.Config{}, fmt.Errorf("invalid admin-address: %w", err)
	}

	cfg := registry.DefaultConfig(admin)
	cfg.Name = cCtx.String("collection-name")
	cfg.Symbol = cCtx.String("collection-symbol")
	cfg.MaxSupply = cCtx.Uint64("max-supply")

	if raw := cCtx.String("escrow-address"); raw != "" {
		escrow, err := interfaces.NewAddressFromHex(raw)
		if err != nil {
			return registry.Config{}, fmt.Errorf("invalid escrow-address: %w", err)
		}
		cfg.Escrow = escrow
	}

	price, ok := new(big.Int).SetString(cCtx.String("listing-price-wei"), 10)
	if !ok {
		return registry.Config{}, fmt.Errorf("invalid listing-price-wei %q", cCtx.String("listing-price-wei"))
	}
	cfg.ListingPrice = price

	return cfg, cfg.Validate()
}

func runServer(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	cfg, err := registryConfig(cCtx)
	if err != nil {
		logger.Error("Invalid registry configuration", "err", err)
		return err
	}

	journal := events.NewJournal(logger)
	gate := governance.NewGate(cfg.Admin, cfg.Escrow)
	reg, err := registry.New(cfg, gate, journal, logger)
	if err != nil {
		logger.Error("Failed to create registry", "err", err)
		return err
	}
	ledger := settlement.NewLedger(logger)
	market := marketplace.New(reg, gate, ledger, logger)

	var checkpointer *checkpoint.Checkpointer
	if uris := cCtx.StringSlice("checkpoint-backend"); len(uris) > 0 {
		locations := make([]interfaces.StorageBackendLocation, 0, len(uris))
		for _, uri := range uris {
			loc, err := interfaces.NewStorageBackendLocation(uri)
			if err != nil {
				logger.Error("Invalid checkpoint backend", "err", err)
				return err
			}
			locations = append(locations, loc)
		}

		backend, err := storage.NewStorageBackendFactory(logger).CreateMultiBackend(locations)
		if err != nil {
			logger.Error("Failed to create checkpoint storage", "err", err)
			return err
		}
		checkpointer = checkpoint.New(backend, reg, ledger, journal, logger)
	}

	if raw := cCtx.String("restore-checkpoint"); raw != "" {
		if checkpointer == nil {
			return errors.New("restore-checkpoint requires at least one checkpoint-backend")
		}
		id, err := interfaces.NewContentIDFromHex(raw)
		if err != nil {
			return fmt.Errorf("invalid restore-checkpoint: %w", err)
		}
		loadCtx, cancel := context.WithTimeout(cCtx.Context, time.Minute)
		err = checkpointer.Load(loadCtx, id)
		cancel()
		if err != nil {
			logger.Error("Failed to restore checkpoint", "err", err)
			return err
		}
	}

	handler := httpserver.NewHandler(reg, market, ledger, journal, cCtx.Bool(flags.RequireSignaturesFlag.Name), logger)
	var saver httpserver.Checkpointer
	if checkpointer != nil {
		saver = checkpointer
	}
	admin := httpserver.NewAdminHandler(handler, saver, logger)

	server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, cCtx.String("listen-addr")), handler, admin)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	buffer := cCtx.Int("event-buffer")

	collectors := metrics.NewCollectors(common.PackageName, server.MetricsRegistry())
	for _, ev := range journal.Since(0) {
		collectors.Observe(ev)
	}
	metricsCh, stopMetrics := journal.Subscribe(buffer)
	defer stopMetrics()
	wg.Add(1)
	go func() {
		defer wg.Done()
		collectors.Run(ctx, metricsCh)
	}()

	if brokers := cCtx.StringSlice("kafka-brokers"); len(brokers) > 0 {
		topic := cCtx.String("kafka-topic")
		client, err := events.NewKafkaClient(brokers, topic)
		if err != nil {
			logger.Error("Failed to create Kafka client", "err", err)
			return err
		}
		defer client.Close()

		sink := events.NewKafkaSink(client, topic, logger)
		kafkaCh, stopKafka := journal.Subscribe(buffer)
		defer stopKafka()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sink.Run(ctx, kafkaCh); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Kafka sink stopped", "err", err)
			}
		}()
	}

	if checkpointer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checkpointer.Run(ctx, cCtx.Duration("checkpoint-interval"))
		}()
	}

	logger.Info("Starting land registry",
		"name", cfg.Name,
		"admin", cfg.Admin.Hex(),
		"escrow", cfg.Escrow.Hex(),
		"maxSupply", cfg.MaxSupply,
		"listingPrice", cfg.ListingPrice.String())
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	cancel()
	wg.Wait()
	logger.Info("Server shutdown complete")
	return nil
}
