package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	kafkaadapter "github.com/couchcryptid/vehicle-incident-etl/internal/adapter/kafka"
	natsadapter "github.com/couchcryptid/vehicle-incident-etl/internal/adapter/nats"
	"github.com/couchcryptid/vehicle-incident-etl/internal/config"
	"github.com/couchcryptid/vehicle-incident-etl/internal/seed"
)

const producerName = "incidentctl"

var (
	seedCount          int
	seedEmergencyRatio float64
	seedInvalidRatio   float64
	seedRandomSeed     int64
	seedTimeout        time.Duration
)

// publisher is the write side of a delivery transport.
type publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
	Close() error
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Publish synthetic incident reports",
	Long: `Generate incident reports around greater Cairo and publish them on the
configured transport (TRANSPORT=kafka|nats).

Examples:
  # 50 reports, a quarter of them emergencies
  incidentctl seed --count 50 --emergency-ratio 0.25

  # Include payloads that the service must reject
  incidentctl seed --count 20 --invalid-ratio 0.1`,
	RunE: runSeed,
}

func init() {
	opts := seed.DefaultOptions()
	seedCmd.Flags().IntVar(&seedCount, "count", opts.Count, "number of messages to publish")
	seedCmd.Flags().Float64Var(&seedEmergencyRatio, "emergency-ratio", opts.EmergencyRatio, "fraction of valid messages typed Emergency")
	seedCmd.Flags().Float64Var(&seedInvalidRatio, "invalid-ratio", opts.InvalidRatio, "fraction of messages built to fail validation")
	seedCmd.Flags().Int64Var(&seedRandomSeed, "seed", 0, "random seed for reproducible output (0 = random)")
	seedCmd.Flags().DurationVar(&seedTimeout, "timeout", 30*time.Second, "overall publish timeout")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	opts := seed.DefaultOptions()
	opts.Count = seedCount
	opts.EmergencyRatio = seedEmergencyRatio
	opts.InvalidRatio = seedInvalidRatio
	opts.Seed = seedRandomSeed

	gen, err := seed.NewGenerator(opts)
	if err != nil {
		return err
	}
	msgs, err := gen.Generate()
	if err != nil {
		return err
	}

	pub, err := openPublisher(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			printWarn("close publisher: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), seedTimeout)
	defer cancel()

	invalid := 0
	for i, m := range msgs {
		if err := pub.Publish(ctx, m.Key, m.Payload); err != nil {
			return fmt.Errorf("message %d of %d: %w", i+1, len(msgs), err)
		}
		if !m.Valid {
			invalid++
		}
	}

	printSuccess("published %d messages via %s (%d invalid)", len(msgs), cfg.Transport, invalid)
	return nil
}

func openPublisher(cfg *config.Config) (publisher, error) {
	switch cfg.Transport {
	case config.TransportNATS:
		conn, err := natsadapter.Connect(cfg.NATSURL, producerName, logger)
		if err != nil {
			return nil, err
		}
		return natsadapter.NewPublisher(conn, cfg.NATSSubject, producerName, logger), nil
	case config.TransportKafka:
		return kafkaadapter.NewWriter(cfg, producerName, logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}
