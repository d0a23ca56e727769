package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/vehicle-incident-etl/internal/domain"
	"github.com/couchcryptid/vehicle-incident-etl/internal/storage"
)

var listCmd = &cobra.Command{
	Use:   "list [accidents|emergencies]",
	Short: "List visible records, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var partitions []domain.Partition
		if len(args) == 1 {
			p, err := partitionArg(args[0])
			if err != nil {
				return err
			}
			partitions = append(partitions, p)
		}

		store, err := storage.Open(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.ListVisible(cmd.Context(), partitions...)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			printWarn("no visible records")
			return nil
		}

		recordTable(records).render(os.Stdout)
		return nil
	},
}

var hideCmd = &cobra.Command{
	Use:   "hide <partition> <id>",
	Short: "Hide a record from the read API",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setVisibility(cmd, args[0], args[1], domain.VisibleNo)
	},
}

var unhideCmd = &cobra.Command{
	Use:   "unhide <partition> <id>",
	Short: "Restore a hidden record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setVisibility(cmd, args[0], args[1], domain.VisibleYes)
	},
}

func init() {
	rootCmd.AddCommand(listCmd, hideCmd, unhideCmd)
}

func setVisibility(cmd *cobra.Command, partitionName, id, show string) error {
	p, err := partitionArg(partitionName)
	if err != nil {
		return err
	}

	store, err := storage.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetVisibility(cmd.Context(), p, id, show); err != nil {
		return fmt.Errorf("%s/%s: %w", p, id, err)
	}
	printSuccess("%s/%s show=%s", p, id, show)
	return nil
}

func partitionArg(s string) (domain.Partition, error) {
	p, ok := domain.ParsePartition(s)
	if !ok {
		return "", fmt.Errorf("unknown partition %q (want accidents or emergencies)", s)
	}
	return p, nil
}

func recordTable(records []domain.EnrichedRecord) *table {
	t := newTable("ID", "TYPE", "CAR", "TIMESTAMP", "LAT", "LON", "HOSPITAL")
	for _, r := range records {
		t.addRow(
			r.ID,
			string(r.Type),
			r.CarID,
			r.Timestamp.Format(time.RFC3339),
			strconv.FormatFloat(r.Latitude, 'f', 6, 64),
			strconv.FormatFloat(r.Longitude, 'f', 6, 64),
			r.NearestHospital,
		)
	}
	return t
}
