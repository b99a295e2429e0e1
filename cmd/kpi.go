package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mergeeats/core/config"
	dispatchlog "github.com/mergeeats/core/core/dispatch/logging"
	infrakpi "github.com/mergeeats/core/infra/kpi"
	"github.com/mergeeats/core/jobs/kpi"
)

var kpiCmd = &cobra.Command{
	Use:   "kpi",
	Short: "Partner KPI maintenance",
}

var kpiBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Rebuild daily partner KPIs from the dispatch log",
	RunE:  runKPIBackfill,
}

func init() {
	kpiCmd.AddCommand(kpiBackfillCmd)
	rootCmd.AddCommand(kpiCmd)
}

func runKPIBackfill(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Metrics.KPIDBPath == "" {
		return fmt.Errorf("metrics.kpi_db_path is not configured")
	}
	if cfg.Logging.Backend != "jsonl" {
		return fmt.Errorf("backfill requires the jsonl dispatch log backend")
	}

	logStore, err := dispatchlog.NewJSONLStore(cfg.Logging.Path)
	if err != nil {
		return fmt.Errorf("dispatch log: %w", err)
	}
	defer func() { _ = logStore.Close() }()

	history, err := logStore.Query(context.Background(), dispatchlog.LogQuery{})
	if err != nil {
		return fmt.Errorf("read dispatch log: %w", err)
	}

	store, err := infrakpi.NewSQLiteStore(cfg.Metrics.KPIDBPath)
	if err != nil {
		return fmt.Errorf("kpi store: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := kpi.Backfill(store, history); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "backfilled %d dispatch records\n", len(history))
	return nil
}
