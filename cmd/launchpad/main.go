package main

import (
	"fmt"
	"os"
	"time"

	"github.com/david/launchpad/internal/config"
	"github.com/david/launchpad/internal/ingest"
	"github.com/david/launchpad/internal/logger"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	outputFile     string
	sourcesFile    string
	logLevel       string
	prettyLog      bool
	workers        int
	adapterTimeout time.Duration
	mergeOrder     string
	databaseURL    string

	// run
	onlySources []string
	// runs
	runsLimit int

	cfg *config.Config
	log logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "launchpad",
	Short: "Aggregate hackathons, grants and startup programs into one snapshot",
	Long: `launchpad collects funding and competition opportunities from RSS feeds,
public APIs and HTML listings, normalizes and deduplicates them, and writes
a single JSON snapshot that keeps previously collected entries.

Environment variables (LAUNCHPAD_*, DATABASE_URL) set the defaults; flags
override them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(cmd)
		if err != nil {
			return err
		}
		log = logger.New(cfg.LogLevel, cfg.PrettyLog)
		log.Debug("configuration loaded",
			logger.String("output", cfg.OutputFile),
			logger.String("database_url", cfg.Redacted().DatabaseURL),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every active source once and write the snapshot",
	Long: `Fetches all active sources concurrently, merges the results with the
existing snapshot and rewrites it atomically. Failing sources are logged and
reported but do not fail the command; only a snapshot write error does.

Example:
  launchpad run --only devpost,challenge_gov --output data/opportunities.json`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the configured sources",
	Args:  cobra.NoArgs,
	RunE:  listSources,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent runs recorded in the Postgres mirror",
	Args:  cobra.NoArgs,
	RunE:  listRuns,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&outputFile, "output", "o", "", "Snapshot file (env LAUNCHPAD_OUTPUT)")
	pf.StringVar(&sourcesFile, "sources", "", "sources.yaml override (env LAUNCHPAD_SOURCES)")
	pf.StringVar(&logLevel, "log-level", "", "debug|info|warn|error (env LAUNCHPAD_LOG_LEVEL)")
	pf.BoolVar(&prettyLog, "pretty", false, "Human readable logs (env LAUNCHPAD_PRETTY_LOG)")
	pf.StringVar(&databaseURL, "database-url", "", "Postgres mirror, empty disables it (env DATABASE_URL)")

	runCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent sources (env LAUNCHPAD_WORKERS)")
	runCmd.Flags().DurationVar(&adapterTimeout, "timeout", 0, "Per-source deadline (env LAUNCHPAD_ADAPTER_TIMEOUT)")
	runCmd.Flags().StringVar(&mergeOrder, "merge-order", "", "existing-first|newest-first (env LAUNCHPAD_MERGE_ORDER)")
	runCmd.Flags().StringSliceVar(&onlySources, "only", nil, "Run only these source ids, inactive ones included")

	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 0, "Rows to show (env LAUNCHPAD_RUNS_LIMIT)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	c, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		c.OutputFile = outputFile
	}
	if flags.Changed("sources") {
		c.SourcesFile = sourcesFile
	}
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if flags.Changed("pretty") {
		c.PrettyLog = prettyLog
	}
	if flags.Changed("database-url") {
		c.DatabaseURL = databaseURL
	}
	if flags.Lookup("workers") != nil && flags.Changed("workers") {
		c.Workers = workers
	}
	if flags.Lookup("timeout") != nil && flags.Changed("timeout") {
		c.AdapterTimeout = adapterTimeout
	}
	if flags.Lookup("merge-order") != nil && flags.Changed("merge-order") {
		if c.MergeOrder, err = ingest.ParseMergeOrder(mergeOrder); err != nil {
			return nil, fmt.Errorf("--merge-order: %w", err)
		}
	}
	if flags.Lookup("limit") != nil && flags.Changed("limit") {
		c.RunsLimit = runsLimit
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
