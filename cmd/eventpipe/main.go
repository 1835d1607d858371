package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"eventpipe/internal/config"
	"eventpipe/internal/database"
	"eventpipe/internal/pipeline"
	"eventpipe/internal/queue"
	"eventpipe/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "eventpipe",
	Short:   "Regional event ingestion and curation",
	Long:    "eventpipe scrapes regional event sources, normalizes and categorizes the findings, and runs the editorial queue that feeds the public calendar.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(locationsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("eventpipe", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/eventpipe/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the region, sources, and model endpoints.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and queue status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Events:")
		fmt.Printf("  Total: %d\n", stats.TotalEvents)
		fmt.Printf("  Pending: %d (%d flagged for review)\n", stats.Pending, stats.NeedsReview)
		fmt.Printf("  Published: %d\n", stats.Published)
		fmt.Printf("  Rejected: %d\n", stats.Rejected)
		fmt.Printf("  Archived: %d\n", stats.Archived)
		fmt.Println("\nLocations:")
		fmt.Printf("  Known: %d (%d verified)\n", stats.TotalLocations, stats.VerifiedLocations)
		fmt.Printf("\nScrape runs: %d\n", stats.Runs)

		report, err := db.GetLastRunReport()
		if err != nil {
			return err
		}
		if report != nil {
			fmt.Printf("\nLast run")
			if report.RanAt != nil {
				fmt.Printf(" (%s)", *report.RanAt)
			}
			fmt.Printf(": %d/%d sources, %d found, %d new, %d duplicates\n",
				report.SourcesSucceeded, report.SourcesAttempted,
				report.EventsFound, report.EventsNew, report.Duplicates)
			for name, msg := range report.SourceErrors {
				fmt.Printf("  %s: %s\n", name, msg)
			}
		}
		return nil
	},
}

// --- scrape command ---

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one scrape cycle over all enabled sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Printf("Scraping %d enabled source(s)...\n", len(cfg.EnabledSources()))

		summary, err := pipeline.New(cfg, db).Run(context.Background())
		if err != nil {
			return err
		}

		fmt.Println("\nScrape complete:")
		fmt.Printf("  Sources: %d/%d succeeded\n", summary.SourcesSucceeded, summary.SourcesAttempted)
		fmt.Printf("  Events found: %d\n", summary.EventsFound)
		fmt.Printf("  New: %d (%d flagged for review)\n", summary.EventsNew, summary.NeedsReview)
		fmt.Printf("  Duplicates: %d\n", summary.Duplicates)
		if len(summary.Skipped) > 0 {
			fmt.Printf("  Skipped (deadline): %s\n", strings.Join(summary.Skipped, ", "))
		}

		if len(summary.SourceErrors) > 0 {
			names := make([]string, 0, len(summary.SourceErrors))
			for name := range summary.SourceErrors {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Println("\nSource errors:")
			for _, name := range names {
				fmt.Printf("  %s: %s\n", name, summary.SourceErrors[name])
			}
		}

		// A degraded run is still a run; only a total failure is an error.
		if summary.SourcesAttempted > 0 && summary.SourcesSucceeded == 0 {
			return fmt.Errorf("all %d sources failed", summary.SourcesAttempted)
		}
		return nil
	},
}

// --- list command ---

var listCmd = &cobra.Command{
	Use:   "list [state]",
	Short: "List events in a queue state (default: pending)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		state := database.StatePending
		if len(args) == 1 {
			state = args[0]
		}

		events, err := db.ListEventsByState(state)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Printf("No %s events.\n", state)
			return nil
		}

		for _, e := range events {
			flag := " "
			if e.NeedsReview {
				flag = "!"
			}
			start := "          "
			if e.StartTime != nil {
				if t, err := time.Parse(time.RFC3339, *e.StartTime); err == nil {
					start = t.Format("2006-01-02")
				}
			}
			fmt.Printf("%s %s  %s  %-12s %s\n", flag, e.ID, start, e.Category, e.Title)
		}
		return nil
	},
}

// --- queue commands ---

var publishCmd = &cobra.Command{
	Use:   "publish [id|pattern]",
	Short: "Publish pending events (accepts glob patterns)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		q := queue.New(db)
		if isPattern(args[0]) {
			result, err := q.PublishMatching(args[0], editorActor())
			if err != nil {
				return err
			}
			printBulkResult("Published", result)
			return nil
		}

		if err := q.Publish(args[0], editorActor()); err != nil {
			return err
		}
		fmt.Printf("Published %s\n", args[0])
		return nil
	},
}

var rejectReason string

var rejectCmd = &cobra.Command{
	Use:   "reject [id|pattern]",
	Short: "Reject pending events with a reason (accepts glob patterns)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		q := queue.New(db)
		if isPattern(args[0]) {
			result, err := q.RejectMatching(args[0], editorActor(), rejectReason)
			if err != nil {
				return err
			}
			printBulkResult("Rejected", result)
			return nil
		}

		if err := q.Reject(args[0], editorActor(), rejectReason); err != nil {
			return err
		}
		fmt.Printf("Rejected %s\n", args[0])
		return nil
	},
}

func init() {
	rejectCmd.Flags().StringVarP(&rejectReason, "reason", "r", "", "Why the event is rejected (required)")
	rejectCmd.MarkFlagRequired("reason")
}

var restoreCmd = &cobra.Command{
	Use:   "restore [id]",
	Short: "Restore a rejected event to the pending queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := queue.New(db).Restore(args[0], editorActor()); err != nil {
			return err
		}
		fmt.Printf("Restored %s to pending\n", args[0])
		return nil
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive published events that have ended",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		archived, err := queue.New(db).ArchiveEnded(time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("Archived %d event(s)\n", len(archived))
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local review UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting review UI at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run the review UI on")
}

// --- locations command ---

var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "Manage the verified locations store",
}

var locationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known locations and candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		locations, err := db.ListLocations()
		if err != nil {
			return err
		}
		if len(locations) == 0 {
			fmt.Println("No locations yet. The scraper adds candidates as it finds venues.")
			return nil
		}

		for _, l := range locations {
			status := "candidate"
			if l.Verified {
				status = "verified "
			}
			coords := ""
			if l.Lat != nil && l.Lon != nil {
				coords = fmt.Sprintf(" (%.4f, %.4f)", *l.Lat, *l.Lon)
			}
			fmt.Printf("  [%d] %s %s%s\n", l.ID, status, l.Name, coords)
			if len(l.Aliases) > 0 {
				fmt.Printf("        aka: %s\n", strings.Join(l.Aliases, ", "))
			}
		}
		return nil
	},
}

var (
	verifyLat     float64
	verifyLon     float64
	verifyAliases []string
)

var locationsVerifyCmd = &cobra.Command{
	Use:   "verify [id]",
	Short: "Promote a candidate to a verified location with coordinates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid location ID: %s", args[0])
		}

		if err := db.VerifyLocation(id, verifyLat, verifyLon, verifyAliases); err != nil {
			return err
		}
		fmt.Printf("Verified location [%d] at (%.4f, %.4f)\n", id, verifyLat, verifyLon)
		return nil
	},
}

func init() {
	locationsVerifyCmd.Flags().Float64Var(&verifyLat, "lat", 0, "Latitude (required)")
	locationsVerifyCmd.Flags().Float64Var(&verifyLon, "lon", 0, "Longitude (required)")
	locationsVerifyCmd.Flags().StringSliceVar(&verifyAliases, "alias", nil, "Alias names the resolver should also match")
	locationsVerifyCmd.MarkFlagRequired("lat")
	locationsVerifyCmd.MarkFlagRequired("lon")

	locationsCmd.AddCommand(locationsListCmd)
	locationsCmd.AddCommand(locationsVerifyCmd)
}

// isPattern reports whether the argument is a glob rather than a plain
// event ID.
func isPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// editorActor identifies the operator in history entries.
func editorActor() string {
	user := os.Getenv("USER")
	if user == "" {
		user = "cli"
	}
	return "editor:" + user
}

func printBulkResult(verb string, result *queue.BulkResult) {
	fmt.Printf("%s %d event(s)\n", verb, len(result.Transitioned))
	if len(result.Failed) > 0 {
		fmt.Printf("%d event(s) failed:\n", len(result.Failed))
		for id, err := range result.Failed {
			fmt.Printf("  %s: %v\n", id, err)
		}
	}
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "eventpipe.db")
	return database.Open(dbPath)
}
