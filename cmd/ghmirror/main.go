package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/ghmirror/pkg/api"
	"github.com/cuemby/ghmirror/pkg/config"
	"github.com/cuemby/ghmirror/pkg/engine"
	"github.com/cuemby/ghmirror/pkg/gh"
	"github.com/cuemby/ghmirror/pkg/log"
	"github.com/cuemby/ghmirror/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ghmirror",
	Short: "GHMirror - local mirror of GitHub resources",
	Long: `GHMirror keeps a local, queryable mirror of GitHub organizations,
repositories, issues and users. It ingests the configured targets with
full and event scans, stores them as JSON documents and serves them over
an authenticated read API, so automated tests can query GitHub state
without burning the upstream request quota.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"GHMirror version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(keygenCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mirror service",
	Long: `Run the mirror service: ingest the configured GitHub targets and
serve the mirrored resources over the read API.

The configuration file names the targets and the upstream credentials:

  orgList:
    - eclipse
  userRepoList:
    - jdubois
  individualRepoList:
    - jgwest/rogue-cloud
  githubUsername: mirror-bot
  githubPassword: my-token
  presharedKey: my-api-key
  dbPath: /var/lib/ghmirror`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "Configuration file (required)")
	serveCmd.Flags().String("listen", "", "Read API listen address (default \":8080\")")
	serveCmd.Flags().String("db-path", "", "Override the configured store directory")
	serveCmd.Flags().Float64("client-rate-limit", 0, "Read API requests per second per client (0 disables)")
	serveCmd.Flags().Int("client-rate-burst", 0, "Read API burst size per client")
	serveCmd.Flags().String("log-level", "info", "Log level: debug, info, warn or error")
	serveCmd.Flags().Bool("log-json", false, "Write logs as JSON instead of console output")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	listenAddr, _ := cmd.Flags().GetString("listen")
	dbPath, _ := cmd.Flags().GetString("db-path")
	rateLimit, _ := cmd.Flags().GetFloat64("client-rate-limit")
	rateBurst, _ := cmd.Flags().GetInt("client-rate-burst")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")

	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	fmt.Println("Starting GHMirror...")
	fmt.Printf("  Config: %s\n", configPath)
	fmt.Printf("  Store: %s\n", cfg.DBPath)
	fmt.Printf("  Targets: %d orgs, %d users, %d individual repos\n",
		len(cfg.OrgList), len(cfg.UserRepoList), len(cfg.IndividualRepoList))
	fmt.Println()

	metrics.RegisterComponent("store", false, "reconciling configuration")
	metrics.RegisterComponent("engine", false, "resolving targets")
	metrics.RegisterComponent("api", false, "not listening")

	engineCfg := engine.Config{
		GitHub: gh.Config{
			Server:   cfg.GitHubServer,
			Username: cfg.GitHubUsername,
			Password: cfg.GitHubPassword,
		},
		Orgs:                 cfg.OrgList,
		Users:                cfg.UserRepoList,
		DBPath:               cfg.DBPath,
		RequestsPerHour:      cfg.GitHubRateLimit,
		PauseBetweenRequests: cfg.PauseBetweenRequests(),
		EventScanInterval:    cfg.EventScanInterval(),
	}
	for _, entry := range cfg.IndividualRepoList {
		engineCfg.IndividualRepos = append(engineCfg.IndividualRepos, engine.IndividualRepo{
			Name:              entry.Repo,
			EventScanInterval: entry.Interval(),
		})
	}

	if cfg.FileLoggerPath != "" {
		changeLog, err := log.NewRollingWriter(cfg.FileLoggerPath)
		if err != nil {
			return fmt.Errorf("failed to create change log: %v", err)
		}
		defer changeLog.Close()
		engineCfg.ChangeLog = changeLog
	}

	// Create engine
	e, err := engine.New(engineCfg)
	if err != nil {
		metrics.UpdateComponent("store", false, err.Error())
		return fmt.Errorf("failed to create engine: %v", err)
	}
	defer e.Stop()
	metrics.UpdateComponent("store", true, "")
	fmt.Println("✓ Store reconciled")

	// Start metrics collector
	collector := metrics.NewCollector(e)
	collector.Start()
	defer collector.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, runCtx := errgroup.WithContext(ctx)

	// Cancel the context on interrupt; engine resolution and the API
	// server both unwind from it
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	g.Go(func() error {
		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
			cancel()
		case <-runCtx.Done():
		}
		return nil
	})

	// Resolve targets and start mirroring
	if err := e.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start engine: %v", err)
	}
	metrics.UpdateComponent("engine", true, "")
	fmt.Println("✓ Engine started")

	apiServer := api.NewServer(e, api.Config{
		Addr:            listenAddr,
		PresharedKey:    cfg.PresharedKey,
		ClientRateLimit: rateLimit,
		ClientRateBurst: rateBurst,
	})

	fmt.Println()
	fmt.Println("Mirror is running. Press Ctrl+C to stop.")

	g.Go(func() error {
		return apiServer.Start(runCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a preshared key for the read API",
	RunE: func(cmd *cobra.Command, args []string) error {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("failed to generate key: %v", err)
		}
		key := hex.EncodeToString(buf)

		fmt.Println(key)
		fmt.Println()
		fmt.Println("Add the key to the service configuration:")
		fmt.Printf("  presharedKey: %s\n", key)
		fmt.Println("Pass it to client commands with --key.")
		return nil
	},
}
