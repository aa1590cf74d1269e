package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/calm-green-heron/stagewise/internal/api"
	"github.com/calm-green-heron/stagewise/internal/api/health"
	"github.com/calm-green-heron/stagewise/internal/metrics"
	"github.com/calm-green-heron/stagewise/internal/storage"
	"github.com/calm-green-heron/stagewise/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "stagewise-server",
	Short: "Stagewise Server - Project collaboration backend",
	Long: `Stagewise Server provides the REST API for projects, stages,
tasks, comments, and activity history.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stagewise-server %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config

	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	// Override with CLI flags
	if httpAddr != "" {
		cfg.Server.Address = httpAddr
	}
	cfg.Verbose = verbose

	// Secrets come from the environment, never the config file.
	jwtSecret := os.Getenv("STAGEWISE_JWT_SECRET")
	if jwtSecret == "" {
		return fmt.Errorf("STAGEWISE_JWT_SECRET environment variable is required")
	}
	if uri := os.Getenv("STAGEWISE_MONGO_URI"); uri != "" {
		cfg.Mongo.URI = uri
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store := storage.NewMongoStorage(cfg.Mongo.URI, cfg.Mongo.Database)
	if err := store.Open(ctx); err != nil {
		return fmt.Errorf("connect to mongodb: %w", err)
	}
	defer store.Close(context.Background())

	if err := store.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	log.Printf("connected to mongodb database %s", cfg.Mongo.Database)

	// Build API server config
	apiCfg := &api.Config{
		Address:          cfg.Server.Address,
		JWTSecret:        []byte(jwtSecret),
		AccessTokenTTL:   parseDuration(cfg.API.AccessTokenTTL),
		RefreshTokenTTL:  parseDuration(cfg.API.RefreshTokenTTL),
		RateLimitPerIP:   cfg.API.RateLimitPerIP,
		RateLimitPerUser: cfg.API.RateLimitPerUser,
		LockoutThreshold: cfg.API.LockoutThreshold,
		LockoutDuration:  parseDuration(cfg.API.LockoutDuration),
		QueryTimeout:     parseDuration(cfg.API.QueryTimeout),
		Verbose:          cfg.Verbose,
	}

	srv, err := api.New(apiCfg, store)
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}
	srv.RegisterHealthChecker(health.NewMongoChecker(store))

	metricsSrv := metrics.NewServer(cfg.Server.MetricsAddress)

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	log.Printf("starting stagewise-server %s", config.Version)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return metricsSrv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run server: %w", err)
	}

	log.Printf("server stopped")
	return nil
}
