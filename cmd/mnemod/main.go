// mnemod is a persistent memory service for conversational agents: it
// remembers what users say, recalls it ranked by relevance and recency, and
// consolidates in the background while they are away.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"mnemod/internal/config"
	"mnemod/internal/contextmgr"
	"mnemod/internal/dream"
	"mnemod/internal/logging"
	"mnemod/internal/vector"
)

var (
	configPath string
	dataDir    string
	debugMode  bool
)

var rootCmd = &cobra.Command{
	Use:   "mnemod",
	Short: "Persistent memory engine for conversational agents",
	Long: `mnemod stores per-user memories in sqlite, mirrors them into a
knowledge graph, recalls them ranked by blended semantic and lexical
relevance with time decay, and consolidates them during idle periods.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the memory engine with the dream scheduler",
	RunE:  runServe,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print configuration and storage status",
	RunE:  runStatus,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "mnemod.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override storage root directory")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging for all categories")
	rootCmd.AddCommand(serveCmd, statusCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.Storage.RootDir = dataDir
	}
	if debugMode {
		cfg.Logging.DebugMode = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := logging.Initialize(cfg.Storage.RootDir, logging.Settings{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.CloseAll()
	if err := logging.InitAudit(); err != nil {
		logging.Boot("audit trail unavailable: %v", err)
	}
	defer logging.CloseAudit()

	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	contexts := contextmgr.NewManager(cfg, engine)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	contexts.StartSweeper(ctx)
	defer contexts.StopSweeper()

	var scheduler *dream.Scheduler
	if cfg.Dream.Enabled {
		scheduler = dream.NewScheduler(cfg.GetIdleTimeout(), func(dctx context.Context, interrupt *atomic.Bool) {
			runDream(dctx, contexts, cfg, interrupt)
		})
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	// Hot-reload the logging section on config file changes.
	watcher, err := config.NewWatcher(configPath, func(updated *config.Config) {
		logging.Reconfigure(logging.Settings{
			DebugMode:  updated.Logging.DebugMode,
			Level:      updated.Logging.Level,
			Categories: updated.Logging.Categories,
		})
	})
	if err != nil {
		logging.Boot("config watcher unavailable: %v", err)
	} else if err := watcher.Start(ctx); err != nil {
		logging.Boot("config watcher failed to start: %v", err)
	} else {
		defer watcher.Stop()
	}

	logging.Boot("mnemod %s serving from %s", cfg.Version, cfg.Storage.RootDir)
	<-ctx.Done()
	logging.Boot("shutting down")
	return nil
}

// runDream consolidates the most recently active tenant.
func runDream(ctx context.Context, contexts *contextmgr.Manager, cfg *config.Config, interrupt *atomic.Bool) {
	uc := contexts.MostRecent()
	if uc == nil {
		return
	}
	release := uc.Hold()
	defer release()

	profile := uc.Profile()
	env := &dream.Env{
		Store:       uc.Store,
		Memories:    uc.Memories,
		Communities: uc.Communities,
		Graph:       uc.Memories.Graph(profile),
		Profile:     profile,
		Cfg:         cfg.Dream,
	}
	if _, err := dream.NewRunner(env, nil, interrupt).Run(ctx); err != nil {
		logging.DreamWarn("dream session failed: %v", err)
	}
}

func buildEngine(cfg *config.Config) (vector.Engine, error) {
	engine, err := vector.NewEngine(vector.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding engine: %w", err)
	}
	if engine == nil {
		return nil, nil
	}
	return vector.NewBreakerEngine(engine, vector.BreakerSettings{
		MaxFailures: cfg.Embedding.Breaker.MaxFailures,
		OpenFor:     cfg.GetBreakerOpenFor(),
	}), nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	status := map[string]any{
		"name":               cfg.Name,
		"version":            cfg.Version,
		"data_dir":           cfg.Storage.RootDir,
		"embedding_provider": cfg.Embedding.Provider,
		"dream_enabled":      cfg.Dream.Enabled,
		"idle_timeout":       cfg.GetIdleTimeout().String(),
		"context_ttl":        cfg.GetContextTTL().String(),
	}

	entries, err := os.ReadDir(cfg.Storage.RootDir)
	if err == nil {
		var tenants []string
		for _, e := range entries {
			if e.IsDir() {
				tenants = append(tenants, e.Name())
			}
		}
		status["tenants"] = tenants
	}

	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
