package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ciq/pipeline-engine/api/rest"
	"ciq/pipeline-engine/internal/config"
	"ciq/pipeline-engine/internal/parser"
	"ciq/pipeline-engine/internal/reporter"
	"ciq/pipeline-engine/internal/runner"
	"ciq/pipeline-engine/internal/schedule"
	"ciq/pipeline-engine/internal/scheduler"
	"ciq/pipeline-engine/internal/secrets"
	"ciq/pipeline-engine/pkg/logger"
	"ciq/pipeline-engine/pkg/types"
)

var (
	serveAddress      string
	servePipelinesDir string
	serveNoScheduler  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine as a server",
	Long: `Load every pipeline definition from the pipelines directory and
serve the HTTP API. Cron schedules fire automatically unless the
scheduler is disabled.`,
	Example: `  pipeline-engine serve
  pipeline-engine serve --pipelines ./pipelines --address :9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddress, "address", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&servePipelinesDir, "pipelines", "", "pipelines directory (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "disable the cron schedule daemon")
}

func runServe(cmd *cobra.Command, args []string) error {
	overrides := make(map[string]string)
	if serveAddress != "" {
		overrides["server.address"] = serveAddress
	}
	if servePipelinesDir != "" {
		overrides["engine.pipelines_dir"] = servePipelinesDir
	}
	if serveNoScheduler {
		overrides["engine.enable_scheduler"] = "false"
	}

	cfg, err := config.NewLoader().
		WithConfigPath(cfgFile).
		WithOverrides(overrides).
		Load()
	if err != nil {
		return err
	}

	store := secrets.NewStore()
	if cfg.Secrets.File != "" {
		if err := store.LoadFile(cfg.Secrets.File); err != nil {
			return err
		}
	}
	store.LoadEnv(cfg.Secrets.EnvPrefix)

	sched := scheduler.New(
		scheduler.Config{MaxConcurrentRuns: cfg.Engine.MaxConcurrentRuns},
		runner.New(nil),
		store,
	)

	loaded, err := loadPipelines(sched, cfg.Engine.PipelinesDir)
	if err != nil {
		return err
	}
	if len(loaded) == 0 {
		logger.Warn("no pipelines found", zap.String("dir", cfg.Engine.PipelinesDir))
	}

	// Each pipeline's own reporters: block decides where its runs are
	// reported; pipelines without one get the console fallback.
	dispatcher := reporter.NewDispatcher(nil, func(name string) ([]types.ReporterConfig, bool) {
		p, ok := sched.Pipeline(name)
		if !ok {
			return nil, false
		}
		return p.Reporters, true
	})
	defer dispatcher.Close(context.Background())
	sched.SetNotifier(dispatcher)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	if cfg.Engine.EnableScheduler {
		daemon := schedule.NewDaemon(sched)
		go func() {
			if err := daemon.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("schedule daemon exited", zap.Error(err))
			}
		}()
	}

	server := rest.NewServer(sched, &rest.Config{
		Address:      cfg.Server.Address,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
	})

	if !quiet {
		fmt.Printf(Banner, Version)
		fmt.Printf("  listening on %s, %d pipeline(s) loaded\n\n", cfg.Server.Address, len(loaded))
	}

	if err := server.StartWithContext(ctx); err != nil {
		return err
	}

	// Let in-flight runs finish within the grace period.
	graceCtx, graceCancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownGrace)
	defer graceCancel()
	if err := sched.Stop(graceCtx); err != nil {
		logger.Warn("shutdown grace period expired with runs in flight")
	}
	logger.Sync()
	return nil
}

// loadPipelines parses every *.yml / *.yaml file in dir and registers
// it with the scheduler.
func loadPipelines(sched *scheduler.Scheduler, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading pipelines directory: %w", err)
	}

	p := parser.NewYAMLParser()
	var loaded []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		pipeline, err := p.ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		sched.RegisterPipeline(pipeline)
		loaded = append(loaded, pipeline.Name)
		logger.Info("pipeline loaded",
			zap.String("name", pipeline.Name),
			zap.String("file", entry.Name()),
		)
	}
	sort.Strings(loaded)
	return loaded, nil
}
