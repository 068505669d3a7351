package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"wanwatch/pkg/config"
	"wanwatch/pkg/failover"
	"wanwatch/pkg/journal"
	"wanwatch/pkg/metrics"
	"wanwatch/pkg/monitor"
	"wanwatch/pkg/probe"
	"wanwatch/pkg/route"
	"wanwatch/pkg/score"
	"wanwatch/pkg/uci"
	"wanwatch/pkg/version"
)

var (
	cfgPath     string
	logLevel    string
	once        bool
	dryRun      bool
	showVersion bool
)

func main() {
	_ = godotenv.Load()

	defaultConfig := os.Getenv("WANWATCH_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "/etc/wanwatch/config.json"
	}

	root := &cobra.Command{
		Use:           "wanwatchd",
		Short:         "multi-WAN failover monitor for OpenWrt-class routers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", defaultConfig, "config file path (env WANWATCH_CONFIG)")
	root.Flags().StringVar(&logLevel, "log-level", "", "override config log level (debug, info, warn, error)")
	root.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
	root.Flags().BoolVar(&dryRun, "dry-run", false, "decide but never touch routes or persisted config")
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "print version and exit")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "wanwatchd: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if showVersion {
		fmt.Printf("wanwatchd version=%s\n", version.Build)
		return nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	level := cfg.Global.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger, err := buildLogger(level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	enabled := cfg.EnabledInterfaces()
	logger.Info("wanwatchd starting",
		zap.String("version", version.Build),
		zap.Duration("checkInterval", cfg.Global.Interval),
		zap.Duration("probeTimeout", cfg.Global.Timeout),
		zap.Int("concurrentProbes", cfg.Global.ConcurrentProbes),
		zap.Int("failureThreshold", cfg.Global.FailureThreshold),
		zap.Bool("autoSwitch", cfg.Global.AutoSwitch),
		zap.Bool("manageRoutes", cfg.Global.ManageRoutes),
		zap.Int("interfaces", len(cfg.Interfaces)),
		zap.Int("targets", len(cfg.Targets)))
	for _, i := range enabled {
		logger.Info("interface",
			zap.String("name", i.Name),
			zap.String("displayName", i.DisplayName),
			zap.Int("priority", i.Priority),
			zap.Int("tableId", i.TableID),
			zap.String("gateway", orAuto(i.Gateway)))
	}
	for _, t := range cfg.Targets {
		logger.Info("target",
			zap.String("address", t.Address),
			zap.String("description", t.Description),
			zap.Float64("weight", t.Weight),
			zap.Bool("managed", t.Managed))
	}

	prober := probe.New(probe.ExecPinger{}, probe.ExecSpeedTester{}, cfg.Global, logger.Named("probe"))
	scorer := score.New(cfg.Global)
	ctrl := failover.NewController(cfg.Global.FailureThreshold, enabled[0].Name, logger.Named("failover"))
	manager := route.NewManager(route.ExecAdapter{}, cfg.Interfaces, logger.Named("route"))

	var syncer monitor.RouteSyncer
	if cfg.Global.ManageRoutes {
		syncer = uci.NewSynchronizer(uci.ExecClient{}, logger.Named("uci"))
	}

	opts := []monitor.Option{monitor.WithDryRun(dryRun)}
	if cfg.Global.JournalPath != "" {
		jrnl, err := journal.Open(cfg.Global.JournalPath, logger.Named("journal"))
		if err != nil {
			logger.Warn("journal disabled", zap.String("path", cfg.Global.JournalPath), zap.Error(err))
		} else {
			defer jrnl.Close()
			opts = append(opts, monitor.WithJournal(jrnl))
		}
	}
	if cfg.Global.MetricsListen != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, monitor.WithMetrics(metrics.New(reg)))
		metrics.Serve(cfg.Global.MetricsListen, reg, logger.Named("metrics"))
	}

	loop := monitor.New(cfg, prober, scorer, ctrl, manager, syncer, logger.Named("monitor"), opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once {
		return loop.RunCycle(ctx)
	}
	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("wanwatchd stopped")
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}

func orAuto(gateway string) string {
	if gateway == "" {
		return "auto"
	}
	return gateway
}
