package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zayed1/SmartHospital/internal/channels"
	"github.com/zayed1/SmartHospital/internal/config"
	"github.com/zayed1/SmartHospital/internal/logging"
	"github.com/zayed1/SmartHospital/internal/report"
	"github.com/zayed1/SmartHospital/internal/repository"
	"github.com/zayed1/SmartHospital/internal/service"
	"github.com/zayed1/SmartHospital/internal/source"
)

func main() {
	root := &cobra.Command{
		Use:           "notifier",
		Short:         "Hospital on-call notification dispatcher",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(), onceCmd(), reportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup 加载配置并初始化日志
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format, "notifier")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, logger, nil
}

// signalContext SIGINT/SIGTERM 取消上下文
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runCmd() *cobra.Command {
	var withReport bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the notification loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			svc, err := service.NewNotifierService(cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Stop()

			ctx, cancel := signalContext()
			defer cancel()

			if withReport {
				go newReporter(cfg, logger).Start(ctx)
			}
			svc.Start(ctx)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withReport, "with-report", false, "also run the periodic summary reporter")
	return cmd
}

func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single notification cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			svc, err := service.NewNotifierService(cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Stop()

			ctx, cancel := signalContext()
			defer cancel()
			return svc.RunCycle(ctx)
		},
	}
}

func reportCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Send the department summary report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := signalContext()
			defer cancel()

			reporter := newReporter(cfg, logger)
			if watch {
				reporter.Start(ctx)
				return nil
			}
			reporter.RunOnce(ctx)
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and fire at the configured hours")
	return cmd
}

func newReporter(cfg *config.Config, logger *zap.Logger) *report.Reporter {
	meta := source.NewMetaStore(cfg.Data.SyncMetaJSON, logger)
	syncer := source.NewSyncer(cfg, meta, logger)
	repo := repository.NewRecordRepository(logger)
	telegram := channels.NewTelegram(cfg.Telegram.BotToken, cfg.Notifier.DryRun, logger)
	return report.NewReporter(cfg, syncer, repo, telegram, logger)
}
