package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lookout/pkg/cli/config"
	controller "github.com/m-mizutani/lookout/pkg/controller/http"
	"github.com/m-mizutani/lookout/pkg/domain/types"
	"github.com/m-mizutani/lookout/pkg/usecase"
	"github.com/m-mizutani/lookout/pkg/utils/async"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"
)

func cmdRun() *cli.Command {
	var (
		watchCfg  config.Watch
		stateCfg  config.State
		serverCfg config.Server
		sentryCfg config.Sentry

		once           bool
		cronExpr       string
		statusInterval time.Duration
	)

	flags := watchCfg.Flags()
	flags = append(flags, stateCfg.Flags()...)
	flags = append(flags, serverCfg.Flags()...)
	flags = append(flags, sentryCfg.Flags()...)
	flags = append(flags,
		&cli.BoolFlag{
			Name:        "once",
			Usage:       "Run a single poll cycle and exit",
			Destination: &once,
			Sources:     cli.EnvVars("LOOKOUT_ONCE"),
		},
		&cli.StringFlag{
			Name:        "cron",
			Usage:       "Cron expression for cycle scheduling (overrides poll_interval_seconds)",
			Destination: &cronExpr,
			Sources:     cli.EnvVars("LOOKOUT_CRON"),
		},
		&cli.DurationFlag{
			Name:        "status-interval",
			Usage:       "Daemon heartbeat log interval (0 disables)",
			Value:       10 * time.Second,
			Destination: &statusInterval,
			Sources:     cli.EnvVars("LOOKOUT_STATUS_INTERVAL"),
		},
	)

	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Poll configured sources and deliver alerts",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			cfg, err := watchCfg.Load()
			if err != nil {
				return err
			}

			sentryEnabled, err := sentryCfg.Configure()
			if err != nil {
				return err
			}
			if sentryEnabled {
				defer sentry.Flush(2 * time.Second)
			}

			store, err := stateCfg.Configure()
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Warn("Failed to close state store", slog.Any("error", err))
				}
			}()

			sources, err := buildSources(cfg)
			if err != nil {
				return err
			}
			notifiers, err := buildNotifiers(cfg)
			if err != nil {
				return err
			}
			if len(notifiers) == 0 {
				logger.Warn("No notify channels configured; alerts will be recorded but not delivered")
			}

			var matcherOpts []usecase.MatcherOption
			if len(cfg.WatchSources) > 0 {
				matcherOpts = append(matcherOpts, usecase.WithSourceAllowlist(cfg.WatchSources...))
			}
			matcher := usecase.NewRuleMatcher(cfg.WatchKeywords, matcherOpts...)
			runner := usecase.NewRunner(store, sources, matcher, notifiers,
				usecase.WithMarkUnmatchedSeen(cfg.RecordUnmatched()))

			logger.Info("Starting lookout",
				slog.String("config", watchCfg.Path),
				slog.String("db_path", store.Path()),
				slog.Int("sources", len(sources)),
				slog.Int("notifiers", len(notifiers)),
				slog.Any("keywords", cfg.WatchKeywords),
			)

			reports := controller.NewReportRecorder()

			if serverCfg.Enabled {
				server, err := controller.NewServer(ctx, reports,
					controller.WithAddr(serverCfg.Addr))
				if err != nil {
					return goerr.Wrap(err, "failed to create status server")
				}

				async.Dispatch(ctx, func(ctx context.Context) error {
					ctxlog.From(ctx).Info("Status server starting",
						slog.String("addr", serverCfg.Addr))
					if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						return err
					}
					return nil
				})
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := server.Shutdown(shutdownCtx); err != nil {
						logger.Warn("Failed to shutdown status server", slog.Any("error", err))
					}
				}()
			}

			if once {
				report, err := runner.RunOnce(ctx)
				if report != nil {
					reports.Record(report)
				}
				if err != nil {
					if sentryEnabled {
						sentry.CaptureException(err)
					}
					return err
				}
				return nil
			}

			return runDaemon(ctx, runner, reports, daemonOptions{
				interval:       time.Duration(cfg.PollIntervalSeconds) * time.Second,
				cronExpr:       cronExpr,
				statusInterval: statusInterval,
				sentryEnabled:  sentryEnabled,
			})
		},
	}
}

type daemonOptions struct {
	interval       time.Duration
	cronExpr       string
	statusInterval time.Duration
	sentryEnabled  bool
}

// runDaemon loops cycles until the context is cancelled or a termination
// signal arrives. A failed cycle is logged and captured, never fatal; the
// next scheduled cycle starts from the last persisted cursor.
func runDaemon(ctx context.Context, runner *usecase.Runner, reports *controller.ReportRecorder, opts daemonOptions) error {
	logger := ctxlog.From(ctx)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		running sync.Mutex
		cycles  atomic.Int64
	)
	runCycle := func(ctx context.Context) {
		if !running.TryLock() {
			logger.Warn("Previous cycle still running, skipping")
			return
		}
		defer running.Unlock()

		id := cycles.Add(1)
		report, err := runner.RunOnce(ctx)
		if report != nil {
			reports.Record(report)
		}
		if err != nil {
			logger.Error("Cycle failed", slog.Int64("cycle", id), slog.Any("error", err))
			if opts.sentryEnabled {
				sentry.CaptureException(err)
			}
		}
	}

	var heartbeatC <-chan time.Time
	if opts.statusInterval > 0 {
		hb := time.NewTicker(opts.statusInterval)
		defer hb.Stop()
		heartbeatC = hb.C
	}
	heartbeat := func() {
		attrs := []any{slog.Int64("cycles", cycles.Load())}
		if last := reports.Last(); last != nil {
			attrs = append(attrs,
				slog.Int64("last_duration_ms", last.DurationMS),
				slog.Int("last_alerts", last.AlertsCreated),
				slog.Int("last_notify_failures", last.NotifyFailures),
				slog.Int("last_source_errors", last.SourceErrors),
			)
		}
		logger.Info("Daemon alive", attrs...)
	}

	if opts.cronExpr != "" {
		sched := cron.New()
		if _, err := sched.AddFunc(opts.cronExpr, func() { runCycle(ctx) }); err != nil {
			return goerr.Wrap(err, "invalid cron expression",
				goerr.T(types.TagConfig),
				goerr.V("cron", opts.cronExpr))
		}

		runCycle(ctx)
		sched.Start()

		for {
			select {
			case <-ctx.Done():
				logger.Info("Shutting down, waiting for running cycle")
				<-sched.Stop().Done()
				return nil
			case <-heartbeatC:
				heartbeat()
			}
		}
	}

	runCycle(ctx)

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
			return nil
		case <-ticker.C:
			runCycle(ctx)
		case <-heartbeatC:
			heartbeat()
		}
	}
}
