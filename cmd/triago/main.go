package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/opsgate/triago/internal/agent"
	"github.com/opsgate/triago/internal/inference"
	"github.com/opsgate/triago/internal/kv"
	"github.com/opsgate/triago/internal/logging"
	"github.com/opsgate/triago/internal/pipeline"
	"github.com/opsgate/triago/internal/scheduler"
	"github.com/opsgate/triago/internal/stats"
	"github.com/opsgate/triago/internal/tools"
	"github.com/opsgate/triago/internal/validation"
	"github.com/opsgate/triago/internal/workflows"
	triagomcp "github.com/opsgate/triago/pkg/mcp"
)

const statsReportJob = "daily_stats_report"

func main() {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("triago exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newLogger builds the process logger. Output goes to stderr because stdout
// carries the MCP transport.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	store, err := kv.NewLibSQLKV(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	statsStore := stats.NewStore(store, logger)

	rules, err := tools.NewRuleSet(cfg.Ownership)
	if err != nil {
		return fmt.Errorf("compile ownership rules: %w", err)
	}

	dirs := []tools.OwnerDirectory{}
	if awsCfg, cfgErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion)); cfgErr == nil {
		dirs = append(dirs, tools.NewEC2OwnerDirectory(ec2.NewFromConfig(awsCfg)))
	} else {
		logger.Warn("aws credentials unavailable, resource owner lookup uses ownership rules only",
			slog.String("error", cfgErr.Error()))
	}
	dirs = append(dirs, rules)

	tracker := tools.NewGitHubTracker(cfg.GitHubOwner, cfg.GitHubRepo, cfg.GitHubToken)

	registry := tools.NewRegistry()
	for _, tool := range []tools.Tool{
		tools.NewCreateIssueTool(tracker, logger),
		tools.NewListCollaboratorsTool(tracker),
		tools.NewLookupOwnerTool(logger, dirs...),
	} {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("register tool: %w", err)
		}
	}

	inferencer, err := inference.NewBedrockInferencer(ctx, cfg.AWSRegion, cfg.ModelID, logger)
	if err != nil {
		return fmt.Errorf("create inferencer: %w", err)
	}

	engine := pipeline.NewEngine(registry, inferencer, validation.NewShapeValidator(), logger)
	svc := agent.NewService(engine, statsStore,
		workflows.NewCreateIssueDefinition(),
		workflows.NewIssueStatsDefinition(statsStore, time.Now, cfg.AnalyzeTrends),
		logger)

	sched := scheduler.NewScheduler(logger)
	if err := sched.AddJob(statsReportJob, cfg.ReportCron, reportJob(svc, logger)); err != nil {
		return fmt.Errorf("schedule stats report: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	srv := triagomcp.NewTriagoServer(triagomcp.TriagoServerDeps{
		Service: svc,
		Logger:  logger,
	})

	logger.Info("triago agent ready",
		slog.String("repo", cfg.GitHubOwner+"/"+cfg.GitHubRepo),
		slog.String("model", cfg.ModelID),
		slog.String("report_cron", cfg.ReportCron),
	)

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// reportJob runs the stats pipeline and logs the report.
func reportJob(svc *agent.Service, logger *slog.Logger) scheduler.JobFunc {
	return func(ctx context.Context) error {
		outcome, err := svc.StatsReport(ctx)
		if err != nil {
			return err
		}
		if !outcome.Succeeded() {
			return outcome.Error
		}

		raw, err := json.Marshal(outcome.Output)
		if err != nil {
			return fmt.Errorf("encode stats report: %w", err)
		}
		logger.InfoContext(ctx, "daily stats report", slog.String("report", string(raw)))
		return nil
	}
}
