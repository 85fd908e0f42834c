package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/audit-cli/internal/audit"
	"github.com/sells-group/audit-cli/internal/config"
	"github.com/sells-group/audit-cli/internal/ingest"
	"github.com/sells-group/audit-cli/internal/model"
	"github.com/sells-group/audit-cli/internal/monitoring"
	"github.com/sells-group/audit-cli/internal/store"
)

var (
	batchTask        string
	batchDir         string
	batchConcurrency int
	batchSave        bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Analyze every batch file in a directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		files, err := ingest.ListDir(batchDir)
		if err != nil {
			return err
		}

		env, err := initAudit(ctx, envOptions{mode: config.ModeAnalyze, withStore: batchSave})
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}

		report, err := processBatch(ctx, files, model.ParseTaskType(batchTask), concurrency, env.Analyzer, env.Store)
		if err != nil {
			return err
		}
		report.Alerts = raiseAlerts(ctx, monitoring.NewAlerter(cfg.Monitor), report.Summary)
		return writeJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchTask, "task", "", "task type applied to every file")
	batchCmd.Flags().StringVar(&batchDir, "dir", "", "directory of batch files")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "parallel analyses (default from config)")
	batchCmd.Flags().BoolVar(&batchSave, "save", false, "persist each result to the store")
	_ = batchCmd.MarkFlagRequired("task")
	_ = batchCmd.MarkFlagRequired("dir")
	rootCmd.AddCommand(batchCmd)
}

// fileResult is one file's outcome in a batch report.
type fileResult struct {
	File          string         `json:"file"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Success       bool           `json:"success"`
	Severity      model.Severity `json:"severity,omitempty"`
	Issues        int            `json:"issues"`
	UsedFallback  bool           `json:"used_fallback"`
	Error         string         `json:"error,omitempty"`
}

// batchReport is the output of the batch command.
type batchReport struct {
	Files   []fileResult       `json:"files"`
	Summary audit.Summary      `json:"summary"`
	Alerts  []monitoring.Alert `json:"alerts,omitempty"`
}

// raiseAlerts evaluates the run summary, logs each alert and sends them to
// the webhook when one is configured.
func raiseAlerts(ctx context.Context, a *monitoring.Alerter, s audit.Summary) []monitoring.Alert {
	alerts := a.Evaluate(s)
	for _, al := range alerts {
		zap.L().Warn("batch alert",
			zap.String("type", string(al.Type)),
			zap.String("severity", al.Severity),
			zap.String("message", al.Message),
		)
	}
	a.SendAlerts(ctx, alerts)
	return alerts
}

// processBatch analyzes files concurrently. A file that cannot be loaded or
// analyzed is reported and does not abort the run. st may be nil.
func processBatch(ctx context.Context, files []string, taskType model.TaskType, concurrency int, a analyzer, st store.Store) (*batchReport, error) {
	report := &batchReport{Files: make([]fileResult, len(files))}
	if len(files) == 0 {
		zap.L().Info("no batch files found")
		report.Summary = audit.Summarize(nil)
		return report, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("files", len(files)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	results := make([]*model.AnalysisResult, len(files))
	var succeeded, failed atomic.Int64

	for i, file := range files {
		g.Go(func() error {
			log := zap.L().With(zap.String("file", filepath.Base(file)))
			fr := fileResult{File: file}
			defer func() { report.Files[i] = fr }()

			records, err := ingest.LoadFile(file)
			if err != nil {
				failed.Add(1)
				fr.Error = err.Error()
				log.Error("load failed", zap.Error(err))
				return nil
			}

			req := model.AnalysisRequest{TaskType: taskType, Records: records}
			result, err := a.Analyze(gctx, req)
			if err != nil {
				failed.Add(1)
				fr.Error = err.Error()
				log.Error("analysis rejected", zap.Error(err))
				return nil
			}
			results[i] = result

			fr.CorrelationID = result.CorrelationID
			fr.Success = result.Success
			fr.Severity = result.Severity
			fr.Issues = len(result.IssuesFound)
			if result.Routing != nil {
				fr.UsedFallback = result.Routing.UsedFallback
			}
			if result.Error != nil {
				fr.Error = result.Error.Message
			}
			if result.Success {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}

			if st != nil {
				if err := saveResult(gctx, st, req, result); err != nil {
					log.Warn("save failed", zap.Error(err))
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "batch processing")
	}

	report.Summary = audit.Summarize(results)
	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
		zap.Float64("estimated_cost_usd", report.Summary.EstimatedCostUSD),
	)
	return report, nil
}
