package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/audit-cli/internal/audit"
	"github.com/sells-group/audit-cli/internal/config"
	"github.com/sells-group/audit-cli/internal/ingest"
	"github.com/sells-group/audit-cli/internal/model"
	"github.com/sells-group/audit-cli/internal/router"
	"github.com/sells-group/audit-cli/internal/store"
)

var (
	analyzeTask          string
	analyzeFile          string
	analyzeStream        bool
	analyzeSave          bool
	analyzeCorrelationID string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze one batch of records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		records, err := ingest.LoadFile(analyzeFile)
		if err != nil {
			return err
		}

		env, err := initAudit(ctx, envOptions{mode: config.ModeAnalyze, withStore: analyzeSave})
		if err != nil {
			return err
		}
		defer env.Close()

		req := model.AnalysisRequest{
			TaskType:      model.ParseTaskType(analyzeTask),
			Records:       records,
			CorrelationID: analyzeCorrelationID,
		}

		var streamOut io.Writer
		if analyzeStream {
			streamOut = cmd.ErrOrStderr()
		}
		result, err := runAnalysis(ctx, env.Analyzer, req, streamOut)
		if err != nil {
			return err
		}

		if analyzeSave {
			if err := saveResult(ctx, env.Store, req, result); err != nil {
				return err
			}
		}
		return writeJSON(cmd.OutOrStdout(), result)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeTask, "task", "", "task type (payroll, hris, erp, crm, compliance, ai_infrastructure)")
	analyzeCmd.Flags().StringVar(&analyzeFile, "file", "", "batch file (.json, .yaml, .csv, .xlsx)")
	analyzeCmd.Flags().BoolVar(&analyzeStream, "stream", false, "stream model output to stderr")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "persist the result to the store")
	analyzeCmd.Flags().StringVar(&analyzeCorrelationID, "correlation-id", "", "correlation id (generated when empty)")
	_ = analyzeCmd.MarkFlagRequired("task")
	_ = analyzeCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(analyzeCmd)
}

// analyzer is the part of *audit.Analyzer the commands and server use.
type analyzer interface {
	Analyze(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error)
	AnalyzeStream(ctx context.Context, req model.AnalysisRequest, onChunk func(router.Chunk)) (*model.AnalysisResult, error)
}

var _ analyzer = (*audit.Analyzer)(nil)

// runAnalysis analyzes req, streaming model text to streamOut when it is
// non-nil. A fallback restart is announced so readers can discard the
// primary's partial output.
func runAnalysis(ctx context.Context, a analyzer, req model.AnalysisRequest, streamOut io.Writer) (*model.AnalysisResult, error) {
	if streamOut == nil {
		return a.Analyze(ctx, req)
	}

	inFallback := false
	result, err := a.AnalyzeStream(ctx, req, func(c router.Chunk) {
		if c.Fallback && !inFallback {
			inFallback = true
			fmt.Fprintln(streamOut, "\n--- primary failed, restarting on fallback ---")
		}
		fmt.Fprint(streamOut, c.Text)
	})
	fmt.Fprintln(streamOut)
	return result, err
}

func saveResult(ctx context.Context, st store.Store, req model.AnalysisRequest, result *model.AnalysisResult) error {
	if req.CorrelationID == "" {
		req.CorrelationID = result.CorrelationID
	}
	saved, err := st.SaveAnalysis(ctx, req, result)
	if err != nil {
		return eris.Wrap(err, "save analysis")
	}
	zap.L().Info("analysis saved",
		zap.String("id", saved.ID),
		zap.String("correlation_id", saved.CorrelationID),
	)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "write output")
}
