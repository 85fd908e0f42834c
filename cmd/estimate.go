package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/audit-cli/internal/config"
	"github.com/sells-group/audit-cli/internal/model"
	"github.com/sells-group/audit-cli/internal/router"
)

var (
	estimateTask         string
	estimateInputTokens  int64
	estimateOutputTokens int64
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate the cost of a call on a task type's primary model",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.ModeOffline); err != nil {
			return err
		}
		table, err := buildTable(cfg)
		if err != nil {
			return err
		}
		resp, err := estimateFor(table, model.ParseTaskType(estimateTask), estimateInputTokens, estimateOutputTokens)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), resp)
	},
}

func init() {
	estimateCmd.Flags().StringVar(&estimateTask, "task", "", "task type")
	estimateCmd.Flags().Int64Var(&estimateInputTokens, "input-tokens", 0, "input tokens")
	estimateCmd.Flags().Int64Var(&estimateOutputTokens, "output-tokens", 0, "output tokens")
	_ = estimateCmd.MarkFlagRequired("task")
	rootCmd.AddCommand(estimateCmd)
}

func estimateFor(table *router.Table, taskType model.TaskType, inputTokens, outputTokens int64) (*estimateResponse, error) {
	if inputTokens < 0 || outputTokens < 0 {
		return nil, eris.New("token counts must be non-negative")
	}
	route, err := table.Lookup(taskType)
	if err != nil {
		return nil, err
	}
	usd, err := router.EstimateCost(table, taskType, inputTokens, outputTokens)
	if err != nil {
		return nil, err
	}
	return &estimateResponse{
		TaskType:         taskType,
		Provider:         route.Provider,
		Model:            route.PrimaryModel,
		InputTokens:      inputTokens,
		OutputTokens:     outputTokens,
		EstimatedCostUSD: usd,
	}, nil
}
