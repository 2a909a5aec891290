package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/eodsignals/internal/pipeline"
)

// pipelineCmd represents the pipeline command
var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "일일 파이프라인 일괄 실행",
}

var (
	pipelineDailyCmd = &cobra.Command{
		Use:   "daily",
		Short: "eod_signals → backtest_daily → dq_checks → signal_alerts",
		Long: `하루치 파이프라인을 순서대로 실행합니다.
백테스트와 품질 검사는 시그널 기준일로 실행됩니다.

Example:
  go run ./cmd/quant pipeline daily
  go run ./cmd/quant pipeline daily --date 2024-01-02 --force --skip-alerts`,
		RunE: runPipelineDaily,
	}

	// Flags
	pipelineDate       string
	pipelineForce      bool
	pipelineSkipAlerts bool
	pipelineSkipDQ     bool
	pipelineJSON       bool
)

func init() {
	rootCmd.AddCommand(pipelineCmd)
	pipelineCmd.AddCommand(pipelineDailyCmd)

	pipelineDailyCmd.Flags().StringVar(&pipelineDate, "date", "", "기준일 (YYYY-MM-DD)")
	pipelineDailyCmd.Flags().BoolVar(&pipelineForce, "force", false, "마감 전 실행 허용")
	pipelineDailyCmd.Flags().BoolVar(&pipelineSkipAlerts, "skip-alerts", false, "알림 단계 생략")
	pipelineDailyCmd.Flags().BoolVar(&pipelineSkipDQ, "skip-dq", false, "품질 검사 단계 생략")
	pipelineDailyCmd.Flags().BoolVar(&pipelineJSON, "json", false, "JSON 출력")
}

func runPipelineDaily(cmd *cobra.Command, args []string) error {
	dateRef, err := parseDateFlag("date", pipelineDate)
	if err != nil {
		return err
	}

	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()

	var alerts pipeline.AlertRunner
	if !pipelineSkipAlerts {
		alerts = d.alerter(nil)
	}
	var dq pipeline.QualityRunner
	if !pipelineSkipDQ {
		checker, err := d.checker(ctx, nil)
		if err != nil {
			return err
		}
		dq = checker
	}

	orch := pipeline.NewOrchestrator(d.signalPipeline(nil), d.backtestPipeline(nil), alerts, dq, d.log)
	result, err := orch.Run(ctx, pipeline.DailyRequest{DateRef: dateRef, Force: pipelineForce, Reason: "cli"})

	if pipelineJSON {
		if perr := PrintJSON(result); perr != nil {
			return perr
		}
		return err
	}

	PrintJobHeader(JobMetadata{JobType: "Daily Pipeline", Extra: fmt.Sprintf("Duration  : %s", result.Duration)})
	PrintKeyValue("Stages", strings.Join(result.CompletedStages, " → "), 10)
	if result.Signals != nil {
		PrintKeyValue("Signals", fmt.Sprintf("%s %s (%d stored)", result.Signals.Status, result.Signals.DateRef, result.Signals.Stored), 10)
	}
	if result.Backtest != nil {
		PrintKeyValue("Backtest", fmt.Sprintf("%s (%d trades, %d metric rows)", result.Backtest.Status, result.Backtest.Trades, result.Backtest.Metrics), 10)
	}
	if result.Quality != nil {
		PrintKeyValue("DQ", fmt.Sprintf("%d/%d failed", result.Quality.Failures, result.Quality.Checks), 10)
	}
	fmt.Println()

	if err != nil {
		PrintError(err.Error())
		return err
	}
	PrintSuccess("Daily pipeline completed")
	return nil
}
