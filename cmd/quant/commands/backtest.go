package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/eodsignals/internal/backtest"
	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/internal/pipeline"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "일일 백테스트",
	Long: `저장된 시그널을 일봉으로 시뮬레이션하고 롤링 지표를 갱신합니다.

Example:
  go run ./cmd/quant backtest run
  go run ./cmd/quant backtest run --date 2024-01-02 --policy target_first`,
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run",
		Short: "backtest_daily 실행",
		Long: `backtest_daily 파이프라인을 실행합니다.

Flags:
  --date    기준일 (YYYY-MM-DD, 기본: 오늘 또는 직전 거래일)
  --policy  같은 봉에서 목표가/손절가 동시 터치 시 규칙 (stop_first|target_first)
  --json    JSON 출력`,
		RunE: runBacktest,
	}

	// Flags
	backtestDate   string
	backtestPolicy string
	backtestJSON   bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)

	backtestRunCmd.Flags().StringVar(&backtestDate, "date", "", "기준일 (YYYY-MM-DD)")
	backtestRunCmd.Flags().StringVar(&backtestPolicy, "policy", backtest.StopFirst.String(), "same-bar policy (stop_first|target_first)")
	backtestRunCmd.Flags().BoolVar(&backtestJSON, "json", false, "JSON 출력")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	dateRef, err := parseDateFlag("date", backtestDate)
	if err != nil {
		return err
	}
	policy, err := backtest.ParsePolicy(backtestPolicy)
	if err != nil {
		return err
	}

	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	resp, err := d.backtestPipeline(nil).
		WithPolicy(policy).
		Run(context.Background(), pipeline.BacktestRequest{DateRef: dateRef})
	if err != nil {
		PrintError(err.Error())
		return err
	}

	if backtestJSON {
		return PrintJSON(resp)
	}

	PrintJobHeader(JobMetadata{
		JobType: "Backtest Daily",
		RunID:   resp.RunID,
		DateRef: resp.DateRef,
		Extra:   fmt.Sprintf("Policy    : %s", policy),
	})

	if resp.Status != pipeline.StatusOK {
		PrintWarning(fmt.Sprintf("%s (%s): %s", resp.Status, resp.Reason, resp.Message))
		return nil
	}

	PrintKeyValue("Processed", fmt.Sprintf("%d", resp.ProcessedSignals), 12)
	PrintKeyValue("Skipped", fmt.Sprintf("%d", resp.SkippedSignals), 12)
	PrintKeyValue("Trades", fmt.Sprintf("%d", resp.Trades), 12)
	PrintKeyValue("Metric rows", fmt.Sprintf("%d", resp.Metrics), 12)
	printSummary(resp.Summary)
	return nil
}

// printSummary prints the exit reason breakdown
func printSummary(s backtest.Summary) {
	fmt.Println()
	PrintKeyValue("Fills", fmt.Sprintf("%d/%d", s.Fills, s.Signals), 12)
	for _, r := range contracts.AllExitReasons() {
		PrintKeyValue(string(r), fmt.Sprintf("%d", s.ByReason[r]), 12)
	}
	fmt.Println()
	PrintSuccess(fmt.Sprintf("Backtest completed in %s", s.Duration))
}
