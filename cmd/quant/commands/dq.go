package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/eodsignals/internal/contracts"
)

// dqCmd represents the dq command
var dqCmd = &cobra.Command{
	Use:   "dq",
	Short: "데이터 품질 검사",
	Long: `일봉, 시그널, 백테스트 지표의 품질 검사를 실행하고 결과를 저장합니다.

검사 항목:
- daily_freshness: 기대 종목 대비 일봉 커버리지
- daily_uniqueness: (ticker, date) 중복
- ohlc_validity: high/low 범위
- signals_limits: 시그널 개수 및 가격 레벨
- backtest_metrics: as_of_date 지표 존재

Example:
  go run ./cmd/quant dq run
  go run ./cmd/quant dq run --date 2024-01-02`,
}

var (
	dqRunCmd = &cobra.Command{
		Use:   "run",
		Short: "dq_checks 실행",
		RunE:  runDQ,
	}

	// Flags
	dqDate string
	dqJSON bool
)

func init() {
	rootCmd.AddCommand(dqCmd)
	dqCmd.AddCommand(dqRunCmd)

	dqRunCmd.Flags().StringVar(&dqDate, "date", "", "검사일 (YYYY-MM-DD, 기본: 시장 시간 기준 오늘)")
	dqRunCmd.Flags().BoolVar(&dqJSON, "json", false, "JSON 출력")
}

func runDQ(cmd *cobra.Command, args []string) error {
	date, err := parseDateFlag("date", dqDate)
	if err != nil {
		return err
	}

	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	if date == nil {
		today, err := marketToday(d.cfg)
		if err != nil {
			return err
		}
		date = &today
	}

	ctx := context.Background()
	checker, err := d.checker(ctx, nil)
	if err != nil {
		return err
	}

	report, err := checker.Run(ctx, *date)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	if dqJSON {
		return PrintJSON(report)
	}

	PrintJobHeader(JobMetadata{
		JobType: "Data Quality Checks",
		RunID:   report.RunID,
		DateRef: date.Format(contracts.DateLayout),
		Extra:   fmt.Sprintf("Trading   : %v", report.TradingDay),
	})

	widths := []int{18, 6, 9, 40}
	PrintTableHeader([]string{"Check", "Status", "Severity", "Details"}, widths)
	for _, r := range report.Results {
		details, _ := json.Marshal(r.Details)
		PrintTableRow([]string{r.Name, string(r.Status), r.Severity, string(details)}, widths)
	}
	fmt.Println()

	if report.Failures > 0 {
		PrintWarning(fmt.Sprintf("%d of %d checks failed", report.Failures, report.Checks))
		return nil
	}
	PrintSuccess(fmt.Sprintf("%d checks passed", report.Checks))
	return nil
}
