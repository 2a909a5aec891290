package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/eodsignals/internal/contracts"
)

// metricsCmd represents the metrics command
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "롤링 백테스트 지표 조회",
}

var (
	metricsShowCmd = &cobra.Command{
		Use:   "show",
		Short: "최신 backtest_metrics 스냅샷 출력",
		Long: `가장 최근 as_of_date의 지표를 출력합니다.

Flags:
  --combo  global|side|ticker|ticker_side (기본: 전체)
  --json   JSON 출력

Example:
  go run ./cmd/quant metrics show
  go run ./cmd/quant metrics show --combo side`,
		RunE: runMetricsShow,
	}

	// Flags
	metricsCombo string
	metricsJSON  bool
)

func init() {
	rootCmd.AddCommand(metricsCmd)
	metricsCmd.AddCommand(metricsShowCmd)

	metricsShowCmd.Flags().StringVar(&metricsCombo, "combo", "", "combo class filter")
	metricsShowCmd.Flags().BoolVar(&metricsJSON, "json", false, "JSON 출력")
}

func runMetricsShow(cmd *cobra.Command, args []string) error {
	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	rows, err := d.stores.Metrics.LatestSnapshot(context.Background())
	if err != nil {
		return fmt.Errorf("load metrics: %w", err)
	}

	filtered := rows[:0]
	for _, row := range rows {
		if metricsCombo == "" || string(row.Combo) == metricsCombo {
			filtered = append(filtered, row)
		}
	}

	if metricsJSON {
		return PrintJSON(filtered)
	}
	if len(filtered) == 0 {
		PrintWarning("No backtest metrics stored yet")
		return nil
	}

	fmt.Printf("\nAs of %s (%d rows)\n\n", filtered[0].AsOfDate.Format(contracts.DateLayout), len(filtered))
	widths := []int{12, 10, 5, 8, 6, 9, 10, 8}
	PrintTableHeader([]string{"Combo", "Ticker", "Side", "Signals", "Fills", "Win rate", "Avg ret", "PF"}, widths)
	for _, row := range filtered {
		ticker, side := row.Key()
		PrintTableRow([]string{
			string(row.Combo),
			orDash(ticker),
			orDash(string(side)),
			fmt.Sprintf("%d", row.Signals),
			fmt.Sprintf("%d", row.Fills),
			fmt.Sprintf("%.1f%%", row.WinRate*100),
			pct(row.AvgReturn),
			num(row.ProfitFactor),
		}, widths)
	}
	fmt.Println()
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func pct(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *v*100)
}

func num(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
