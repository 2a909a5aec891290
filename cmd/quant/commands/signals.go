package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/eodsignals/internal/pipeline"
)

// signalsCmd represents the signals command
var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "조건부 시그널 생성",
	Long: `장 마감 후 다음 거래일용 조건부 시그널을 생성합니다.

Example:
  go run ./cmd/quant signals generate
  go run ./cmd/quant signals generate --date 2024-01-02 --force`,
}

var (
	signalsGenerateCmd = &cobra.Command{
		Use:   "generate",
		Short: "eod_signals 실행",
		Long: `eod_signals 파이프라인을 실행합니다.

Flags:
  --date    기준일 (YYYY-MM-DD, 기본: 시장 시간 기준 어제)
  --force   마감 전 실행 허용
  --reason  실행 사유 (기본: cli)
  --json    JSON 출력

컷오프(SIGNAL_CUTOFF) 이전에는 --force 없이 실행되지 않습니다.`,
		RunE: runSignalsGenerate,
	}

	// Flags
	signalsDate   string
	signalsForce  bool
	signalsReason string
	signalsJSON   bool
)

func init() {
	rootCmd.AddCommand(signalsCmd)
	signalsCmd.AddCommand(signalsGenerateCmd)

	signalsGenerateCmd.Flags().StringVar(&signalsDate, "date", "", "기준일 (YYYY-MM-DD)")
	signalsGenerateCmd.Flags().BoolVar(&signalsForce, "force", false, "마감 전 실행 허용")
	signalsGenerateCmd.Flags().StringVar(&signalsReason, "reason", "cli", "실행 사유")
	signalsGenerateCmd.Flags().BoolVar(&signalsJSON, "json", false, "JSON 출력")
}

func runSignalsGenerate(cmd *cobra.Command, args []string) error {
	dateRef, err := parseDateFlag("date", signalsDate)
	if err != nil {
		return err
	}

	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	resp, err := d.signalPipeline(nil).Run(context.Background(), pipeline.SignalRequest{
		DateRef: dateRef,
		Force:   signalsForce,
		Reason:  signalsReason,
		Mode:    "cli",
	})
	if err != nil {
		PrintError(err.Error())
		return err
	}

	if signalsJSON {
		return PrintJSON(resp)
	}

	PrintJobHeader(JobMetadata{
		JobType: "EOD Signals",
		RunID:   resp.RunID,
		DateRef: resp.DateRef,
		Extra:   fmt.Sprintf("Config    : %s", resp.ConfigVersion),
	})

	if resp.Status != pipeline.StatusOK {
		PrintWarning(fmt.Sprintf("%s (%s): %s", resp.Status, resp.Reason, resp.Message))
		return nil
	}

	fmt.Printf("Valid for : %s\n\n", resp.ValidFor)
	widths := []int{4, 10, 5, 10, 10, 10, 10}
	PrintTableHeader([]string{"#", "Ticker", "Side", "Entry", "Target", "Stop", "Score"}, widths)
	for _, s := range resp.Signals {
		PrintTableRow([]string{
			fmt.Sprintf("%d", s.Rank),
			s.Ticker,
			string(s.Side),
			fmt.Sprintf("%.4f", s.Entry),
			fmt.Sprintf("%.4f", s.Target),
			fmt.Sprintf("%.4f", s.Stop),
			fmt.Sprintf("%.4f", s.Score),
		}, widths)
	}
	fmt.Println()
	PrintSuccess(fmt.Sprintf("%d signals stored (%d requested, %d generated)", resp.Stored, resp.Requested, resp.Generated))
	return nil
}
