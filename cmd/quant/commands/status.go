package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/eodsignals/internal/contracts"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "파이프라인 산출물 모니터링",
	Long: `기준일의 시그널, 트레이드, 지표 저장 상태를 주기적으로 표시합니다.

표시 정보:
- Calendar: 거래일 여부, 다음 거래일
- Signals: 저장된 시그널 수
- Trades: 시뮬레이션된 트레이드 수 (exit reason별)
- Metrics: as_of_date 지표 행 수

Example:
  go run ./cmd/quant status
  go run ./cmd/quant status --date 2024-01-02 --refresh 5s`,
	RunE: runStatus,
}

var (
	// Status flags
	statusDate    string
	statusRefresh time.Duration
)

func init() {
	rootCmd.AddCommand(statusCmd)

	// Flags
	statusCmd.Flags().StringVar(&statusDate, "date", "", "기준일 (YYYY-MM-DD, 기본: 직전 거래일)")
	statusCmd.Flags().DurationVar(&statusRefresh, "refresh", 0, "갱신 간격 (0이면 한 번만 출력)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	date, err := parseDateFlag("date", statusDate)
	if err != nil {
		return err
	}

	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	if date == nil {
		today, err := marketToday(d.cfg)
		if err != nil {
			return err
		}
		cal, err := d.calendar(ctx)
		if err != nil {
			return err
		}
		prev, err := cal.Previous(today)
		if err != nil {
			return err
		}
		date = &prev
	}

	if statusRefresh <= 0 {
		return displayStatus(ctx, d, *date)
	}

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()

	if err := displayStatus(ctx, d, *date); err != nil {
		return err
	}

	for {
		select {
		case <-sigChan:
			fmt.Println("\n✅ Status monitor stopped")
			return nil

		case <-ticker.C:
			// Clear screen (ANSI escape code)
			fmt.Print("\033[H\033[2J")
			fmt.Printf("Refresh: %v | Last update: %s\n", statusRefresh, time.Now().Format("15:04:05"))

			if err := displayStatus(ctx, d, *date); err != nil {
				PrintError(err.Error())
			}
		}
	}
}

func displayStatus(ctx context.Context, d *deps, date time.Time) error {
	cal, err := d.calendar(ctx)
	if err != nil {
		return err
	}
	next, err := cal.Next(date)
	if err != nil {
		return err
	}

	signals, err := d.stores.Signals.GetSignals(ctx, date)
	if err != nil {
		return fmt.Errorf("load signals: %w", err)
	}
	trades, err := d.stores.Trades.GetTrades(ctx, date)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	metricRows, err := d.stores.Metrics.CountMetrics(ctx, date)
	if err != nil {
		return fmt.Errorf("count metrics: %w", err)
	}

	byReason := make(map[contracts.ExitReason]int)
	for _, t := range trades {
		byReason[t.ExitReason]++
	}

	fmt.Printf("\n📅 %s\n", date.Format(contracts.DateLayout))
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("%-15s %10v\n", "Trading day:", cal.IsTradingDay(date))
	fmt.Printf("%-15s %10s\n", "Valid for:", next.Format(contracts.DateLayout))
	fmt.Println()

	fmt.Println("📊 Outputs")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("%-15s %10d\n", "Signals:", len(signals))
	fmt.Printf("%-15s %10d\n", "Trades:", len(trades))
	fmt.Printf("%-15s %10d\n", "Metric rows:", metricRows)
	fmt.Println()

	if len(trades) > 0 {
		fmt.Println("📈 Exit reasons")
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		for _, r := range contracts.AllExitReasons() {
			fmt.Printf("%-15s %10d\n", string(r)+":", byReason[r])
		}
		fmt.Println()
	}
	return nil
}
